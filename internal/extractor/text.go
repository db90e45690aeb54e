package extractor

import (
	"strings"

	"watchrag/internal/domain"
)

const paragraphSeparator = "\n\n"

// parseText splits on blank lines. Empty paragraphs are kept as records.
func parseText(data []byte, source string) Result {
	parts := strings.Split(string(data), paragraphSeparator)
	res := Result{Records: make([]domain.SourceRecord, 0, len(parts))}
	for _, p := range parts {
		res.Records = append(res.Records, domain.SourceRecord{Text: p, Source: source})
	}
	return res
}
