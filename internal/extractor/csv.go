package extractor

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"watchrag/internal/domain"
)

const (
	encodingSniffSize = 1024
	minProductFields  = 5
)

// productTemplate maps columns 1=code, 2=description, 3=price, 4=stock.
const productTemplate = "Product: %s (Code: %s). Price: $%s. Stock available: %s units."

func parseCSV(data []byte, source string) (Result, error) {
	text, err := decodeCatalogue(data)
	if err != nil {
		return Result{}, err
	}

	firstLine, _, _ := strings.Cut(text, "\n")
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = detectDelimiter(firstLine)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var res Result
	header := true
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				if header {
					header = false
				} else {
					res.Skipped++
				}
				continue
			}
			return Result{}, err
		}
		if header {
			header = false
			continue
		}
		sentence, ok := productSentence(row)
		if !ok {
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, domain.SourceRecord{Text: sentence, Source: source})
	}
	return res, nil
}

func productSentence(row []string) (string, bool) {
	if len(row) < minProductFields {
		return "", false
	}
	return fmt.Sprintf(productTemplate,
		strings.TrimSpace(row[2]),
		strings.TrimSpace(row[1]),
		strings.TrimSpace(row[3]),
		strings.TrimSpace(row[4]),
	), true
}

func detectDelimiter(firstLine string) rune {
	if strings.ContainsRune(firstLine, ';') {
		return ';'
	}
	return ','
}

// decodeCatalogue decodes data as UTF-8 (dropping a BOM) when the first
// kilobyte is valid UTF-8, and as Latin-1 otherwise. A file that starts as
// UTF-8 and breaks later is rejected rather than decoded with U+FFFD.
func decodeCatalogue(data []byte) (string, error) {
	head := data
	if len(head) > encodingSniffSize {
		head = head[:encodingSniffSize]
	}
	if validUTF8Prefix(head) {
		if i := invalidUTF8Offset(data); i >= 0 {
			return "", fmt.Errorf("%w: invalid UTF-8 at byte %d", domain.ErrUnsupportedFormat, i)
		}
		out, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// invalidUTF8Offset returns the offset of the first invalid byte, or -1.
func invalidUTF8Offset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

// validUTF8Prefix is utf8.Valid except that a rune cut off by the end of b
// still counts as valid.
func validUTF8Prefix(b []byte) bool {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return !utf8.FullRune(b[i:]) && isRuneStart(b[i:])
		}
		i += size
	}
	return true
}

// isRuneStart reports whether some continuation bytes would complete b.
func isRuneStart(b []byte) bool {
	for _, pad := range []byte{0x80, 0xBF} {
		padded := append(bytes.Clone(b), pad, pad, pad)
		if r, _ := utf8.DecodeRune(padded); r != utf8.RuneError {
			return true
		}
	}
	return false
}
