// Package extractor turns uploaded catalogue files into normalized text records.
package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"watchrag/internal/domain"
)

// Result holds the records extracted from one file and the number of CSV
// rows that were dropped because they could not be turned into a sentence.
type Result struct {
	Records []domain.SourceRecord
	Skipped int
}

// Texts returns the record texts in order.
func (r Result) Texts() []string {
	out := make([]string, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.Text
	}
	return out
}

// Supported reports whether path has an extension Extract understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return true
	}
	return false
}

// Extract reads path and returns its records. CSV files produce one product
// sentence per valid row; text files produce one record per paragraph.
func Extract(path string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !Supported(path) {
		return Result{}, fmt.Errorf("%w: extension %q (use .csv or .txt)", domain.ErrUnsupportedFormat, ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	source := filepath.Base(path)

	var res Result
	if ext == ".csv" {
		res, err = parseCSV(data, source)
		if err != nil {
			return Result{}, err
		}
	} else {
		res = parseText(data, source)
	}
	if len(res.Records) == 0 {
		return res, fmt.Errorf("%w: %s has no valid records", domain.ErrEmptyInput, source)
	}
	return res, nil
}
