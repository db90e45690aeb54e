package service

import (
	"fmt"
	"path/filepath"
	"strings"

	"watchrag/internal/domain"
)

// Mode selects the ingestion path.
type Mode string

const (
	// ModeAdmin accepts catalogues and FAQ text and marks documents Processed.
	ModeAdmin Mode = "admin"
	// ModeUpload accepts catalogues only and marks documents Loaded.
	ModeUpload Mode = "upload"
)

// ParseMode maps a flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAdmin, ModeUpload:
		return m, nil
	case "":
		return ModeAdmin, nil
	}
	return "", fmt.Errorf("%w: unknown ingest mode %q", domain.ErrInvalidConfig, s)
}

// Accepts reports whether path may be registered in this mode. Upload
// refuses anything but CSV up front; admin registers every file and lets
// extraction fail the document.
func (m Mode) Accepts(path string) bool {
	if m == ModeUpload {
		return strings.EqualFold(filepath.Ext(path), ".csv")
	}
	return true
}

func (m Mode) SuccessStatus() domain.DocumentStatus {
	if m == ModeUpload {
		return domain.StatusLoaded
	}
	return domain.StatusProcessed
}

func (m Mode) SuccessAction() string {
	if m == ModeUpload {
		return domain.ActionUploadOK
	}
	return domain.ActionProcessedOK
}

func (m Mode) ErrorAction() string {
	if m == ModeUpload {
		return domain.ActionUploadError
	}
	return domain.ActionErrorAdmin
}
