package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

// maxSize is the size above which a document is logged as unusually large.
const maxSize = 100 * 1024 * 1024

// Validator provides input validation for PDF files
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePDFPath validates that a file path is valid and points to a PDF.
// It returns the file size so callers can warn about very large documents.
func (v *Validator) ValidatePDFPath(path string) (int64, error) {
	if strings.TrimSpace(path) == "" {
		return 0, domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return 0, domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return 0, domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return 0, domain.UnsupportedError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, domain.ValidationError(fmt.Sprintf("cannot open file: %s", path), err)
	}
	file.Close()

	return info.Size(), nil
}

// ValidateDPI validates the render resolution
func (v *Validator) ValidateDPI(dpi float64) error {
	if dpi < 36 || dpi > 600 {
		return domain.ValidationError(fmt.Sprintf("dpi must be between 36 and 600, got %.0f", dpi), nil)
	}
	return nil
}
