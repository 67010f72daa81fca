// Package pdf rasterizes PDF documents into page images using MuPDF.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/observability"
)

// DefaultDPI is the resolution pages are rendered at.
const DefaultDPI = 200

// document is the subset of *fitz.Document the converter uses.
type document interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

type openFunc func(path string) (document, error)

func openFitz(path string) (document, error) {
	return fitz.New(path)
}

// Converter implements PDF to image conversion using go-fitz
type Converter struct {
	dpi    float64
	open   openFunc
	logger *observability.Logger
}

// NewConverter creates a new PDF converter instance
func NewConverter(dpi int, logger *observability.Logger) *Converter {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Converter{
		dpi:    float64(dpi),
		open:   openFitz,
		logger: logger.WithComponent("pdf"),
	}
}

// Pages holds rendered page images in a private temp directory. It keeps the
// source document open until Cleanup.
type Pages struct {
	doc     document
	tempDir string
	images  []domain.PageImage
}

// Pages returns the rendered pages in document order.
func (p *Pages) Pages() []domain.PageImage {
	return p.images
}

// Cleanup closes the document before removing the temp directory; an open
// handle blocks deletion on some platforms. Safe to call more than once.
func (p *Pages) Cleanup() error {
	var errs []error

	if p.doc != nil {
		if err := p.doc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close document: %w", err))
		}
		p.doc = nil
	}

	if p.tempDir != "" {
		if err := os.RemoveAll(p.tempDir); err != nil {
			errs = append(errs, fmt.Errorf("remove temp dir: %w", err))
		}
		p.tempDir = ""
	}

	p.images = nil

	if len(errs) > 0 {
		return domain.IOError("cleanup errors", errors.Join(errs...))
	}
	return nil
}

// Convert renders every page of the PDF at path to a PNG file. On error every
// temporary file created so far is removed before returning.
func (c *Converter) Convert(ctx context.Context, path string) (domain.PageSet, error) {
	validator := NewValidator()
	size, err := validator.ValidatePDFPath(path)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateDPI(c.dpi); err != nil {
		return nil, err
	}
	if size > maxSize {
		c.logger.Warn().Str("file", path).Int("size_mb", int(size/(1024*1024))).
			Msg("PDF file is very large, processing may take a while")
	}

	doc, err := c.open(path)
	if err != nil {
		return nil, domain.ConversionError("failed to open PDF", err)
	}
	pages := &Pages{doc: doc}

	images, err := c.render(ctx, pages, doc)
	if err != nil {
		_ = pages.Cleanup()
		return nil, err
	}
	pages.images = images

	c.logger.Info().Str("file", filepath.Base(path)).Int("pages", len(images)).Msg("Converted PDF to images")
	return pages, nil
}

func (c *Converter) render(ctx context.Context, pages *Pages, doc document) ([]domain.PageImage, error) {
	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.ConversionError("PDF has no pages", nil)
	}

	tempDir, err := os.MkdirTemp("", "screenshot-wizard-*")
	if err != nil {
		return nil, domain.IOError("failed to create temp directory", err)
	}
	pages.tempDir = tempDir

	images := make([]domain.PageImage, 0, pageCount)

	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(pageNum, c.dpi)
		if err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("failed to render page %d", pageNum+1), err)
		}

		outputPath := filepath.Join(tempDir, fmt.Sprintf("page_%03d.png", pageNum+1))
		if err := writePNG(outputPath, img); err != nil {
			return nil, domain.ConversionError(fmt.Sprintf("failed to write page %d", pageNum+1), err)
		}

		bounds := img.Bounds()
		images = append(images, domain.PageImage{
			PageNumber: pageNum + 1,
			ImagePath:  outputPath,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
		})
		c.logger.Debug().Int("page", pageNum+1).Int("of", pageCount).Msg("Rendered page")
	}

	return images, nil
}

// writePNG encodes img to path and closes the file before returning.
func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
