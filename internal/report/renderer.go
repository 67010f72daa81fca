// Package report lays out analysis results as a PDF report.
package report

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-pdf/fpdf"

	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/observability"
)

const (
	// timestampLayout is the footer time format.
	timestampLayout = "2006-01-02 15:04:05"

	// minThumbnailBand is the least vertical space, in points, a thumbnail
	// is squeezed into before it moves to a new page.
	minThumbnailBand = 120.0

	emptyText = "[No text detected]"
)

var pageSizes = map[string]string{
	"a3":     "A3",
	"a4":     "A4",
	"a5":     "A5",
	"letter": "Letter",
	"legal":  "Legal",
}

// thumbnailFractions maps a named size to its share of the content width.
var thumbnailFractions = map[domain.ThumbnailSize]float64{
	domain.ThumbnailSmall:  1.0 / 3.0,
	domain.ThumbnailMedium: 2.0 / 3.0,
	domain.ThumbnailFull:   1.0,
}

// Publisher moves a finished file into the output folder under a free name.
// *archive.Archiver implements it.
type Publisher interface {
	Publish(tmpPath, name string) (string, error)
	OutputDir() string
}

// Config holds report layout settings
type Config struct {
	PageSize      string  // A4, letter, ...
	FontFamily    string  // Helvetica, Times or Courier
	FontSize      float64 // body size in points
	Margin        float64 // page margin in points
	UnicodeFont   string  // optional TrueType file, replaces FontFamily
	MaxCategories int     // header label limit across sections
}

// Renderer implements domain.Renderer with fpdf
type Renderer struct {
	cfg       Config
	pageSize  string
	styles    stylesheet
	utf8Font  []byte
	publisher Publisher
	logger    *observability.Logger
}

var _ domain.Renderer = (*Renderer)(nil)

// NewRenderer validates the layout settings and creates a renderer
func NewRenderer(cfg Config, publisher Publisher, logger *observability.Logger) (*Renderer, error) {
	pageSize, ok := pageSizes[strings.ToLower(strings.TrimSpace(cfg.PageSize))]
	if !ok {
		return nil, domain.ConfigError(fmt.Sprintf("unsupported page size %q", cfg.PageSize), nil)
	}
	family, ok := fontFamilies[strings.ToLower(strings.TrimSpace(cfg.FontFamily))]
	if !ok {
		return nil, domain.ConfigError(fmt.Sprintf("unsupported font family %q (want Helvetica, Times or Courier)", cfg.FontFamily), nil)
	}
	var utf8Font []byte
	if cfg.UnicodeFont != "" {
		data, err := loadUTF8Font(cfg.UnicodeFont)
		if err != nil {
			return nil, err
		}
		utf8Font, family = data, unicodeFamily
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = 11
	}
	if cfg.Margin < 0 {
		return nil, domain.ConfigError("margin must not be negative", nil)
	}
	if cfg.MaxCategories < 1 {
		cfg.MaxCategories = 2
	}

	styles, err := newStylesheet(family, cfg.FontSize)
	if err != nil {
		return nil, domain.ConfigError("invalid report styles", err)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Renderer{
		cfg:       cfg,
		pageSize:  pageSize,
		styles:    styles,
		utf8Font:  utf8Font,
		publisher: publisher,
		logger:    logger.WithComponent("report"),
	}, nil
}

// loadUTF8Font reads a TrueType file and checks fpdf can parse it.
func loadUTF8Font(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ConfigError("failed to read unicode font", err)
	}
	if mime := mimetype.Detect(data); !mime.Is("font/ttf") {
		return nil, domain.ConfigError(fmt.Sprintf("unicode font %s is not a TrueType file (detected %s)", path, mime.String()), nil)
	}
	check := fpdf.New("P", "pt", "A4", "")
	registerUTF8Font(check, data)
	if err := check.Error(); err != nil {
		return nil, domain.ConfigError("failed to load unicode font", err)
	}
	return data, nil
}

// registerUTF8Font adds the font under every emphasis the stylesheet uses.
func registerUTF8Font(pdf *fpdf.Fpdf, data []byte) {
	for _, emphasis := range []string{"", "B", "I", "BI"} {
		pdf.AddUTF8FontFromBytes(unicodeFamily, emphasis, data)
	}
}

// Render lays out the sections, writes the report durably and publishes it as
// <source stem>.pdf in the output folder.
func (r *Renderer) Render(sections []domain.Analysis, prov domain.Provenance, thumb domain.ThumbnailSize) (string, error) {
	doc, err := r.layout(sections, prov, thumb)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(r.publisher.OutputDir(), ".report-*.pdf.tmp")
	if err != nil {
		return "", domain.RenderError("failed to create report file", err)
	}
	tmpPath := tmp.Name()

	if err := writeDurably(tmp, doc.pdf); err != nil {
		os.Remove(tmpPath)
		return "", domain.RenderError("failed to write report", err)
	}

	stem := strings.TrimSuffix(prov.SourceName, filepath.Ext(prov.SourceName))
	dest, err := r.publisher.Publish(tmpPath, stem+".pdf")
	if err != nil {
		os.Remove(tmpPath)
		return "", domain.RenderError("failed to publish report", err)
	}

	r.logger.Info().Str("report", dest).Int("sections", len(sections)).Int("pages", doc.pdf.PageNo()).
		Msg("Report written")
	return dest, nil
}

func writeDurably(f *os.File, pdf *fpdf.Fpdf) error {
	if err := pdf.Output(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// placement records where a thumbnail was drawn
type placement struct {
	page       int
	x, y, w, h float64
}

type document struct {
	pdf        *fpdf.Fpdf
	thumbnails []placement
}

func (r *Renderer) layout(sections []domain.Analysis, prov domain.Provenance, thumb domain.ThumbnailSize) (*document, error) {
	if len(sections) == 0 {
		return nil, domain.RenderError("nothing to render", nil)
	}

	pdf := fpdf.New("P", "pt", r.pageSize, "")
	pdf.SetMargins(r.cfg.Margin, r.cfg.Margin, r.cfg.Margin)
	pdf.SetAutoPageBreak(true, r.cfg.Margin)
	pdf.SetTitle(prov.SourceName, true)
	pdf.SetCreator("screenshot-wizard", true)
	if !prov.ProcessedAt.IsZero() {
		pdf.SetCreationDate(prov.ProcessedAt)
	}

	doc := &document{pdf: pdf}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if r.utf8Font != nil {
		registerUTF8Font(pdf, r.utf8Font)
		tr = func(s string) string { return s }
	}

	pdf.AddPage()
	r.categoryHeader(pdf, tr, r.headerCategories(sections))
	pdf.Ln(18)
	r.rule(pdf)
	pdf.Ln(12)

	multi := len(sections) > 1
	for i, s := range sections {
		if multi {
			label := s.Label
			if label == "" {
				label = fmt.Sprintf("Section %d", i+1)
			}
			if i > 0 {
				pdf.Ln(8)
			}
			lh := r.styles.apply(pdf, styleSectionTitle)
			pdf.CellFormat(0, lh, tr(label), "", 1, "L", false, 0, "")
		}

		r.body(pdf, tr, s.Text)

		if s.Mode == domain.ModeGraphic && s.ImagePath != "" && thumb != domain.ThumbnailNone && thumb != "" {
			p, err := r.thumbnail(pdf, s.ImagePath, thumb, i)
			if err != nil {
				return nil, err
			}
			doc.thumbnails = append(doc.thumbnails, p)
		}
	}

	pdf.Ln(36)
	r.rule(pdf)
	pdf.Ln(8)
	r.footer(pdf, tr, prov)

	if pdf.Err() {
		return nil, domain.RenderError("layout failed", pdf.Error())
	}
	return doc, nil
}

// headerCategories merges the section categories in order of appearance.
func (r *Renderer) headerCategories(sections []domain.Analysis) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range sections {
		for _, c := range s.Categories {
			key := strings.ToLower(c)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
			if len(out) == r.cfg.MaxCategories {
				return out
			}
		}
	}
	if len(out) == 0 {
		out = []string{"Uncategorized"}
	}
	return out
}

func (r *Renderer) contentWidth(pdf *fpdf.Fpdf) float64 {
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	return pageW - left - right
}

func (r *Renderer) categoryHeader(pdf *fpdf.Fpdf, tr func(string) string, categories []string) {
	lh := r.styles.apply(pdf, styleCategoryHeader)
	pdf.SetFillColor(colorFill.r, colorFill.g, colorFill.b)
	pdf.SetDrawColor(colorBorder.r, colorBorder.g, colorBorder.b)
	pdf.SetLineWidth(1)
	pdf.MultiCell(r.contentWidth(pdf), lh+6, tr("CATEGORIES: "+strings.Join(categories, " | ")), "1", "L", true)
}

func (r *Renderer) rule(pdf *fpdf.Fpdf) {
	left, _, _, _ := pdf.GetMargins()
	y := pdf.GetY()
	pdf.SetDrawColor(colorBorder.r, colorBorder.g, colorBorder.b)
	pdf.SetLineWidth(1)
	pdf.Line(left, y, left+r.contentWidth(pdf), y)
}

func (r *Renderer) body(pdf *fpdf.Fpdf, tr func(string) string, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		lh := r.styles.apply(pdf, styleEmpty)
		pdf.MultiCell(0, lh, emptyText, "", "L", false)
		return
	}
	lh := r.styles.apply(pdf, styleBody)
	pdf.MultiCell(0, lh, tr(text), "", "L", false)
}

func (r *Renderer) footer(pdf *fpdf.Fpdf, tr func(string) string, prov domain.Provenance) {
	line := func(label, value string) {
		lh := r.styles.apply(pdf, styleFooterLabel)
		pdf.CellFormat(pdf.GetStringWidth(label)+2, lh, label, "", 0, "L", false, 0, "")
		r.styles.apply(pdf, styleFooter)
		pdf.CellFormat(0, lh, tr(value), "", 1, "L", false, 0, "")
	}
	line("Source:", prov.SourceName)
	line("Processed:", prov.ProcessedAt.Format(timestampLayout))
}

// thumbnail embeds the image below the current position, scaled to the named
// size and never taller than the space left on the page.
func (r *Renderer) thumbnail(pdf *fpdf.Fpdf, path string, size domain.ThumbnailSize, index int) (placement, error) {
	fraction, ok := thumbnailFractions[size]
	if !ok {
		return placement{}, domain.RenderError(fmt.Sprintf("unknown thumbnail size %q", size), nil)
	}

	data, pxW, pxH, err := loadImage(path)
	if err != nil {
		return placement{}, domain.RenderError("failed to load thumbnail image", err)
	}

	_, pageH := pdf.GetPageSize()
	left, top, _, bottom := pdf.GetMargins()
	contentH := pageH - top - bottom

	pdf.Ln(8)
	y := pdf.GetY()
	avail := pageH - bottom - y
	if avail < minThumbnailBand && avail < contentH {
		pdf.AddPage()
		y = pdf.GetY()
		avail = pageH - bottom - y
	}

	w, h := fitThumbnail(pxW, pxH, r.contentWidth(pdf)*fraction, min(avail, contentH))

	name := fmt.Sprintf("thumb-%d", index)
	pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
	pdf.ImageOptions(name, left, y, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	pdf.SetY(y + h + 8)

	return placement{page: pdf.PageNo(), x: left, y: y, w: w, h: h}, nil
}

// fitThumbnail scales a pxW × pxH image to width maxW keeping its aspect
// ratio, then shrinks it further if it would be taller than availH.
func fitThumbnail(pxW, pxH int, maxW, availH float64) (w, h float64) {
	if pxW <= 0 || pxH <= 0 || maxW <= 0 || availH <= 0 {
		return 0, 0
	}
	w = maxW
	h = w * float64(pxH) / float64(pxW)
	if h > availH {
		h = availH
		w = h * float64(pxW) / float64(pxH)
	}
	return w, h
}

// loadImage decodes the image and re-encodes it as an 8-bit PNG, a form fpdf
// can always embed.
func loadImage(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, err
	}

	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, 0, err
	}
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}
