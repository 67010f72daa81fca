package analyze

import (
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

// Detector resolves ModeAuto into a concrete mode before a request is sent.
// Returning ModeAuto leaves the choice to the model.
type Detector interface {
	Detect(images []domain.PageImage) (domain.Mode, error)
}

// SelfReportDetector lets the model report whether the content is text or
// graphic as part of its answer.
type SelfReportDetector struct{}

// Detect always defers to the model.
func (SelfReportDetector) Detect([]domain.PageImage) (domain.Mode, error) {
	return domain.ModeAuto, nil
}

// HeuristicDetector classifies images from sampled pixels. Text captures are
// dominated by one background tone and use few distinct colors; very tall or
// very wide captures are scrolled pages and are treated as text as well.
type HeuristicDetector struct {
	// Samples is the grid size per axis, 48 when zero.
	Samples int
	// DominantShare is the minimum fraction of samples that must share the
	// background tone, 0.55 when zero.
	DominantShare float64
	// MaxColors is the maximum number of quantized colors of a text
	// capture, 48 when zero.
	MaxColors int
	// LongAspect is the side ratio from which a capture counts as a scroll
	// capture, 3 when zero.
	LongAspect float64
}

// Stats are the measurements the heuristic decides on
type Stats struct {
	Width, Height int
	// DominantShare is the share of samples in the most common color bucket.
	DominantShare float64
	// Colors is the number of distinct quantized colors.
	Colors int
}

// Detect returns ModeText when most images look like text captures, ModeGraphic
// otherwise.
func (d HeuristicDetector) Detect(images []domain.PageImage) (domain.Mode, error) {
	if len(images) == 0 {
		return "", domain.ValidationError("no images to classify", nil)
	}

	textVotes := 0
	for _, img := range images {
		stats, err := d.Measure(img.ImagePath)
		if err != nil {
			return "", err
		}
		if d.classify(stats) == domain.ModeText {
			textVotes++
		}
	}

	if textVotes*2 >= len(images) {
		return domain.ModeText, nil
	}
	return domain.ModeGraphic, nil
}

// Measure decodes the image at path and samples it on a regular grid.
func (d HeuristicDetector) Measure(path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, domain.IOError("failed to open image", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return Stats{}, domain.ValidationError(fmt.Sprintf("failed to decode %s", path), err)
	}
	return d.measure(img), nil
}

func (d HeuristicDetector) measure(img image.Image) Stats {
	b := img.Bounds()
	stats := Stats{Width: b.Dx(), Height: b.Dy()}
	if stats.Width == 0 || stats.Height == 0 {
		return stats
	}

	n := d.samples()
	stepX := max(1, stats.Width/n)
	stepY := max(1, stats.Height/n)

	buckets := make(map[uint16]int)
	total := 0
	for y := b.Min.Y + stepY/2; y < b.Max.Y; y += stepY {
		for x := b.Min.X + stepX/2; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			// 4 bits per channel
			key := uint16(r>>12)<<8 | uint16(g>>12)<<4 | uint16(bl>>12)
			buckets[key]++
			total++
		}
	}

	top := 0
	for _, c := range buckets {
		top = max(top, c)
	}
	stats.Colors = len(buckets)
	stats.DominantShare = float64(top) / float64(total)
	return stats
}

func (d HeuristicDetector) classify(s Stats) domain.Mode {
	if s.Width > 0 && s.Height > 0 {
		w, h := float64(s.Width), float64(s.Height)
		if h/w >= d.longAspect() || w/h >= d.longAspect() {
			return domain.ModeText
		}
	}
	if s.DominantShare >= d.dominantShare() && s.Colors <= d.maxColors() {
		return domain.ModeText
	}
	return domain.ModeGraphic
}

func (d HeuristicDetector) samples() int {
	if d.Samples > 0 {
		return d.Samples
	}
	return 48
}

func (d HeuristicDetector) dominantShare() float64 {
	if d.DominantShare > 0 {
		return d.DominantShare
	}
	return 0.55
}

func (d HeuristicDetector) maxColors() int {
	if d.MaxColors > 0 {
		return d.MaxColors
	}
	return 48
}

func (d HeuristicDetector) longAspect() float64 {
	if d.LongAspect > 0 {
		return d.LongAspect
	}
	return 3
}

// DetectorFor returns the detector named by the auto_detect setting.
func DetectorFor(name string) (Detector, error) {
	switch name {
	case "", "heuristic":
		return HeuristicDetector{}, nil
	case "model":
		return SelfReportDetector{}, nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown auto_detect strategy %q (want heuristic or model)", name), nil)
	}
}
