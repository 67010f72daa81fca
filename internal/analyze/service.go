// Package analyze turns page images into text and categories using a vision
// model, choosing between transcription and description.
package analyze

import (
	"context"
	"time"

	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/observability"
)

// Completer sends a prompt and images to the model and returns its raw reply.
// *llm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, prompt string, imagePaths []string) (string, error)
}

// Config holds analyzer settings
type Config struct {
	MaxCategories int
	// Detector resolves ModeAuto. HeuristicDetector is used when nil.
	Detector Detector
}

// Service implements domain.Analyzer
type Service struct {
	client        Completer
	detector      Detector
	maxCategories int
	logger        *observability.Logger
}

var _ domain.Analyzer = (*Service)(nil)

// NewService creates a new analysis service
func NewService(client Completer, cfg Config, logger *observability.Logger) *Service {
	if cfg.MaxCategories < 1 {
		cfg.MaxCategories = 2
	}
	if cfg.Detector == nil {
		cfg.Detector = HeuristicDetector{}
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		client:        client,
		detector:      cfg.Detector,
		maxCategories: cfg.MaxCategories,
		logger:        logger.WithComponent("analyze"),
	}
}

// Analyze sends one unit of images to the model. Remote failures are returned
// as API errors; a reply that cannot be decoded yields an empty text.
func (s *Service) Analyze(ctx context.Context, images []domain.PageImage, mode domain.Mode) (*domain.Analysis, error) {
	if len(images) == 0 {
		return nil, domain.ValidationError("no images to analyze", nil)
	}

	requested := mode
	if mode == "" || mode == domain.ModeAuto {
		mode = s.resolveAuto(images)
	}

	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.ImagePath
	}

	start := time.Now()
	raw, err := s.client.Complete(ctx, promptFor(mode, s.maxCategories), paths)
	if err != nil {
		if domain.TypeOf(err) == "" {
			err = domain.APIError("analysis request failed", err)
		}
		return nil, err
	}

	r, ok := parseReply(raw, s.maxCategories)
	if !ok {
		s.logger.Warn().Int("reply_bytes", len(raw)).Msg("Model reply was not valid JSON, using empty text")
	}

	if mode == domain.ModeAuto {
		mode = domain.ModeText
		if r.Mode == string(domain.ModeGraphic) {
			mode = domain.ModeGraphic
		}
	}

	result := &domain.Analysis{
		Mode:       mode,
		Text:       r.Text,
		Categories: r.Categories,
	}
	if mode == domain.ModeGraphic {
		result.ImagePath = images[0].ImagePath
	}

	s.logger.Info().
		Str("requested_mode", string(requested)).
		Str("mode", string(mode)).
		Int("images", len(images)).
		Strs("categories", result.Categories).
		Dur("duration", time.Since(start)).
		Msg("Analysis complete")

	return result, nil
}

// resolveAuto asks the detector for a mode. A detector failure leaves the
// choice to the model.
func (s *Service) resolveAuto(images []domain.PageImage) domain.Mode {
	mode, err := s.detector.Detect(images)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Auto-detection failed, asking the model to choose")
		return domain.ModeAuto
	}
	return mode
}
