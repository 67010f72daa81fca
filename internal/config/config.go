// Package config loads the screenshot-wizard settings.
// Settings come from a YAML file layered under environment variables; the API
// credential is only ever read from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "config/settings.yaml"

// APIKeyEnv is the only source of the model API credential.
const APIKeyEnv = "OPENAI_API_KEY"

const placeholderKey = "your-api-key-here"

// Settings holds all configuration for one process lifetime. It is built once
// by Load and never mutated afterwards.
type Settings struct {
	Folders    FolderSettings     `yaml:"folders"`
	Processing ProcessingSettings `yaml:"processing"`
	PDF        PDFSettings        `yaml:"pdf"`
	OpenAI     OpenAISettings     `yaml:"openai"`
	Logging    LoggingSettings    `yaml:"logging"`
	Metrics    MetricsSettings    `yaml:"metrics"`

	// APIKey is filled from the environment only.
	APIKey string `yaml:"-"`
	// Source is the settings file that was read, empty when defaults were used.
	Source string `yaml:"-"`
}

// FolderSettings holds the three working directories.
type FolderSettings struct {
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
	Archive string `yaml:"archive"`
}

// ProcessingSettings holds pipeline defaults.
type ProcessingSettings struct {
	PollingInterval  int    `yaml:"polling_interval"` // seconds
	MaxCategories    int    `yaml:"max_categories"`
	DefaultMode      string `yaml:"default_mode"`
	DefaultThumbnail string `yaml:"default_thumbnail"`
	DefaultPageMode  string `yaml:"default_page_mode"`
	RenderDPI        int    `yaml:"render_dpi"`
	SettleDelayMS    int    `yaml:"settle_delay_ms"`
	AutoDetect       string `yaml:"auto_detect"` // heuristic or model
}

// PDFSettings holds report layout settings.
type PDFSettings struct {
	PageSize   string  `yaml:"page_size"`
	FontFamily string  `yaml:"font_family"`
	FontSize   float64 `yaml:"font_size"`
	Margin     float64 `yaml:"margin"` // points

	// UnicodeFont is an optional TrueType file used instead of the core
	// fonts, which only cover cp1252.
	UnicodeFont string `yaml:"unicode_font"`
}

// OpenAISettings holds model API settings.
type OpenAISettings struct {
	Model          string `yaml:"model"`
	MaxTokens      int    `yaml:"max_tokens"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// MaxRetries is applied by the orchestrator, never inside the client.
	MaxRetries int `yaml:"max_retries"`
	// RequestsPerMinute throttles model calls; zero means unlimited.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// LoggingSettings holds log output settings.
type LoggingSettings struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsSettings holds the optional Prometheus endpoint.
type MetricsSettings struct {
	Addr string `yaml:"addr"`
}

// Load reads settings from path (or DefaultPath when empty), applies
// environment overrides and validates the result. A missing default file is
// not an error; a missing explicit file is.
func Load(path string) (*Settings, error) {
	_ = godotenv.Load() // .env is optional

	cfg := DefaultSettings()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("parse settings file %s", path), err)
		}
		cfg.Source = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults
	default:
		return nil, domain.ConfigError(fmt.Sprintf("read settings file %s", path), err)
	}

	cfg.resolvePaths()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() *Settings {
	return &Settings{
		Folders: FolderSettings{
			Input:   "./input",
			Output:  "./output",
			Archive: "./archive",
		},
		Processing: ProcessingSettings{
			PollingInterval:  5,
			MaxCategories:    2,
			DefaultMode:      string(domain.ModeAuto),
			DefaultThumbnail: string(domain.ThumbnailMedium),
			DefaultPageMode:  string(domain.PageModePerPage),
			RenderDPI:        200,
			SettleDelayMS:    500,
			AutoDetect:       "heuristic",
		},
		PDF: PDFSettings{
			PageSize:   "A4",
			FontFamily: "Helvetica",
			FontSize:   11,
			Margin:     72,
		},
		OpenAI: OpenAISettings{
			Model:          "gpt-4o",
			MaxTokens:      4096,
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 120,
			MaxRetries:     0,
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the settings for errors. The credential is checked
// separately by RequireCredential so that `config` can run without one.
func (s *Settings) Validate() error {
	if s.Folders.Input == "" || s.Folders.Output == "" || s.Folders.Archive == "" {
		return domain.ConfigError("input, output and archive folders must all be set", nil)
	}
	if s.Processing.PollingInterval < 1 {
		return domain.ConfigError(fmt.Sprintf("polling_interval must be at least 1 second, got %d", s.Processing.PollingInterval), nil)
	}
	if s.Processing.MaxCategories < 1 || s.Processing.MaxCategories > 10 {
		return domain.ConfigError(fmt.Sprintf("max_categories must be between 1 and 10, got %d", s.Processing.MaxCategories), nil)
	}
	if s.Processing.RenderDPI < 36 || s.Processing.RenderDPI > 600 {
		return domain.ConfigError(fmt.Sprintf("render_dpi must be between 36 and 600, got %d", s.Processing.RenderDPI), nil)
	}
	if s.Processing.SettleDelayMS < 0 {
		return domain.ConfigError("settle_delay_ms cannot be negative", nil)
	}
	switch s.Processing.AutoDetect {
	case "heuristic", "model":
	default:
		return domain.ConfigError(fmt.Sprintf("auto_detect must be heuristic or model, got %q", s.Processing.AutoDetect), nil)
	}
	if _, err := s.Defaults(); err != nil {
		return domain.ConfigError("invalid processing default", err)
	}
	switch strings.ToLower(s.PDF.PageSize) {
	case "a3", "a4", "a5", "letter", "legal":
	default:
		return domain.ConfigError(fmt.Sprintf("page_size must be A3, A4, A5, letter or legal, got %q", s.PDF.PageSize), nil)
	}
	if s.PDF.FontSize <= 0 || s.PDF.Margin < 0 {
		return domain.ConfigError("pdf font_size must be positive and margin non-negative", nil)
	}
	if s.OpenAI.Model == "" || s.OpenAI.BaseURL == "" {
		return domain.ConfigError("openai model and base_url must be set", nil)
	}
	if s.OpenAI.MaxTokens < 1 || s.OpenAI.TimeoutSeconds < 1 {
		return domain.ConfigError("openai max_tokens and timeout_seconds must be positive", nil)
	}
	if s.OpenAI.MaxRetries < 0 || s.OpenAI.RequestsPerMinute < 0 {
		return domain.ConfigError("openai max_retries and requests_per_minute cannot be negative", nil)
	}
	return nil
}

// RequireCredential fails when the API key is absent or still the placeholder.
func (s *Settings) RequireCredential() error {
	key := strings.TrimSpace(s.APIKey)
	if key == "" || key == placeholderKey {
		return domain.ConfigError(fmt.Sprintf("API key not configured; set %s in your .env file or environment", APIKeyEnv), nil)
	}
	return nil
}

// Defaults returns the processing defaults as typed options.
func (s *Settings) Defaults() (domain.Options, error) {
	mode, err := domain.ParseMode(s.Processing.DefaultMode)
	if err != nil {
		return domain.Options{}, err
	}
	thumb, err := domain.ParseThumbnailSize(s.Processing.DefaultThumbnail)
	if err != nil {
		return domain.Options{}, err
	}
	pageMode, err := domain.ParsePageMode(s.Processing.DefaultPageMode)
	if err != nil {
		return domain.Options{}, err
	}
	if mode == "" {
		mode = domain.ModeAuto
	}
	if thumb == "" {
		thumb = domain.ThumbnailMedium
	}
	if pageMode == "" {
		pageMode = domain.PageModePerPage
	}
	return domain.Options{Mode: mode, Thumbnail: thumb, PageMode: pageMode}, nil
}

// PollingInterval returns the watcher rescan interval.
func (s *Settings) PollingInterval() time.Duration {
	return time.Duration(s.Processing.PollingInterval) * time.Second
}

// SettleDelay returns how long the watcher waits before dispatching a new file.
func (s *Settings) SettleDelay() time.Duration {
	return time.Duration(s.Processing.SettleDelayMS) * time.Millisecond
}

// RequestTimeout returns the per-call timeout for the model API.
func (s *Settings) RequestTimeout() time.Duration {
	return time.Duration(s.OpenAI.TimeoutSeconds) * time.Second
}

// EnsureFolders creates the input, output and archive folders if absent.
func (s *Settings) EnsureFolders() error {
	for _, dir := range []string{s.Folders.Input, s.Folders.Output, s.Folders.Archive} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.IOError(fmt.Sprintf("create folder %s", dir), err)
		}
	}
	return nil
}

// Display returns a printable summary without the credential.
func (s *Settings) Display() string {
	key := "(not configured)"
	if s.RequireCredential() == nil {
		key = maskKey(s.APIKey) + " (configured)"
	}
	source := s.Source
	if source == "" {
		source = "(defaults)"
	}
	return fmt.Sprintf(`Screenshot Wizard Configuration
==============================
Settings File:    %s
Input Folder:     %s
Output Folder:    %s
Archive Folder:   %s
Polling Interval: %ds
Max Categories:   %d
Default Mode:     %s
Thumbnail Size:   %s
Page Mode:        %s
OpenAI Model:     %s
Max Retries:      %d
API Key:          %s
`,
		source,
		s.Folders.Input,
		s.Folders.Output,
		s.Folders.Archive,
		s.Processing.PollingInterval,
		s.Processing.MaxCategories,
		s.Processing.DefaultMode,
		s.Processing.DefaultThumbnail,
		s.Processing.DefaultPageMode,
		s.OpenAI.Model,
		s.OpenAI.MaxRetries,
		key,
	)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + strings.Repeat("*", 8) + key[len(key)-4:]
}

// applyEnvOverrides applies environment variable overrides to settings.
func applyEnvOverrides(cfg *Settings) {
	cfg.APIKey = os.Getenv(APIKeyEnv)

	if v := os.Getenv("SW_INPUT_FOLDER"); v != "" {
		cfg.Folders.Input = v
	}
	if v := os.Getenv("SW_OUTPUT_FOLDER"); v != "" {
		cfg.Folders.Output = v
	}
	if v := os.Getenv("SW_ARCHIVE_FOLDER"); v != "" {
		cfg.Folders.Archive = v
	}
	if v := os.Getenv("SW_MODEL"); v != "" {
		cfg.OpenAI.Model = v
	}
	if v := os.Getenv("SW_API_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("SW_MAX_CATEGORIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processing.MaxCategories = n
		}
	}
	if v := os.Getenv("SW_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// resolvePaths makes folder paths relative to the settings file location.
func (s *Settings) resolvePaths() {
	if s.Source == "" {
		return
	}
	s.Folders.Input = ResolveRelativePath(s.Source, s.Folders.Input)
	s.Folders.Output = ResolveRelativePath(s.Source, s.Folders.Output)
	s.Folders.Archive = ResolveRelativePath(s.Source, s.Folders.Archive)
	if s.PDF.UnicodeFont != "" {
		s.PDF.UnicodeFont = ResolveRelativePath(s.Source, s.PDF.UnicodeFont)
	}
}

// ResolveRelativePath resolves a path relative to the config file location.
// Settings files live in <root>/config, so relative folders resolve against
// the parent of that directory.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	root := filepath.Dir(filepath.Dir(configPath))
	if filepath.Base(filepath.Dir(configPath)) != "config" {
		root = filepath.Dir(configPath)
	}
	return filepath.Join(root, targetPath)
}
