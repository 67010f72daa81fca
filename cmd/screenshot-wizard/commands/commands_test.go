package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/screenshot-wizard/internal/config"
	"github.com/spherical/screenshot-wizard/internal/domain"
	"github.com/spherical/screenshot-wizard/internal/llm"
	"github.com/spherical/screenshot-wizard/internal/observability"
)

func testSettings(t *testing.T, baseURL string) *config.Settings {
	t.Helper()
	root := t.TempDir()
	s := config.DefaultSettings()
	s.Folders.Input = filepath.Join(root, "input")
	s.Folders.Output = filepath.Join(root, "output")
	s.Folders.Archive = filepath.Join(root, "archive")
	s.OpenAI.BaseURL = baseURL
	s.APIKey = "sk-test"
	require.NoError(t, s.Validate())
	require.NoError(t, s.EnsureFolders())
	return s
}

func writeScreenshot(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 90, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func modelServer(t *testing.T, reply string, calls *int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(llm.Response{Choices: []llm.Choice{{Message: llm.Delta{Content: reply}}}})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(domain.ConfigError("no key", nil)))
	assert.Equal(t, 1, ExitCode(domain.UnsupportedError("gif", nil)))
	assert.Equal(t, 1, ExitCode(os.ErrNotExist))
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions("Graphic", "small", "document")
	require.NoError(t, err)
	assert.Equal(t, domain.Options{Mode: domain.ModeGraphic, Thumbnail: domain.ThumbnailSmall, PageMode: domain.PageModeWholeDocument}, opts)

	opts, err = parseOptions("", "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.Options{}, opts)

	_, err = parseOptions("sketch", "", "")
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
	_, err = parseOptions("", "huge", "")
	assert.Error(t, err)
	_, err = parseOptions("", "", "spread")
	assert.Error(t, err)
}

func TestNeedsEnvHint(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, needsEnvHint(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.example"), []byte("OPENAI_API_KEY=your-api-key-here\n"), 0o644))
	assert.True(t, needsEnvHint(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-real\n"), 0o600))
	assert.False(t, needsEnvHint(dir))
}

func TestBuildApp_ProcessesScreenshotEndToEnd(t *testing.T) {
	calls := 0
	server := modelServer(t, `{"mode":"graphic","text":"A bar chart of sales","categories":["Charts","Finance","Extra"]}`, &calls)
	s := testSettings(t, server.URL)

	a, err := buildApp(s, observability.NopLogger())
	require.NoError(t, err)

	src := writeScreenshot(t, s.Folders.Input, "screenshot_2024.png")
	o := a.pipeline.Process(context.Background(), src, domain.Options{Mode: domain.ModeGraphic})

	require.True(t, o.Succeeded(), "outcome error: %v", o.Err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, filepath.Join(s.Folders.Output, "screenshot_2024.pdf"), o.ReportPath)
	assert.Equal(t, filepath.Join(s.Folders.Archive, "screenshot_2024.png"), o.ArchivePath)
	assert.NoFileExists(t, src)

	data, err := os.ReadFile(o.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestBuildApp_RejectsBadDetector(t *testing.T) {
	s := testSettings(t, "http://127.0.0.1:1")
	s.Processing.AutoDetect = "magic"

	_, err := buildApp(s, observability.NopLogger())
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestBuildApp_LogsModel(t *testing.T) {
	s := testSettings(t, "http://127.0.0.1:1/v1")
	s.OpenAI.Model = "gpt-4.1-mini"

	var buf bytes.Buffer
	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "json", Output: &buf})
	_, err := buildApp(s, logger)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"model":"gpt-4.1-mini"`)
	assert.Contains(t, buf.String(), "up to 2 categories per report")
}

func TestBuildApp_RemoteFailureIsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()
	s := testSettings(t, server.URL)

	a, err := buildApp(s, observability.NopLogger())
	require.NoError(t, err)

	src := writeScreenshot(t, s.Folders.Input, "shot.png")
	o := a.pipeline.Process(context.Background(), src, domain.Options{Mode: domain.ModeText})

	assert.Equal(t, domain.StatusFailed, o.Status)
	assert.True(t, domain.IsType(o.Err, domain.ErrorTypeAPI))
	assert.FileExists(t, src)
}

func TestSupervise_ProcessesExistingFiles(t *testing.T) {
	calls := 0
	server := modelServer(t, `{"mode":"text","text":"hello","categories":["Notes"]}`, &calls)
	s := testSettings(t, server.URL)
	s.Processing.SettleDelayMS = 20

	a, err := buildApp(s, observability.NopLogger())
	require.NoError(t, err)

	writeScreenshot(t, s.Folders.Input, "first.png")
	require.NoError(t, os.WriteFile(filepath.Join(s.Folders.Input, "notes.txt"), []byte("x"), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var got []domain.Outcome
	err = a.supervise(ctx, true, domain.Options{Mode: domain.ModeText}, func(ctx context.Context, results <-chan domain.Outcome, done func(domain.Outcome)) error {
		select {
		case o := <-results:
			done(o)
			got = append(got, o)
		case <-ctx.Done():
		}
		cancel()
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.True(t, got[0].Succeeded(), "outcome error: %v", got[0].Err)
	assert.Equal(t, "first.png", filepath.Base(got[0].Path))
	assert.FileExists(t, filepath.Join(s.Folders.Input, "notes.txt"))
}

func TestDrain(t *testing.T) {
	results := make(chan domain.Outcome, 3)
	results <- domain.Outcome{Path: "a"}
	results <- domain.Outcome{Path: "b"}

	var seen []string
	closed := drain(results, func(o domain.Outcome) { seen = append(seen, o.Path) })
	assert.False(t, closed)
	assert.Equal(t, []string{"a", "b"}, seen)

	close(results)
	assert.True(t, drain(results, func(domain.Outcome) {}))
}

func TestPrintOutcomes_TalliesUntilClosed(t *testing.T) {
	results := make(chan domain.Outcome, 2)
	results <- domain.Outcome{Path: "a.png", Status: domain.StatusSucceeded}
	results <- domain.Outcome{Path: "b.gif", Status: domain.StatusSkipped, Err: domain.UnsupportedError("gif", nil)}
	close(results)

	var result domain.BatchResult
	var done []string
	err := printOutcomes(&result)(context.Background(), results, func(o domain.Outcome) { done = append(done, o.Path) })
	require.NoError(t, err)

	assert.Equal(t, []string{"a.png", "b.gif"}, done)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Skipped)
}
