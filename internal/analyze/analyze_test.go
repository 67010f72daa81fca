package analyze

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/screenshot-wizard/internal/domain"
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
	images  [][]string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, imagePaths []string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.images = append(f.images, imagePaths)
	return f.reply, f.err
}

type fixedDetector struct {
	mode domain.Mode
	err  error
}

func (d fixedDetector) Detect([]domain.PageImage) (domain.Mode, error) { return d.mode, d.err }

func savePNG(t *testing.T, name string, img image.Image) domain.PageImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	b := img.Bounds()
	return domain.PageImage{PageNumber: 1, ImagePath: path, Width: b.Dx(), Height: b.Dy()}
}

// textCapture draws dark "lines of text" on a white page.
func textCapture(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.White)
		}
	}
	for line := 10; line+8 < h; line += 20 {
		for y := line; y < line+8; y++ {
			for x := 10; x < w-10; x++ {
				if (x/6)%4 != 3 {
					img.Set(x, y, color.RGBA{R: 20, G: 20, B: 20, A: 255})
				}
			}
		}
	}
	return img
}

// photo is a smooth two-axis gradient with no dominant tone.
func photo(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: uint8((x + y) % 256), A: 255})
		}
	}
	return img
}

// quadrants is a flat four-color chart.
func quadrants(w, h int) image.Image {
	palette := []color.RGBA{{R: 200, A: 255}, {G: 200, A: 255}, {B: 200, A: 255}, {R: 200, G: 200, A: 255}}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := 0
			if x >= w/2 {
				i++
			}
			if y >= h/2 {
				i += 2
			}
			img.Set(x, y, palette[i])
		}
	}
	return img
}

func TestHeuristicDetector_Characterization(t *testing.T) {
	tests := []struct {
		name string
		img  image.Image
		want domain.Mode
	}{
		{name: "text on white", img: textCapture(400, 300), want: domain.ModeText},
		{name: "gradient photo", img: photo(400, 300), want: domain.ModeGraphic},
		{name: "flat four color chart", img: quadrants(400, 300), want: domain.ModeGraphic},
		{name: "tall scroll capture", img: photo(200, 900), want: domain.ModeText},
		{name: "wide banner", img: photo(1200, 300), want: domain.ModeText},
	}

	var d HeuristicDetector
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := savePNG(t, "img.png", tt.img)
			got, err := d.Detect([]domain.PageImage{page})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeuristicDetector_Measure(t *testing.T) {
	var d HeuristicDetector
	page := savePNG(t, "text.png", textCapture(400, 300))

	stats, err := d.Measure(page.ImagePath)
	require.NoError(t, err)
	assert.Equal(t, 400, stats.Width)
	assert.Equal(t, 300, stats.Height)
	assert.LessOrEqual(t, stats.Colors, 2)
	assert.Greater(t, stats.DominantShare, 0.55)
}

func TestHeuristicDetector_Errors(t *testing.T) {
	var d HeuristicDetector
	_, err := d.Detect(nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))
	_, err = d.Detect([]domain.PageImage{{ImagePath: bad}})
	assert.Error(t, err)
}

func TestDetectorFor(t *testing.T) {
	d, err := DetectorFor("heuristic")
	require.NoError(t, err)
	assert.IsType(t, HeuristicDetector{}, d)

	d, err = DetectorFor("model")
	require.NoError(t, err)
	assert.IsType(t, SelfReportDetector{}, d)

	_, err = DetectorFor("coinflip")
	assert.True(t, domain.IsType(err, domain.ErrorTypeConfig))
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		max    int
		wantOK bool
		text   string
		cats   []string
	}{
		{
			name:   "plain json",
			raw:    `{"mode":"text","text":"hello","categories":["Email","Chat"]}`,
			max:    2,
			wantOK: true,
			text:   "hello",
			cats:   []string{"Email", "Chat"},
		},
		{
			name:   "fenced json with tag",
			raw:    "Here you go:\n```json\n{\"text\":\"a\",\"categories\":[\"Code\"]}\n```",
			max:    2,
			wantOK: true,
			text:   "a",
			cats:   []string{"Code"},
		},
		{
			name:   "json text containing a code fence",
			raw:    "{\"mode\":\"text\",\"text\":\"Install:\\n```bash\\nnpm i\\n```\",\"categories\":[\"Code Snippet\"]}",
			max:    2,
			wantOK: true,
			text:   "Install:\n```bash\nnpm i\n```",
			cats:   []string{"Code Snippet"},
		},
		{
			name:   "fenced json with a fence in its text",
			raw:    "```json\n{\"text\":\"run:\\n```\\nmake\\n```\",\"categories\":[\"Code Snippet\"]}\n```",
			max:    2,
			wantOK: true,
			text:   "run:\n```\nmake\n```",
			cats:   []string{"Code Snippet"},
		},
		{
			name:   "clamped and deduplicated",
			raw:    `{"text":"x","categories":[" Invoice ","invoice","","Receipt","Finance"]}`,
			max:    2,
			wantOK: true,
			text:   "x",
			cats:   []string{"Invoice", "Receipt"},
		},
		{
			name:   "comma separated categories",
			raw:    `{"text":"x","categories":"Photo, Landscape"}`,
			max:    3,
			wantOK: true,
			text:   "x",
			cats:   []string{"Photo", "Landscape"},
		},
		{
			name:   "description field",
			raw:    `{"mode":"graphic","description":"a cat"}`,
			max:    2,
			wantOK: true,
			text:   "a cat",
			cats:   []string{FallbackCategory},
		},
		{name: "malformed", raw: "I cannot help with that", max: 2, text: "", cats: []string{FallbackCategory}},
		{name: "empty", raw: "", max: 2, text: "", cats: []string{FallbackCategory}},
		{name: "json array", raw: `["a"]`, max: 2, text: "", cats: []string{FallbackCategory}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, ok := parseReply(tt.raw, tt.max)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.text, r.Text)
			assert.Equal(t, tt.cats, r.Categories)
		})
	}
}

func TestPromptFor(t *testing.T) {
	assert.Contains(t, promptFor(domain.ModeText, 3), "up to 3 categories")
	assert.Contains(t, promptFor(domain.ModeText, 3), "Transcribe")
	assert.Contains(t, promptFor(domain.ModeGraphic, 2), "Describe")
	assert.Contains(t, promptFor(domain.ModeAuto, 2), `"mode": "text" or "graphic"`)
}

func TestService_GraphicKeepsImage(t *testing.T) {
	fc := &fakeCompleter{reply: `{"mode":"graphic","text":"A mountain lake","categories":["Landscape","Nature","Photo"]}`}
	svc := NewService(fc, Config{MaxCategories: 2}, nil)
	page := domain.PageImage{ImagePath: "/tmp/screenshot_2024.png"}

	got, err := svc.Analyze(context.Background(), []domain.PageImage{page}, domain.ModeGraphic)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeGraphic, got.Mode)
	assert.Equal(t, "A mountain lake", got.Text)
	assert.Equal(t, []string{"Landscape", "Nature"}, got.Categories)
	assert.Equal(t, page.ImagePath, got.ImagePath)
	assert.Contains(t, fc.prompts[0], "Describe")
}

func TestService_TextHasNoImage(t *testing.T) {
	fc := &fakeCompleter{reply: `{"text":"line one\nline two","categories":["Notes"]}`}
	svc := NewService(fc, Config{MaxCategories: 2}, nil)

	got, err := svc.Analyze(context.Background(), []domain.PageImage{{ImagePath: "a.png"}}, domain.ModeText)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeText, got.Mode)
	assert.Equal(t, "line one\nline two", got.Text)
	assert.Empty(t, got.ImagePath)
}

func TestService_SendsWholeUnitInOneRequest(t *testing.T) {
	fc := &fakeCompleter{reply: `{"text":"t","categories":["Doc"]}`}
	svc := NewService(fc, Config{}, nil)
	pages := []domain.PageImage{{ImagePath: "p1.png"}, {ImagePath: "p2.png"}, {ImagePath: "p3.png"}}

	_, err := svc.Analyze(context.Background(), pages, domain.ModeText)
	require.NoError(t, err)
	require.Len(t, fc.images, 1)
	assert.Equal(t, []string{"p1.png", "p2.png", "p3.png"}, fc.images[0])
}

func TestService_AutoUsesDetector(t *testing.T) {
	fc := &fakeCompleter{reply: `{"mode":"text","text":"x","categories":["Chart"]}`}
	svc := NewService(fc, Config{Detector: fixedDetector{mode: domain.ModeGraphic}}, nil)

	got, err := svc.Analyze(context.Background(), []domain.PageImage{{ImagePath: "a.png"}}, domain.ModeAuto)
	require.NoError(t, err)
	// the detector decided; the model's self-report is ignored
	assert.Equal(t, domain.ModeGraphic, got.Mode)
	assert.Equal(t, "a.png", got.ImagePath)
	assert.Contains(t, fc.prompts[0], "Describe")
}

func TestService_AutoSelfReport(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  domain.Mode
	}{
		{name: "graphic", reply: `{"mode":"GRAPHIC","text":"d","categories":["Photo"]}`, want: domain.ModeGraphic},
		{name: "text", reply: `{"mode":"text","text":"d","categories":["Email"]}`, want: domain.ModeText},
		{name: "missing mode", reply: `{"text":"d"}`, want: domain.ModeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{reply: tt.reply}
			svc := NewService(fc, Config{Detector: SelfReportDetector{}}, nil)

			got, err := svc.Analyze(context.Background(), []domain.PageImage{{ImagePath: "a.png"}}, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Mode)
			assert.Contains(t, fc.prompts[0], "First decide")
		})
	}
}

func TestService_DetectorFailureFallsBackToModel(t *testing.T) {
	fc := &fakeCompleter{reply: `{"mode":"graphic","text":"d"}`}
	svc := NewService(fc, Config{Detector: fixedDetector{err: errors.New("decode")}}, nil)

	got, err := svc.Analyze(context.Background(), []domain.PageImage{{ImagePath: "a.png"}}, domain.ModeAuto)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeGraphic, got.Mode)
}

func TestService_MalformedReplyIsNotAnError(t *testing.T) {
	fc := &fakeCompleter{reply: "Sorry, something went wrong"}
	svc := NewService(fc, Config{}, nil)

	got, err := svc.Analyze(context.Background(), []domain.PageImage{{ImagePath: "a.png"}}, domain.ModeText)
	require.NoError(t, err)
	assert.Empty(t, got.Text)
	assert.Equal(t, []string{FallbackCategory}, got.Categories)
}

func TestService_RemoteFailure(t *testing.T) {
	fc := &fakeCompleter{err: domain.APIStatusError(http.StatusUnauthorized, "bad key")}
	svc := NewService(fc, Config{}, nil)

	_, err := svc.Analyze(context.Background(), []domain.PageImage{{ImagePath: "a.png"}}, domain.ModeText)
	require.Error(t, err)
	var de *domain.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusUnauthorized, de.StatusCode)

	fc.err = errors.New("boom")
	_, err = svc.Analyze(context.Background(), []domain.PageImage{{ImagePath: "a.png"}}, domain.ModeText)
	assert.True(t, domain.IsType(err, domain.ErrorTypeAPI))

	_, err = svc.Analyze(context.Background(), nil, domain.ModeText)
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

type flakyAnalyzer struct {
	errs  []error
	calls int
}

func (f *flakyAnalyzer) Analyze(context.Context, []domain.PageImage, domain.Mode) (*domain.Analysis, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	return &domain.Analysis{Mode: domain.ModeText, Text: "ok"}, nil
}

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestWithRetry_RetriesTransientFailures(t *testing.T) {
	f := &flakyAnalyzer{errs: []error{
		domain.APIStatusError(http.StatusTooManyRequests, "slow down"),
		domain.APIError("connection reset", errors.New("eof")),
	}}
	a := WithRetry(f, fastRetry(3), nil)

	got, err := a.Analyze(context.Background(), nil, domain.ModeText)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)
	assert.Equal(t, 3, f.calls)
}

func TestWithRetry_StopsOnPermanentFailure(t *testing.T) {
	f := &flakyAnalyzer{errs: []error{domain.APIStatusError(http.StatusUnauthorized, "bad key")}}
	a := WithRetry(f, fastRetry(3), nil)

	_, err := a.Analyze(context.Background(), nil, domain.ModeText)
	require.Error(t, err)
	assert.Equal(t, 1, f.calls)
	assert.True(t, strings.Contains(err.Error(), "401"))
}

func TestWithRetry_GivesUp(t *testing.T) {
	busy := domain.APIStatusError(http.StatusServiceUnavailable, "busy")
	f := &flakyAnalyzer{errs: []error{busy, busy, busy}}
	a := WithRetry(f, fastRetry(2), nil)

	_, err := a.Analyze(context.Background(), nil, domain.ModeText)
	require.Error(t, err)
	assert.Equal(t, 3, f.calls)
}

func TestWithRetry_ZeroIsPassThrough(t *testing.T) {
	f := &flakyAnalyzer{}
	assert.Same(t, domain.Analyzer(f), WithRetry(f, fastRetry(0), nil))
	assert.Same(t, domain.Analyzer(f), WithRateLimit(f, 0))
}

func TestShouldRetry(t *testing.T) {
	assert.True(t, shouldRetry(domain.APIStatusError(http.StatusBadGateway, "")))
	assert.True(t, shouldRetry(domain.APIError("dial", errors.New("refused"))))
	assert.False(t, shouldRetry(domain.APIStatusError(http.StatusBadRequest, "")))
	assert.False(t, shouldRetry(domain.ValidationError("bad image", nil)))
	assert.False(t, shouldRetry(context.Canceled))
	assert.False(t, shouldRetry(domain.APIError("cancelled", context.Canceled)))
}

func TestWithRateLimit_HonoursContext(t *testing.T) {
	f := &flakyAnalyzer{}
	a := WithRateLimit(f, 1)

	_, err := a.Analyze(context.Background(), nil, domain.ModeText)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = a.Analyze(ctx, nil, domain.ModeText)
	assert.Error(t, err)
	assert.Equal(t, 1, f.calls)
}
