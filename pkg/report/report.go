// Package report turns a finished session transcript into a structured
// performance report. Generation is best-effort: when the model call
// fails for any reason the caller still gets a deterministic baseline
// report built from transcript statistics.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/oratio-ai/oratio/pkg/live"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Dimension scores one evaluated axis of the conversation.
type Dimension struct {
	Name       string  `json:"name"`
	Score      int     `json:"score"`      // 0-100
	Confidence float64 `json:"confidence"` // 0-1
}

// QuestionAssessment evaluates one question/answer exchange.
type QuestionAssessment struct {
	Question   string `json:"question"`
	Assessment string `json:"assessment"`
	Score      int    `json:"score"` // 0-100
}

// Report is the final session evaluation.
type Report struct {
	Composite    int                  `json:"composite"` // 0-100
	Dimensions   []Dimension          `json:"dimensions,omitempty"`
	Strengths    []string             `json:"strengths,omitempty"`
	Improvements []string             `json:"improvements,omitempty"`
	Questions    []QuestionAssessment `json:"questions,omitempty"`
	Summary      string               `json:"summary"`

	// Baseline marks a statistics-only report produced because model
	// generation was unavailable or failed.
	Baseline    bool      `json:"baseline,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// GenerateFunc produces the model's raw response for a prompt.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Generator produces session reports. The zero value is unusable; build
// one with NewGenerator, NewCustomGenerator or NewBaselineGenerator.
type Generator struct {
	model    string
	logger   *slog.Logger
	generate GenerateFunc
	now      func() time.Time
}

// NewCustomGenerator builds a generator backed by a caller-supplied
// generation function. A nil function yields baseline reports only.
func NewCustomGenerator(gen GenerateFunc, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		model:    DefaultModel,
		logger:   logger.With("component", "report"),
		generate: gen,
		now:      time.Now,
	}
}

// NewBaselineGenerator returns a generator that always produces the
// statistics baseline. Callers fall back to it when no model client can
// be constructed, so the session still ends with a report.
func NewBaselineGenerator(logger *slog.Logger) *Generator {
	return NewCustomGenerator(nil, logger)
}

// NewGenerator builds a Gemini-backed report generator.
func NewGenerator(ctx context.Context, apiKey, model string, logger *slog.Logger) (*Generator, error) {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("report client: %w", err)
	}

	g := &Generator{model: model, logger: logger.With("component", "report"), now: time.Now}
	g.generate = func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return g, nil
}

// Generate evaluates the transcript. It never returns an error: any
// generation failure degrades to the baseline report.
func (g *Generator) Generate(ctx context.Context, cfg live.SessionConfig, transcript []live.TranscriptItem) *Report {
	if len(transcript) == 0 || g.generate == nil {
		return g.baseline(cfg, transcript)
	}

	raw, err := g.generate(ctx, buildPrompt(cfg, transcript))
	if err != nil {
		g.logger.Warn("report generation failed, using baseline", "error", err)
		return g.baseline(cfg, transcript)
	}

	var r Report
	if err := json.Unmarshal([]byte(stripFences(raw)), &r); err != nil {
		g.logger.Warn("report response unparseable, using baseline", "error", err)
		return g.baseline(cfg, transcript)
	}
	clampReport(&r)
	r.GeneratedAt = g.now()
	return &r
}

// baseline builds a statistics-only report so the session always ends
// with something to show.
func (g *Generator) baseline(cfg live.SessionConfig, transcript []live.TranscriptItem) *Report {
	var userItems, agentItems, userWords int
	for _, it := range transcript {
		switch it.Speaker {
		case live.SpeakerUser:
			userItems++
			userWords += len(strings.Fields(it.Text))
		case live.SpeakerAgent:
			agentItems++
		}
	}

	composite := 0
	if userItems > 0 {
		composite = clamp(40+userItems*4+userWords/25, 0, 75)
	}
	return &Report{
		Composite: composite,
		Summary: fmt.Sprintf(
			"Automated evaluation was unavailable. You answered %d times across %d exchanges for the %s role.",
			userItems, userItems+agentItems, cfg.Role),
		Baseline:    true,
		GeneratedAt: g.now(),
	}
}

func buildPrompt(cfg live.SessionConfig, transcript []live.TranscriptItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are evaluating a mock %s interview (seniority: %s, difficulty: %s).\n",
		cfg.Role, cfg.Seniority, cfg.Difficulty)
	if cfg.FocusArea != "" {
		fmt.Fprintf(&b, "Focus area: %s.\n", cfg.FocusArea)
	}
	b.WriteString(`Return strict JSON with fields: composite (int 0-100), dimensions (array of {name, score 0-100, confidence 0-1}), strengths (array of strings), improvements (array of strings), questions (array of {question, assessment, score 0-100}), summary (string).

Transcript:
`)
	for _, it := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", it.Speaker, it.Text)
	}
	return b.String()
}

// stripFences removes a markdown code fence if the model wrapped its
// JSON in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clampReport(r *Report) {
	r.Composite = clamp(r.Composite, 0, 100)
	for i := range r.Dimensions {
		r.Dimensions[i].Score = clamp(r.Dimensions[i].Score, 0, 100)
		if r.Dimensions[i].Confidence < 0 {
			r.Dimensions[i].Confidence = 0
		}
		if r.Dimensions[i].Confidence > 1 {
			r.Dimensions[i].Confidence = 1
		}
	}
	for i := range r.Questions {
		r.Questions[i].Score = clamp(r.Questions[i].Score, 0, 100)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
