// Command oratio runs an interactive voice interview session from the
// terminal: microphone in, agent audio out, live transcript on screen,
// and a scored report at the end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"github.com/oratio-ai/oratio/pkg/devices"
	"github.com/oratio-ai/oratio/pkg/history"
	"github.com/oratio-ai/oratio/pkg/live"
	"github.com/oratio-ai/oratio/pkg/metrics"
	"github.com/oratio-ai/oratio/pkg/report"
)

type options struct {
	endpoint    string
	apiKey      string
	role        string
	seniority   string
	difficulty  string
	persona     string
	mode        string
	focus       string
	duration    time.Duration
	resumePath  string
	model       string
	historyDB   string
	metricsAddr string
	debug       bool
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	godotenv.Load()

	var opt options
	flag.StringVar(&opt.endpoint, "endpoint", strings.TrimSpace(os.Getenv("ORATIO_ENDPOINT")), "Voice service websocket URL (also reads ORATIO_ENDPOINT)")
	flag.StringVar(&opt.apiKey, "api-key", strings.TrimSpace(os.Getenv("ORATIO_API_KEY")), "Service API key (also reads ORATIO_API_KEY)")
	flag.StringVar(&opt.role, "role", "Software Engineer", "Target role for the interview")
	flag.StringVar(&opt.seniority, "seniority", "", "Seniority level (junior, mid, senior, staff)")
	flag.StringVar(&opt.difficulty, "difficulty", "medium", "Question difficulty (easy, medium, hard)")
	flag.StringVar(&opt.persona, "persona", "", "Interviewer persona")
	flag.StringVar(&opt.mode, "mode", "", "Interview mode (behavioral, system-design, coding)")
	flag.StringVar(&opt.focus, "focus", "", "Focus area to emphasize")
	flag.DurationVar(&opt.duration, "duration", 15*time.Minute, "Interview time budget")
	flag.StringVar(&opt.resumePath, "resume", "", "Path to a plain-text resume to give the interviewer")
	flag.StringVar(&opt.model, "model", report.DefaultModel, "Model used for report generation")
	flag.StringVar(&opt.historyDB, "history-db", history.DefaultDBPath(), "SQLite session archive path")
	flag.StringVar(&opt.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9091)")
	flag.BoolVar(&opt.debug, "debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if opt.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(opt, logger); err != nil {
		logger.Error("oratio failed", "error", err)
		return 1
	}
	return 0
}

func run(opt options, logger *slog.Logger) error {
	cfg := live.DefaultSessionConfig()
	cfg.Endpoint = opt.endpoint
	cfg.APIKey = opt.apiKey
	cfg.Role = opt.role
	cfg.Seniority = opt.seniority
	cfg.Difficulty = opt.difficulty
	cfg.Persona = opt.persona
	cfg.Mode = opt.mode
	cfg.FocusArea = opt.focus
	cfg.Duration = opt.duration

	if opt.resumePath != "" {
		data, err := os.ReadFile(opt.resumePath)
		if err != nil {
			return fmt.Errorf("read resume: %w", err)
		}
		cfg.ResumeText = string(data)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if opt.metricsAddr != "" {
		go serveMetrics(opt.metricsAddr, reg, logger)
	}

	speaker, err := devices.NewSpeaker()
	if err != nil {
		return err
	}
	defer speaker.Close()

	session, err := live.NewSession(cfg, speaker, logger, m)
	if err != nil {
		return err
	}

	mic, err := devices.NewMicrophone(cfg.CaptureRate, session.PushAudio)
	if err != nil {
		return err
	}
	defer mic.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startedAt := time.Now()
	if err := session.Start(ctx); err != nil {
		return err
	}

	keys := make(chan byte, 8)
	restore, err := watchKeys(keys)
	if err != nil {
		logger.Warn("keyboard controls unavailable", "error", err)
	} else {
		defer restore()
	}

	fmt.Println("Session started. Controls: [m] mute  [p] pause/resume  [q] end")
	runUI(ctx, session, keys)

	transcript := session.End()
	endedAt := time.Now()
	fmt.Printf("\nSession ended after %s with %d transcript items.\n",
		endedAt.Sub(startedAt).Round(time.Second), len(transcript))

	rep := generateReport(ctx, opt, cfg, transcript, logger)
	printReport(rep)
	archive(opt, cfg, transcript, rep, startedAt, endedAt, logger)
	return nil
}

// runUI multiplexes session events and keyboard input until the session
// terminates or the user quits.
func runUI(ctx context.Context, session *live.Session, keys <-chan byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case k := <-keys:
			switch k {
			case 'm':
				session.SetMuted(!session.Muted())
			case 'p':
				if session.State() == live.StatePaused {
					session.Resume()
				} else {
					session.Pause()
				}
			case 'q', 3: // q or Ctrl-C in raw mode
				return
			}
		case ev := <-session.Events():
			if done := renderEvent(ev); done {
				return
			}
		}
	}
}

// renderEvent prints one session event. Returns true on terminal events.
func renderEvent(ev live.Event) bool {
	switch e := ev.(type) {
	case *live.PartialTranscriptEvent:
		fmt.Printf("\r%s… %s", e.Speaker, truncate(e.Text, 70))
	case *live.TranscriptItemEvent:
		fmt.Printf("\r%s: %s\n", e.Item.Speaker, e.Item.Text)
	case *live.MutedEvent:
		if e.Muted {
			fmt.Println("\n[mic muted]")
		} else {
			fmt.Println("\n[mic live]")
		}
	case *live.PausedEvent:
		if e.Paused {
			fmt.Println("\n[paused]")
		} else {
			fmt.Println("\n[resumed]")
		}
	case *live.InterruptedEvent:
		fmt.Println("\n[interrupted]")
	case *live.ReconnectingEvent:
		fmt.Printf("\n[reconnecting, attempt %d in %s]\n", e.Attempt, e.Delay)
	case *live.ErrorEvent:
		fmt.Printf("\n[error: %s]\n", e.Message)
		if e.Terminal {
			return true
		}
	case *live.EndedEvent:
		return true
	}
	return false
}

// watchKeys puts stdin into raw mode and streams single key presses.
func watchKeys(keys chan<- byte) (restore func(), err error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw terminal: %w", err)
	}
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				keys <- buf[0]
			}
		}
	}()
	return func() { term.Restore(fd, oldState) }, nil
}

func generateReport(ctx context.Context, opt options, cfg live.SessionConfig, transcript []live.TranscriptItem, logger *slog.Logger) *report.Report {
	gen, err := report.NewGenerator(ctx, opt.apiKey, opt.model, logger)
	if err != nil {
		logger.Warn("report generator unavailable, using baseline", "error", err)
		gen = report.NewBaselineGenerator(logger)
	}
	genCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return gen.Generate(genCtx, cfg, transcript)
}

func printReport(rep *report.Report) {
	if rep == nil {
		return
	}
	fmt.Printf("\n=== Report ===\nScore: %d/100\n%s\n", rep.Composite, rep.Summary)
	if len(rep.Strengths) > 0 {
		fmt.Println("Strengths:")
		for _, s := range rep.Strengths {
			fmt.Printf("  + %s\n", s)
		}
	}
	if len(rep.Improvements) > 0 {
		fmt.Println("Improvements:")
		for _, s := range rep.Improvements {
			fmt.Printf("  - %s\n", s)
		}
	}
	for _, q := range rep.Questions {
		fmt.Printf("  [%d] %s: %s\n", q.Score, truncate(q.Question, 60), q.Assessment)
	}
}

func archive(opt options, cfg live.SessionConfig, transcript []live.TranscriptItem, rep *report.Report, startedAt, endedAt time.Time, logger *slog.Logger) {
	if opt.historyDB == "" || len(transcript) == 0 {
		return
	}
	store, err := history.Open(opt.historyDB)
	if err != nil {
		logger.Warn("history unavailable", "error", err)
		return
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	id, err := store.Save(ctx, cfg, transcript, rep, startedAt, endedAt)
	if err != nil {
		logger.Warn("history save failed", "error", err)
		return
	}
	fmt.Printf("Saved session %s to %s\n", id, opt.historyDB)
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
