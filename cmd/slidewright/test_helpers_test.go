package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"slidewright/internal/config"
	"slidewright/internal/daemon"
	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/stage"
	"slidewright/internal/store"
	"slidewright/internal/testsupport"
	"slidewright/internal/workflow"
)

var deckBytes = []byte("PK\x03\x04 cli deck")

// cannedStage returns a fixed artifact for its stage and records the
// options it was asked to run with.
type cannedStage struct {
	taskType ledger.Type
	outDir   string
	configs  chan string
}

func (s cannedStage) Execute(_ context.Context, req stage.Request, progress stage.ProgressFunc) (*store.Artifact, error) {
	if s.configs != nil {
		select {
		case s.configs <- string(req.Config):
		default:
		}
	}
	progress.Report(40)
	artifact := &store.Artifact{ID: req.ArtifactID}
	switch s.taskType {
	case ledger.TypeExtract:
		artifact.Kind = store.ArtifactExtraction
		artifact.Extraction = &store.Extraction{
			Title:    req.Document.Title,
			Text:     "Abstract\nWe propose a model.",
			Metadata: store.Metadata{Author: "A. Vaswani", PageCount: 11},
		}
	case ledger.TypeAnalyze:
		artifact.Kind = store.ArtifactAnalysis
		artifact.Analysis = &store.Analysis{
			Summary:      "Attention replaces recurrence.",
			SummaryStyle: "academic",
			Model:        "canned",
			Outline:      []store.SlideOutline{{Title: "Motivation", Layout: "bullets"}},
		}
	case ledger.TypeRender:
		path := filepath.Join(s.outDir, req.Document.ID, req.ArtifactID+".pptx")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, deckBytes, 0o644); err != nil {
			return nil, err
		}
		artifact.Kind = store.ArtifactSlides
		artifact.Slides = &store.Slides{
			Template:   "academic",
			Format:     "pptx",
			Path:       path,
			SlideCount: 2,
			SizeBytes:  int64(len(deckBytes)),
		}
	}
	return artifact, nil
}

func (s cannedStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(s.taskType))
}

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
	configs    chan string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	previous := pollInterval
	pollInterval = 10 * time.Millisecond
	t.Cleanup(func() { pollInterval = previous })

	cfg := testsupport.NewConfig(t)
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	cfg.Paths.APIToken = "cli-token"

	st := testsupport.MustOpenStore(t, cfg)
	led := ledger.New(st)
	logger := logging.NewNop()
	sched := workflow.NewScheduler(cfg, st, led, logger, workflow.WithRetryBackoff(time.Millisecond))
	configs := make(chan string, 8)
	for _, taskType := range ledger.Types {
		if err := sched.Register(taskType, cannedStage{taskType: taskType, outDir: cfg.Paths.OutputDir, configs: configs}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	d, err := daemon.New(cfg, st, led, sched, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	t.Cleanup(d.Stop)

	cfg.Paths.APIBind = d.Addr()
	configPath := filepath.Join(testsupport.BaseDir(cfg), "slidewright.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, daemon: d, configPath: configPath, configs: configs}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	testsupport.WriteFile(t, path, data)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
