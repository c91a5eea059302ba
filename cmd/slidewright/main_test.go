package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"slidewright/internal/api"
	"slidewright/internal/daemon"
	"slidewright/internal/testsupport"
	"slidewright/internal/workflow"
)

func TestCLIPipelineAgainstDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	pdfPath := filepath.Join(t.TempDir(), "attention.pdf")
	testsupport.WriteFile(t, pdfPath, testsupport.MinimalPDF())

	out, _, err := runCLI(t, env.configPath, "add", pdfPath, "--title", "Attention Is All You Need", "--json")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var doc api.Document
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode add output %q: %v", out, err)
	}
	if doc.ID == "" || doc.ProcessingStatus != "uploaded" {
		t.Fatalf("unexpected document %+v", doc)
	}

	out, _, err = runCLI(t, env.configPath, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "Attention Is All You Need")

	// analyze before extract is refused by the daemon
	if _, _, err := runCLI(t, env.configPath, "analyze", doc.ID); !errors.Is(err, workflow.ErrPrecondsNotMet) {
		t.Fatalf("expected preconditions error, got %v", err)
	}

	out, stderr, err := runCLI(t, env.configPath, "extract", doc.ID, "--wait")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, stderr, "extract completed 100%")
	drain(env.configs)

	if _, _, err := runCLI(t, env.configPath, "analyze", doc.ID, "--wait", "--summary-style", "simple", "--key-points", "7"); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(<-env.configs), &sent); err != nil {
		t.Fatalf("decode analyze config: %v", err)
	}
	if sent["summary_style"] != "simple" || sent["num_key_points"] != float64(7) {
		t.Fatalf("unexpected analyze options %v", sent)
	}
	if _, ok := sent["temperature"]; ok {
		t.Fatalf("unset flag leaked into options: %v", sent)
	}

	if _, _, err := runCLI(t, env.configPath, "render", doc.ID, "--wait"); err != nil {
		t.Fatalf("render: %v", err)
	}

	out, _, err = runCLI(t, env.configPath, "result", doc.ID, "analysis")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	requireContains(t, out, "Attention replaces recurrence.")

	out, _, err = runCLI(t, env.configPath, "show", doc.ID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "A. Vaswani")
	requireContains(t, out, "render")

	downloads := t.TempDir()
	if _, _, err := runCLI(t, env.configPath, "download", doc.ID, downloads); err != nil {
		t.Fatalf("download: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(downloads, "attention-is-all-you-need.pptx"))
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(got) != string(deckBytes) {
		t.Fatalf("downloaded deck mismatch: %q", got)
	}

	out, _, err = runCLI(t, env.configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Capacity")
	requireContains(t, out, "completed 1")

	out, _, err = runCLI(t, env.configPath, "templates")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	requireContains(t, out, "academic")

	out, _, err = runCLI(t, env.configPath, "delete", doc.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	requireContains(t, out, "Deleted document")

	_, _, err = runCLI(t, env.configPath, "show", doc.ID)
	if !errors.Is(err, api.ErrNotFound) && !errors.Is(err, workflow.ErrDocumentNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestCLIRejectsWrongToken(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env.configPath, "--token", "wrong", "list")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 401 {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	cfg.LLM.APIKey = "sk-very-secret"
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, redacted)
	if strings.Contains(out, "sk-very-secret") {
		t.Fatalf("api key leaked: %s", out)
	}

	out, _, err = runCLI(t, configPath, "config", "show", "--reveal")
	if err != nil {
		t.Fatalf("config show --reveal: %v", err)
	}
	requireContains(t, out, "sk-very-secret")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestRunRefusesWhileDaemonHoldsLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(daemon.LockPath(cfg))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })

	var out, errOut strings.Builder
	err = runPipeline(t.Context(), cfg, "paper.pdf", runOptions{pollEvery: pollInterval}, &out, &errOut)
	if err == nil || !strings.Contains(err.Error(), "daemon is using this data directory") {
		t.Fatalf("expected lock refusal, got %v", err)
	}
}

func TestResolveDownloadTarget(t *testing.T) {
	dir := t.TempDir()
	if got := resolveDownloadTarget(dir, "deck.pptx", "doc"); got != filepath.Join(dir, "deck.pptx") {
		t.Fatalf("directory target: %s", got)
	}
	file := filepath.Join(dir, "mine.pptx")
	if got := resolveDownloadTarget(file, "deck.pptx", "doc"); got != file {
		t.Fatalf("file target: %s", got)
	}
	if got := resolveDownloadTarget(dir, "", "doc-1"); got != filepath.Join(dir, "doc-1.pptx") {
		t.Fatalf("fallback name: %s", got)
	}
}

func drain(ch chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
