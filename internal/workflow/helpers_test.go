package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"slidewright/internal/config"
	"slidewright/internal/ledger"
	"slidewright/internal/logging"
	"slidewright/internal/notifications"
	"slidewright/internal/stage"
	"slidewright/internal/store"
	"slidewright/internal/testsupport"
	"slidewright/internal/workflow"
)

const waitTimeout = 5 * time.Second

type stepFunc func(ctx context.Context, call int, req stage.Request, progress stage.ProgressFunc) error

// fakeExecutor returns a canned artifact for its stage unless fn fails.
type fakeExecutor struct {
	taskType ledger.Type

	mu       sync.Mutex
	fn       stepFunc
	calls    int
	requests []stage.Request
}

func (f *fakeExecutor) Execute(ctx context.Context, req stage.Request, progress stage.ProgressFunc) (*store.Artifact, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.requests = append(f.requests, req)
	fn := f.fn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, call, req, progress); err != nil {
			return nil, err
		}
	}
	return artifactFor(f.taskType, req), nil
}

func (f *fakeExecutor) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(f.taskType))
}

func (f *fakeExecutor) set(fn stepFunc) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeExecutor) lastRequest() stage.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func artifactFor(taskType ledger.Type, req stage.Request) *store.Artifact {
	artifact := &store.Artifact{ID: req.ArtifactID}
	switch taskType {
	case ledger.TypeExtract:
		artifact.Kind = store.ArtifactExtraction
		artifact.Extraction = &store.Extraction{
			Title:    "Paper",
			Text:     "Abstract\nWe study things.",
			Metadata: store.Metadata{Title: "Paper", Author: "A. Author", PageCount: 3},
		}
	case ledger.TypeAnalyze:
		artifact.Kind = store.ArtifactAnalysis
		artifact.Analysis = &store.Analysis{
			Summary: "We study things.",
			Outline: []store.SlideOutline{{Title: "Paper", Layout: "title"}},
			Model:   "fake-model",
		}
	case ledger.TypeRender:
		artifact.Kind = store.ArtifactSlides
		artifact.Slides = &store.Slides{Template: "academic", Format: "pptx", Path: "/decks/paper.pptx", SlideCount: 1, SizeBytes: 2048}
	}
	return artifact
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == event {
			total++
		}
	}
	return total
}

type harness struct {
	cfg      *config.Config
	store    *store.Store
	ledger   *ledger.Ledger
	sched    *workflow.Scheduler
	execs    map[ledger.Type]*fakeExecutor
	notifier *recordingNotifier
}

func newHarness(t *testing.T, maxConcurrent int, opts ...workflow.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxConcurrent(maxConcurrent))
	st := testsupport.MustOpenStore(t, cfg)
	led := ledger.New(st)
	notifier := &recordingNotifier{}

	base := []workflow.Option{
		workflow.WithNotifier(notifier),
		workflow.WithRetryBackoff(time.Millisecond),
		workflow.WithWatchdogInterval(5 * time.Millisecond),
		workflow.WithTaskTimeout(waitTimeout * 2),
	}
	sched := workflow.NewScheduler(cfg, st, led, logging.NewNop(), append(base, opts...)...)

	h := &harness{cfg: cfg, store: st, ledger: led, sched: sched, execs: map[ledger.Type]*fakeExecutor{}, notifier: notifier}
	for _, taskType := range ledger.Types {
		exec := &fakeExecutor{taskType: taskType}
		h.execs[taskType] = exec
		if err := sched.Register(taskType, exec); err != nil {
			t.Fatalf("Register(%s): %v", taskType, err)
		}
	}
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.sched.Stop)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitTerminal(t *testing.T, taskID string) *ledger.Task {
	t.Helper()
	var task *ledger.Task
	waitFor(t, "task "+taskID+" to finish", func() bool {
		got, err := h.ledger.Get(context.Background(), taskID)
		if err != nil {
			t.Fatalf("ledger.Get: %v", err)
		}
		task = got
		return got.Status.IsTerminal()
	})
	return task
}

func (h *harness) waitDocument(t *testing.T, docID string, status store.DocumentStatus) *store.Document {
	t.Helper()
	var doc *store.Document
	waitFor(t, "document "+string(status), func() bool {
		got, err := h.store.GetDocument(context.Background(), docID)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		doc = got
		return got.Status == status
	})
	return doc
}

func (h *harness) waitIdle(t *testing.T, active int) {
	t.Helper()
	waitFor(t, "scheduler to settle", func() bool {
		return h.sched.Status(context.Background()).Active == active
	})
}

// runStage requests a stage and waits until both its task and the document
// have settled.
func (h *harness) runStage(t *testing.T, docID string, taskType ledger.Type) *ledger.Task {
	t.Helper()
	task, err := h.sched.RequestStage(context.Background(), docID, taskType, nil)
	if err != nil {
		t.Fatalf("RequestStage(%s): %v", taskType, err)
	}
	final := h.waitTerminal(t, task.ID)
	h.waitIdle(t, 0)
	return final
}

// gate blocks an executor until released or cancelled.
type gate struct {
	once sync.Once
	ch   chan struct{}
}

func newGate() *gate { return &gate{ch: make(chan struct{})} }

func (g *gate) release() { g.once.Do(func() { close(g.ch) }) }

func (g *gate) wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
