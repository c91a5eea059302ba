package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"slidewright/internal/ledger"
	"slidewright/internal/notifications"
	"slidewright/internal/services"
	"slidewright/internal/stage"
	"slidewright/internal/store"
	"slidewright/internal/testsupport"
	"slidewright/internal/workflow"
)

var statusSequence = []store.DocumentStatus{
	store.StatusUploaded,
	store.StatusExtracting,
	store.StatusExtracted,
	store.StatusAnalyzing,
	store.StatusAnalyzed,
	store.StatusRendering,
	store.StatusCompleted,
}

func sequenceIndex(status store.DocumentStatus) int {
	for i, s := range statusSequence {
		if s == status {
			return i
		}
	}
	return -1
}

func TestPipelineRoundTrip(t *testing.T) {
	h := newHarness(t, 2)
	h.start(t)
	doc := testsupport.NewDocument(t, h.store, "Paper")

	var (
		watchMu  sync.Mutex
		observed []store.DocumentStatus
	)
	stopWatch := make(chan struct{})
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for {
			select {
			case <-stopWatch:
				return
			default:
			}
			if got, err := h.store.GetDocument(context.Background(), doc.ID); err == nil {
				watchMu.Lock()
				observed = append(observed, got.Status)
				watchMu.Unlock()
			}
			time.Sleep(time.Millisecond)
		}
	}()

	results := map[string]bool{}
	for _, taskType := range ledger.Types {
		task := h.runStage(t, doc.ID, taskType)
		if task.Status != ledger.StatusCompleted {
			t.Fatalf("%s: expected completed, got %s (%s)", taskType, task.Status, task.ErrorMessage)
		}
		if task.Progress != 100 {
			t.Fatalf("%s: expected progress 100, got %d", taskType, task.Progress)
		}
		if task.ResultID == "" || results[task.ResultID] {
			t.Fatalf("%s: expected a fresh result id, got %q", taskType, task.ResultID)
		}
		results[task.ResultID] = true

		artifact, err := h.store.GetArtifact(context.Background(), task.ResultID)
		if err != nil {
			t.Fatalf("%s: result artifact not visible: %v", taskType, err)
		}
		if artifact.TaskID != task.ID || artifact.DocumentID != doc.ID {
			t.Fatalf("%s: artifact not linked to task: %+v", taskType, artifact)
		}
	}
	close(stopWatch)
	<-watchDone

	final := h.waitDocument(t, doc.ID, store.StatusCompleted)
	if final.ExtractionID == "" {
		t.Fatal("expected extraction id on document")
	}
	if final.Metadata.Author != "A. Author" || final.Metadata.PageCount != 3 {
		t.Fatalf("expected metadata copied from extraction, got %+v", final.Metadata)
	}

	watchMu.Lock()
	last := -1
	for _, status := range observed {
		idx := sequenceIndex(status)
		if idx < 0 {
			t.Fatalf("unexpected status %s during round trip", status)
		}
		if idx < last {
			t.Fatalf("document status went backwards: %v", observed)
		}
		last = idx
	}
	watchMu.Unlock()

	analyzeReq := h.execs[ledger.TypeAnalyze].lastRequest()
	if analyzeReq.Extraction == nil || analyzeReq.Extraction.Title != "Paper" {
		t.Fatalf("analyze did not receive the extraction: %+v", analyzeReq.Extraction)
	}
	renderReq := h.execs[ledger.TypeRender].lastRequest()
	if renderReq.Analysis == nil || renderReq.Analysis.Model != "fake-model" {
		t.Fatalf("render did not receive the analysis: %+v", renderReq.Analysis)
	}

	waitFor(t, "completion notifications", func() bool {
		return h.notifier.count(notifications.EventStageCompleted) == 3 &&
			h.notifier.count(notifications.EventDocumentCompleted) == 1
	})
}

func TestRequestStageRejections(t *testing.T) {
	h := newHarness(t, 2)

	doc := testsupport.NewDocument(t, h.store, "Paper")
	if _, err := h.sched.RequestStage(context.Background(), doc.ID, ledger.TypeExtract, nil); !errors.Is(err, workflow.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before Start, got %v", err)
	}

	h.start(t)

	t.Run("missing document", func(t *testing.T) {
		_, err := h.sched.RequestStage(context.Background(), "nope", ledger.TypeExtract, nil)
		if !errors.Is(err, workflow.ErrDocumentNotFound) {
			t.Fatalf("expected ErrDocumentNotFound, got %v", err)
		}
	})

	t.Run("preconditions", func(t *testing.T) {
		cfg := json.RawMessage(`{"model":"gpt-4"}`)
		_, err := h.sched.RequestStage(context.Background(), doc.ID, ledger.TypeAnalyze, cfg)
		if !errors.Is(err, workflow.ErrPrecondsNotMet) {
			t.Fatalf("expected ErrPrecondsNotMet, got %v", err)
		}
		tasks, err := h.ledger.ListForDocument(context.Background(), doc.ID)
		if err != nil {
			t.Fatalf("ListForDocument: %v", err)
		}
		if len(tasks) != 0 {
			t.Fatalf("expected no task to be created, got %d", len(tasks))
		}
		if h.execs[ledger.TypeAnalyze].callCount() != 0 {
			t.Fatal("executor must not run on rejected admission")
		}
	})

	t.Run("completed document", func(t *testing.T) {
		done := testsupport.NewDocument(t, h.store, "Done")
		testsupport.SetDocumentStatus(t, h.store, done, store.StatusCompleted)
		for _, taskType := range ledger.Types {
			if _, err := h.sched.RequestStage(context.Background(), done.ID, taskType, nil); !errors.Is(err, workflow.ErrPrecondsNotMet) {
				t.Fatalf("%s on a completed document: expected ErrPrecondsNotMet, got %v", taskType, err)
			}
		}
	})

	t.Run("unknown stage", func(t *testing.T) {
		_, err := h.sched.RequestStage(context.Background(), doc.ID, ledger.Type("publish"), nil)
		if !errors.Is(err, workflow.ErrStageUnavailable) {
			t.Fatalf("expected ErrStageUnavailable, got %v", err)
		}
	})
}

func TestConcurrentDuplicateRequests(t *testing.T) {
	h := newHarness(t, 5)
	g := newGate()
	h.execs[ledger.TypeExtract].set(func(ctx context.Context, _ int, _ stage.Request, _ stage.ProgressFunc) error {
		return g.wait(ctx)
	})
	h.start(t)
	defer g.release()
	doc := testsupport.NewDocument(t, h.store, "Paper")

	const callers = 16
	var (
		accepted   atomic.Int32
		duplicates atomic.Int32
		wg         sync.WaitGroup
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := h.sched.RequestStage(context.Background(), doc.ID, ledger.TypeExtract, nil)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, workflow.ErrAlreadyInProgress):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected admission error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if accepted.Load() != 1 || duplicates.Load() != callers-1 {
		t.Fatalf("expected 1 accepted and %d duplicates, got %d and %d", callers-1, accepted.Load(), duplicates.Load())
	}
	tasks, err := h.ledger.ListForDocument(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("ListForDocument: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected exactly one task, got %d", len(tasks))
	}
}

func TestCapacityLimit(t *testing.T) {
	h := newHarness(t, 3)
	gates := sync.Map{}
	h.execs[ledger.TypeExtract].set(func(ctx context.Context, _ int, req stage.Request, _ stage.ProgressFunc) error {
		g, _ := gates.LoadOrStore(req.Document.ID, newGate())
		return g.(*gate).wait(ctx)
	})
	h.start(t)
	t.Cleanup(func() {
		gates.Range(func(_, v any) bool {
			v.(*gate).release()
			return true
		})
	})

	var docs []*store.Document
	for range 5 {
		docs = append(docs, testsupport.NewDocument(t, h.store, "Paper"))
	}
	var admitted []string
	for _, doc := range docs {
		_, err := h.sched.RequestStage(context.Background(), doc.ID, ledger.TypeExtract, nil)
		switch {
		case err == nil:
			admitted = append(admitted, doc.ID)
		case errors.Is(err, workflow.ErrCapacityExceeded):
		default:
			t.Fatalf("unexpected admission error: %v", err)
		}
	}
	if len(admitted) != 3 {
		t.Fatalf("expected 3 admitted, got %d", len(admitted))
	}
	if got := h.sched.Status(context.Background()).Active; got != 3 {
		t.Fatalf("expected 3 active, got %d", got)
	}

	g, _ := gates.LoadOrStore(admitted[0], newGate())
	g.(*gate).release()
	h.waitDocument(t, admitted[0], store.StatusExtracted)
	h.waitIdle(t, 2)

	second := 0
	for _, doc := range docs[3:] {
		if _, err := h.sched.RequestStage(context.Background(), doc.ID, ledger.TypeExtract, nil); err == nil {
			second++
		} else if !errors.Is(err, workflow.ErrCapacityExceeded) {
			t.Fatalf("unexpected admission error: %v", err)
		}
	}
	if second != 1 {
		t.Fatalf("expected exactly one more admission after a slot freed, got %d", second)
	}
}

func externalFailure() error {
	return services.Wrap(services.ErrExternalService, "analyze", "chat", "upstream unavailable", errors.New("502 bad gateway"))
}

func TestRetryThenSucceed(t *testing.T) {
	h := newHarness(t, 2)
	h.execs[ledger.TypeExtract].set(func(_ context.Context, call int, _ stage.Request, _ stage.ProgressFunc) error {
		if call <= 2 {
			return externalFailure()
		}
		return nil
	})
	h.start(t)
	doc := testsupport.NewDocument(t, h.store, "Paper")

	task := h.runStage(t, doc.ID, ledger.TypeExtract)
	if task.Status != ledger.StatusCompleted {
		t.Fatalf("expected completed, got %s: %s", task.Status, task.ErrorMessage)
	}
	if task.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", task.Attempts)
	}
	h.waitDocument(t, doc.ID, store.StatusExtracted)
}

func TestRetriesExhausted(t *testing.T) {
	h := newHarness(t, 2)
	h.execs[ledger.TypeExtract].set(func(context.Context, int, stage.Request, stage.ProgressFunc) error {
		return externalFailure()
	})
	h.start(t)
	doc := testsupport.NewDocument(t, h.store, "Paper")

	task := h.runStage(t, doc.ID, ledger.TypeExtract)
	if task.Status != ledger.StatusFailed {
		t.Fatalf("expected failed, got %s", task.Status)
	}
	if task.ErrorKind != string(services.KindExternalService) {
		t.Fatalf("expected ExternalServiceError, got %q", task.ErrorKind)
	}
	if task.Attempts != 3 || h.execs[ledger.TypeExtract].callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d (calls %d)", task.Attempts, h.execs[ledger.TypeExtract].callCount())
	}
}

func TestNonRetryableFailure(t *testing.T) {
	h := newHarness(t, 2)
	h.execs[ledger.TypeExtract].set(func(context.Context, int, stage.Request, stage.ProgressFunc) error {
		return services.Wrap(services.ErrUnsupportedFormat, "extract", "open", "not a pdf", nil)
	})
	h.start(t)
	doc := testsupport.NewDocument(t, h.store, "Paper")

	task := h.runStage(t, doc.ID, ledger.TypeExtract)
	if task.Status != ledger.StatusFailed || task.ErrorKind != string(services.KindUnsupportedFormat) {
		t.Fatalf("expected UnsupportedFormat failure, got %s/%s", task.Status, task.ErrorKind)
	}
	if h.execs[ledger.TypeExtract].callCount() != 1 {
		t.Fatalf("expected a single attempt, got %d", h.execs[ledger.TypeExtract].callCount())
	}
	if task.CompletedAt == nil {
		t.Fatal("expected completion timestamp on failed task")
	}

	got := h.waitDocument(t, doc.ID, store.StatusError)
	if got.ResumeStatus != store.StatusUploaded {
		t.Fatalf("expected resume status uploaded, got %q", got.ResumeStatus)
	}
	if !strings.HasPrefix(got.ErrorMessage, "extract failed:") {
		t.Fatalf("unexpected document error message %q", got.ErrorMessage)
	}
	waitFor(t, "failure notification", func() bool {
		return h.notifier.count(notifications.EventStageFailed) == 1
	})

	if _, err := h.sched.RequestStage(context.Background(), doc.ID, ledger.TypeAnalyze, nil); !errors.Is(err, workflow.ErrPrecondsNotMet) {
		t.Fatalf("expected analyze to be rejected before extraction succeeds, got %v", err)
	}

	// The error state is resumable from the stage that failed.
	h.execs[ledger.TypeExtract].set(nil)
	again := h.runStage(t, doc.ID, ledger.TypeExtract)
	if again.Status != ledger.StatusCompleted {
		t.Fatalf("expected retry of failed stage to complete, got %s", again.Status)
	}
	h.waitDocument(t, doc.ID, store.StatusExtracted)
}

func TestUnclassifiedRenderErrorAndRerun(t *testing.T) {
	h := newHarness(t, 2)
	h.execs[ledger.TypeRender].set(func(context.Context, int, stage.Request, stage.ProgressFunc) error {
		return errors.New("disk on fire")
	})
	h.start(t)
	doc := testsupport.NewDocument(t, h.store, "Paper")

	h.runStage(t, doc.ID, ledger.TypeExtract)
	h.runStage(t, doc.ID, ledger.TypeAnalyze)
	task := h.runStage(t, doc.ID, ledger.TypeRender)
	if task.Status != ledger.StatusFailed || task.ErrorKind != string(services.KindRender) {
		t.Fatalf("expected RenderError, got %s/%s", task.Status, task.ErrorKind)
	}
	failed := h.waitDocument(t, doc.ID, store.StatusError)
	if failed.ResumeStatus != store.StatusAnalyzed {
		t.Fatalf("expected resume from analyzed, got %q", failed.ResumeStatus)
	}

	// An earlier stage may be re-run from error.
	rerun := h.runStage(t, doc.ID, ledger.TypeAnalyze)
	if rerun.Status != ledger.StatusCompleted {
		t.Fatalf("expected analyze re-run to complete, got %s", rerun.Status)
	}
	h.waitDocument(t, doc.ID, store.StatusAnalyzed)

	h.execs[ledger.TypeRender].set(nil)
	again := h.runStage(t, doc.ID, ledger.TypeRender)
	if again.Status != ledger.StatusCompleted {
		t.Fatalf("expected re-render to complete, got %s", again.Status)
	}
	done := h.waitDocument(t, doc.ID, store.StatusCompleted)
	if done.ErrorMessage != "" || done.ResumeStatus != "" {
		t.Fatalf("expected error fields cleared, got %+v", done)
	}
}

func TestWatchdogTimesOutStuckTask(t *testing.T) {
	h := newHarness(t, 2, workflow.WithTaskTimeout(50*time.Millisecond))
	cancelled := make(chan struct{})
	h.execs[ledger.TypeExtract].set(func(ctx context.Context, _ int, _ stage.Request, _ stage.ProgressFunc) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	h.start(t)
	doc := testsupport.NewDocument(t, h.store, "Paper")

	task := h.runStage(t, doc.ID, ledger.TypeExtract)
	if task.Status != ledger.StatusFailed || task.ErrorKind != string(services.KindTimeout) {
		t.Fatalf("expected Timeout failure, got %s/%s", task.Status, task.ErrorKind)
	}
	select {
	case <-cancelled:
	case <-time.After(waitTimeout):
		t.Fatal("executor context was not cancelled")
	}
	got := h.waitDocument(t, doc.ID, store.StatusError)
	if got.ResumeStatus != store.StatusUploaded {
		t.Fatalf("expected resume from uploaded, got %q", got.ResumeStatus)
	}
}

func TestProgressIsRecorded(t *testing.T) {
	h := newHarness(t, 2)
	g := newGate()
	h.execs[ledger.TypeExtract].set(func(ctx context.Context, _ int, _ stage.Request, progress stage.ProgressFunc) error {
		progress.Report(30)
		progress.Report(60)
		progress.Report(20)
		return g.wait(ctx)
	})
	h.start(t)
	defer g.release()
	doc := testsupport.NewDocument(t, h.store, "Paper")

	task, err := h.sched.RequestStage(context.Background(), doc.ID, ledger.TypeExtract, nil)
	if err != nil {
		t.Fatalf("RequestStage: %v", err)
	}
	if task.Status != ledger.StatusQueued {
		t.Fatalf("expected queued task from admission, got %s", task.Status)
	}
	waitFor(t, "progress 60", func() bool {
		got, err := h.ledger.Get(context.Background(), task.ID)
		return err == nil && got.Status == ledger.StatusProcessing && got.Progress == 60
	})
	status := h.sched.Status(context.Background())
	if len(status.Tasks) != 1 || status.Tasks[0].Progress != 60 {
		t.Fatalf("expected running task at 60%%, got %+v", status.Tasks)
	}

	g.release()
	final := h.waitTerminal(t, task.ID)
	if final.Progress != 100 {
		t.Fatalf("expected progress 100 after completion, got %d", final.Progress)
	}
}

func TestRestartRecoversInterruptedTasks(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()

	queuedDoc := testsupport.NewDocument(t, h.store, "Queued")
	testsupport.SetDocumentStatus(t, h.store, queuedDoc, store.StatusExtracting)
	queued, err := h.ledger.Create(ctx, ledger.TypeExtract, queuedDoc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	runningDoc := testsupport.NewDocument(t, h.store, "Running")
	testsupport.SetDocumentStatus(t, h.store, runningDoc, store.StatusAnalyzing)
	running, err := h.ledger.Create(ctx, ledger.TypeAnalyze, runningDoc.ID)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := h.ledger.Transition(ctx, running.ID, ledger.StatusProcessing, ledger.WithProgress(40)); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	h.start(t)

	for _, tc := range []struct {
		task   *ledger.Task
		doc    *store.Document
		resume store.DocumentStatus
	}{
		{queued, queuedDoc, store.StatusUploaded},
		{running, runningDoc, store.StatusExtracted},
	} {
		got, err := h.ledger.Get(ctx, tc.task.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != ledger.StatusFailed || got.ErrorKind != string(services.KindTimeout) {
			t.Fatalf("expected interrupted task to fail with Timeout, got %s/%s", got.Status, got.ErrorKind)
		}
		if !strings.Contains(got.ErrorMessage, "restart") {
			t.Fatalf("unexpected message %q", got.ErrorMessage)
		}
		doc, err := h.store.GetDocument(ctx, tc.doc.ID)
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if doc.Status != store.StatusError || doc.ResumeStatus != tc.resume {
			t.Fatalf("expected error resumable from %s, got %s/%s", tc.resume, doc.Status, doc.ResumeStatus)
		}
	}

	active, err := h.ledger.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive: %v", err)
	}
	if active != 0 {
		t.Fatalf("expected no active tasks after recovery, got %d", active)
	}
	if got := h.sched.Status(ctx).Active; got != 0 {
		t.Fatalf("recovery must not hold capacity, got %d", got)
	}
}

func TestStatusSummary(t *testing.T) {
	h := newHarness(t, 4)
	h.start(t)
	doc := testsupport.NewDocument(t, h.store, "Paper")
	testsupport.NewDocument(t, h.store, "Other")
	h.runStage(t, doc.ID, ledger.TypeExtract)

	summary := h.sched.Status(context.Background())
	if !summary.Running || summary.Capacity != 4 || summary.Active != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Documents[store.StatusUploaded] != 1 || summary.Documents[store.StatusExtracted] != 1 {
		t.Fatalf("unexpected document counts: %+v", summary.Documents)
	}
	if len(summary.StageHealth) != len(ledger.Types) {
		t.Fatalf("expected health for every stage, got %+v", summary.StageHealth)
	}
	for name, health := range summary.StageHealth {
		if !health.Ready {
			t.Fatalf("stage %s unexpectedly unhealthy: %+v", name, health)
		}
	}

	h.sched.Stop()
	if h.sched.Status(context.Background()).Running {
		t.Fatal("expected scheduler to report stopped")
	}
}
