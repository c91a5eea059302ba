package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidewright/internal/store"
)

// Type names the stage a task runs.
type Type string

const (
	TypeExtract Type = "extract"
	TypeAnalyze Type = "analyze"
	TypeRender  Type = "render"
)

// Types lists the stages in pipeline order.
var Types = []Type{TypeExtract, TypeAnalyze, TypeRender}

// ParseType validates a stage name supplied by a caller.
func ParseType(value string) (Type, error) {
	for _, t := range Types {
		if string(t) == value {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", value)
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var activeStatuses = []string{string(StatusQueued), string(StatusProcessing)}

var (
	// ErrInvalidTransition is returned when a status change breaks the task lifecycle.
	ErrInvalidTransition = errors.New("invalid task transition")
	// ErrNotFound is returned when a task does not exist.
	ErrNotFound = errors.New("task not found")
)

// Task is one tracked execution of a stage for a document.
type Task struct {
	ID           string     `json:"id"`
	Type         Type       `json:"task_type"`
	DocumentID   string     `json:"document_id"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	ResultID     string     `json:"result_id,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Attempts     int        `json:"attempts,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Ledger records tasks in the store. Read-modify-write sequences are
// serialized so that concurrent transitions on one task cannot interleave.
type Ledger struct {
	store *store.Store
	mu    sync.Mutex
	now   func() time.Time
}

// New constructs a ledger over st.
func New(st *store.Store) *Ledger {
	return &Ledger{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// Create records a queued task for documentID.
func (l *Ledger) Create(ctx context.Context, taskType Type, documentID string) (*Task, error) {
	if documentID == "" {
		return nil, errors.New("create task: document id is required")
	}
	if _, err := ParseType(string(taskType)); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	now := l.now()
	task := &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		DocumentID: documentID,
		Status:     StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.put(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// TransitionOption customizes a transition.
type TransitionOption func(*transition)

type transition struct {
	progress    *int
	resultID    string
	errorKind   string
	errorMsg    string
	attempts    int
	hasAttempts bool
}

// WithProgress sets the progress percentage, clamped to 0..100.
func WithProgress(p int) TransitionOption {
	return func(t *transition) { t.progress = &p }
}

// WithResult attaches the produced artifact id. Required for completed.
func WithResult(id string) TransitionOption {
	return func(t *transition) { t.resultID = id }
}

// WithFailure records the failure kind and message. Used with failed.
func WithFailure(kind, message string) TransitionOption {
	return func(t *transition) {
		t.errorKind = kind
		t.errorMsg = message
	}
}

// WithAttempts records how many executor attempts were made.
func WithAttempts(n int) TransitionOption {
	return func(t *transition) {
		t.attempts = n
		t.hasAttempts = true
	}
}

// Transition moves a task to status. Allowed moves are queued→processing,
// processing→processing (progress updates), processing→completed with a
// result id, and processing→failed. Terminal tasks never change.
func (l *Ledger) Transition(ctx context.Context, id string, status Status, opts ...TransitionOption) (*Task, error) {
	var tr transition
	for _, opt := range opts {
		opt(&tr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	task, err := l.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(task.Status, status); err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	if status == StatusCompleted && tr.resultID == "" {
		return nil, fmt.Errorf("task %s: %w: completed requires a result id", id, ErrInvalidTransition)
	}

	now := l.now()
	task.Status = status
	task.UpdatedAt = now
	if tr.progress != nil {
		task.Progress = clampProgress(*tr.progress)
	}
	if tr.hasAttempts {
		task.Attempts = tr.attempts
	}
	switch status {
	case StatusCompleted:
		task.ResultID = tr.resultID
		task.Progress = 100
		task.CompletedAt = &now
	case StatusFailed:
		task.ErrorKind = tr.errorKind
		task.ErrorMessage = tr.errorMsg
		task.CompletedAt = &now
	}

	if err := l.put(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func validateTransition(from, to Status) error {
	if from.IsTerminal() {
		return fmt.Errorf("%w: task already %s", ErrInvalidTransition, from)
	}
	switch {
	case from == StatusQueued && to == StatusProcessing:
		return nil
	case from == StatusProcessing && (to == StatusProcessing || to == StatusCompleted || to == StatusFailed):
		return nil
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// Get returns a task or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (*Task, error) {
	return l.get(ctx, id)
}

// FindActive returns the queued or processing task for (documentID, taskType),
// or nil when there is none.
func (l *Ledger) FindActive(ctx context.Context, documentID string, taskType Type) (*Task, error) {
	tasks, err := l.list(ctx, store.Filter{DocumentID: documentID, Type: string(taskType), Statuses: activeStatuses, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return tasks[0], nil
}

// ListActive returns every non-terminal task, oldest first.
func (l *Ledger) ListActive(ctx context.Context) ([]*Task, error) {
	return l.list(ctx, store.Filter{Statuses: activeStatuses})
}

// CountActive returns the number of non-terminal tasks.
func (l *Ledger) CountActive(ctx context.Context) (int, error) {
	return l.store.Count(ctx, store.KindTask, store.Filter{Statuses: activeStatuses})
}

// ListForDocument returns a document's tasks, newest first.
func (l *Ledger) ListForDocument(ctx context.Context, documentID string) ([]*Task, error) {
	return l.list(ctx, store.Filter{DocumentID: documentID, Newest: true})
}

// List returns the most recent tasks across all documents, optionally
// restricted to statuses.
func (l *Ledger) List(ctx context.Context, limit int, statuses ...Status) ([]*Task, error) {
	filter := store.Filter{Newest: true, Limit: limit}
	for _, s := range statuses {
		filter.Statuses = append(filter.Statuses, string(s))
	}
	return l.list(ctx, filter)
}

func (l *Ledger) get(ctx context.Context, id string) (*Task, error) {
	rec, err := l.store.Get(ctx, store.KindTask, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeTask(rec)
}

func (l *Ledger) list(ctx context.Context, filter store.Filter) ([]*Task, error) {
	records, err := l.store.List(ctx, store.KindTask, filter)
	if err != nil {
		return nil, err
	}
	tasks := make([]*Task, 0, len(records))
	for _, rec := range records {
		task, err := decodeTask(rec)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (l *Ledger) put(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	return l.store.Put(ctx, store.Record{
		Kind:       store.KindTask,
		ID:         task.ID,
		DocumentID: task.DocumentID,
		Type:       string(task.Type),
		Status:     string(task.Status),
		Data:       data,
		CreatedAt:  task.CreatedAt,
		UpdatedAt:  task.UpdatedAt,
	})
}

func decodeTask(rec store.Record) (*Task, error) {
	var task Task
	if err := json.Unmarshal(rec.Data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", rec.ID, err)
	}
	return &task, nil
}

// LatestResult returns the newest artifact of kind for documentID whose
// producing task has completed and names it as its result. Artifacts from
// tasks that failed or are still running are skipped. It returns
// store.ErrNotFound when no such artifact exists yet.
func (l *Ledger) LatestResult(ctx context.Context, documentID string, kind store.ArtifactKind) (*store.Artifact, error) {
	artifacts, err := l.store.ListArtifacts(ctx, documentID, kind)
	if err != nil {
		return nil, err
	}
	for _, artifact := range artifacts {
		task, err := l.get(ctx, artifact.TaskID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if task.Status == StatusCompleted && task.ResultID == artifact.ID {
			return artifact, nil
		}
	}
	return nil, fmt.Errorf("%s result for document %s: %w", kind, documentID, store.ErrNotFound)
}
