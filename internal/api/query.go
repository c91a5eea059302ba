package api

import (
	"context"
	"errors"
	"fmt"

	"slidewright/internal/ledger"
	"slidewright/internal/store"
)

// DocumentReader abstracts the document lookups needed for queries.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	ListDocuments(ctx context.Context, statuses ...store.DocumentStatus) ([]*store.Document, error)
}

// TaskReader abstracts the ledger lookups needed for queries.
type TaskReader interface {
	Get(ctx context.Context, id string) (*ledger.Task, error)
	ListForDocument(ctx context.Context, documentID string) ([]*ledger.Task, error)
	LatestResult(ctx context.Context, documentID string, kind store.ArtifactKind) (*store.Artifact, error)
}

// QueryService exposes read-only task, document and result lookups.
type QueryService struct {
	docs  DocumentReader
	tasks TaskReader
}

// NewQueryService constructs a QueryService around the provided readers.
func NewQueryService(docs DocumentReader, tasks TaskReader) *QueryService {
	return &QueryService{docs: docs, tasks: tasks}
}

// GetTaskStatus returns the current state of a task.
func (s *QueryService) GetTaskStatus(ctx context.Context, taskID string) (*Task, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, notFound(err, "task", taskID)
	}
	view := FromTask(task)
	return &view, nil
}

// GetDocumentStatus returns a document with its aggregate processing status.
func (s *QueryService) GetDocumentStatus(ctx context.Context, documentID string) (*Document, error) {
	doc, err := s.docs.GetDocument(ctx, documentID)
	if err != nil {
		return nil, notFound(err, "document", documentID)
	}
	view := FromDocument(doc)
	return &view, nil
}

// GetResult returns the newest completed artifact of kind for a document.
// ErrNotFound is expected while the producing stage has not completed.
func (s *QueryService) GetResult(ctx context.Context, documentID string, kind store.ArtifactKind) (*Artifact, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return nil, notFound(err, "document", documentID)
	}
	artifact, err := s.tasks.LatestResult(ctx, documentID, kind)
	if err != nil {
		return nil, notFound(err, string(kind)+" result for document", documentID)
	}
	view := FromArtifact(artifact)
	return &view, nil
}

// ListDocuments returns documents newest first, optionally filtered by status.
func (s *QueryService) ListDocuments(ctx context.Context, statuses ...store.DocumentStatus) ([]Document, error) {
	docs, err := s.docs.ListDocuments(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromDocuments(docs), nil
}

// ListTasks returns a document's tasks, newest first.
func (s *QueryService) ListTasks(ctx context.Context, documentID string) ([]Task, error) {
	if _, err := s.docs.GetDocument(ctx, documentID); err != nil {
		return nil, notFound(err, "document", documentID)
	}
	tasks, err := s.tasks.ListForDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, what, id)
	}
	return err
}
