package workflow

import (
	"context"
	"errors"
	"fmt"

	"slidewright/internal/logging"
	"slidewright/internal/store"
)

// DeleteDocument removes a document with its tasks, artifacts and files. A
// document with a stage in flight cannot be deleted.
func (s *Scheduler) DeleteDocument(ctx context.Context, documentID string) error {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc.Status.IsInProgress() {
		return fmt.Errorf("%w: document is %s", ErrAlreadyInProgress, doc.Status)
	}
	if err := s.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	s.logger.Info("document deleted",
		logging.String(logging.FieldDocumentID, documentID),
		logging.String(logging.FieldEventType, "document_deleted"),
	)
	return nil
}
