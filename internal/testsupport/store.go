package testsupport

import (
	"bytes"
	"context"
	"testing"

	"slidewright/internal/config"
	"slidewright/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewDocument uploads a placeholder PDF and returns the new document.
func NewDocument(t testing.TB, st *store.Store, title string) *store.Document {
	t.Helper()

	doc, err := st.CreateDocument(context.Background(), "paper.pdf", title, bytes.NewReader(MinimalPDF()))
	if err != nil {
		t.Fatalf("store.CreateDocument: %v", err)
	}
	return doc
}

// SetDocumentStatus forces a document into status, bypassing transition checks.
func SetDocumentStatus(t testing.TB, st *store.Store, doc *store.Document, status store.DocumentStatus) {
	t.Helper()

	doc.Status = status
	if err := st.SaveDocument(context.Background(), doc); err != nil {
		t.Fatalf("store.SaveDocument: %v", err)
	}
}
