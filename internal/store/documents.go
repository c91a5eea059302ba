package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"slidewright/internal/fileutil"
	"slidewright/internal/services"
)

// DocumentStatus is the aggregate processing status of a document.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusExtracting DocumentStatus = "extracting"
	StatusExtracted  DocumentStatus = "extracted"
	StatusAnalyzing  DocumentStatus = "analyzing"
	StatusAnalyzed   DocumentStatus = "analyzed"
	StatusRendering  DocumentStatus = "rendering"
	StatusCompleted  DocumentStatus = "completed"
	StatusError      DocumentStatus = "error"
)

// statusOrder is the position of each status along the pipeline.
var statusOrder = map[DocumentStatus]int{
	StatusUploaded:   0,
	StatusExtracting: 1,
	StatusExtracted:  2,
	StatusAnalyzing:  3,
	StatusAnalyzed:   4,
	StatusRendering:  5,
	StatusCompleted:  6,
}

// ErrInvalidDocumentTransition is returned for status changes outside the pipeline order.
var ErrInvalidDocumentTransition = errors.New("invalid document status transition")

// SourceFileName is the name under which uploaded bytes are stored.
const SourceFileName = "source.pdf"

// IsInProgress reports whether the status marks a running stage.
func (s DocumentStatus) IsInProgress() bool {
	switch s {
	case StatusExtracting, StatusAnalyzing, StatusRendering:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s DocumentStatus) Valid() bool {
	_, ok := statusOrder[s]
	return ok || s == StatusError
}

// ValidateDocumentTransition enforces the pipeline order. A status may only
// advance one step, any in-progress status may fall into error, and error may
// only be left by starting a stage again.
func ValidateDocumentTransition(from, to DocumentStatus) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidDocumentTransition, from, to)
	}
	switch {
	case to == StatusError:
		if from.IsInProgress() {
			return nil
		}
	case from == StatusError:
		if to.IsInProgress() {
			return nil
		}
	default:
		if statusOrder[to] == statusOrder[from]+1 {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidDocumentTransition, from, to)
}

// Metadata holds descriptive PDF properties discovered during extraction.
type Metadata struct {
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Keywords  string `json:"keywords,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
}

// Document is one uploaded paper.
type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	Title        string         `json:"title"`
	SourcePath   string         `json:"source_path"`
	Status       DocumentStatus `json:"processing_status"`
	ResumeStatus DocumentStatus `json:"resume_status,omitempty"`
	Metadata     Metadata       `json:"metadata"`
	ExtractionID string         `json:"extraction_id,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// EffectiveStatus is the status stage preconditions are evaluated against:
// a failed document behaves as if it were back at its resume point.
func (d *Document) EffectiveStatus() DocumentStatus {
	if d.Status == StatusError && d.ResumeStatus != "" {
		return d.ResumeStatus
	}
	return d.Status
}

// CreateDocument stores the uploaded bytes and inserts a document in the
// uploaded state.
func (s *Store) CreateDocument(ctx context.Context, filename, title string, src io.Reader) (*Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, services.Wrap(services.ErrUnsupportedFormat, "intake", "validate", fmt.Sprintf("%q is not a .pdf file", filename), nil)
	}
	if src == nil {
		return nil, services.Wrap(services.ErrValidation, "intake", "validate", "document body is required", nil)
	}

	id := uuid.NewString()
	dir := s.DocumentDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	sourcePath := filepath.Join(dir, SourceFileName)
	if err := writeSource(sourcePath, src); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	now := time.Now().UTC()
	doc := &Document{
		ID:         id,
		Filename:   filename,
		Title:      title,
		SourcePath: sourcePath,
		Status:     StatusUploaded,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.putDocument(ctx, doc); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return doc, nil
}

func writeSource(path string, src io.Reader) error {
	_, err := fileutil.WriteAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	})
	if err != nil {
		return fmt.Errorf("write source file: %w", err)
	}
	return nil
}

// SaveDocument persists changes to an existing document.
func (s *Store) SaveDocument(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	doc.UpdatedAt = time.Now().UTC()
	return s.putDocument(ctx, doc)
}

func (s *Store) putDocument(ctx context.Context, doc *Document) error {
	data, err := encode(doc)
	if err != nil {
		return err
	}
	return s.Put(ctx, Record{
		Kind:       KindDocument,
		ID:         doc.ID,
		DocumentID: doc.ID,
		Status:     string(doc.Status),
		Data:       data,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	})
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	rec, err := s.Get(ctx, KindDocument, id)
	if err != nil {
		return nil, err
	}
	return decodeDocument(rec)
}

// ListDocuments returns documents, newest first, optionally restricted to statuses.
func (s *Store) ListDocuments(ctx context.Context, statuses ...DocumentStatus) ([]*Document, error) {
	filter := Filter{Newest: true}
	for _, status := range statuses {
		filter.Statuses = append(filter.Statuses, string(status))
	}
	records, err := s.List(ctx, KindDocument, filter)
	if err != nil {
		return nil, err
	}
	docs := make([]*Document, 0, len(records))
	for _, rec := range records {
		doc, err := decodeDocument(rec)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DocumentStats counts documents per status.
func (s *Store) DocumentStats(ctx context.Context) (map[DocumentStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT status, COUNT(1) FROM records WHERE kind = ? GROUP BY status`, string(KindDocument))
	if err != nil {
		return nil, fmt.Errorf("document stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[DocumentStatus]int)
	for rows.Next() {
		var status DocumentStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func decodeDocument(rec Record) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(rec.Data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", rec.ID, err)
	}
	return &doc, nil
}
