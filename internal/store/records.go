package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Kind names a family of records in the store.
type Kind string

const (
	KindDocument Kind = "document"
	KindTask     Kind = "task"
	KindArtifact Kind = "artifact"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// timeLayout is fixed width so that lexical ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one row of the store. Data carries the JSON encoding of the typed
// value; the remaining columns are projections used for filtering.
type Record struct {
	Kind       Kind
	ID         string
	DocumentID string
	Type       string
	Status     string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	DocumentID string
	Type       string
	Statuses   []string
	Limit      int
	Newest     bool
}

const recordColumns = "kind, id, document_id, record_type, status, data, created_at, updated_at"

// Put inserts or replaces a record. Each call is atomic on its own.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.Kind == "" || rec.ID == "" {
		return errors.New("put record: kind and id are required")
	}
	if len(rec.Data) == 0 {
		rec.Data = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	query, args, err := s.builder.Insert("records").
		Columns("kind", "id", "document_id", "record_type", "status", "data", "created_at", "updated_at").
		Values(
			string(rec.Kind),
			rec.ID,
			nullableString(rec.DocumentID),
			nullableString(rec.Type),
			nullableString(rec.Status),
			string(rec.Data),
			formatTime(rec.CreatedAt),
			formatTime(rec.UpdatedAt),
		).
		Suffix(`ON CONFLICT (kind, id) DO UPDATE SET
            document_id = excluded.document_id,
            record_type = excluded.record_type,
            status = excluded.status,
            data = excluded.data,
            updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build put: %w", err)
	}
	if err := s.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("put %s %s: %w", rec.Kind, rec.ID, err)
	}
	return nil
}

// Get fetches a single record. It returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	ctx = ensureContext(ctx)
	query, args, err := s.builder.Select(recordColumns).
		From("records").
		Where(sq.Eq{"kind": string(kind), "id": id}).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("build get: %w", err)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return rec, nil
}

// List returns records of kind matching filter ordered by creation time,
// oldest first unless filter.Newest is set.
func (s *Store) List(ctx context.Context, kind Kind, filter Filter) ([]Record, error) {
	ctx = ensureContext(ctx)
	order := "created_at ASC, rowid ASC"
	if filter.Newest {
		order = "created_at DESC, rowid DESC"
	}
	query := s.builder.Select(recordColumns).
		From("records").
		Where(applyFilter(sq.Eq{"kind": string(kind)}, filter)).
		OrderBy(order)
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	text, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of records of kind matching filter.
func (s *Store) Count(ctx context.Context, kind Kind, filter Filter) (int, error) {
	ctx = ensureContext(ctx)
	text, args, err := s.builder.Select("COUNT(1)").
		From("records").
		Where(applyFilter(sq.Eq{"kind": string(kind)}, filter)).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, text, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return count, nil
}

// DeleteDocument removes a document together with every task and artifact
// that references it, then removes its source and rendered files.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)
	if _, err := s.Get(ctx, KindDocument, id); err != nil {
		return err
	}

	query, args, err := s.builder.Delete("records").
		Where(sq.Or{
			sq.Eq{"document_id": id},
			sq.Eq{"kind": string(KindDocument), "id": id},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	err = withBusyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}

	for _, dir := range []string{s.DocumentDir(id), filepath.Join(s.outputDir, id)} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove %s: %w", dir, err)
		}
	}
	return nil
}

// DocumentDir returns the directory that holds a document's source bytes.
func (s *Store) DocumentDir(id string) string {
	return filepath.Join(s.docsDir, id)
}

// OutputDir returns the root directory for rendered decks.
func (s *Store) OutputDir() string {
	return s.outputDir
}

func applyFilter(where sq.Eq, filter Filter) sq.Eq {
	if filter.DocumentID != "" {
		where["document_id"] = filter.DocumentID
	}
	if filter.Type != "" {
		where["record_type"] = filter.Type
	}
	if len(filter.Statuses) > 0 {
		where["status"] = filter.Statuses
	}
	return where
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		kind       string
		id         string
		documentID sql.NullString
		recordType sql.NullString
		status     sql.NullString
		data       string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&kind, &id, &documentID, &recordType, &status, &data, &createdRaw, &updatedRaw); err != nil {
		return Record{}, err
	}
	rec := Record{
		Kind:       Kind(kind),
		ID:         id,
		DocumentID: documentID.String,
		Type:       recordType.String,
		Status:     status.String,
		Data:       json.RawMessage(data),
	}
	if created, err := parseTime(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTime(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(timeLayout, value)
}

// encode marshals value into a record payload.
func encode(value any) (json.RawMessage, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}
