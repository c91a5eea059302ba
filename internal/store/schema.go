package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// recordsSchemaVersion is stamped into PRAGMA user_version. A database
// created by a different version is refused rather than migrated.
const recordsSchemaVersion = 1

// ErrSchemaMismatch reports a database written by an incompatible build.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var stamped int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&stamped); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	switch stamped {
	case recordsSchemaVersion:
		return nil
	case 0:
		return s.applySchema(ctx)
	default:
		return fmt.Errorf("%w: %s is at version %d, this build expects %d; remove it to start over",
			ErrSchemaMismatch, s.path, stamped, recordsSchemaVersion)
	}
}

// applySchema creates the tables and stamps the version in one transaction,
// so a crash halfway leaves user_version at zero and the next open retries.
func (s *Store) applySchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", recordsSchemaVersion)); err != nil {
		return fmt.Errorf("stamp user_version: %w", err)
	}
	return tx.Commit()
}
