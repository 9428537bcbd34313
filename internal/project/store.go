// Package project stores the project records whose metadata carries the
// accumulated context of each project.
package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/contextd/internal/errors"
	"github.com/p-blackswan/contextd/internal/store"
)

// Store handles project-related SQLite operations.
type Store struct {
	ds     *store.Store
	logger zerolog.Logger
}

var _ Repository = (*Store)(nil)

// NewStore creates a new project store.
func NewStore(ds *store.Store, logger zerolog.Logger) *Store {
	return &Store{
		ds:     ds,
		logger: logger.With().Str("component", "project.store").Logger(),
	}
}

// Create inserts a new project record.
func (s *Store) Create(ctx context.Context, input CreateInput) (*Record, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, perrors.InvalidInput("project name is required")
	}
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	md := input.Metadata.Clone()
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, perrors.InvalidInput("metadata is not JSON-encodable: %v", err)
	}

	now := time.Now().UnixMilli()
	_, err = s.ds.DB().ExecContext(ctx,
		`INSERT INTO projects (id, name, metadata, version, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
		id, name, string(raw), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, perrors.InvalidInput("project %q already exists", id)
		}
		return nil, perrors.Unavailable("create", id, err)
	}

	s.logger.Debug().Str("project_id", id).Msg("project created")
	return &Record{ID: id, Name: name, Metadata: md, Version: 1, CreatedAt: now, UpdatedAt: now}, nil
}

// projectColumns is the standard column list for project queries.
const projectColumns = `id, name, metadata, version, created_at, updated_at`

// Get retrieves a project by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.ds.DB().QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, perrors.ErrNotFound)
	}
	if err != nil {
		return nil, perrors.Unavailable("get", id, err)
	}
	return r, nil
}

// List returns the most recently updated projects.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.ds.DB().QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, perrors.Unavailable("list", "", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, perrors.Unavailable("list", "", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, perrors.Unavailable("list", "", err)
	}
	return records, nil
}

// UpdateMetadata replaces the metadata of a project if it is still at version.
func (s *Store) UpdateMetadata(ctx context.Context, id string, metadata Metadata, version int64) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return perrors.InvalidInput("metadata is not JSON-encodable: %v", err)
	}

	now := time.Now().UnixMilli()
	result, err := s.ds.DB().ExecContext(ctx,
		`UPDATE projects SET metadata = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		string(raw), now, id, version,
	)
	if err != nil {
		return perrors.Unavailable("update", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return perrors.Unavailable("update", id, err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.ds.DB().QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("project %s: %w", id, perrors.ErrNotFound)
	}
	if err != nil {
		return perrors.Unavailable("update", id, err)
	}
	s.logger.Debug().Str("project_id", id).Int64("version", version).Msg("stale metadata write rejected")
	return fmt.Errorf("project %s at version %d: %w", id, version, perrors.ErrConflict)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	r := &Record{}
	var raw sql.NullString
	if err := row.Scan(&r.ID, &r.Name, &raw, &r.Version, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Metadata = Metadata{}
	if raw.Valid && raw.String != "" {
		md, err := DecodeMetadata([]byte(raw.String))
		if err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", r.ID, err)
		}
		r.Metadata = md
	}
	return r, nil
}
