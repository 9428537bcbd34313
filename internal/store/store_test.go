package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_CreatesSchema(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"projects", "meta"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	var idxCount int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name LIKE 'idx_%'").Scan(&idxCount)
	require.NoError(t, err)
	assert.Greater(t, idxCount, 0)

	version, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, "2", version)
}

func TestNew_VersionColumn(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO projects (id, name, created_at, updated_at) VALUES ('p1', 'Acme', 1, 1)`)
	require.NoError(t, err)

	var version int64
	var metadata string
	err = s.db.QueryRow(`SELECT version, metadata FROM projects WHERE id = 'p1'`).Scan(&version, &metadata)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, "{}", metadata)
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	s1, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	version, err := s2.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, "2", version)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))

	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}

func TestClose_Twice(t *testing.T) {
	s, err := New(":memory:", zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
