package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*SQLiteStore, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_soundz.sqlite3")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err, "Failed to create test store")
	t.Cleanup(func() { s.Close() })

	return s, dbPath
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		s, _ := setupTestDB(t)
		return s
	})
}

func TestNewSQLiteStore(t *testing.T) {
	s, dbPath := setupTestDB(t)

	require.NotNil(t, s.DB)
	require.NotNil(t, s.db)

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
}

func TestNewSQLiteStoreCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "custom.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	id := saveSong(t, s, "1")
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	song, err := s.LookupSong(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1", song.Track)
}

func TestSQLiteHashVersionMismatch(t *testing.T) {
	s, path := setupTestDB(t)

	require.NoError(t, s.DB.Model(&metaRow{}).Where("name = ?", metaHashKey).Update("value", "0").Error)
	require.NoError(t, s.Close())

	_, err := NewSQLiteStore(path)
	assert.ErrorIs(t, err, ErrHashVersionMismatch)
}

func TestSQLiteOpenViaConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.db")
	s, err := Open(context.Background(), Config{Backend: BackendSQLite, Path: path})
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &SQLiteStore{}, s)
}

func TestSQLiteCloseNil(t *testing.T) {
	var s *SQLiteStore
	assert.NoError(t, s.Close())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: songs.artist, songs.album, songs.track (2067)")))
	assert.False(t, isUniqueViolation(errors.New("constraint failed: NOT NULL constraint failed: songs.title (1299)")))
	assert.False(t, isUniqueViolation(errors.New("constraint failed: CHECK constraint failed: year (275)")))
}
