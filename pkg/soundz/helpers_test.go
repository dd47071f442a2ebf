package soundz

import (
	"context"
	"testing"

	"github.com/himanishpuri/soundz/internal/storage"
	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewInMemoryBadgerStore()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// faultyStore injects errors into an otherwise working store.
type faultyStore struct {
	storage.Store
	existsErr error
	saveErr   error
	lookupErr error
}

func (f *faultyStore) SongExists(ctx context.Context, artist, album, track string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.Store.SongExists(ctx, artist, album, track)
}

func (f *faultyStore) SaveFingerprints(ctx context.Context, songID string, fps []models.Fingerprint) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Store.SaveFingerprints(ctx, songID, fps)
}

func (f *faultyStore) LookupFingerprints(ctx context.Context, hashes []models.Hash) ([]models.FingerprintRecord, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return f.Store.LookupFingerprints(ctx, hashes)
}
