package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mongo tests need a running server; set SOUNDZ_TEST_MONGO_URI to enable them.
func newTestMongo(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("SOUNDZ_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("SOUNDZ_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := "soundz_test_" + uuid.NewString()[:8]
	s, err := NewMongoStore(ctx, uri, name)
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})
	return s
}

func TestMongoStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return newTestMongo(t)
	})
}

func TestMongoRetryAfterPartialBatch(t *testing.T) {
	s := newTestMongo(t)
	ctx := context.Background()

	id := saveSong(t, s, "1")
	fps := []models.Fingerprint{{Hash: 5, AnchorTime: 0}, {Hash: 6, AnchorTime: 1}, {Hash: 7, AnchorTime: 2}}

	// first attempt inserted part of its rows and never wrote its batch
	_, err := s.db.Collection(collFingerprints).InsertMany(ctx, []interface{}{
		fingerprintDoc{Hash: 5, Time: 0, SongID: id, Batch: "lost"},
		fingerprintDoc{Hash: 6, Time: 1, SongID: id, Batch: "lost"},
	})
	require.NoError(t, err)

	recs, err := s.LookupFingerprints(ctx, []models.Hash{5, 6, 7})
	require.NoError(t, err)
	assert.Empty(t, recs)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Fingerprints)

	require.NoError(t, s.SaveFingerprints(ctx, id, fps))

	recs, err = s.LookupFingerprints(ctx, []models.Hash{5, 6, 7})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	n, err := s.FingerprintCount(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
