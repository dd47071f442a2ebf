package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the Store contract against a fresh backend per subtest.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndLookupSong", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id, err := s.SaveSong(ctx, models.Song{Artist: "Artist", Album: "Album", Title: "Title", Track: "1", Year: 2001, SampleRate: 11025, Duration: 3.5})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		song, err := s.LookupSong(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, song.ID)
		assert.Equal(t, "Artist", song.Artist)
		assert.Equal(t, "Album", song.Album)
		assert.Equal(t, "Title", song.Title)
		assert.Equal(t, "1", song.Track)
		assert.Equal(t, 2001, song.Year)
		assert.Equal(t, 11025, song.SampleRate)
		assert.InDelta(t, 3.5, song.Duration, 1e-9)
	})

	t.Run("LookupMissingSong", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LookupSong(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DuplicateSong", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		song := models.Song{Artist: "A", Album: "B", Title: "T", Track: "1"}
		_, err := s.SaveSong(ctx, song)
		require.NoError(t, err)

		_, err = s.SaveSong(ctx, song)
		assert.ErrorIs(t, err, ErrDuplicateSong)

		song.Track = "2"
		_, err = s.SaveSong(ctx, song)
		assert.NoError(t, err, "a different track is a different song")
	})

	t.Run("SongExists", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.SongExists(ctx, "A", "B", "1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.SaveSong(ctx, models.Song{Artist: "A", Album: "B", Title: "T", Track: "1"})
		require.NoError(t, err)

		ok, err = s.SongExists(ctx, "A", "B", "1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SongExists(ctx, "A", "B", "2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("SaveAndLookupFingerprints", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id := saveSong(t, s, "1")
		fps := []models.Fingerprint{
			{Hash: 10, AnchorTime: 0},
			{Hash: 10, AnchorTime: 7},
			{Hash: 20, AnchorTime: 3},
		}
		require.NoError(t, s.SaveFingerprints(ctx, id, fps))

		recs, err := s.LookupFingerprints(ctx, []models.Hash{10, 30})
		require.NoError(t, err)
		assert.ElementsMatch(t, []models.FingerprintRecord{
			{Hash: 10, Time: 0, SongID: id},
			{Hash: 10, Time: 7, SongID: id},
		}, recs)

		n, err := s.FingerprintCount(ctx, id)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})

	t.Run("LookupEmptyHashes", func(t *testing.T) {
		s := newStore(t)
		recs, err := s.LookupFingerprints(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("SaveFingerprintsIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id := saveSong(t, s, "1")
		fps := []models.Fingerprint{{Hash: 5, AnchorTime: 1}, {Hash: 6, AnchorTime: 2}}
		require.NoError(t, s.SaveFingerprints(ctx, id, fps))
		require.NoError(t, s.SaveFingerprints(ctx, id, fps))

		recs, err := s.LookupFingerprints(ctx, []models.Hash{5, 6})
		require.NoError(t, err)
		assert.Len(t, recs, 2)

		n, err := s.FingerprintCount(ctx, id)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})

	t.Run("SaveFingerprintsUnknownSong", func(t *testing.T) {
		s := newStore(t)
		err := s.SaveFingerprints(context.Background(), "missing", []models.Fingerprint{{Hash: 1}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("SameHashAcrossSongs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := saveSong(t, s, "1")
		b := saveSong(t, s, "2")
		require.NoError(t, s.SaveFingerprints(ctx, a, []models.Fingerprint{{Hash: 42, AnchorTime: 4}}))
		require.NoError(t, s.SaveFingerprints(ctx, b, []models.Fingerprint{{Hash: 42, AnchorTime: 4}}))

		recs, err := s.LookupFingerprints(ctx, []models.Hash{42})
		require.NoError(t, err)
		assert.ElementsMatch(t, []models.FingerprintRecord{
			{Hash: 42, Time: 4, SongID: a},
			{Hash: 42, Time: 4, SongID: b},
		}, recs)
	})

	t.Run("ManyHashes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id := saveSong(t, s, "1")
		fps := make([]models.Fingerprint, 1200)
		hashes := make([]models.Hash, len(fps))
		for i := range fps {
			fps[i] = models.Fingerprint{Hash: models.Hash(i + 1), AnchorTime: i}
			hashes[i] = models.Hash(i + 1)
		}
		require.NoError(t, s.SaveFingerprints(ctx, id, fps))

		recs, err := s.LookupFingerprints(ctx, hashes)
		require.NoError(t, err)
		assert.Len(t, recs, len(fps))
	})

	t.Run("ListSongs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, tr := range []string{"3", "1", "2"} {
			saveSong(t, s, tr)
		}
		songs, err := s.ListSongs(ctx)
		require.NoError(t, err)
		require.Len(t, songs, 3)
		assert.Equal(t, "1", songs[0].Track)
		assert.Equal(t, "2", songs[1].Track)
		assert.Equal(t, "3", songs[2].Track)
	})

	t.Run("DeleteSong", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id := saveSong(t, s, "1")
		keep := saveSong(t, s, "2")
		require.NoError(t, s.SaveFingerprints(ctx, id, []models.Fingerprint{{Hash: 9, AnchorTime: 1}}))
		require.NoError(t, s.SaveFingerprints(ctx, keep, []models.Fingerprint{{Hash: 9, AnchorTime: 2}}))

		require.NoError(t, s.DeleteSong(ctx, id))

		_, err := s.LookupSong(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)

		recs, err := s.LookupFingerprints(ctx, []models.Hash{9})
		require.NoError(t, err)
		assert.Equal(t, []models.FingerprintRecord{{Hash: 9, Time: 2, SongID: keep}}, recs)

		ok, err := s.SongExists(ctx, "Artist", "Album", "1")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, s.DeleteSong(ctx, id), ErrNotFound)
	})

	t.Run("Stats", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{}, st)

		id := saveSong(t, s, "1")
		saveSong(t, s, "2")
		require.NoError(t, s.SaveFingerprints(ctx, id, []models.Fingerprint{{Hash: 1}, {Hash: 2}, {Hash: 3}}))

		st, err = s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Songs: 2, Fingerprints: 3}, st)
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const writers = 4
		ids := make([]string, writers)
		for i := range ids {
			ids[i] = saveSong(t, s, string(rune('a'+i)))
		}

		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i, id := range ids {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				fps := make([]models.Fingerprint, 200)
				for j := range fps {
					fps[j] = models.Fingerprint{Hash: models.Hash(j), AnchorTime: i}
				}
				errs <- s.SaveFingerprints(ctx, id, fps)
			}(i, id)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		recs, err := s.LookupFingerprints(ctx, []models.Hash{0, 199})
		require.NoError(t, err)
		assert.Len(t, recs, 2*writers)
	})
}

func saveSong(t *testing.T, s Store, track string) string {
	t.Helper()
	id, err := s.SaveSong(context.Background(), models.Song{Artist: "Artist", Album: "Album", Title: "Song " + track, Track: track})
	require.NoError(t, err)
	return id
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "cassandra"})
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestOpenMongoRequiresURI(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: BackendMongo})
	assert.Error(t, err)
}

func TestSongKeySeparatesFields(t *testing.T) {
	assert.NotEqual(t, songKey("ab", "c", ""), songKey("a", "bc", ""))
}
