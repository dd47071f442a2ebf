package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/himanishpuri/soundz/pkg/models"
)

// Key layout:
//
//	song/<id>                          JSON song
//	songkey/<artist>\0<album>\0<track> song id
//	fp/<hash:4><time:4><song id>       batch id
//	songfp/<song id>/<hash:4><time:4>  empty
//	batch/<song id>/<batch id>         empty, written once the batch is complete
//	meta/hash_version                  decimal version
//
// Fingerprints are written with a WriteBatch, which is not transactional, and
// only become visible once their batch marker is committed.
var (
	prefixSong    = []byte("song/")
	prefixSongKey = []byte("songkey/")
	prefixFP      = []byte("fp/")
	prefixSongFP  = []byte("songfp/")
	prefixBatch   = []byte("batch/")
	keyHashMeta   = []byte("meta/hash_version")
)

const badgerUpdateRetries = 3

type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(dir).WithLogger(nil))
}

// NewInMemoryBadgerStore keeps everything in memory; used by tests and
// throwaway runs.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	s := &BadgerStore{db: db}
	if err := s.checkHashVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BadgerStore) checkHashVersion() error {
	want := strconv.Itoa(models.HashVersion)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHashMeta)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set(keyHashMeta, []byte(want))
		}
		if err != nil {
			return err
		}
		stored, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if string(stored) != want {
			return fmt.Errorf("%w: found %s, expected %s", ErrHashVersionMismatch, stored, want)
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil || s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) SaveSong(ctx context.Context, song models.Song) (string, error) {
	song.ID = uuid.NewString()
	song.CreatedAt = time.Now().UTC()
	data, err := json.Marshal(song)
	if err != nil {
		return "", fmt.Errorf("encoding song: %w", err)
	}
	uniq := append(append([]byte{}, prefixSongKey...), songKey(song.Artist, song.Album, song.Track)...)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(uniq)
			if err == nil {
				return ErrDuplicateSong
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(uniq, []byte(song.ID)); err != nil {
				return err
			}
			return txn.Set(songDataKey(song.ID), data)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < badgerUpdateRetries {
			continue
		}
		break
	}
	if errors.Is(err, ErrDuplicateSong) {
		return "", ErrDuplicateSong
	}
	if err != nil {
		return "", fmt.Errorf("creating song: %w", err)
	}
	return song.ID, nil
}

func (s *BadgerStore) SongExists(ctx context.Context, artist, album, track string) (bool, error) {
	uniq := append(append([]byte{}, prefixSongKey...), songKey(artist, album, track)...)
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(uniq)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking song: %w", err)
	}
	return exists, nil
}

func (s *BadgerStore) SaveFingerprints(ctx context.Context, songID string, fps []models.Fingerprint) error {
	if _, err := s.LookupSong(ctx, songID); err != nil {
		return err
	}
	if len(fps) == 0 {
		return nil
	}

	pending, err := s.pendingFingerprints(ctx, songID, fps)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	batchID := uuid.NewString()
	if err := s.writeFingerprints(ctx, songID, batchID, pending); err != nil {
		return err
	}
	return s.commitBatch(songID, batchID)
}

// pendingFingerprints drops the records that are already visible, so a new
// batch never relabels rows of a committed one.
func (s *BadgerStore) pendingFingerprints(ctx context.Context, songID string, fps []models.Fingerprint) ([]models.Fingerprint, error) {
	var pending []models.Fingerprint
	err := s.db.View(func(txn *badger.Txn) error {
		vis := newVisibility(txn)
		for i, fp := range fps {
			if i%4096 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			item, err := txn.Get(fpKey(fp.Hash, fp.AnchorTime, songID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				pending = append(pending, fp)
				continue
			}
			if err != nil {
				return err
			}
			batchID, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			ok, err := vis.committed(songID, string(batchID))
			if err != nil {
				return err
			}
			if !ok {
				pending = append(pending, fp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("checking stored fingerprints: %w", err)
	}
	return pending, nil
}

func (s *BadgerStore) writeFingerprints(ctx context.Context, songID, batchID string, fps []models.Fingerprint) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i, fp := range fps {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := wb.Set(fpKey(fp.Hash, fp.AnchorTime, songID), []byte(batchID)); err != nil {
			return fmt.Errorf("writing fingerprint: %w", err)
		}
		if err := wb.Set(songFPKey(songID, fp.Hash, fp.AnchorTime), nil); err != nil {
			return fmt.Errorf("writing fingerprint index: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flushing fingerprints: %w", err)
	}
	return nil
}

func (s *BadgerStore) commitBatch(songID, batchID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(batchKey(songID, batchID), nil)
	})
	if err != nil {
		return fmt.Errorf("committing fingerprint batch: %w", err)
	}
	return nil
}

func (s *BadgerStore) LookupFingerprints(ctx context.Context, hashes []models.Hash) ([]models.FingerprintRecord, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	var out []models.FingerprintRecord
	err := s.db.View(func(txn *badger.Txn) error {
		vis := newVisibility(txn)

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seenHash := make(map[models.Hash]struct{}, len(hashes))
		for _, h := range hashes {
			if _, dup := seenHash[h]; dup {
				continue
			}
			seenHash[h] = struct{}{}
			if err := ctx.Err(); err != nil {
				return err
			}

			prefix := append(append([]byte{}, prefixFP...), h.Bytes()...)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				key := item.Key()
				t := int(binary.BigEndian.Uint32(key[len(prefix) : len(prefix)+4]))
				songID := string(key[len(prefix)+4:])

				batchID, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				ok, err := vis.visible(songID, string(batchID))
				if err != nil {
					return err
				}
				if ok {
					out = append(out, models.FingerprintRecord{Hash: h, Time: t, SongID: songID})
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("looking up fingerprints: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) LookupSong(ctx context.Context, songID string) (models.Song, error) {
	var song models.Song
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(songDataKey(songID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &song)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Song{}, fmt.Errorf("song %s: %w", songID, ErrNotFound)
	}
	if err != nil {
		return models.Song{}, fmt.Errorf("querying song: %w", err)
	}
	return song, nil
}

func (s *BadgerStore) ListSongs(ctx context.Context) ([]models.Song, error) {
	var songs []models.Song
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefixSong); it.ValidForPrefix(prefixSong); it.Next() {
			var song models.Song
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &song)
			}); err != nil {
				return err
			}
			songs = append(songs, song)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing songs: %w", err)
	}

	sort.Slice(songs, func(i, j int) bool {
		a, b := songs[i], songs[j]
		if a.Artist != b.Artist {
			return a.Artist < b.Artist
		}
		if a.Album != b.Album {
			return a.Album < b.Album
		}
		if a.Track != b.Track {
			return a.Track < b.Track
		}
		return a.Title < b.Title
	})
	return songs, nil
}

// DeleteSong removes the song record first, which hides its fingerprints from
// lookups at once, then clears the fingerprint and batch keys.
func (s *BadgerStore) DeleteSong(ctx context.Context, songID string) error {
	song, err := s.LookupSong(ctx, songID)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(songDataKey(songID)); err != nil {
			return err
		}
		uniq := append(append([]byte{}, prefixSongKey...), songKey(song.Artist, song.Album, song.Track)...)
		return txn.Delete(uniq)
	})
	if err != nil {
		return fmt.Errorf("deleting song: %w", err)
	}

	var keys [][]byte
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		idx := songFPPrefix(songID)
		for it.Seek(idx); it.ValidForPrefix(idx); it.Next() {
			k := it.Item().KeyCopy(nil)
			keys = append(keys, k)
			rest := k[len(idx):]
			h := models.Hash(binary.BigEndian.Uint32(rest[:4]))
			keys = append(keys, fpKey(h, int(binary.BigEndian.Uint32(rest[4:8])), songID))
		}

		bp := batchPrefix(songID)
		for it.Seek(bp); it.ValidForPrefix(bp); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("collecting fingerprint keys: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("deleting fingerprints: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("deleting fingerprints: %w", err)
	}
	return nil
}

func (s *BadgerStore) FingerprintCount(ctx context.Context, songID string) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		vis := newVisibility(txn)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := songFPPrefix(songID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rest := it.Item().Key()[len(prefix):]
			h := models.Hash(binary.BigEndian.Uint32(rest[:4]))
			t := int(binary.BigEndian.Uint32(rest[4:8]))

			item, err := txn.Get(fpKey(h, t, songID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			batchID, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			ok, err := vis.visible(songID, string(batchID))
			if err != nil {
				return err
			}
			if ok {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting fingerprints: %w", err)
	}
	return n, nil
}

func (s *BadgerStore) Stats(ctx context.Context) (Stats, error) {
	songs, err := s.countPrefix(prefixSong)
	if err != nil {
		return Stats{}, fmt.Errorf("counting songs: %w", err)
	}

	var fps int64
	err = s.db.View(func(txn *badger.Txn) error {
		vis := newVisibility(txn)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefixFP); it.ValidForPrefix(prefixFP); it.Next() {
			item := it.Item()
			songID := string(item.Key()[len(prefixFP)+8:])
			batchID, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			ok, err := vis.visible(songID, string(batchID))
			if err != nil {
				return err
			}
			if ok {
				fps++
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("counting fingerprints: %w", err)
	}
	return Stats{Songs: songs, Fingerprints: fps}, nil
}

func (s *BadgerStore) countPrefix(prefix []byte) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// visibility answers whether an fp/ record can be read: its song still
// exists and its batch marker was committed. Answers are cached for the
// lifetime of the transaction.
type visibility struct {
	txn   *badger.Txn
	alive map[string]bool
	batch map[string]bool
}

func newVisibility(txn *badger.Txn) *visibility {
	return &visibility{txn: txn, alive: make(map[string]bool), batch: make(map[string]bool)}
}

func (v *visibility) visible(songID, batchID string) (bool, error) {
	ok, seen := v.alive[songID]
	if !seen {
		var err error
		if ok, err = v.exists(songDataKey(songID)); err != nil {
			return false, err
		}
		v.alive[songID] = ok
	}
	if !ok {
		return false, nil
	}
	return v.committed(songID, batchID)
}

func (v *visibility) committed(songID, batchID string) (bool, error) {
	bk := batchKey(songID, batchID)
	ok, seen := v.batch[string(bk)]
	if !seen {
		var err error
		if ok, err = v.exists(bk); err != nil {
			return false, err
		}
		v.batch[string(bk)] = ok
	}
	return ok, nil
}

func (v *visibility) exists(key []byte) (bool, error) {
	_, err := v.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func songDataKey(songID string) []byte {
	return append(append([]byte{}, prefixSong...), songID...)
}

func fpKey(h models.Hash, t int, songID string) []byte {
	k := make([]byte, 0, len(prefixFP)+8+len(songID))
	k = append(k, prefixFP...)
	k = binary.BigEndian.AppendUint32(k, uint32(h))
	k = binary.BigEndian.AppendUint32(k, uint32(t))
	return append(k, songID...)
}

func songFPPrefix(songID string) []byte {
	k := make([]byte, 0, len(prefixSongFP)+len(songID)+1)
	k = append(k, prefixSongFP...)
	k = append(k, songID...)
	return append(k, '/')
}

func songFPKey(songID string, h models.Hash, t int) []byte {
	k := songFPPrefix(songID)
	k = binary.BigEndian.AppendUint32(k, uint32(h))
	return binary.BigEndian.AppendUint32(k, uint32(t))
}

func batchPrefix(songID string) []byte {
	k := make([]byte, 0, len(prefixBatch)+len(songID)+1)
	k = append(k, prefixBatch...)
	k = append(k, songID...)
	return append(k, '/')
}

func batchKey(songID, batchID string) []byte {
	return append(batchPrefix(songID), batchID...)
}
