// Package soundz identifies recordings by matching short samples against a
// catalogue of indexed songs.
package soundz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/himanishpuri/soundz/internal/fingerprint"
	"github.com/himanishpuri/soundz/internal/match"
	"github.com/himanishpuri/soundz/internal/storage"
	"github.com/himanishpuri/soundz/pkg/logger"
	"github.com/himanishpuri/soundz/pkg/models"
)

const openTimeout = 30 * time.Second

// soundzService is the default implementation of the Service interface.
type soundzService struct {
	store  storage.Store
	log    Logger
	config *Config
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	// Set default logger if none provided
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger().With("[soundz]")
	}

	// Create or use provided storage
	store := cfg.Store
	if store == nil {
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()

		var err error
		store, err = storage.Open(ctx, storage.Config{
			Backend:       cfg.Backend,
			Path:          cfg.DBPath,
			MongoURI:      cfg.MongoURI,
			MongoDatabase: cfg.MongoDatabase,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
	}

	return &soundzService{
		store:  store,
		log:    cfg.Logger,
		config: cfg,
	}, nil
}

// Ingest fingerprints buf and stores it under meta unless a song with the
// same artist, album and track is already catalogued.
func (s *soundzService) Ingest(ctx context.Context, buf models.SampleBuffer, meta models.Song) (IngestResult, error) {
	// 1. Skip known songs before doing any work
	exists, err := s.store.SongExists(ctx, meta.Artist, meta.Album, meta.Track)
	if err != nil {
		return IngestResult{}, storeErr("checking song", err)
	}
	if exists {
		s.log.Infof("Skipping %q by %s: already catalogued", meta.Title, meta.Artist)
		return IngestResult{Status: IngestDuplicate}, nil
	}

	// 2. Fingerprint
	res := fingerprint.Generate(buf, s.config.Params)
	s.log.Debugf("%q: %d peaks, %d fingerprints", meta.Title, len(res.Peaks), len(res.Fingerprints))

	// 3. Register song
	meta.SampleRate = buf.SampleRate
	meta.Duration = buf.Duration()
	songID, err := s.store.SaveSong(ctx, meta)
	if errors.Is(err, storage.ErrDuplicateSong) {
		s.log.Infof("Skipping %q by %s: added concurrently", meta.Title, meta.Artist)
		return IngestResult{Status: IngestDuplicate}, nil
	}
	if err != nil {
		return IngestResult{}, storeErr("saving song", err)
	}

	// 4. Store fingerprints
	if err := s.store.SaveFingerprints(ctx, songID, res.Fingerprints); err != nil {
		// rollback runs even if ctx was cancelled
		if derr := s.store.DeleteSong(context.WithoutCancel(ctx), songID); derr != nil {
			s.log.Errorf("Rollback of song %s failed: %v", songID, derr)
		}
		return IngestResult{}, storeErr("saving fingerprints", err)
	}

	digest := fingerprint.Digest(res.Fingerprints)
	s.log.Infof("Added %q by %s as %s (%d fingerprints, digest %016x)",
		meta.Title, meta.Artist, songID, len(res.Fingerprints), digest)

	return IngestResult{
		Status:       IngestAdded,
		SongID:       songID,
		Peaks:        len(res.Peaks),
		Fingerprints: len(res.Fingerprints),
		Digest:       digest,
	}, nil
}

func (s *soundzService) Match(ctx context.Context, buf models.SampleBuffer) (*models.MatchResult, error) {
	res := fingerprint.Generate(buf, s.config.Params)
	s.log.Debugf("Query has %d peaks, %d fingerprints", len(res.Peaks), len(res.Fingerprints))
	return s.MatchFingerprints(ctx, res.Fingerprints, buf.SampleRate)
}

// MatchFingerprints matches fingerprints computed elsewhere, e.g. by a
// browser client. sampleRate is only used to express the offset in seconds.
func (s *soundzService) MatchFingerprints(ctx context.Context, fps []models.Fingerprint, sampleRate int) (*models.MatchResult, error) {
	if len(fps) == 0 {
		return nil, nil
	}

	// 1. Fetch every stored record sharing a hash with the query
	records, err := s.store.LookupFingerprints(ctx, fingerprint.UniqueHashes(fps))
	if err != nil {
		return nil, storeErr("looking up fingerprints", err)
	}
	s.log.Debugf("Retrieved %d records for %d query fingerprints", len(records), len(fps))

	// 2. Vote on offsets
	al, ok := match.Align(fps, records, match.Options{
		TieBreak:      s.config.TieBreak,
		MaxCandidates: s.config.MaxCandidates,
	})
	if !ok {
		s.log.Infof("No match among %d records", len(records))
		return nil, nil
	}

	// 3. Resolve the winner
	song, err := s.store.LookupSong(ctx, al.SongID)
	if err != nil {
		return nil, storeErr("resolving song", err)
	}
	songCount, err := s.store.FingerprintCount(ctx, al.SongID)
	if err != nil {
		s.log.Warnf("Failed to get fingerprint count for song %s: %v", al.SongID, err)
		songCount = int64(len(fps))
	}

	result := &models.MatchResult{
		Song:              song,
		OffsetBins:        al.Offset,
		OffsetSeconds:     float64(al.Offset) * s.config.Params.BinSeconds(sampleRate),
		Votes:             al.Votes,
		MatchedRecords:    al.Matched,
		QueryFingerprints: len(fps),
		Confidence:        match.Confidence(al.Votes, len(fps), int(songCount)),
		Candidates:        al.Candidates,
	}
	s.log.Infof("Matched %q by %s at %.2fs (%d votes)", song.Title, song.Artist, result.OffsetSeconds, result.Votes)
	return result, nil
}

func (s *soundzService) GetSong(ctx context.Context, songID string) (models.Song, error) {
	song, err := s.store.LookupSong(ctx, songID)
	if err != nil {
		return models.Song{}, storeErr("getting song", err)
	}
	return song, nil
}

func (s *soundzService) ListSongs(ctx context.Context) ([]models.Song, error) {
	songs, err := s.store.ListSongs(ctx)
	if err != nil {
		return nil, storeErr("listing songs", err)
	}
	return songs, nil
}

func (s *soundzService) DeleteSong(ctx context.Context, songID string) error {
	if err := s.store.DeleteSong(ctx, songID); err != nil {
		return storeErr("deleting song", err)
	}
	s.log.Infof("Deleted song %s", songID)
	return nil
}

func (s *soundzService) Stats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, storeErr("reading stats", err)
	}
	return st, nil
}

func (s *soundzService) Params() Params {
	return s.config.Params
}

func (s *soundzService) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
