// Package storage persists songs and fingerprint records behind the Store
// interface. Three backends are provided: SQLite through gorm, an embedded
// Badger key-value store and MongoDB.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/himanishpuri/soundz/pkg/models"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateSong       = errors.New("song already exists")
	ErrHashVersionMismatch = errors.New("store was written with a different hash version")
	ErrUnknownBackend      = errors.New("unknown storage backend")
)

// Store is the repository used by ingestion and matching.
//
// SaveFingerprints is atomic per call: a concurrent or later lookup sees all
// of the records or none of them. Saving a (hash, time, song) triple that is
// already stored does not create a second record.
type Store interface {
	SaveSong(ctx context.Context, song models.Song) (string, error)
	SongExists(ctx context.Context, artist, album, track string) (bool, error)
	SaveFingerprints(ctx context.Context, songID string, fps []models.Fingerprint) error
	LookupFingerprints(ctx context.Context, hashes []models.Hash) ([]models.FingerprintRecord, error)
	LookupSong(ctx context.Context, songID string) (models.Song, error)

	ListSongs(ctx context.Context) ([]models.Song, error)
	DeleteSong(ctx context.Context, songID string) error
	FingerprintCount(ctx context.Context, songID string) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

type Stats struct {
	Songs        int64 `json:"songs"`
	Fingerprints int64 `json:"fingerprints"`
}

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMongo  = "mongo"
)

const (
	DefaultSQLitePath    = "soundz.sqlite3"
	DefaultBadgerDir     = "soundz.badger"
	DefaultMongoDatabase = "soundz"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string // sqlite file or badger directory
	InMemory      bool   // badger only
	MongoURI      string
	MongoDatabase string
}

// Open creates the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		path := cfg.Path
		if path == "" {
			path = DefaultSQLitePath
		}
		return NewSQLiteStore(path)
	case BackendBadger:
		if cfg.InMemory {
			return NewInMemoryBadgerStore()
		}
		dir := cfg.Path
		if dir == "" {
			dir = DefaultBadgerDir
		}
		return NewBadgerStore(dir)
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, errors.New("mongo backend requires a connection URI")
		}
		db := cfg.MongoDatabase
		if db == "" {
			db = DefaultMongoDatabase
		}
		return NewMongoStore(ctx, cfg.MongoURI, db)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func songKey(artist, album, track string) string {
	return artist + "\x00" + album + "\x00" + track
}
