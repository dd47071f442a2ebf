package soundz

import (
	"os"
	"runtime"

	"github.com/himanishpuri/soundz/internal/fingerprint"
	"github.com/himanishpuri/soundz/internal/match"
	"github.com/himanishpuri/soundz/internal/storage"
)

type Config struct {
	Backend       string // sqlite, badger or mongo
	DBPath        string // sqlite file or badger directory
	MongoURI      string
	MongoDatabase string
	TempDir       string
	SampleRate    int // decode target rate
	Params        Params
	TieBreak      TieBreak
	MaxCandidates int
	Workers       int // directory ingestion parallelism
	Logger        Logger
	Store         storage.Store
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithBackend(name string) Option {
	return func(c *Config) {
		c.Backend = name
	}
}

func WithMongoURI(uri string) Option {
	return func(c *Config) {
		c.MongoURI = uri
	}
}

func WithMongoDatabase(name string) Option {
	return func(c *Config) {
		c.MongoDatabase = name
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithParams overrides the pipeline parameters. Every ingest and query
// against one store must use the same values.
func WithParams(p Params) Option {
	return func(c *Config) {
		c.Params = p
	}
}

func WithTieBreak(t TieBreak) Option {
	return func(c *Config) {
		c.TieBreak = t
	}
}

func WithMaxCandidates(n int) Option {
	return func(c *Config) {
		c.MaxCandidates = n
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithStore uses an already opened store. The service takes ownership and
// closes it on Close.
func WithStore(s storage.Store) Option {
	return func(c *Config) {
		c.Store = s
	}
}

func defaultConfig() *Config {
	return &Config{
		Backend:       storage.BackendSQLite,
		DBPath:        "",
		MongoDatabase: storage.DefaultMongoDatabase,
		TempDir:       os.TempDir(),
		SampleRate:    44100,
		Params:        fingerprint.DefaultParams(),
		TieBreak:      match.TieBreakFirst,
		MaxCandidates: match.DefaultOptions().MaxCandidates,
		Workers:       runtime.NumCPU(),
		Logger:        nil,
	}
}
