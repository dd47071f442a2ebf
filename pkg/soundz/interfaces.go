package soundz

import (
	"context"

	"github.com/himanishpuri/soundz/pkg/models"
)

type Service interface {
	Ingest(ctx context.Context, buf models.SampleBuffer, meta models.Song) (IngestResult, error)
	IngestFile(ctx context.Context, path string, meta *models.Song) (IngestResult, error)
	IngestDirectory(ctx context.Context, root string, onDone func(FileResult)) (IngestReport, error)

	// Match returns nil when nothing in the catalogue matches.
	Match(ctx context.Context, buf models.SampleBuffer) (*models.MatchResult, error)
	MatchFile(ctx context.Context, path string) (*models.MatchResult, error)
	MatchFingerprints(ctx context.Context, fps []models.Fingerprint, sampleRate int) (*models.MatchResult, error)

	GetSong(ctx context.Context, songID string) (models.Song, error)
	ListSongs(ctx context.Context) ([]models.Song, error)
	DeleteSong(ctx context.Context, songID string) error
	Stats(ctx context.Context) (Stats, error)
	Params() Params
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
