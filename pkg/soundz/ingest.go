package soundz

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/himanishpuri/soundz/internal/audio"
	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/himanishpuri/soundz/pkg/utils"
	"golang.org/x/sync/errgroup"
)

func (s *soundzService) decode(ctx context.Context, path string) (models.SampleBuffer, error) {
	buf, err := audio.Decode(ctx, path, s.config.TempDir, s.config.SampleRate)
	if err != nil {
		return models.SampleBuffer{}, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return buf, nil
}

// IngestFile decodes path and ingests it. When meta is nil the song
// metadata comes from the file's tags, titled after the file if it has none.
// A song with no artist, album or track is keyed by its file name.
func (s *soundzService) IngestFile(ctx context.Context, path string, meta *models.Song) (IngestResult, error) {
	s.log.Infof("Processing %s", path)

	buf, err := s.decode(ctx, path)
	if err != nil {
		return IngestResult{}, err
	}

	var song models.Song
	if meta != nil {
		song = *meta
	} else {
		song, err = audio.ReadTags(path)
		if err != nil {
			return IngestResult{}, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
		}
	}
	// untagged files are told apart by file name
	if song.Artist == "" && song.Album == "" && song.Track == "" {
		song.Track = audio.TitleFromPath(path)
	}
	if song.Title == "" {
		song.Title = audio.TitleFromPath(path)
	}

	return s.Ingest(ctx, buf, song)
}

// IngestDirectory ingests every audio file under root using the configured
// number of workers. A failing file is recorded in the report and does not
// stop the others; onDone, if set, is called once per file from the worker
// goroutines.
func (s *soundzService) IngestDirectory(ctx context.Context, root string, onDone func(FileResult)) (IngestReport, error) {
	files, err := utils.FindAudioFiles(root, nil)
	if err != nil {
		return IngestReport{}, err
	}
	s.log.Infof("Found %d audio files under %s", len(files), root)

	var (
		mu     sync.Mutex
		report IngestReport
		g      errgroup.Group
	)
	g.SetLimit(s.config.Workers)

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			res, err := s.IngestFile(ctx, path, nil)

			mu.Lock()
			switch {
			case err != nil:
				report.Failed = append(report.Failed, FileError{Path: path, Err: err})
				s.log.Warnf("Failed to ingest %s: %v", path, err)
			case res.Status == IngestDuplicate:
				report.Duplicates++
			default:
				report.Added++
			}
			mu.Unlock()

			if onDone != nil {
				onDone(FileResult{Path: path, Result: res, Err: err})
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(report.Failed, func(i, j int) bool {
		return report.Failed[i].Path < report.Failed[j].Path
	})
	s.log.Infof("Ingested %s: %d added, %d duplicates, %d failed",
		root, report.Added, report.Duplicates, len(report.Failed))

	return report, ctx.Err()
}

func (s *soundzService) MatchFile(ctx context.Context, path string) (*models.MatchResult, error) {
	s.log.Infof("Matching %s", path)

	buf, err := s.decode(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.Match(ctx, buf)
}
