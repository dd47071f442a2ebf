package soundz

import (
	"errors"
	"fmt"

	"github.com/himanishpuri/soundz/internal/fingerprint"
	"github.com/himanishpuri/soundz/internal/match"
	"github.com/himanishpuri/soundz/internal/storage"
)

type (
	Params   = fingerprint.Params
	TieBreak = match.TieBreak
	Stats    = storage.Stats
)

func DefaultParams() Params {
	return fingerprint.DefaultParams()
}

const (
	TieBreakFirst        = match.TieBreakFirst
	TieBreakLowestSongID = match.TieBreakLowestSongID
)

var (
	// ErrStore wraps every failure reported by the fingerprint store. The
	// underlying cause stays reachable with errors.Is / errors.As.
	ErrStore = errors.New("store error")
	// ErrDecode wraps failures to read or convert an audio file.
	ErrDecode = errors.New("decode error")

	ErrNotFound = storage.ErrNotFound
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

type IngestStatus int

const (
	IngestAdded IngestStatus = iota
	IngestDuplicate
)

func (s IngestStatus) String() string {
	switch s {
	case IngestAdded:
		return "added"
	case IngestDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// IngestResult describes one ingestion. Duplicates carry no song ID and no
// fingerprints since the pipeline never ran.
type IngestResult struct {
	Status       IngestStatus
	SongID       string
	Peaks        int
	Fingerprints int
	Digest       uint64 // content hash of the fingerprint set
}

// FileResult is reported once per file during directory ingestion.
type FileResult struct {
	Path   string
	Result IngestResult
	Err    error
}

type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e FileError) Unwrap() error {
	return e.Err
}

type IngestReport struct {
	Added      int
	Duplicates int
	Failed     []FileError
}
