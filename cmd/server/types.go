package main

import (
	"fmt"
	"time"

	"github.com/himanishpuri/soundz/pkg/logger"
	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/himanishpuri/soundz/pkg/soundz"
)

// Fingerprint limits for client-side matching
const (
	// MaxFingerprintsSoftLimit is roughly 30 seconds of dense audio
	MaxFingerprintsSoftLimit = 20000

	// MaxFingerprintsHardLimit rejects requests above it outright
	MaxFingerprintsHardLimit = 100000
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Backend        string
	DBPath         string
	TempDir        string
	SampleRate     int
	AllowedOrigins []string
	MatchRate      float64 // match requests per second across all clients
	MatchBurst     int
	MaxUploadBytes int64
	Logger         *logger.Logger
}

// FingerprintDTO is one hash as produced by the WASM module
type FingerprintDTO struct {
	Hash       uint32 `json:"hash"`
	AnchorTime int    `json:"anchorTime"`
}

// MatchFingerprintsRequest is the request body for POST /api/match/fingerprints
type MatchFingerprintsRequest struct {
	Fingerprints []FingerprintDTO `json:"fingerprints"`
	SampleRate   int              `json:"sampleRate"`
}

// Validate checks the request against the hash layout and the server params
func (r *MatchFingerprintsRequest) Validate(p soundz.Params) error {
	if len(r.Fingerprints) == 0 {
		return fmt.Errorf("fingerprints cannot be empty")
	}
	if len(r.Fingerprints) > MaxFingerprintsHardLimit {
		return fmt.Errorf("too many fingerprints: %d (maximum: %d)", len(r.Fingerprints), MaxFingerprintsHardLimit)
	}
	if r.SampleRate <= 0 {
		return fmt.Errorf("sampleRate must be positive, got %d", r.SampleRate)
	}

	for i, fp := range r.Fingerprints {
		if fp.AnchorTime < 0 {
			return fmt.Errorf("fingerprint %d: negative anchorTime %d", i, fp.AnchorTime)
		}
		f1, f2, dt := models.Hash(fp.Hash).Decode()
		if f1 >= p.Bins() || f2 >= p.Bins() || dt > p.MaxDelta {
			return fmt.Errorf("fingerprint %d: hash %d does not fit the server parameters", i, fp.Hash)
		}
	}
	return nil
}

// ToFingerprints converts the request body to model fingerprints
func (r *MatchFingerprintsRequest) ToFingerprints() []models.Fingerprint {
	fps := make([]models.Fingerprint, len(r.Fingerprints))
	for i, fp := range r.Fingerprints {
		fps[i] = models.Fingerprint{Hash: models.Hash(fp.Hash), AnchorTime: fp.AnchorTime}
	}
	return fps
}

// SongDTO represents a song in API responses
type SongDTO struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album,omitempty"`
	Track      string    `json:"track,omitempty"`
	Year       int       `json:"year,omitempty"`
	SampleRate int       `json:"sample_rate"`
	Duration   float64   `json:"duration"`
	CreatedAt  time.Time `json:"created_at"`
}

func toSongDTO(s models.Song) SongDTO {
	return SongDTO{
		ID:         s.ID,
		Title:      s.Title,
		Artist:     s.Artist,
		Album:      s.Album,
		Track:      s.Track,
		Year:       s.Year,
		SampleRate: s.SampleRate,
		Duration:   s.Duration,
		CreatedAt:  s.CreatedAt,
	}
}

// ListSongsResponse is the response for GET /api/songs
type ListSongsResponse struct {
	Songs []SongDTO `json:"songs"`
	Count int       `json:"count"`
}

// AddSongResponse is the response for POST /api/songs
type AddSongResponse struct {
	Message      string  `json:"message"`
	Status       string  `json:"status"`
	ID           string  `json:"id,omitempty"`
	Fingerprints int     `json:"fingerprints"`
	Song         *SongDTO `json:"song,omitempty"`
}

// DeleteSongResponse is the response for DELETE /api/songs/{id}
type DeleteSongResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// CandidateDTO is a runner-up from offset voting
type CandidateDTO struct {
	SongID     string `json:"song_id"`
	OffsetBins int    `json:"offset_bins"`
	Votes      int    `json:"votes"`
}

// MatchResultDTO represents a successful match
type MatchResultDTO struct {
	Song              SongDTO        `json:"song"`
	OffsetBins        int            `json:"offset_bins"`
	OffsetSeconds     float64        `json:"offset_seconds"`
	Votes             int            `json:"votes"`
	MatchedRecords    int            `json:"matched_records"`
	QueryFingerprints int            `json:"query_fingerprints"`
	Confidence        float64        `json:"confidence"`
	Candidates        []CandidateDTO `json:"candidates,omitempty"`
}

// MatchResponse is the response for both match endpoints. Match is nil when
// nothing in the catalogue matched.
type MatchResponse struct {
	Found bool            `json:"found"`
	Match *MatchResultDTO `json:"match,omitempty"`
}

func toMatchResponse(res *models.MatchResult) MatchResponse {
	if res == nil {
		return MatchResponse{}
	}
	dto := &MatchResultDTO{
		Song:              toSongDTO(res.Song),
		OffsetBins:        res.OffsetBins,
		OffsetSeconds:     res.OffsetSeconds,
		Votes:             res.Votes,
		MatchedRecords:    res.MatchedRecords,
		QueryFingerprints: res.QueryFingerprints,
		Confidence:        res.Confidence,
	}
	for _, c := range res.Candidates {
		dto.Candidates = append(dto.Candidates, CandidateDTO{SongID: c.SongID, OffsetBins: c.OffsetBins, Votes: c.Votes})
	}
	return MatchResponse{Found: true, Match: dto}
}

// StatsResponse provides database counters and pipeline settings
type StatsResponse struct {
	Status       string        `json:"status"`
	Backend      string        `json:"backend"`
	DatabasePath string        `json:"database_path,omitempty"`
	Songs        int64         `json:"songs"`
	Fingerprints int64         `json:"fingerprints"`
	SampleRate   int           `json:"sample_rate"`
	Params       soundz.Params `json:"params"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
