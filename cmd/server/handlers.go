package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/himanishpuri/soundz/pkg/logger"
	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/himanishpuri/soundz/pkg/soundz"
	"golang.org/x/time/rate"
)

const defaultMaxUpload = 100 << 20

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service soundz.Service
	config  *ServerConfig
	log     *logger.Logger
	metrics *metrics
	limiter *rate.Limiter
	http    *http.Server
}

// NewServer creates a new server instance
func NewServer(service soundz.Service, config *ServerConfig) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaultMaxUpload
	}

	limit := rate.Inf
	if config.MatchRate > 0 {
		limit = rate.Limit(config.MatchRate)
	}
	burst := config.MatchBurst
	if burst < 1 {
		burst = 1
	}
	log := config.Logger
	if log == nil {
		log = logger.GetLogger().With("[http]")
	}

	s := &Server{
		service: service,
		config:  config,
		log:     log,
		metrics: newMetrics(),
		limiter: rate.NewLimiter(limit, burst),
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.log.StdLogger(),
	}
	return s
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, soundz.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, soundz.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "soundz API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":            "GET /health",
			"metrics":           "GET /metrics",
			"stats":             "GET /api/stats",
			"songs":             "GET /api/songs",
			"addSong":           "POST /api/songs",
			"getSong":           "GET /api/songs/{id}",
			"deleteSong":        "DELETE /api/songs/{id}",
			"matchFile":         "POST /api/match",
			"matchFingerprints": "POST /api/match/fingerprints",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats, err := s.service.Stats(r.Context())
	if err != nil {
		s.log.Errorf("Failed to get stats: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve stats")
		return
	}

	s.respondJSON(w, http.StatusOK, StatsResponse{
		Status:       "healthy",
		Backend:      s.config.Backend,
		DatabasePath: s.config.DBPath,
		Songs:        stats.Songs,
		Fingerprints: stats.Fingerprints,
		SampleRate:   s.config.SampleRate,
		Params:       s.service.Params(),
	})
}

// handleListSongs handles GET /api/songs
func (s *Server) handleListSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.service.ListSongs(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list songs: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve songs")
		return
	}

	dtos := make([]SongDTO, len(songs))
	for i, song := range songs {
		dtos[i] = toSongDTO(song)
	}

	s.respondJSON(w, http.StatusOK, ListSongsResponse{
		Songs: dtos,
		Count: len(dtos),
	})
}

// handleGetSong handles GET /api/songs/{id}
func (s *Server) handleGetSong(w http.ResponseWriter, r *http.Request, songID string) {
	song, err := s.service.GetSong(r.Context(), songID)
	if err != nil {
		if errors.Is(err, soundz.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Song with ID %s not found", songID))
			return
		}
		s.log.Errorf("Failed to get song %s: %v", songID, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve song")
		return
	}

	s.respondJSON(w, http.StatusOK, toSongDTO(song))
}

// handleDeleteSong handles DELETE /api/songs/{id}
func (s *Server) handleDeleteSong(w http.ResponseWriter, r *http.Request, songID string) {
	song, err := s.service.GetSong(r.Context(), songID)
	if err != nil {
		s.respondError(w, statusFor(err), fmt.Sprintf("Song with ID %s not found", songID))
		return
	}

	if err := s.service.DeleteSong(r.Context(), songID); err != nil {
		s.log.Errorf("Failed to delete song %s: %v", songID, err)
		s.respondError(w, statusFor(err), "Failed to delete song")
		return
	}

	s.log.Infof("Deleted song: %s by %s (ID: %s)", song.Title, song.Artist, songID)
	s.respondJSON(w, http.StatusOK, DeleteSongResponse{
		Message: "Song deleted successfully",
		ID:      songID,
	})
}

// saveUpload copies the "audio" form file into a fresh directory under the
// temp directory, keeping the client's file name so untagged uploads are
// catalogued under it. The caller removes the returned directory.
func (s *Server) saveUpload(r *http.Request, prefix string) (dir, path string, err error) {
	file, header, err := r.FormFile("audio")
	if err != nil {
		return "", "", fmt.Errorf("audio file is required")
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}

	dir, err = os.MkdirTemp(s.config.TempDir, prefix+"_*")
	if err != nil {
		return "", "", err
	}
	path = filepath.Join(dir, name)

	out, err := os.Create(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.RemoveAll(dir)
		return "", "", err
	}
	return dir, path, nil
}

// metaFromForm returns nil when no metadata field was sent, in which case
// the file's own tags are used.
func metaFromForm(r *http.Request) (*models.Song, error) {
	song := models.Song{
		Title:  strings.TrimSpace(r.FormValue("title")),
		Artist: strings.TrimSpace(r.FormValue("artist")),
		Album:  strings.TrimSpace(r.FormValue("album")),
		Track:  strings.TrimSpace(r.FormValue("track")),
	}
	if y := strings.TrimSpace(r.FormValue("year")); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", y)
		}
		song.Year = year
	}
	if song == (models.Song{}) {
		return nil, nil
	}
	return &song, nil
}

// handleAddSong handles POST /api/songs (multipart file upload)
func (s *Server) handleAddSong(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	meta, err := metaFromForm(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	dir, path, err := s.saveUpload(r, "upload")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	s.log.Infof("Adding song from upload: %s", filepath.Base(path))
	res, err := s.service.IngestFile(ctx, path, meta)
	if err != nil {
		s.metrics.ingests.WithLabelValues("failed").Inc()
		s.log.Errorf("Failed to add song: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to add song: %v", err))
		return
	}
	s.metrics.ingests.WithLabelValues(res.Status.String()).Inc()

	if res.Status == soundz.IngestDuplicate {
		s.respondJSON(w, http.StatusOK, AddSongResponse{
			Message: "Song already catalogued",
			Status:  res.Status.String(),
		})
		return
	}

	song, err := s.service.GetSong(ctx, res.SongID)
	if err != nil {
		s.log.Warnf("Added song %s but could not read it back: %v", res.SongID, err)
		song = models.Song{ID: res.SongID}
	}

	dto := toSongDTO(song)
	s.respondJSON(w, http.StatusCreated, AddSongResponse{
		Message:      "Song added successfully",
		Status:       res.Status.String(),
		ID:           res.SongID,
		Fingerprints: res.Fingerprints,
		Song:         &dto,
	})
}

// allowMatch applies the shared rate limit to match requests
func (s *Server) allowMatch(w http.ResponseWriter) bool {
	if s.limiter.Allow() {
		return true
	}
	s.metrics.throttled.Inc()
	w.Header().Set("Retry-After", "1")
	s.respondError(w, http.StatusTooManyRequests, "Too many match requests")
	return false
}

func (s *Server) recordMatch(res *models.MatchResult, err error) {
	switch {
	case err != nil:
		s.metrics.matches.WithLabelValues("failed").Inc()
	case res == nil:
		s.metrics.matches.WithLabelValues("not_found").Inc()
	default:
		s.metrics.matches.WithLabelValues("found").Inc()
		s.metrics.votes.Observe(float64(res.Votes))
	}
}

// handleMatchFile handles POST /api/match (multipart file upload)
func (s *Server) handleMatchFile(w http.ResponseWriter, r *http.Request) {
	if !s.allowMatch(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	dir, path, err := s.saveUpload(r, "query")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	s.log.Infof("Matching uploaded file: %s", filepath.Base(path))
	res, err := s.service.MatchFile(ctx, path)
	s.recordMatch(res, err)
	if err != nil {
		s.log.Errorf("Failed to match song: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match song: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, toMatchResponse(res))
}

// handleMatchFingerprints handles POST /api/match/fingerprints (WASM clients)
func (s *Server) handleMatchFingerprints(w http.ResponseWriter, r *http.Request) {
	if !s.allowMatch(w) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req MatchFingerprintsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.Validate(s.service.Params()); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(req.Fingerprints) >= MaxFingerprintsSoftLimit {
		s.log.Warnf("Large fingerprint batch received: %d fingerprints", len(req.Fingerprints))
	}

	res, err := s.service.MatchFingerprints(ctx, req.ToFingerprints(), req.SampleRate)
	s.recordMatch(res, err)
	if err != nil {
		s.log.Errorf("Failed to match fingerprints: %v", err)
		s.respondError(w, statusFor(err), fmt.Sprintf("Failed to match fingerprints: %v", err))
		return
	}

	s.respondJSON(w, http.StatusOK, toMatchResponse(res))
}

// handleSongs routes requests to /api/songs
func (s *Server) handleSongs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSongs(w, r)
	case http.MethodPost:
		s.handleAddSong(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleSong routes requests to /api/songs/{id}
func (s *Server) handleSong(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/songs/")
	if idStr == "" {
		s.respondError(w, http.StatusBadRequest, "Song ID required")
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid song ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetSong(w, r, id.String())
	case http.MethodDelete:
		s.handleDeleteSong(w, r, id.String())
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleMatch routes requests to /api/match
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchFile(w, r)
}

// handleMatchFingerprintsRoute routes requests to /api/match/fingerprints
func (s *Server) handleMatchFingerprintsRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.handleMatchFingerprints(w, r)
}
