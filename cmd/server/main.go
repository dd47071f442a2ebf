//go:build !js && !wasm

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/himanishpuri/soundz/internal/match"
	"github.com/himanishpuri/soundz/pkg/logger"
	"github.com/himanishpuri/soundz/pkg/soundz"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

var (
	port           int
	backend        string
	dbPath         string
	mongoURI       string
	tempDir        string
	sampleRate     int
	allowedOrigins string
	matchRate      float64
	matchBurst     int
	tieBreak       string
	logLevel       string
)

func registerFlags() {
	flag.IntVar(&port, "port", getEnvInt("SOUNDZ_PORT", 8080), "HTTP server port")
	flag.StringVar(&backend, "backend", getEnvOrDefault("SOUNDZ_BACKEND", "sqlite"), "Storage backend: sqlite, badger or mongo")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SOUNDZ_DB_PATH", ""), "Path to the SQLite database file or Badger directory")
	flag.StringVar(&mongoURI, "mongo", getEnvOrDefault("SOUNDZ_MONGO_URI", ""), "MongoDB connection URI (mongo backend)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SOUNDZ_TEMP_DIR", os.TempDir()), "Temporary directory")
	flag.IntVar(&sampleRate, "rate", 44100, "Audio sample rate")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("SOUNDZ_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
	flag.Float64Var(&matchRate, "match-rate", 10, "Match requests per second (0 disables the limit)")
	flag.IntVar(&matchBurst, "match-burst", 20, "Burst size for match requests")
	flag.StringVar(&tieBreak, "tie-break", "first", "Tie-break policy between equally voted songs: first or lowest-id")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default: $LOG_LEVEL or info)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func parseOrigins(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func fatal(log *logger.Logger, msg string, err error) {
	log.Debugf("%s", xerrors.Sprint(xerrors.New(err)))
	log.Fatalf("%s: %v", msg, err)
}

func main() {
	_ = godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()
	if logLevel != "" {
		if err := log.SetLevelName(logLevel); err != nil {
			fatal(log, "Invalid log level", err)
		}
	}

	tb, err := match.ParseTieBreak(tieBreak)
	if err != nil {
		fatal(log, "Invalid tie-break", err)
	}

	service, err := soundz.NewService(
		soundz.WithBackend(backend),
		soundz.WithDBPath(dbPath),
		soundz.WithMongoURI(mongoURI),
		soundz.WithTempDir(tempDir),
		soundz.WithSampleRate(sampleRate),
		soundz.WithTieBreak(tb),
	)
	if err != nil {
		fatal(log, "Failed to create service", err)
	}
	defer service.Close()

	server := NewServer(service, &ServerConfig{
		Port:           port,
		Backend:        backend,
		DBPath:         dbPath,
		TempDir:        tempDir,
		SampleRate:     sampleRate,
		AllowedOrigins: parseOrigins(allowedOrigins),
		MatchRate:      matchRate,
		MatchBurst:     matchBurst,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Infof("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Shutdown: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		service.Close()
		fatal(log, "Server failed", err)
	}
}
