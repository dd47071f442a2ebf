package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/himanishpuri/soundz/internal/match"
	"github.com/himanishpuri/soundz/pkg/logger"
	"github.com/himanishpuri/soundz/pkg/soundz"
	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
)

// Global flags
var (
	dbPath     string
	backend    string
	mongoURI   string
	tempDir    string
	sampleRate int
	workers    int
	tieBreak   string
	logLevel   string
)

func registerGlobalFlags() {
	// Global flags that can be used with any command
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SOUNDZ_DB_PATH", ""), "Path to the SQLite database file or Badger directory")
	flag.StringVar(&backend, "backend", getEnvOrDefault("SOUNDZ_BACKEND", "sqlite"), "Storage backend: sqlite, badger or mongo")
	flag.StringVar(&mongoURI, "mongo", getEnvOrDefault("SOUNDZ_MONGO_URI", ""), "MongoDB connection URI (mongo backend)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SOUNDZ_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", 44100, "Audio sample rate for processing")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "Parallel workers for directory ingestion")
	flag.StringVar(&tieBreak, "tie-break", "first", "Tie-break policy between equally voted songs: first or lowest-id")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default: $LOG_LEVEL or info)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates a new soundz service with configured options
func createService(extra ...soundz.Option) (soundz.Service, error) {
	tb, err := match.ParseTieBreak(tieBreak)
	if err != nil {
		return nil, err
	}
	opts := []soundz.Option{
		soundz.WithBackend(backend),
		soundz.WithDBPath(dbPath),
		soundz.WithMongoURI(mongoURI),
		soundz.WithTempDir(tempDir),
		soundz.WithSampleRate(sampleRate),
		soundz.WithWorkers(workers),
		soundz.WithTieBreak(tb),
	}
	return soundz.NewService(append(opts, extra...)...)
}

// mustService exits when the service cannot be created.
func mustService(extra ...soundz.Option) soundz.Service {
	fmt.Println("\n🔧 Initializing service...")
	svc, err := createService(extra...)
	if err != nil {
		fail("Failed to create service", err)
	}
	return svc
}

// fail prints err for the user, logs its stack at debug level and exits.
func fail(msg string, err error) {
	fmt.Printf("❌ %s: %v\n", msg, err)
	log := logger.GetLogger()
	log.Debugf("%s", xerrors.Sprint(xerrors.New(err)))
	log.Fatalf("%s: %v", msg, err)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	registerGlobalFlags()
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()
	if logLevel != "" {
		if err := log.SetLevelName(logLevel); err != nil {
			fmt.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}

	printBanner()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "add":
		handleAdd(args)
	case "ingest":
		handleIngest(args)
	case "match":
		handleMatch(args)
	case "list":
		handleList(args)
	case "delete":
		handleDelete(args)
	case "plot":
		handlePlot(args)
	case "stats":
		handleStats()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
                           _     
  ___  ___  _   _ _ __   __| |____
 / __|/ _ \| | | | '_ \ / _` + "`" + ` |_  /
 \__ \ (_) | |_| | | | | (_| |/ / 
 |___/\___/ \__,_|_| |_|\__,_/___|
                                  
     Audio Fingerprinting CLI Tool
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println("soundz - Audio Fingerprinting CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        SQLite file or Badger directory (env: SOUNDZ_DB_PATH)")
	fmt.Println("  --backend <name>   sqlite, badger or mongo (env: SOUNDZ_BACKEND, default: sqlite)")
	fmt.Println("  --mongo <uri>      MongoDB URI for the mongo backend (env: SOUNDZ_MONGO_URI)")
	fmt.Println("  --temp <dir>       Temporary directory for audio conversion (env: SOUNDZ_TEMP_DIR)")
	fmt.Println("  --rate <hz>        Audio sample rate (default: 44100)")
	fmt.Println("  --workers <n>      Parallel workers for ingest (default: number of CPUs)")
	fmt.Println("  --tie-break <p>    first or lowest-id (default: first)")
	fmt.Println("  --log-level <l>    debug, info, warn or error (default: $LOG_LEVEL or info)")
	fmt.Println("\nUsage:")
	fmt.Println("  soundz [global-options] add <audio_file> [--title <t>] [--artist <a>] [--album <a>] [--track <n>] [--year <y>]")
	fmt.Println("  soundz [global-options] ingest <directory>")
	fmt.Println("  soundz [global-options] match <audio_file>")
	fmt.Println("  soundz [global-options] list [--search <query>]")
	fmt.Println("  soundz [global-options] delete <song_id>")
	fmt.Println("  soundz [global-options] plot <audio_file> [--out <png>]")
	fmt.Println("  soundz [global-options] stats")
	fmt.Println("\nExamples:")
	fmt.Println("  # Index a music folder with tags read from the files")
	fmt.Println("  soundz --db library.sqlite3 ingest ~/Music")
	fmt.Println()
	fmt.Println("  # Add one file with explicit metadata")
	fmt.Println("  soundz add song.mp3 --title \"Song\" --artist \"Artist\" --album \"Album\" --track 3")
	fmt.Println()
	fmt.Println("  # Match a recording")
	fmt.Println("  soundz match clip.wav")
}
