package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/soundz/internal/audio"
	"github.com/himanishpuri/soundz/internal/fingerprint"
	"github.com/himanishpuri/soundz/internal/plot"
	"github.com/himanishpuri/soundz/pkg/logger"
	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/himanishpuri/soundz/pkg/soundz"
	"github.com/himanishpuri/soundz/pkg/utils"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

const searchThreshold = 0.8

// parseArgs parses fs over args and returns the positional arguments.
// Flags may sit on either side of them, as in "add song.mp3 --title X"
// or "add --title X song.mp3".
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func handleAdd(args []string) {
	log := logger.GetLogger()

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	title := addCmd.String("title", "", "Song title (default: from tags or file name)")
	artist := addCmd.String("artist", "", "Artist name (default: from tags)")
	album := addCmd.String("album", "", "Album name (default: from tags)")
	track := addCmd.String("track", "", "Track number (default: from tags)")
	year := addCmd.Int("year", 0, "Release year (default: from tags)")
	positional, _ := parseArgs(addCmd, args)
	audioPath := firstArg(positional)

	if audioPath == "" {
		fmt.Println("Error: audio file path required")
		fmt.Println("Usage: soundz add <audio_file> [--title <t>] [--artist <a>] [--album <a>] [--track <n>] [--year <y>]")
		os.Exit(1)
	}

	// flags override whatever the file's tags say
	var meta *models.Song
	if *title != "" || *artist != "" || *album != "" || *track != "" || *year != 0 {
		tags, err := audio.ReadTags(audioPath)
		if err != nil {
			fail("Failed to read file", err)
		}
		if *title != "" {
			tags.Title = *title
		}
		if *artist != "" {
			tags.Artist = *artist
		}
		if *album != "" {
			tags.Album = *album
		}
		if *track != "" {
			tags.Track = *track
		}
		if *year != 0 {
			tags.Year = *year
		}
		meta = &tags
	}

	svc := mustService()
	defer svc.Close()

	fmt.Println("🎵 Processing audio file...")
	fmt.Println("   This may take a few moments for large files")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := svc.IngestFile(ctx, audioPath, meta)
	if err != nil {
		fail("Failed to add song", err)
	}

	if res.Status == soundz.IngestDuplicate {
		fmt.Printf("\nℹ️  %s is already in the database\n", audioPath)
		return
	}

	song, err := svc.GetSong(ctx, res.SongID)
	if err != nil {
		fail("Failed to read back song", err)
	}

	fmt.Println("\n✅ Successfully added song to database!")
	fmt.Printf("   ID:           %s\n", song.ID)
	fmt.Printf("   Title:        %s\n", song.Title)
	if song.Artist != "" {
		fmt.Printf("   Artist:       %s\n", song.Artist)
	}
	if song.Album != "" {
		fmt.Printf("   Album:        %s\n", song.Album)
	}
	fmt.Printf("   Duration:     %s\n", utils.HumanDuration(song.Duration))
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(int64(res.Fingerprints)))
	log.Debugf("Fingerprint digest %016x", res.Digest)
}

func handleIngest(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: soundz ingest <directory>")
		os.Exit(1)
	}
	root := args[0]

	files, err := utils.FindAudioFiles(root, nil)
	if err != nil {
		fail("Failed to scan directory", err)
	}
	if len(files) == 0 {
		fmt.Printf("\n📭 No audio files under %s\n", root)
		return
	}

	// per-file info lines would tear the progress bar
	quiet := logger.New(logger.Config{
		Level:    max(logger.WARN, logger.GetLogger().Level()),
		Prefix:   "[soundz]",
		Colorize: true,
		ShowTime: true,
		Output:   os.Stderr,
	})
	svc := mustService(soundz.WithLogger(quiet))
	defer svc.Close()

	fmt.Printf("🎵 Ingesting %s files with %d workers\n\n", humanize.Comma(int64(len(files))), workers)

	p := mpb.New(mpb.WithWidth(64))
	bar := p.AddBar(int64(len(files)),
		mpb.PrependDecorators(
			decor.Name("Indexing: "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
			decor.AverageETA(decor.ET_STYLE_GO),
		),
	)

	start := time.Now()
	report, err := svc.IngestDirectory(context.Background(), root, func(soundz.FileResult) {
		bar.Increment()
	})
	// files added between the scan and the ingest are not counted by the bar
	bar.SetTotal(bar.Current(), true)
	p.Wait()
	if err != nil {
		fail("Ingestion interrupted", err)
	}

	fmt.Printf("\n✅ Done in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Added:      %s\n", humanize.Comma(int64(report.Added)))
	fmt.Printf("   Duplicates: %s\n", humanize.Comma(int64(report.Duplicates)))
	fmt.Printf("   Failed:     %s\n", humanize.Comma(int64(len(report.Failed))))
	for _, f := range report.Failed {
		fmt.Printf("   ❌ %s: %v\n", f.Path, f.Err)
	}
}

func handleMatch(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: soundz match <audio_file>")
		os.Exit(1)
	}
	audioPath := args[0]

	svc := mustService()
	defer svc.Close()

	fmt.Println("🔍 Analyzing audio file...")
	fmt.Println("   Generating fingerprints and searching database")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := svc.MatchFile(ctx, audioPath)
	if err != nil {
		fail("Failed to match song", err)
	}

	if result == nil {
		fmt.Println("\n❌ No match found in database")
		return
	}

	song := result.Song
	fmt.Println("\n✅ Match found!")
	fmt.Printf("\n🎵 \"%s\" by %s\n", song.Title, song.Artist)
	if song.Album != "" {
		fmt.Printf("   Album:      %s\n", song.Album)
	}
	fmt.Printf("   ID:         %s\n", song.ID)
	fmt.Printf("   Offset:     %s (%d frames)\n", utils.HumanDuration(result.OffsetSeconds), result.OffsetBins)
	fmt.Printf("   Votes:      %d of %d query fingerprints\n", result.Votes, result.QueryFingerprints)
	fmt.Printf("   Confidence: %.1f%%\n", result.Confidence)

	if len(result.Candidates) > 1 {
		fmt.Println("\n   Other candidates:")
		for _, c := range result.Candidates[1:] {
			fmt.Printf("   - %s (%d votes)\n", c.SongID, c.Votes)
		}
	}
}

type scoredSong struct {
	song  models.Song
	score float64
}

// searchSongs ranks songs by Jaro-Winkler similarity of "artist title"
// against query and drops those below searchThreshold. A query contained
// verbatim always matches.
func searchSongs(songs []models.Song, query string) []models.Song {
	query = strings.ToLower(strings.TrimSpace(query))
	jw := metrics.NewJaroWinkler()

	var scored []scoredSong
	for _, s := range songs {
		cand := strings.ToLower(s.Artist + " " + s.Title)
		score := strutil.Similarity(query, cand, jw)
		if t := strutil.Similarity(query, strings.ToLower(s.Title), jw); t > score {
			score = t
		}
		if strings.Contains(cand, query) {
			score = 1
		}
		if score >= searchThreshold {
			scored = append(scored, scoredSong{song: s, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	out := make([]models.Song, len(scored))
	for i, s := range scored {
		out[i] = s.song
	}
	return out
}

func handleList(args []string) {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	search := listCmd.String("search", "", "Fuzzy filter on artist and title")
	listCmd.Parse(args)

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	songs, err := svc.ListSongs(context.Background())
	if err != nil {
		fail("Failed to list songs", err)
	}
	if *search != "" {
		songs = searchSongs(songs, *search)
	}

	if len(songs) == 0 {
		fmt.Println("\n📭 No songs found")
		return
	}

	fmt.Printf("\n📚 Found %s song(s):\n\n", humanize.Comma(int64(len(songs))))
	for i, song := range songs {
		fmt.Printf("%d. \"%s\" by %s (ID: %s)\n", i+1, song.Title, song.Artist, song.ID)
		if song.Album != "" {
			fmt.Printf("   Album: %s", song.Album)
			if song.Track != "" {
				fmt.Printf(" #%s", song.Track)
			}
			fmt.Println()
		}
		if song.Duration > 0 {
			fmt.Printf("   Duration: %s\n", utils.HumanDuration(song.Duration))
		}
		if !song.CreatedAt.IsZero() {
			fmt.Printf("   Added: %s\n", humanize.Time(song.CreatedAt))
		}
		fmt.Println()
	}
}

func handleDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: soundz delete <song_id>")
		os.Exit(1)
	}
	songID := args[0]

	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	ctx := context.Background()

	// Get song info before deletion
	song, err := svc.GetSong(ctx, songID)
	if errors.Is(err, soundz.ErrNotFound) {
		fmt.Printf("❌ Song not found (ID: %s)\n", songID)
		os.Exit(1)
	}
	if err != nil {
		fail("Failed to look up song", err)
	}

	if err := svc.DeleteSong(ctx, songID); err != nil {
		fail("Failed to delete song", err)
	}

	fmt.Printf("\n✅ Successfully deleted song:\n")
	fmt.Printf("   ID:     %s\n", song.ID)
	fmt.Printf("   Title:  %s\n", song.Title)
	fmt.Printf("   Artist: %s\n", song.Artist)
}

func handlePlot(args []string) {
	plotCmd := flag.NewFlagSet("plot", flag.ExitOnError)
	out := plotCmd.String("out", "", "Output PNG path (default: <file>.png)")
	width := plotCmd.Int("width", 2048, "Image width in pixels")
	height := plotCmd.Int("height", 512, "Image height in pixels")
	positional, _ := parseArgs(plotCmd, args)
	audioPath := firstArg(positional)

	if audioPath == "" {
		fmt.Println("Usage: soundz plot <audio_file> [--out <png>]")
		os.Exit(1)
	}
	if *out == "" {
		*out = strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".png"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	buf, err := audio.Decode(ctx, audioPath, tempDir, sampleRate)
	if err != nil {
		fail("Failed to decode audio", err)
	}

	opts := plot.DefaultOptions()
	opts.Width, opts.Height = *width, *height
	res := fingerprint.Generate(buf, opts.Params)

	if err := plot.RenderSpectrogram(buf, res.Peaks, *out, opts); err != nil {
		fail("Failed to render spectrogram", err)
	}

	fmt.Printf("\n✅ Saved spectrogram to %s\n", *out)
	fmt.Printf("   Duration:     %s\n", utils.HumanDuration(buf.Duration()))
	fmt.Printf("   Peaks:        %s\n", humanize.Comma(int64(len(res.Peaks))))
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(int64(len(res.Fingerprints))))
}

func handleStats() {
	svc, err := createService()
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	st, err := svc.Stats(context.Background())
	if err != nil {
		fail("Failed to read stats", err)
	}

	p := svc.Params()
	fmt.Println("\n📊 Database statistics")
	fmt.Printf("   Backend:      %s\n", backend)
	fmt.Printf("   Songs:        %s\n", humanize.Comma(st.Songs))
	fmt.Printf("   Fingerprints: %s\n", humanize.Comma(st.Fingerprints))
	fmt.Printf("   Frame size:   %d (hop %d, %s per frame at %d Hz)\n",
		p.FrameSize, p.Hop(), time.Duration(p.BinSeconds(sampleRate)*float64(time.Second)).Round(time.Microsecond), sampleRate)
}
