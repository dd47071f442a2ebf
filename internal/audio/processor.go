package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/soundz/pkg/models"
	"github.com/himanishpuri/soundz/pkg/utils"
)

const DefaultSampleRate = 44100

type ConvertWAVConfig struct {
	SampleRate int // e.g. 11025, 22050, 44100
	Timeout    time.Duration
}

// ConvertToMonoWAV converts an audio file to mono 16-bit PCM WAV and saves it
// in outputDir under the input's base name with a .wav extension.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	baseName := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, baseName+".wav")

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-vn",
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

// Decode loads any supported recording as a mono buffer at sampleRate. WAV
// files already at that rate are read directly; anything else goes through
// ffmpeg in a scratch directory under tempDir. A sampleRate of 0 accepts a
// WAV at whatever rate it was recorded.
func Decode(ctx context.Context, path, tempDir string, sampleRate int) (models.SampleBuffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		buf, err := ReadWAV(path)
		if err == nil && (sampleRate == 0 || buf.SampleRate == sampleRate) {
			return buf, nil
		}
		if os.IsNotExist(err) {
			return models.SampleBuffer{}, err
		}
	}

	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := utils.MakeDir(tempDir); err != nil {
		return models.SampleBuffer{}, err
	}
	scratch, err := os.MkdirTemp(tempDir, "decode-")
	if err != nil {
		return models.SampleBuffer{}, err
	}
	defer utils.DeleteDir(scratch)

	wavPath, err := ConvertToMonoWAV(ctx, path, scratch, ConvertWAVConfig{SampleRate: sampleRate})
	if err != nil {
		return models.SampleBuffer{}, err
	}
	return ReadWAV(wavPath)
}
