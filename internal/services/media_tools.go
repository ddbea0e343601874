package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yungbote/studyloop-backend/internal/logger"
)

// MediaTools shells out to ffmpeg for the audio preprocessing the local
// transcription engines require: mono 16 kHz WAV input.
type MediaTools interface {
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
	NormalizeAudio(ctx context.Context, audioPath string) (string, error)
	Cleanup(paths ...string)
}

type mediaTools struct {
	log        *logger.Logger
	ffmpegPath string
}

func NewMediaTools(log *logger.Logger) MediaTools {
	path := os.Getenv("FFMPEG_PATH")
	if path == "" {
		path = "ffmpeg"
	}
	return &mediaTools{
		log:        log.With("service", "MediaTools"),
		ffmpegPath: path,
	}
}

func (m *mediaTools) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, m.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(out)
		if len(tail) > 2000 {
			tail = tail[len(tail)-2000:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail)
	}
	return nil
}

// ExtractAudio strips the audio track from a video container into an
// intermediate m4a, then converts it to mono 16 kHz WAV. Returns the WAV path;
// the caller owns cleanup of the returned file.
func (m *mediaTools) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	base := strings.TrimSuffix(videoPath, filepath.Ext(videoPath))
	m4aPath := base + ".extracted.m4a"

	if err := m.run(ctx, "-y", "-i", videoPath, "-vn", "-acodec", "copy", m4aPath); err != nil {
		// Some containers carry codecs that cannot be stream-copied into m4a.
		if encErr := m.run(ctx, "-y", "-i", videoPath, "-vn", "-acodec", "aac", m4aPath); encErr != nil {
			return "", encErr
		}
	}
	defer m.Cleanup(m4aPath)

	return m.NormalizeAudio(ctx, m4aPath)
}

// NormalizeAudio converts any audio file to mono 16 kHz PCM WAV.
func (m *mediaTools) NormalizeAudio(ctx context.Context, audioPath string) (string, error) {
	base := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	base = strings.TrimSuffix(base, ".extracted")
	wavPath := base + ".normalized.wav"

	if err := m.run(ctx, "-y", "-i", audioPath, "-ac", "1", "-ar", "16000", "-acodec", "pcm_s16le", wavPath); err != nil {
		return "", err
	}
	return wavPath, nil
}

func (m *mediaTools) Cleanup(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			m.log.Warn("failed to remove temp file", "path", p, "error", err.Error())
		}
	}
}
