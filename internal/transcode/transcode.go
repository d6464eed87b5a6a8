// Package transcode extracts an audio stream from a video artifact by
// invoking ffmpeg as a subprocess.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ErrTranscode marks any failure of the external media tool: missing
// binary, non-zero exit, or empty output.
var ErrTranscode = errors.New("transcode failed")

type Transcoder struct {
	ffmpegPath string
}

func New(ffmpegPath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{ffmpegPath: ffmpegPath}
}

// Extract converts videoPath into a stereo 44.1kHz mp3 suitable for
// transcription. The returned cleanup removes the temp file and must be
// called once the audio is no longer needed; on error the temp file is
// already gone.
func (t *Transcoder) Extract(ctx context.Context, videoPath string) (string, func(), error) {
	out, err := os.CreateTemp("", "consultation-audio-*.mp3")
	if err != nil {
		return "", nil, fmt.Errorf("%w: create temp output: %w", ErrTranscode, err)
	}
	outPath := out.Name()
	out.Close()

	cleanup := func() {
		if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove temp audio file", "path", outPath, "error", err)
		}
	}

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ac", "2",
		"-ar", "44100",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cleanup()
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return "", nil, fmt.Errorf("%w: ffmpeg: %s", ErrTranscode, diag)
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		cleanup()
		return "", nil, fmt.Errorf("%w: ffmpeg produced no audio output", ErrTranscode)
	}

	slog.Debug("audio extracted", "video", videoPath, "audio", outPath, "size", info.Size())
	return outPath, cleanup, nil
}
