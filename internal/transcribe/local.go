package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Local runs whisper-cli against a model file on disk. The model is
// validated once, on first use, so construction stays cheap.
type Local struct {
	binPath   string
	modelPath string
	language  string

	checkOnce sync.Once
	checkErr  error
}

func NewLocal(binPath, modelPath, language string) *Local {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &Local{binPath: binPath, modelPath: modelPath, language: language}
}

// SupportsVideo is false: whisper-cli wants a bare audio stream, so
// video uploads need their audio extracted first.
func (l *Local) SupportsVideo() bool { return false }

func (l *Local) Transcribe(ctx context.Context, path string, mimeType string) (string, error) {
	l.checkOnce.Do(func() {
		if l.modelPath == "" {
			l.checkErr = fmt.Errorf("%w: whisper model path not configured", ErrTranscription)
			return
		}
		if _, err := os.Stat(l.modelPath); err != nil {
			l.checkErr = fmt.Errorf("%w: whisper model %s: %v", ErrTranscription, l.modelPath, err)
		}
	})
	if l.checkErr != nil {
		return "", l.checkErr
	}

	args := []string{
		"-m", l.modelPath,
		"-f", path,
		"--no-timestamps",
	}
	if l.language != "" {
		args = append(args, "-l", l.language)
	}

	cmd := exec.CommandContext(ctx, l.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return "", fmt.Errorf("%w: whisper-cli: %s", ErrTranscription, diag)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", ErrNoSpeech
	}
	slog.Debug("local transcription finished", "path", path, "chars", len(text))
	return text, nil
}
