// Package transcribe turns consultation audio into text. Two strategies
// exist: a local whisper-cli subprocess and delegation to the OpenAI
// speech-to-text endpoint.
package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/as950118/customer-service-coaching/internal/config"
	"github.com/as950118/customer-service-coaching/internal/llm"
)

var (
	// ErrTranscription covers any speech-to-text failure.
	ErrTranscription = errors.New("transcription failed")
	// ErrNoSpeech means the engine ran fine but produced no text.
	ErrNoSpeech = errors.New("no speech recognized")
)

// Transcriber converts an audio or video file on disk into plain text.
// SupportsVideo reports whether the engine accepts video containers
// directly; when false the caller must extract the audio track first.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, mimeType string) (string, error)
	SupportsVideo() bool
}

// New selects the strategy named by cfg.TranscriberMode.
func New(cfg *config.Config, client *llm.Client) (Transcriber, error) {
	switch cfg.TranscriberMode {
	case "local":
		return NewLocal(cfg.WhisperBin, cfg.WhisperModel, cfg.TranscribeLang), nil
	case "remote":
		return NewRemote(client, cfg.TranscribeLang), nil
	default:
		return nil, fmt.Errorf("unknown transcriber mode %q", cfg.TranscriberMode)
	}
}
