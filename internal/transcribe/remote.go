package transcribe

import (
	"context"
	"fmt"
	"strings"
)

// speechClient is the slice of the LLM client the remote strategy needs.
type speechClient interface {
	TranscribeAudio(ctx context.Context, path, language string) (string, error)
}

// Remote delegates speech-to-text to the OpenAI endpoint. The endpoint
// accepts common video containers directly, so no local audio
// extraction is needed.
type Remote struct {
	client   speechClient
	language string
}

func NewRemote(client speechClient, language string) *Remote {
	return &Remote{client: client, language: language}
}

func (r *Remote) SupportsVideo() bool { return true }

func (r *Remote) Transcribe(ctx context.Context, path string, mimeType string) (string, error) {
	text, err := r.client.TranscribeAudio(ctx, path, r.language)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}
