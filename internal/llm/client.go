// Package llm wraps the OpenAI backend with quota-aware retry. Only
// quota/rate exhaustion is retried; every other failure surfaces
// immediately.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/as950118/customer-service-coaching/internal/prompt"
)

var (
	// ErrQuotaExceeded means the backend kept signalling quota/rate
	// exhaustion until the retry budget ran out.
	ErrQuotaExceeded = errors.New("llm quota exceeded")
	// ErrGenerate covers every non-quota backend failure.
	ErrGenerate = errors.New("llm request failed")
	// ErrEmptyResponse means the backend answered with no choices.
	ErrEmptyResponse = errors.New("llm returned empty response")
)

// QuotaRemediation is appended to quota failures so the stored
// diagnostic tells the user what to do about it.
const QuotaRemediation = `해결 방법:
1. 잠시 후 다시 시도하세요 (보통 몇 분 후 재사용 가능)
2. 사용량 대시보드에서 할당량을 확인하세요
3. 유료 플랜으로 업그레이드를 고려하세요
4. 더 작은 모델 사용을 고려하세요`

// Request is a single generation call.
type Request struct {
	System       string
	Prompt       string
	JSONResponse bool // ask the backend for a strict JSON object
}

// SleepFunc suspends the calling goroutine, honoring ctx cancellation.
// Injected so retry behavior is testable without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backend is the slice of the OpenAI client the Client uses; narrowed
// for tests.
type backend interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

type Client struct {
	api          backend
	model        string
	maxRetries   int
	initialDelay time.Duration
	sleep        SleepFunc
}

type Option func(*Client)

func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

func WithBackend(b backend) Option {
	return func(c *Client) { c.api = b }
}

func NewClient(apiKey, model string, maxRetries int, initialDelay time.Duration, opts ...Option) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	c := &Client{
		api:          openai.NewClient(apiKey),
		model:        model,
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		sleep:        defaultSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate runs one chat completion with quota-aware retry and returns
// the raw text of the first choice.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	ccReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	}
	if req.JSONResponse {
		ccReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var text string
	err := c.withQuotaRetry(ctx, "generate", func() error {
		resp, err := c.api.CreateChatCompletion(ctx, ccReq)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyResponse
		}
		text = resp.Choices[0].Message.Content
		slog.Info("llm response received", "model", resp.Model, "tokens_used", resp.Usage.TotalTokens, "response_length", len(text))
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// TranscribeAudio sends an audio file to the speech-to-text endpoint,
// with the same quota-aware retry as Generate. The fixed
// transcription-only instruction steers the model away from analyzing.
func (c *Client) TranscribeAudio(ctx context.Context, path, language string) (string, error) {
	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
		Language: language,
		Prompt:   prompt.Transcription(),
	}

	var text string
	err := c.withQuotaRetry(ctx, "transcribe", func() error {
		resp, err := c.api.CreateTranscription(ctx, req)
		if err != nil {
			return err
		}
		text = resp.Text
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// withQuotaRetry runs op up to maxRetries times, sleeping between
// quota-exhaustion failures. A backend-suggested wait is honored
// exactly; otherwise the delay doubles from initialDelay. Only the
// calling goroutine blocks during the wait.
func (c *Client) withQuotaRetry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 5 * time.Minute
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		suggested, quota := quotaSignal(err)
		if !quota {
			return fmt.Errorf("%w: %w", ErrGenerate, err)
		}
		lastErr = err

		if attempt == c.maxRetries {
			break
		}

		wait := suggested
		if wait <= 0 {
			wait = bo.NextBackOff()
		}
		slog.Warn("llm quota exhausted, retrying", "op", op, "attempt", attempt, "max_retries", c.maxRetries, "wait", wait)
		if serr := c.sleep(ctx, wait); serr != nil {
			return fmt.Errorf("%w: %w", ErrGenerate, serr)
		}
	}

	return fmt.Errorf("%w after %d attempts: %v\n\n%s", ErrQuotaExceeded, c.maxRetries, lastErr, QuotaRemediation)
}

var retryAfterRe = regexp.MustCompile(`(?i)try again in ([0-9.]+) ?(ms|s)`)

// quotaSignal reports whether err is a quota/rate exhaustion signal and
// the wait the backend suggested, if any.
func quotaSignal(err error) (time.Duration, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return suggestedWait(apiErr.Message), true
		}
		if code, ok := apiErr.Code.(string); ok && (code == "insufficient_quota" || code == "rate_limit_exceeded") {
			return suggestedWait(apiErr.Message), true
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return suggestedWait(reqErr.Error()), true
	}
	return 0, false
}

// suggestedWait extracts a "try again in Ns" hint from a backend error
// message; zero when absent.
func suggestedWait(msg string) time.Duration {
	m := retryAfterRe.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[2] == "ms" {
		return time.Duration(v * float64(time.Millisecond))
	}
	return time.Duration(v * float64(time.Second))
}
