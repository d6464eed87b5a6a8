// Package pipeline runs the consultation analysis flow: fetch the
// uploaded file, turn it into text, ask the model for a structured
// review, and persist the outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/as950118/customer-service-coaching/internal/common"
	"github.com/as950118/customer-service-coaching/internal/llm"
	"github.com/as950118/customer-service-coaching/internal/models"
	"github.com/as950118/customer-service-coaching/internal/prompt"
	"github.com/as950118/customer-service-coaching/internal/report"
	"github.com/as950118/customer-service-coaching/internal/transcribe"
)

type ConsultationStore interface {
	GetConsultationByID(ctx context.Context, id uuid.UUID) (*models.Consultation, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	CompleteConsultation(ctx context.Context, id uuid.UUID, originalContent, analysisResult string, archivedURL *string) error
	FailConsultation(ctx context.Context, id uuid.UUID, diagnostic string) error
}

type FileStore interface {
	GetFile(ctx context.Context, key string) (io.ReadCloser, string, error)
}

type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// MediaTranscoder extracts the audio track of a video file.
type MediaTranscoder interface {
	Extract(ctx context.Context, videoPath string) (string, func(), error)
}

// Archiver mirrors the original upload to long-term storage.
type Archiver interface {
	Upload(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
}

type Analyzer struct {
	store       ConsultationStore
	files       FileStore
	generator   Generator
	transcriber transcribe.Transcriber
	transcoder  MediaTranscoder
	archiver    Archiver // nil when archival is disabled
	jsonOutput  bool
}

func NewAnalyzer(store ConsultationStore, files FileStore, gen Generator, tr transcribe.Transcriber, tc MediaTranscoder, arc Archiver, jsonOutput bool) *Analyzer {
	return &Analyzer{
		store:       store,
		files:       files,
		generator:   gen,
		transcriber: tr,
		transcoder:  tc,
		archiver:    arc,
		jsonOutput:  jsonOutput,
	}
}

// HandleAnalyzeJob is the queue handler for one consultation. Terminal
// consultations are skipped so duplicate deliveries are harmless.
func (a *Analyzer) HandleAnalyzeJob(ctx context.Context, consultationID uuid.UUID) error {
	log := slog.With("consultation_id", consultationID)

	c, err := a.store.GetConsultationByID(ctx, consultationID)
	if err != nil {
		return fmt.Errorf("load consultation: %w", err)
	}
	if c.Status.Terminal() {
		log.Info("consultation already terminal, skipping", "status", c.Status)
		return nil
	}

	if err := a.store.MarkProcessing(ctx, consultationID); err != nil {
		if common.IsConflict(err) {
			log.Info("consultation picked up elsewhere, skipping")
			return nil
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	originalContent, analysisResult, degraded, err := a.analyze(ctx, c)
	if err != nil {
		log.Error("analysis failed", "error", err)
		diagnostic := failureDiagnostic(err)
		pctx, cancel := persistContext(ctx)
		defer cancel()
		if ferr := a.store.FailConsultation(pctx, consultationID, diagnostic); ferr != nil {
			log.Error("failed to persist failure", "error", ferr)
			return ferr
		}
		return nil
	}

	archivedURL := a.archiveOriginal(ctx, c)

	pctx, cancel := persistContext(ctx)
	defer cancel()
	if err := a.store.CompleteConsultation(pctx, consultationID, originalContent, analysisResult, archivedURL); err != nil {
		log.Error("failed to persist completion", "error", err)
		return err
	}

	log.Info("consultation analyzed", "modality", c.FileType, "degraded", degraded)
	return nil
}

// analyze produces the consultation text and the normalized analysis.
// degraded means the model answer was stored as raw text.
func (a *Analyzer) analyze(ctx context.Context, c *models.Consultation) (content, result string, degraded bool, err error) {
	content, err = a.extractContent(ctx, c)
	if err != nil {
		return "", "", false, err
	}

	raw, err := a.generator.Generate(ctx, llm.Request{
		System:       prompt.System(),
		Prompt:       prompt.Analysis(c.Title, content, c.FileType),
		JSONResponse: a.jsonOutput,
	})
	if err != nil {
		return "", "", false, err
	}

	result, degraded = report.Normalize(raw)
	return content, result, degraded, nil
}

// extractContent turns the uploaded file into plain text according to
// its modality.
func (a *Analyzer) extractContent(ctx context.Context, c *models.Consultation) (string, error) {
	rc, contentType, err := a.files.GetFile(ctx, c.FileKey)
	if err != nil {
		return "", fmt.Errorf("fetch file %s: %w", c.FileKey, err)
	}
	defer rc.Close()

	switch c.FileType {
	case models.ModalityText:
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return string(data), nil

	case models.ModalityAudio:
		path, cleanup, err := saveToTemp(rc, c.FileName)
		if err != nil {
			return "", err
		}
		defer cleanup()
		return a.transcriber.Transcribe(ctx, path, contentType)

	case models.ModalityVideo:
		path, cleanup, err := saveToTemp(rc, c.FileName)
		if err != nil {
			return "", err
		}
		defer cleanup()

		if a.transcriber.SupportsVideo() {
			return a.transcriber.Transcribe(ctx, path, contentType)
		}

		audioPath, audioCleanup, err := a.transcoder.Extract(ctx, path)
		if err != nil {
			return "", err
		}
		defer audioCleanup()
		return a.transcriber.Transcribe(ctx, audioPath, "audio/mpeg")

	default:
		return "", fmt.Errorf("%w: %s", common.ErrUnsupportedModality, c.FileType)
	}
}

// archiveOriginal mirrors the upload to the archive bucket. Any failure
// is logged and swallowed; the analysis outcome stands either way.
func (a *Analyzer) archiveOriginal(ctx context.Context, c *models.Consultation) *string {
	if a.archiver == nil {
		return nil
	}

	rc, contentType, err := a.files.GetFile(ctx, c.FileKey)
	if err != nil {
		slog.Warn("archival skipped, file unavailable", "consultation_id", c.ID, "error", err)
		return nil
	}
	defer rc.Close()

	url, err := a.archiver.Upload(ctx, c.FileKey, rc, contentType)
	if err != nil {
		slog.Warn("archival failed", "consultation_id", c.ID, "error", err)
		return nil
	}
	return &url
}

// persistContext detaches from the job context so a terminal outcome is
// recorded even when the job already hit its timeout or a shutdown
// cancel. Without this a consultation would sit in processing forever.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
}

// failureDiagnostic renders the user-facing failure text stored in
// place of the analysis result.
func failureDiagnostic(err error) string {
	if errors.Is(err, llm.ErrQuotaExceeded) {
		return fmt.Sprintf("❌ **API 할당량 초과**\n\n%s\n\n상세 에러: %v", llm.QuotaRemediation, err)
	}
	return fmt.Sprintf("❌ **분석 실패**\n\n에러: %v", err)
}

// saveToTemp spools a stored file to disk so subprocess tools can read
// it. The temp name keeps the upload's extension.
func saveToTemp(r io.Reader, fileName string) (string, func(), error) {
	ext := filepath.Ext(fileName)
	if ext == "" {
		ext = ".bin"
	}
	f, err := os.CreateTemp("", "consultation-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove temp file", "path", f.Name(), "error", err)
		}
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("spool file to disk: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("flush temp file: %w", err)
	}

	return f.Name(), cleanup, nil
}
