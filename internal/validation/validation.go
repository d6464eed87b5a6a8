// Package validation checks consultation submissions before anything is
// stored or enqueued.
package validation

import (
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/as950118/customer-service-coaching/internal/models"
)

const (
	MaxTitleLength = 255
	MaxFileSize    = 200 << 20 // 200mb, large enough for call recordings
)

// modality by detected content type prefix; anything else is rejected
var mimeToModality = map[string]models.Modality{
	"text/":            models.ModalityText,
	"application/json": models.ModalityText,
	"audio/":           models.ModalityAudio,
	"video/":           models.ModalityVideo,
}

// ModalityFor maps a sniffed content type to the consultation modality.
func ModalityFor(contentType string) (models.Modality, bool) {
	base := contentType
	if idx := strings.IndexByte(base, ';'); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	for prefix, m := range mimeToModality {
		if strings.HasPrefix(base, prefix) {
			return m, true
		}
	}
	return "", false
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// ValidateSubmission checks the consultation form fields. contentType is
// the sniffed type of the uploaded file, not the client-declared one.
func ValidateSubmission(title string, file *multipart.FileHeader, contentType string) ValidationErrors {
	var errors ValidationErrors

	title = strings.TrimSpace(title)
	if title == "" {
		errors = append(errors, ValidationError{
			Field:   "title",
			Message: "title is required",
		})
	} else if len(title) > MaxTitleLength {
		errors = append(errors, ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("title exceeds maximum length of %d characters", MaxTitleLength),
		})
	}

	if file == nil {
		errors = append(errors, ValidationError{
			Field:   "file",
			Message: "a consultation file must be provided",
		})
		return errors
	}

	if file.Size == 0 {
		errors = append(errors, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s is empty", file.Filename),
		})
	}

	if file.Size > MaxFileSize {
		errors = append(errors, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s exceeds maximum size of %d bytes", file.Filename, MaxFileSize),
		})
	}

	if _, ok := ModalityFor(contentType); !ok {
		errors = append(errors, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s has unsupported content type: %s", file.Filename, contentType),
		})
	}

	return errors
}
