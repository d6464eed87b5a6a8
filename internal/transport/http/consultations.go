package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/as950118/customer-service-coaching/internal/auth"
	"github.com/as950118/customer-service-coaching/internal/common"
	"github.com/as950118/customer-service-coaching/internal/export"
	"github.com/as950118/customer-service-coaching/internal/job"
	"github.com/as950118/customer-service-coaching/internal/models"
	"github.com/as950118/customer-service-coaching/internal/validation"
)

const maxUploadMemory = 32 << 20

func (h *Handlers) submitConsultation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	title := r.FormValue("title")

	var fileHeader *multipart.FileHeader
	if fhs := r.MultipartForm.File["file"]; len(fhs) > 0 {
		fileHeader = fhs[0]
	}

	contentType := ""
	if fileHeader != nil {
		f, err := fileHeader.Open()
		if err != nil {
			http.Error(w, "failed to read file", http.StatusBadRequest)
			return
		}
		// sniff the real content type; the client-declared header is
		// not trusted
		mt, err := mimetype.DetectReader(f)
		f.Close()
		if err == nil {
			contentType = mt.String()
		}
	}

	if validationErrs := validation.ValidateSubmission(title, fileHeader, contentType); len(validationErrs) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   "validation failed",
			"details": validationErrs,
		})
		return
	}

	modality, _ := validation.ModalityFor(contentType)

	file, err := fileHeader.Open()
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	uploadResult, err := h.Storage.UploadFile(r.Context(), fileHeader.Filename, file, contentType)
	if err != nil {
		slog.Error("failed to upload file", "filename", fileHeader.Filename, "error", err)
		http.Error(w, "failed to store file", http.StatusInternalServerError)
		return
	}

	consultation := &models.Consultation{
		UserID:   userID,
		Title:    title,
		FileName: fileHeader.Filename,
		FileKey:  uploadResult.Key,
		FileType: modality,
		Status:   models.StatusPending,
	}

	if err := h.Repo.CreateConsultation(r.Context(), consultation); err != nil {
		slog.Error("failed to create consultation", "error", err)
		http.Error(w, "failed to create consultation", http.StatusInternalServerError)
		return
	}

	j := &job.Job{
		Type:           job.TypeConsultationAnalyze,
		ConsultationID: consultation.ID,
	}
	jobID, err := h.Q.Enqueue(r.Context(), j)
	if err != nil {
		slog.Error("failed to enqueue analysis job", "consultation_id", consultation.ID, "error", err)
		http.Error(w, "enqueue failed", http.StatusServiceUnavailable)
		return
	}

	slog.Info("consultation submitted",
		"consultation_id", consultation.ID,
		"job_id", jobID,
		"user_id", userID,
		"modality", modality)

	respondCreated(w, consultation)
}

// respondCreated answers a successful submission with the full record,
// the same shape reads return.
func respondCreated(w http.ResponseWriter, c *models.Consultation) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(c); err != nil {
		slog.Warn("encode consultation", "err", err)
	}
}

func (h *Handlers) listConsultations(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}

	filter := parseConsultationFilter(r)

	// admins may list across all users
	scope := &userID
	if r.URL.Query().Get("all") == "true" && canReadAll(claims) {
		scope = nil
	}

	consultations, err := h.Repo.ListConsultations(r.Context(), scope, filter)
	if err != nil {
		slog.Error("failed to list consultations", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if consultations == nil {
		consultations = []models.Consultation{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(consultations); err != nil {
		slog.Warn("encode consultations", "err", err)
	}
}

func (h *Handlers) getConsultation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c); err != nil {
		slog.Warn("encode consultation", "err", err)
	}
}

func (h *Handlers) downloadConsultation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	// prefer the archived copy when one exists
	if c.ArchivedURL != nil && *c.ArchivedURL != "" {
		http.Redirect(w, r, *c.ArchivedURL, http.StatusFound)
		return
	}

	// S3-backed files are served through a short-lived presigned URL;
	// local files stream through the server
	if !localStorageMode(h.Config.StorageMode) {
		url, err := h.Storage.GetPresignedURL(r.Context(), c.FileKey, 15*time.Minute)
		if err != nil {
			slog.Warn("presign failed, streaming instead", "consultation_id", c.ID, "error", err)
		} else {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
	}

	rc, contentType, err := h.Storage.GetFile(r.Context(), c.FileKey)
	if err != nil {
		if common.IsNotFound(err) {
			http.Error(w, "file no longer available", http.StatusNotFound)
			return
		}
		slog.Error("failed to fetch file", "consultation_id", c.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.FileName))
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("stream file", "consultation_id", c.ID, "err", err)
	}
}

// deleteConsultation removes the record and its stored file. The file
// delete is best-effort; the record is gone either way.
func (h *Handlers) deleteConsultation(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadAuthorized(w, r)
	if !ok {
		return
	}

	if err := h.Repo.DeleteConsultation(r.Context(), c.ID); err != nil {
		if common.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		slog.Error("failed to delete consultation", "id", c.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.Storage.DeleteFile(r.Context(), c.FileKey); err != nil {
		slog.Warn("failed to delete stored file", "key", c.FileKey, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) adminKPI(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Repo.ConsultationKPI(r.Context())
	if err != nil {
		slog.Error("failed to compute KPI stats", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		slog.Warn("encode kpi", "err", err)
	}
}

func (h *Handlers) exportConsultations(w http.ResponseWriter, r *http.Request) {
	filter := parseConsultationFilter(r)

	consultations, err := h.Repo.ListConsultations(r.Context(), nil, filter)
	if err != nil {
		slog.Error("failed to list consultations for export", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=consultations-%s.xlsx", time.Now().Format("20060102")))
	if err := export.ConsultationsXLSX(consultations, w); err != nil {
		slog.Error("failed to write export", "error", err)
	}
}

// loadAuthorized fetches the consultation in the URL and enforces
// ownership: non-admin callers only see their own.
func (h *Handlers) loadAuthorized(w http.ResponseWriter, r *http.Request) (*models.Consultation, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return nil, false
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "no auth context", http.StatusUnauthorized)
		return nil, false
	}

	c, err := h.Repo.GetConsultationByID(r.Context(), id)
	if err != nil {
		if common.IsNotFound(err) {
			http.Error(w, "not found", http.StatusNotFound)
			return nil, false
		}
		slog.Error("failed to get consultation", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}

	if !canReadAll(claims) {
		userID, err := uuid.Parse(claims.UserID)
		if err != nil || c.UserID != userID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return nil, false
		}
	}

	return c, true
}

func canReadAll(claims *auth.Claims) bool {
	perms := auth.PermsForRoles(claims.Roles)
	if _, ok := perms[auth.PermAdminAll]; ok {
		return true
	}
	_, ok := perms[auth.PermConsultReadAll]
	return ok
}

func parseConsultationFilter(r *http.Request) models.ConsultationFilter {
	q := r.URL.Query()
	filter := models.ConsultationFilter{
		Title:    q.Get("title"),
		Status:   models.Status(q.Get("status")),
		FileType: models.Modality(q.Get("file_type")),
	}
	if v := q.Get("from"); v != "" {
		if ts, err := parseTime(v); err == nil {
			filter.CreatedFrom = &ts
		}
	}
	if v := q.Get("to"); v != "" {
		if ts, err := parseTime(v); err == nil {
			filter.CreatedTo = &ts
		}
	}
	return filter
}

func parseTime(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", v)
}
