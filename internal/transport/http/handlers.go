// Package http exposes the REST and SSE surface of the service.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/as950118/customer-service-coaching/internal/auth"
	"github.com/as950118/customer-service-coaching/internal/config"
	"github.com/as950118/customer-service-coaching/internal/memq"
	"github.com/as950118/customer-service-coaching/internal/models"
	"github.com/as950118/customer-service-coaching/internal/progress"
	"github.com/as950118/customer-service-coaching/internal/redis"
	"github.com/as950118/customer-service-coaching/internal/repository"
	"github.com/as950118/customer-service-coaching/internal/storage"
)

type Handlers struct {
	Q        memq.JobQueue
	Repo     *repository.Repository
	Storage  storage.Storage
	Redis    *redis.Service
	Notifier *progress.Notifier
	Config   config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)

	r.Group(func(r chi.Router) {
		r.Post("/v1/auth/register", h.register)
		r.Post("/v1/auth/login", h.login)
		r.Post("/v1/auth/refresh", h.refresh)
	})

	// static file serving for local storage
	if localStorageMode(h.Config.StorageMode) {
		r.Get("/files/*", h.serveFiles)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.JWTMiddleware(h.Config.JWTSecret, h.Config.JWTIssuer))

		r.Post("/v1/auth/logout", h.logout)

		r.With(
			auth.RequirePerm(auth.PermConsultSubmit),
			httprate.LimitByIP(10, time.Minute),
		).Post("/v1/consultations", h.submitConsultation)

		r.With(auth.RequirePerm(auth.PermConsultSubmit)).Delete("/v1/consultations/{id}", h.deleteConsultation)

		r.With(auth.RequirePerm(auth.PermConsultReadOwn)).Get("/v1/consultations", h.listConsultations)
		r.With(auth.RequirePerm(auth.PermConsultReadOwn)).Get("/v1/consultations/{id}", h.getConsultation)
		r.With(auth.RequirePerm(auth.PermConsultReadOwn)).Get("/v1/consultations/{id}/stream", h.streamConsultation)
		r.With(auth.RequirePerm(auth.PermConsultReadOwn)).Get("/v1/consultations/{id}/download", h.downloadConsultation)
		r.With(auth.RequirePerm(auth.PermConsultReadOwn)).Get("/v1/jobs/{id}", h.getJob)

		r.With(auth.RequirePerm(auth.PermAdminAll)).Get("/v1/admin/kpi", h.adminKPI)
		r.With(auth.RequirePerm(auth.PermAdminAll)).Get("/v1/admin/consultations/export", h.exportConsultations)
	})
}

var validate = validator.New()

func localStorageMode(mode string) bool {
	return mode == "local" || mode == "filesystem"
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	passwordHash, err := h.Repo.HashPassword(req.Password)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}

	if err := h.Repo.CreateUser(r.Context(), user); err != nil {
		if strings.Contains(err.Error(), "unique constraint") || strings.Contains(err.Error(), "duplicate key") {
			http.Error(w, "username or email already exists", http.StatusConflict)
			return
		}
		slog.Error("failed to create user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.Repo.AssignRoleToUser(r.Context(), user.ID, "user"); err != nil {
		slog.Error("failed to assign role to user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "user registered successfully",
		"user_id": user.ID,
	})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validate.Struct(req); err != nil {
		http.Error(w, "email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.Repo.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Warn("login attempt with invalid email", "email", req.Email)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if !h.Repo.CheckPassword(req.Password, user.PasswordHash) {
		slog.Warn("login attempt with invalid password", "email", req.Email)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tokens, err := auth.NewTokenPair(
		h.Config.JWTSecret,
		h.Config.JWTIssuer,
		user.ID,
		user.Roles,
		h.Config.JWTTTLAccess,
		h.Config.JWTTTLRefresh,
	)
	if err != nil {
		slog.Error("failed to create token pair", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	tokenHash := h.Repo.HashRefreshToken(tokens.RefreshToken)

	if err := h.Redis.StoreRefreshToken(r.Context(), user.ID.String(), tokenHash, h.Config.JWTTTLRefresh); err != nil {
		slog.Error("failed to store refresh token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	refreshToken := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: time.Now().Add(h.Config.JWTTTLRefresh),
	}

	if err := h.Repo.CreateRefreshToken(r.Context(), refreshToken); err != nil {
		slog.Error("failed to create refresh token record", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokens)
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.RefreshToken == "" {
		http.Error(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	tokenHash := h.Repo.HashRefreshToken(req.RefreshToken)

	userID, err := h.Redis.GetRefreshTokenUserID(r.Context(), tokenHash)
	if err != nil {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	userUUID, err := uuid.Parse(userID)
	if err != nil {
		slog.Error("invalid user ID from refresh token", "user_id", userID)
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	user, err := h.Repo.GetUserByID(r.Context(), userUUID)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}

	tokens, err := auth.NewTokenPair(
		h.Config.JWTSecret,
		h.Config.JWTIssuer,
		user.ID,
		user.Roles,
		h.Config.JWTTTLAccess,
		h.Config.JWTTTLRefresh,
	)
	if err != nil {
		slog.Error("failed to create token pair", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.Redis.RevokeRefreshToken(r.Context(), tokenHash); err != nil {
		slog.Error("failed to revoke old refresh token", "error", err)
	}

	newTokenHash := h.Repo.HashRefreshToken(tokens.RefreshToken)
	if err := h.Redis.StoreRefreshToken(r.Context(), user.ID.String(), newTokenHash, h.Config.JWTTTLRefresh); err != nil {
		slog.Error("failed to store new refresh token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	newRefreshToken := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: newTokenHash,
		ExpiresAt: time.Now().Add(h.Config.JWTTTLRefresh),
	}

	if err := h.Repo.CreateRefreshToken(r.Context(), newRefreshToken); err != nil {
		slog.Error("failed to create new refresh token record", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokens)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.RefreshToken != "" {
		tokenHash := h.Repo.HashRefreshToken(req.RefreshToken)
		if err := h.Redis.RevokeRefreshToken(r.Context(), tokenHash); err != nil {
			slog.Error("failed to revoke refresh token", "error", err)
		}
		if err := h.Repo.RevokeRefreshToken(r.Context(), tokenHash); err != nil {
			slog.Error("failed to revoke refresh token in db", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "logged out successfully"})
}

func (h *Handlers) serveFiles(w http.ResponseWriter, r *http.Request) {
	filePath := strings.TrimPrefix(r.URL.Path, "/files/")
	if filePath == "" {
		http.Error(w, "file path required", http.StatusBadRequest)
		return
	}

	if strings.Contains(filePath, "..") {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}

	fullPath := filepath.Join(h.Config.LocalStorageDir, filePath)
	http.ServeFile(w, r, fullPath)
}

func (h *Handlers) getJob(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	j, ok := h.Q.Status(r.Context(), id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err := json.NewEncoder(w).Encode(j); err != nil {
		slog.Warn("encode job", "err", err)
	}
}
