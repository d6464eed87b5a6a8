// Package repository is the Postgres persistence layer for users,
// refresh tokens, and consultations.
package repository

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/as950118/customer-service-coaching/internal/common"
	"github.com/as950118/customer-service-coaching/internal/database"
	"github.com/as950118/customer-service-coaching/internal/models"
)

type Repository struct {
	db *database.DB
}

func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *database.DB {
	return r.db
}

func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`

	_, err := r.db.Pool().Exec(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash)
	return err
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	var user models.User
	err := r.db.Pool().QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}

	roles, err := r.GetUserRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	user.Roles = roles

	return &user, nil
}

func (r *Repository) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, username, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := r.db.Pool().QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}

	roles, err := r.GetUserRoles(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	user.Roles = roles

	return &user, nil
}

func (r *Repository) GetUserRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	query := `
		SELECT r.name
		FROM roles r
		INNER JOIN user_roles ur ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}

	return roles, rows.Err()
}

func (r *Repository) AssignRoleToUser(ctx context.Context, userID uuid.UUID, roleName string) error {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE name = $2
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query, userID, roleName)
	return err
}

func (r *Repository) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (r *Repository) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	_, err := r.db.Pool().Exec(ctx, query, token.ID, token.UserID, token.TokenHash, token.ExpiresAt)
	return err
}

func (r *Repository) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, created_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND expires_at > NOW() AND revoked_at IS NULL
	`

	var token models.RefreshToken
	err := r.db.Pool().QueryRow(ctx, query, tokenHash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}

	return &token, nil
}

func (r *Repository) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1
	`

	_, err := r.db.Pool().Exec(ctx, query, tokenHash)
	return err
}

func (r *Repository) HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", hash)
}

func (r *Repository) CreateConsultation(ctx context.Context, c *models.Consultation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.StatusPending
	}

	query := `
		INSERT INTO consultations (id, user_id, title, file_name, file_key, file_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	return r.db.Pool().QueryRow(ctx, query,
		c.ID, c.UserID, c.Title, c.FileName, c.FileKey, c.FileType, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

const consultationColumns = `
	id, user_id, title, file_name, file_key, file_type, status,
	original_content, analysis_result, archived_url,
	created_at, updated_at, completed_at
`

func scanConsultation(row pgx.Row) (*models.Consultation, error) {
	var c models.Consultation
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Title,
		&c.FileName,
		&c.FileKey,
		&c.FileType,
		&c.Status,
		&c.OriginalContent,
		&c.AnalysisResult,
		&c.ArchivedURL,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrConsultationNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) GetConsultationByID(ctx context.Context, id uuid.UUID) (*models.Consultation, error) {
	query := `SELECT ` + consultationColumns + ` FROM consultations WHERE id = $1`
	return scanConsultation(r.db.Pool().QueryRow(ctx, query, id))
}

// buildConsultationListQuery assembles the filtered list query. A nil
// userID lists across all users (admin view).
func buildConsultationListQuery(userID *uuid.UUID, filter models.ConsultationFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if userID != nil {
		add("user_id = $%d", *userID)
	}
	if filter.Title != "" {
		add("title ILIKE $%d", "%"+filter.Title+"%")
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.FileType != "" {
		add("file_type = $%d", filter.FileType)
	}
	if filter.CreatedFrom != nil {
		add("created_at >= $%d", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("created_at <= $%d", *filter.CreatedTo)
	}

	query := `SELECT ` + consultationColumns + ` FROM consultations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	return query, args
}

// ListConsultations returns consultations newest first. userID nil means
// no owner restriction.
func (r *Repository) ListConsultations(ctx context.Context, userID *uuid.UUID, filter models.ConsultationFilter) ([]models.Consultation, error) {
	query, args := buildConsultationListQuery(userID, filter)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}

	return out, rows.Err()
}

// MarkProcessing moves a pending consultation to processing. A
// consultation that already left pending is reported as a conflict so
// duplicate deliveries do not rerun the analysis.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE consultations
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: consultation %s is not pending", common.ErrConflict, id)
	}
	return nil
}

// CompleteConsultation finalizes a successful run. The update is guarded
// on the processing status so terminal rows are never rewritten.
func (r *Repository) CompleteConsultation(ctx context.Context, id uuid.UUID, originalContent, analysisResult string, archivedURL *string) error {
	query := `
		UPDATE consultations
		SET status = 'completed',
		    original_content = $2,
		    analysis_result = $3,
		    archived_url = $4,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, originalContent, analysisResult, archivedURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: consultation %s is not processing", common.ErrConflict, id)
	}
	return nil
}

// FailConsultation finalizes a failed run, storing the diagnostic where
// the analysis result would have gone.
func (r *Repository) FailConsultation(ctx context.Context, id uuid.UUID, diagnostic string) error {
	query := `
		UPDATE consultations
		SET status = 'failed',
		    analysis_result = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, diagnostic)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: consultation %s is already terminal", common.ErrConflict, id)
	}
	return nil
}

// DeleteConsultation removes a consultation row.
func (r *Repository) DeleteConsultation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM consultations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", common.ErrConsultationNotFound, id)
	}
	return nil
}

// ConsultationKPI aggregates dashboard counters across all users.
func (r *Repository) ConsultationKPI(ctx context.Context) (*models.KPIStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'completed' AND completed_at > NOW() - INTERVAL '7 days'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - created_at))) FILTER (WHERE status = 'completed'), 0)
		FROM consultations
	`

	var s models.KPIStats
	err := r.db.Pool().QueryRow(ctx, query).Scan(
		&s.Total,
		&s.Pending,
		&s.Processing,
		&s.Completed,
		&s.Failed,
		&s.CompletedLast7Days,
		&s.AvgProcessingSeconds,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
