package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andalan-id/service-center-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, active, last_login, created_at, updated_at`

// UserRepository persists users and refresh tokens.
type UserRepository struct {
	db    *sqlx.DB
	guard string
}

// NewUserRepository constructs the repository. Role names are loaded within
// the given guard scope.
func NewUserRepository(db *sqlx.DB, guard string) *UserRepository {
	return &UserRepository{db: db, guard: guard}
}

// FindByEmail fetches a user and their role names.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, translateDBError(err, "user not found")
	}
	if err := r.loadRoles(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID fetches a user and their role names.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, translateDBError(err, "user not found")
	}
	if err := r.loadRoles(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) loadRoles(ctx context.Context, user *models.User) error {
	const query = `SELECT r.name FROM roles r
	JOIN user_roles ur ON ur.role_id = r.id
	WHERE ur.user_id = $1 AND r.guard = $2 ORDER BY r.name`
	if err := r.db.SelectContext(ctx, &user.Roles, query, user.ID, r.guard); err != nil {
		return translateDBError(fmt.Errorf("load user roles: %w", err), "")
	}
	return nil
}

// UpdateLastLogin stamps the last successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $1, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, ts, id); err != nil {
		return translateDBError(fmt.Errorf("update last login: %w", err), "")
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, passwordHash, updatedAt, id); err != nil {
		return translateDBError(fmt.Errorf("update password: %w", err), "")
	}
	return nil
}

// CreateRefreshToken persists a long-lived credential.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
	VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, token); err != nil {
		return translateDBError(fmt.Errorf("create refresh token: %w", err), "")
	}
	return nil
}

// FindRefreshToken looks up a refresh token by value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
	FROM refresh_tokens WHERE token = $1`
	var refreshToken models.RefreshToken
	if err := r.db.GetContext(ctx, &refreshToken, query, token); err != nil {
		return nil, translateDBError(err, "refresh token not found")
	}
	return &refreshToken, nil
}

// RevokeRefreshToken marks a single token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, revokedAt, id); err != nil {
		return translateDBError(fmt.Errorf("revoke refresh token: %w", err), "")
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live token for a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return translateDBError(fmt.Errorf("revoke user refresh tokens: %w", err), "")
	}
	return nil
}
