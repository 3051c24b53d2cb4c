package postgres

import (
	"context"
	"errors"

	"go-commerce-backend/internal/domain"
	"go-commerce-backend/pkg/apperror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes
const (
	pgUniqueViolation = "23505"
)

type userRepo struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) domain.UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	query := `INSERT INTO users (id, tenant_id, email, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, query, user.ID, user.TenantID, user.Email, user.CreatedAt, user.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperror.Conflict("User with this email already exists")
		}
		return apperror.Internal(err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, `u.id = $1`, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, `u.email = $1`, email)
}

func (r *userRepo) getBy(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := `
		SELECT u.id, u.tenant_id, u.email,
			COALESCE(
				(SELECT array_agg(ur.role ORDER BY ur.granted_at, ur.role)
				 FROM user_roles ur WHERE ur.user_id = u.id),
				'{}'
			),
			u.created_at, u.updated_at
		FROM users u
		WHERE ` + where

	var user domain.User
	var roles []string
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.TenantID, &user.Email, &roles, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	for _, role := range roles {
		user.Roles = append(user.Roles, domain.Role(role))
	}
	return &user, nil
}
