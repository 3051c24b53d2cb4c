package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-commerce-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// vendorNameSuffix is appended to the email local-part when a seller
// onboards without supplying a business name.
const vendorNameSuffix = "'s Store"

type onboardingRepo struct {
	db          *pgxpool.Pool
	lockWait    time.Duration
	execTimeout time.Duration
}

func NewOnboardingRepository(db *pgxpool.Pool, lockWait, execTimeout time.Duration) domain.OnboardingRepository {
	return &onboardingRepo{
		db:          db,
		lockWait:    lockWait,
		execTimeout: execTimeout,
	}
}

// snapshotQuery loads everything the onboarding decision needs in one
// roundtrip: the user row, aggregated roles, onboarding data, creator-profile
// existence and tenant-vendor existence.
const snapshotQuery = `
	SELECT u.id, u.tenant_id, u.email, u.onboarding_data,
		COALESCE(
			(SELECT array_agg(ur.role ORDER BY ur.granted_at, ur.role)
			 FROM user_roles ur WHERE ur.user_id = u.id),
			'{}'
		),
		EXISTS(SELECT 1 FROM creators c WHERE c.user_id = u.id),
		EXISTS(SELECT 1 FROM vendors v WHERE v.tenant_id = u.tenant_id LIMIT 1)
	FROM users u
	WHERE u.id = $1
`

func scanSnapshot(row pgx.Row) (*domain.UserSnapshot, error) {
	var snap domain.UserSnapshot
	var dataJSON []byte
	var roles []string

	err := row.Scan(
		&snap.UserID, &snap.TenantID, &snap.Email, &dataJSON,
		&roles, &snap.HasCreatorProfile, &snap.TenantHasVendor,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user snapshot: %w", err)
	}

	for _, r := range roles {
		snap.Roles = append(snap.Roles, domain.Role(r))
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &snap.Data); err != nil {
			return nil, fmt.Errorf("failed to decode onboarding data: %w", err)
		}
	}

	return &snap, nil
}

// ============================================================================
// Fast Path Read
// ============================================================================

func (r *onboardingRepo) GetUserSnapshot(ctx context.Context, userID string) (*domain.UserSnapshot, error) {
	return scanSnapshot(r.db.QueryRow(ctx, snapshotQuery, userID))
}

// ============================================================================
// Complete Onboarding (Atomic Transaction)
// ============================================================================

func (r *onboardingRepo) CompleteOnboarding(ctx context.Context, params domain.CompleteOnboardingParams) (*domain.CompletionOutcome, error) {
	// Bound total transaction execution; a stuck transaction must fail fast
	// rather than hold a pool connection.
	ctx, cancel := context.WithTimeout(ctx, r.execTimeout)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // Rollback if not committed

	// Bound how long we block on the user row lock held by a concurrent call
	_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%d'", r.lockWait.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}

	// Re-read the user inside the transaction, locking the row. Pre-transaction
	// reads cannot be trusted: a concurrent call may have onboarded this user
	// between the fast path and here. The row lock serializes racing calls so
	// the loser observes the winner's committed state.
	snap, err := scanSnapshot(tx.QueryRow(ctx, snapshotQuery+" FOR UPDATE OF u", params.UserID))
	if err != nil {
		return nil, err
	}

	// Already onboarded: the transaction stays a pure read, nothing mutates.
	if domain.IsOnboarded(snap.Roles, snap.Data) {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return &domain.CompletionOutcome{
			AlreadyOnboarded: true,
			InitialRole:      domain.ResolveInitialRole(snap.Roles, snap.Data),
		}, nil
	}

	// 1. Replace the role set with the full grant. Delete+insert under the
	// row lock keeps the replacement all-or-nothing; ON CONFLICT makes a
	// duplicate race harmless even without the lock.
	if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, params.UserID); err != nil {
		return nil, fmt.Errorf("failed to clear existing roles: %w", err)
	}
	for _, role := range domain.GrantedRoles {
		_, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role, granted_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_id, role) DO NOTHING
		`, params.UserID, string(role))
		if err != nil {
			return nil, fmt.Errorf("failed to grant role %s: %w", role, err)
		}
	}

	// 2. Write onboarding data with the reserved initialRole field set to the
	// caller's chosen role. This is what flips the onboarded predicate.
	data := domain.OnboardingData{
		InitialRole:   params.Role,
		SurveyAnswers: params.SurveyAnswers,
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode onboarding data: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE users SET onboarding_data = $2, updated_at = NOW() WHERE id = $1
	`, params.UserID, dataJSON); err != nil {
		return nil, fmt.Errorf("failed to save onboarding data: %w", err)
	}

	// 3. Conditionally provision the single role-specific side resource.
	switch params.Role {
	case domain.RoleCreator:
		if !snap.HasCreatorProfile {
			_, err := tx.Exec(ctx, `
				INSERT INTO creators (user_id, display_name, created_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (user_id) DO NOTHING
			`, params.UserID, resourceName(params.BusinessName, snap.Email, ""))
			if err != nil {
				return nil, fmt.Errorf("failed to create creator profile: %w", err)
			}
		}
	case domain.RoleSeller:
		if !snap.TenantHasVendor {
			_, err := tx.Exec(ctx, `
				INSERT INTO vendors (id, tenant_id, name, created_at)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (tenant_id) DO NOTHING
			`, uuid.NewString(), snap.TenantID, resourceName(params.BusinessName, snap.Email, vendorNameSuffix))
			if err != nil {
				return nil, fmt.Errorf("failed to create vendor: %w", err)
			}
		}
	case domain.RoleCustomer:
		// No side resource.
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &domain.CompletionOutcome{
		AlreadyOnboarded: false,
		InitialRole:      params.Role,
	}, nil
}

// resourceName picks the caller-supplied business name, falling back to a
// deterministic name derived from the email local-part.
func resourceName(businessName *string, email, suffix string) string {
	if businessName != nil && strings.TrimSpace(*businessName) != "" {
		return strings.TrimSpace(*businessName)
	}
	local := email
	if i := strings.Index(email, "@"); i > 0 {
		local = email[:i]
	}
	return local + suffix
}
