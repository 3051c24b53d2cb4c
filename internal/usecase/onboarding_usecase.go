package usecase

import (
	"context"
	"errors"
	"time"

	"go-commerce-backend/internal/domain"
	"go-commerce-backend/pkg/apperror"
	"go-commerce-backend/pkg/logger"

	"github.com/go-playground/validator/v10"
)

// prewarmTimeout bounds the detached cache pre-warm call
const prewarmTimeout = 3 * time.Second

type onboardingUsecase struct {
	repo     domain.OnboardingRepository
	cache    domain.OnboardingCache
	validate *validator.Validate
}

func NewOnboardingUsecase(repo domain.OnboardingRepository, cache domain.OnboardingCache, validate *validator.Validate) domain.OnboardingUsecase {
	return &onboardingUsecase{
		repo:     repo,
		cache:    cache,
		validate: validate,
	}
}

// ============================================================================
// Status Check (fast path)
// ============================================================================

// CheckStatus answers "what should this user see next" without ever opening
// a transaction. Cache failures degrade to a store read, never to an error.
func (u *onboardingUsecase) CheckStatus(ctx context.Context, userID string) (*domain.OnboardingStatus, error) {
	// Security: Verify context user matches requested user
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}

	cached, err := u.cache.Get(ctx, userID)
	if err != nil {
		// Treated as a miss: a flaky cache must not fail page loads.
		logger.Log.Warn("Onboarding cache read failed, falling through to store", "user_id", userID, "error", err)
	}
	if cached != nil {
		cached.Cached = true
		return &domain.OnboardingStatus{Onboarded: true, Result: cached}, nil
	}

	snap, err := u.repo.GetUserSnapshot(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Internal(err)
	}

	if !domain.IsOnboarded(snap.Roles, snap.Data) {
		// A distinct outcome, not an error: the caller uses it to trigger
		// the mutating path.
		return &domain.OnboardingStatus{Onboarded: false}, nil
	}

	result := &domain.OnboardingResult{
		Success:          true,
		UserID:           userID,
		RedirectTo:       domain.RedirectPath(domain.ResolveInitialRole(snap.Roles, snap.Data)),
		AlreadyOnboarded: true,
		Cached:           false,
	}

	// Best effort: a failed population only costs the next caller a store read
	if err := u.cache.Set(ctx, userID, result); err != nil {
		logger.Log.Warn("Onboarding cache population failed", "user_id", userID, "error", err)
	}

	return &domain.OnboardingStatus{Onboarded: true, Result: result}, nil
}

// ============================================================================
// Perform Onboarding (mutating path)
// ============================================================================

// PerformOnboarding assigns the full role grant and provisions the
// role-specific resource exactly once. Safe to retry and safe under
// concurrent duplicate requests.
func (u *onboardingUsecase) PerformOnboarding(ctx context.Context, userID string, req *domain.OnboardingRequest) (*domain.OnboardingResult, error) {
	if err := requireSelf(ctx, userID); err != nil {
		return nil, err
	}

	if err := u.validate.Struct(req); err != nil {
		return nil, apperror.BadRequest("Validation failed: " + err.Error())
	}
	if !req.Role.IsOnboardable() {
		return nil, apperror.BadRequest("Invalid role: " + string(req.Role))
	}

	outcome, err := u.repo.CompleteOnboarding(ctx, domain.CompleteOnboardingParams{
		UserID:        userID,
		Role:          req.Role,
		BusinessName:  req.BusinessName,
		SurveyAnswers: req.SurveyAnswers,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		// The transaction rolled back; the whole call is safe to retry.
		return nil, apperror.Internal(err)
	}

	result := &domain.OnboardingResult{
		Success:          true,
		UserID:           userID,
		RedirectTo:       domain.RedirectPath(outcome.InitialRole),
		AlreadyOnboarded: outcome.AlreadyOnboarded,
		Cached:           false,
	}

	// This write is not best-effort: a stale "not onboarded" entry would
	// re-trigger provisioning attempts on every page load. The mutation
	// itself committed, so the caller may retry the call safely.
	if err := u.cache.Set(ctx, userID, result); err != nil {
		logger.Log.Error("Onboarding committed but cache write failed", "user_id", userID, "error", err)
		return nil, apperror.ServiceUnavailable("Onboarding saved but cache update failed, please retry", err)
	}

	return result, nil
}

// ============================================================================
// Cache Invalidation & Pre-warm
// ============================================================================

// InvalidateUserCache drops the cached result unconditionally. The cache is
// derived state, so failures are logged and swallowed.
func (u *onboardingUsecase) InvalidateUserCache(ctx context.Context, userID string) {
	if err := u.cache.Delete(ctx, userID); err != nil {
		logger.Log.Warn("Onboarding cache invalidation failed", "user_id", userID, "error", err)
	}
}

// PrewarmUserCache fires a detached status check purely for its
// cache-population side effect. Supervised so a panic cannot take down the
// process, and never reported back to the caller.
func (u *onboardingUsecase) PrewarmUserCache(userID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Error("Onboarding cache pre-warm panicked", "user_id", userID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), prewarmTimeout)
		defer cancel()
		ctx = context.WithValue(ctx, domain.KeyUserID, userID)

		if _, err := u.CheckStatus(ctx, userID); err != nil {
			logger.Log.Warn("Onboarding cache pre-warm failed", "user_id", userID, "error", err)
		}
	}()
}

// requireSelf enforces that the authenticated context user is the one being
// operated on.
func requireSelf(ctx context.Context, userID string) error {
	ctxUserID, ok := ctx.Value(domain.KeyUserID).(string)
	if !ok || ctxUserID == "" {
		return apperror.Unauthorized("User not authenticated")
	}
	if ctxUserID != userID {
		return apperror.Forbidden("You can only manage your own onboarding")
	}
	return nil
}
