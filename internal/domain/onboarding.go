package domain

import (
	"context"
	"errors"
	"time"
)

// ============================================================================
// Roles
// ============================================================================

// Role represents a user role within a tenant
type Role string

const (
	RoleSeller      Role = "SELLER"
	RoleCreator     Role = "CREATOR"
	RoleCustomer    Role = "CUSTOMER"
	RoleAdmin       Role = "ADMIN"
	RoleTenantAdmin Role = "TENANT_ADMIN"
	RoleSuperAdmin  Role = "SUPER_ADMIN"
)

// OnboardableRoles returns the roles a user may choose during onboarding
func OnboardableRoles() []Role {
	return []Role{RoleSeller, RoleCreator, RoleCustomer}
}

// IsOnboardable checks if the role can be selected during onboarding
func (r Role) IsOnboardable() bool {
	for _, valid := range OnboardableRoles() {
		if r == valid {
			return true
		}
	}
	return false
}

// IsAdminClass reports whether the role is administrative. Users holding an
// admin-class role are always considered onboarded.
func (r Role) IsAdminClass() bool {
	return r == RoleAdmin || r == RoleTenantAdmin || r == RoleSuperAdmin
}

// GrantedRoles is the full role set granted on first-time onboarding.
// Product policy: every user gets all three roles so they can switch
// dashboards later without a second onboarding ceremony.
var GrantedRoles = []Role{RoleSeller, RoleCreator, RoleCustomer}

// redirectPaths is the fixed role-to-dashboard mapping
var redirectPaths = map[Role]string{
	RoleSeller:      "/seller",
	RoleCreator:     "/creator",
	RoleCustomer:    "/customer",
	RoleAdmin:       "/tenant-admin",
	RoleTenantAdmin: "/tenant-admin",
	RoleSuperAdmin:  "/tenant-admin",
}

// DefaultRedirectPath is returned for unknown roles
const DefaultRedirectPath = "/dashboard"

// RedirectPath resolves the dashboard path for a role
func RedirectPath(role Role) string {
	if path, ok := redirectPaths[role]; ok {
		return path
	}
	return DefaultRedirectPath
}

// ============================================================================
// Onboarding Data
// ============================================================================

// OnboardingData is the per-user onboarding record. The initial role is a
// reserved, explicitly typed field so it can never collide with survey keys.
type OnboardingData struct {
	InitialRole   Role                   `json:"initialRole,omitempty"`
	SurveyAnswers map[string]interface{} `json:"surveyAnswers,omitempty"`
}

// IsEmpty reports whether the user has never completed onboarding.
// Admin-class users are treated as onboarded regardless, see IsOnboarded.
func (d OnboardingData) IsEmpty() bool {
	return d.InitialRole == "" && len(d.SurveyAnswers) == 0
}

// IsOnboarded is the single onboarded predicate: non-empty onboarding data
// OR an admin-class role. Both the fast path and the transactional path must
// use this exact check.
func IsOnboarded(roles []Role, data OnboardingData) bool {
	if !data.IsEmpty() {
		return true
	}
	for _, role := range roles {
		if role.IsAdminClass() {
			return true
		}
	}
	return false
}

// ResolveInitialRole picks the role that drives the redirect target:
// the recorded initial role, else the first assigned role, else CUSTOMER.
func ResolveInitialRole(roles []Role, data OnboardingData) Role {
	if data.InitialRole != "" {
		return data.InitialRole
	}
	if len(roles) > 0 {
		return roles[0]
	}
	return RoleCustomer
}

// ============================================================================
// Value Objects
// ============================================================================

// OnboardingResult is the single normalized answer to "what should this user
// see next". It is what gets cached and returned to callers, never raw rows.
type OnboardingResult struct {
	Success          bool   `json:"success"`
	UserID           string `json:"userId"`
	RedirectTo       string `json:"redirectTo"`
	AlreadyOnboarded bool   `json:"alreadyOnboarded"`
	Cached           bool   `json:"cached"`
}

// OnboardingStatus is the fast-path outcome. Not-onboarded is a value, not
// an error: callers use it to trigger the mutating path.
type OnboardingStatus struct {
	Onboarded bool              `json:"onboarded"`
	Result    *OnboardingResult `json:"result,omitempty"`
}

// UserSnapshot is the single-roundtrip read model for onboarding decisions
type UserSnapshot struct {
	UserID            string
	TenantID          string
	Email             string
	Roles             []Role
	Data              OnboardingData
	HasCreatorProfile bool
	TenantHasVendor   bool
}

// Vendor is a tenant-scoped storefront resource, at most one per tenant
type Vendor struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Creator is a per-user creator profile
type Creator struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ============================================================================
// Requests
// ============================================================================

// OnboardingRequest is the request payload for performing onboarding
type OnboardingRequest struct {
	Role          Role                   `json:"role" validate:"required"`
	BusinessName  *string                `json:"business_name,omitempty" validate:"omitempty,max=120,valid_name,no_emoji"`
	SurveyAnswers map[string]interface{} `json:"survey_answers,omitempty"`
}

// CompleteOnboardingParams carries the validated inputs into the transaction
type CompleteOnboardingParams struct {
	UserID        string
	Role          Role
	BusinessName  *string
	SurveyAnswers map[string]interface{}
}

// CompletionOutcome is what the transactional path reports back
type CompletionOutcome struct {
	AlreadyOnboarded bool
	InitialRole      Role
}

// ErrUserNotFound signals that the referenced user does not exist in the store
var ErrUserNotFound = errors.New("user not found")

// ============================================================================
// Repository / Cache Interfaces
// ============================================================================

type OnboardingRepository interface {
	// GetUserSnapshot loads user, roles, onboarding data, creator-profile
	// existence and tenant-vendor existence in a single roundtrip.
	// Returns ErrUserNotFound when the user does not exist.
	GetUserSnapshot(ctx context.Context, userID string) (*UserSnapshot, error)

	// CompleteOnboarding runs the idempotent onboarding transaction.
	// If the user is already onboarded the transaction is a pure read.
	CompleteOnboarding(ctx context.Context, params CompleteOnboardingParams) (*CompletionOutcome, error)
}

type OnboardingCache interface {
	// Get returns (nil, nil) on a clean miss. Transport errors are returned
	// to the caller, which decides whether to swallow them.
	Get(ctx context.Context, userID string) (*OnboardingResult, error)
	Set(ctx context.Context, userID string, result *OnboardingResult) error
	Delete(ctx context.Context, userID string) error
}

// ============================================================================
// Usecase Interface
// ============================================================================

type OnboardingUsecase interface {
	// CheckStatus is the read-only fast path, safe on every page load.
	// It never opens a transaction.
	CheckStatus(ctx context.Context, userID string) (*OnboardingStatus, error)

	// PerformOnboarding assigns roles and provisions tenant resources
	// exactly once per user. Idempotent under concurrency.
	PerformOnboarding(ctx context.Context, userID string, req *OnboardingRequest) (*OnboardingResult, error)

	// InvalidateUserCache drops the cached result; failures are swallowed.
	InvalidateUserCache(ctx context.Context, userID string)

	// PrewarmUserCache warms the cache in the background for its side effect
	// only; it must never affect the caller's response.
	PrewarmUserCache(userID string)
}
