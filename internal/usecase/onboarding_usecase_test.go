package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go-commerce-backend/internal/domain"
	"go-commerce-backend/internal/usecase"
	"go-commerce-backend/pkg/apperror"
	"go-commerce-backend/pkg/logger"
	"go-commerce-backend/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init()
	m.Run()
}

// ctxFor builds an authenticated request context for a user
func ctxFor(userID string) context.Context {
	return context.WithValue(context.Background(), domain.KeyUserID, userID)
}

func strPtr(s string) *string { return &s }

// ============================================================================
// Mocks
// ============================================================================

type MockOnboardingRepo struct {
	mock.Mock
}

func (m *MockOnboardingRepo) GetUserSnapshot(ctx context.Context, userID string) (*domain.UserSnapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSnapshot), args.Error(1)
}

func (m *MockOnboardingRepo) CompleteOnboarding(ctx context.Context, params domain.CompleteOnboardingParams) (*domain.CompletionOutcome, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CompletionOutcome), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, userID string) (*domain.OnboardingResult, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OnboardingResult), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, userID string, result *domain.OnboardingResult) error {
	return m.Called(ctx, userID, result).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// ============================================================================
// Status Check (fast path)
// ============================================================================

func TestCheckStatusCacheHit(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	cache.On("Get", mock.Anything, "u1").Return(&domain.OnboardingResult{
		Success:          true,
		UserID:           "u1",
		RedirectTo:       "/seller",
		AlreadyOnboarded: true,
	}, nil)

	status, err := uc.CheckStatus(ctxFor("u1"), "u1")

	require.NoError(t, err)
	assert.True(t, status.Onboarded)
	assert.True(t, status.Result.Cached)
	assert.Equal(t, "/seller", status.Result.RedirectTo)
	// Cache hit must never touch the store
	repo.AssertNotCalled(t, "GetUserSnapshot", mock.Anything, mock.Anything)
}

func TestCheckStatusCacheFailureFallsThrough(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	cache.On("Get", mock.Anything, "u1").Return(nil, errors.New("connection refused"))
	cache.On("Set", mock.Anything, "u1", mock.Anything).Return(errors.New("connection refused"))
	repo.On("GetUserSnapshot", mock.Anything, "u1").Return(&domain.UserSnapshot{
		UserID:   "u1",
		TenantID: "t1",
		Roles:    []domain.Role{domain.RoleSeller, domain.RoleCreator, domain.RoleCustomer},
		Data:     domain.OnboardingData{InitialRole: domain.RoleSeller},
	}, nil)

	status, err := uc.CheckStatus(ctxFor("u1"), "u1")

	// An unreachable cache never surfaces as an error on the fast path
	require.NoError(t, err)
	assert.True(t, status.Onboarded)
	assert.True(t, status.Result.Success)
	assert.Equal(t, "/seller", status.Result.RedirectTo)
	assert.False(t, status.Result.Cached)
}

func TestCheckStatusUserNotFound(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	cache.On("Get", mock.Anything, "ghost").Return(nil, nil)
	repo.On("GetUserSnapshot", mock.Anything, "ghost").Return(nil, domain.ErrUserNotFound)

	_, err := uc.CheckStatus(ctxFor("ghost"), "ghost")

	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Code)
}

func TestCheckStatusNotOnboarded(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	cache.On("Get", mock.Anything, "u1").Return(nil, nil)
	repo.On("GetUserSnapshot", mock.Anything, "u1").Return(&domain.UserSnapshot{
		UserID:   "u1",
		TenantID: "t1",
	}, nil)

	status, err := uc.CheckStatus(ctxFor("u1"), "u1")

	// Not-onboarded is a value, not an error
	require.NoError(t, err)
	assert.False(t, status.Onboarded)
	assert.Nil(t, status.Result)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckStatusRoleFallback(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	// Onboarded via survey answers, but no initial role was ever recorded
	cache.On("Get", mock.Anything, "u1").Return(nil, nil)
	cache.On("Set", mock.Anything, "u1", mock.Anything).Return(nil)
	repo.On("GetUserSnapshot", mock.Anything, "u1").Return(&domain.UserSnapshot{
		UserID:   "u1",
		TenantID: "t1",
		Roles:    []domain.Role{domain.RoleCreator},
		Data:     domain.OnboardingData{SurveyAnswers: map[string]interface{}{"source": "ad"}},
	}, nil)

	status, err := uc.CheckStatus(ctxFor("u1"), "u1")

	require.NoError(t, err)
	assert.Equal(t, "/creator", status.Result.RedirectTo)
}

func TestCheckStatusAdminAlwaysOnboarded(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	cache.On("Get", mock.Anything, "admin1").Return(nil, nil)
	cache.On("Set", mock.Anything, "admin1", mock.Anything).Return(nil)
	repo.On("GetUserSnapshot", mock.Anything, "admin1").Return(&domain.UserSnapshot{
		UserID:   "admin1",
		TenantID: "t1",
		Roles:    []domain.Role{domain.RoleTenantAdmin},
	}, nil)

	status, err := uc.CheckStatus(ctxFor("admin1"), "admin1")

	require.NoError(t, err)
	assert.True(t, status.Onboarded)
	assert.True(t, status.Result.Success)
	assert.Equal(t, "/tenant-admin", status.Result.RedirectTo)
}

func TestCheckStatusIDOR(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	t.Run("Should fail when Context UserID does not match Argument UserID", func(t *testing.T) {
		_, err := uc.CheckStatus(ctxFor("u1"), "u2")
		require.Error(t, err)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 403, appErr.Code)
	})

	t.Run("Should fail safely when Context UserID is missing", func(t *testing.T) {
		_, err := uc.CheckStatus(context.Background(), "u1")
		require.Error(t, err)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 401, appErr.Code)
	})
}

// ============================================================================
// Perform Onboarding (mutating path)
// ============================================================================

func TestPerformOnboardingInvalidRole(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	_, err := uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{
		Role: domain.RoleAdmin, // admin cannot be chosen during onboarding
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Code)
	repo.AssertNotCalled(t, "CompleteOnboarding", mock.Anything, mock.Anything)
}

func TestPerformOnboardingFirstTime(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	repo.On("CompleteOnboarding", mock.Anything, mock.MatchedBy(func(p domain.CompleteOnboardingParams) bool {
		return p.UserID == "u1" && p.Role == domain.RoleSeller && *p.BusinessName == "Epic Store"
	})).Return(&domain.CompletionOutcome{AlreadyOnboarded: false, InitialRole: domain.RoleSeller}, nil)
	cache.On("Set", mock.Anything, "u1", mock.Anything).Return(nil)

	result, err := uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{
		Role:         domain.RoleSeller,
		BusinessName: strPtr("Epic Store"),
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyOnboarded)
	assert.Equal(t, "/seller", result.RedirectTo)
	// The post-mutation cache write is synchronous and awaited
	cache.AssertCalled(t, "Set", mock.Anything, "u1", result)
}

func TestPerformOnboardingAlreadyOnboarded(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	// User originally chose SELLER; a later CREATOR request sticks to it
	repo.On("CompleteOnboarding", mock.Anything, mock.Anything).
		Return(&domain.CompletionOutcome{AlreadyOnboarded: true, InitialRole: domain.RoleSeller}, nil)
	cache.On("Set", mock.Anything, "u1", mock.Anything).Return(nil)

	result, err := uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{
		Role: domain.RoleCreator,
	})

	// Already onboarded is a success, never a forbidden outcome
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.AlreadyOnboarded)
	assert.Equal(t, "/seller", result.RedirectTo)
}

func TestPerformOnboardingCacheWriteFailure(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	repo.On("CompleteOnboarding", mock.Anything, mock.Anything).
		Return(&domain.CompletionOutcome{AlreadyOnboarded: false, InitialRole: domain.RoleCustomer}, nil)
	cache.On("Set", mock.Anything, "u1", mock.Anything).Return(errors.New("redis down"))

	_, err := uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{
		Role: domain.RoleCustomer,
	})

	// Unlike reads, the post-mutation cache write must surface failures
	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 503, appErr.Code)
}

func TestPerformOnboardingUserNotFound(t *testing.T) {
	repo := new(MockOnboardingRepo)
	cache := new(MockCache)
	uc := usecase.NewOnboardingUsecase(repo, cache, validation.New())

	repo.On("CompleteOnboarding", mock.Anything, mock.Anything).Return(nil, domain.ErrUserNotFound)

	_, err := uc.PerformOnboarding(ctxFor("ghost"), "ghost", &domain.OnboardingRequest{
		Role: domain.RoleCustomer,
	})

	require.Error(t, err)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Code)
}

// ============================================================================
// End-to-end properties against stateful fakes
// ============================================================================

// fakeStore mimics the relational store with the same locking discipline the
// real repository gets from the user row lock: one onboarding transaction at
// a time per store.
type fakeStore struct {
	mu       sync.Mutex
	users    map[string]*domain.UserSnapshot
	vendors  map[string]int // tenant id -> vendor rows
	creators map[string]int // user id -> creator rows
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*domain.UserSnapshot),
		vendors:  make(map[string]int),
		creators: make(map[string]int),
	}
}

func (s *fakeStore) addUser(userID, tenantID, email string) {
	s.users[userID] = &domain.UserSnapshot{UserID: userID, TenantID: tenantID, Email: email}
}

func (s *fakeStore) GetUserSnapshot(_ context.Context, userID string) (*domain.UserSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	snap := *u
	return &snap, nil
}

func (s *fakeStore) CompleteOnboarding(_ context.Context, params domain.CompleteOnboardingParams) (*domain.CompletionOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[params.UserID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}

	if domain.IsOnboarded(u.Roles, u.Data) {
		return &domain.CompletionOutcome{
			AlreadyOnboarded: true,
			InitialRole:      domain.ResolveInitialRole(u.Roles, u.Data),
		}, nil
	}

	u.Roles = append([]domain.Role(nil), domain.GrantedRoles...)
	u.Data = domain.OnboardingData{InitialRole: params.Role, SurveyAnswers: params.SurveyAnswers}

	switch params.Role {
	case domain.RoleCreator:
		if s.creators[params.UserID] == 0 {
			s.creators[params.UserID]++
			u.HasCreatorProfile = true
		}
	case domain.RoleSeller:
		if s.vendors[u.TenantID] == 0 {
			s.vendors[u.TenantID]++
			u.TenantHasVendor = true
		}
	}

	return &domain.CompletionOutcome{AlreadyOnboarded: false, InitialRole: params.Role}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]domain.OnboardingResult
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.OnboardingResult)}
}

func (c *fakeCache) Get(_ context.Context, userID string) (*domain.OnboardingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[userID]; ok {
		result := entry
		return &result, nil
	}
	return nil, nil
}

func (c *fakeCache) Set(_ context.Context, userID string, result *domain.OnboardingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = *result
	return nil
}

func (c *fakeCache) Delete(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

func TestOnboardingIdempotence(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "t1", "jo@example.com")
	uc := usecase.NewOnboardingUsecase(store, newFakeCache(), validation.New())

	first, err := uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{
		Role:         domain.RoleSeller,
		BusinessName: strPtr("Epic Store"),
	})
	require.NoError(t, err)
	assert.False(t, first.AlreadyOnboarded)
	assert.Equal(t, "/seller", first.RedirectTo)

	// Second call with a different role sticks to the original choice and
	// provisions nothing new
	second, err := uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{
		Role: domain.RoleCreator,
	})
	require.NoError(t, err)
	assert.True(t, second.AlreadyOnboarded)
	assert.Equal(t, "/seller", second.RedirectTo)

	assert.Equal(t, 1, store.vendors["t1"])
	assert.Equal(t, 0, store.creators["u1"])
	assert.ElementsMatch(t, domain.GrantedRoles, store.users["u1"].Roles)
}

func TestConcurrentOnboardingSingleVendor(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "t1", "jo@example.com")
	uc := usecase.NewOnboardingUsecase(store, newFakeCache(), validation.New())

	const n = 5
	results := make([]*domain.OnboardingResult, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{
				Role:         domain.RoleSeller,
				BusinessName: strPtr("Epic Store"),
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	// Exactly one vendor, exactly one logical "first" completion
	assert.Equal(t, 1, store.vendors["t1"])
	firstTimers := 0
	for _, result := range results {
		require.NotNil(t, result)
		assert.True(t, result.Success)
		assert.Equal(t, "/seller", result.RedirectTo)
		if !result.AlreadyOnboarded {
			firstTimers++
		}
	}
	assert.Equal(t, 1, firstTimers)
}

func TestCacheCorrectnessAfterMutation(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "t1", "jo@example.com")
	uc := usecase.NewOnboardingUsecase(store, newFakeCache(), validation.New())

	performed, err := uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{
		Role: domain.RoleCreator,
	})
	require.NoError(t, err)

	status, err := uc.CheckStatus(ctxFor("u1"), "u1")
	require.NoError(t, err)
	assert.True(t, status.Onboarded)
	assert.True(t, status.Result.Cached)
	assert.Equal(t, performed.RedirectTo, status.Result.RedirectTo)
}

func TestInvalidateUserCache(t *testing.T) {
	store := newFakeStore()
	store.addUser("u1", "t1", "jo@example.com")
	cache := newFakeCache()
	uc := usecase.NewOnboardingUsecase(store, cache, validation.New())

	_, err := uc.PerformOnboarding(ctxFor("u1"), "u1", &domain.OnboardingRequest{Role: domain.RoleCustomer})
	require.NoError(t, err)
	require.NotEmpty(t, cache.entries)

	uc.InvalidateUserCache(context.Background(), "u1")
	assert.Empty(t, cache.entries)

	// Invalidation failures are swallowed: deleting again must not panic
	uc.InvalidateUserCache(context.Background(), "u1")
}
