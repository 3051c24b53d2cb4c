package v1

import (
	"net/http"

	"go-commerce-backend/internal/delivery/http/response"
	"go-commerce-backend/internal/domain"

	"github.com/gin-gonic/gin"
)

type OnboardingHandler struct {
	onboardingUC domain.OnboardingUsecase
}

func NewOnboardingHandler(r *gin.RouterGroup, onboardingUC domain.OnboardingUsecase, mutatingLimiter gin.HandlerFunc) {
	handler := &OnboardingHandler{onboardingUC: onboardingUC}

	onboarding := r.Group("/onboarding")
	{
		onboarding.GET("/status", handler.GetStatus)
		onboarding.POST("/complete", mutatingLimiter, handler.Complete)
		onboarding.DELETE("/cache/:userId", handler.InvalidateCache)
	}
}

// GetStatus godoc
// @Summary      Get onboarding status
// @Description  Cache-first check of whether the current user has completed onboarding
// @Tags         onboarding
// @Produce      json
// @Success      200  {object}  response.Response{data=domain.OnboardingStatus}
// @Failure      401  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /onboarding/status [get]
// @Security     BearerAuth
func (h *OnboardingHandler) GetStatus(c *gin.Context) {
	userID := c.GetString(string(domain.KeyUserID))

	status, err := h.onboardingUC.CheckStatus(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	// Warm the cache for the onboarding page that follows. Fire-and-forget:
	// the response never waits on it.
	if !status.Onboarded {
		h.onboardingUC.PrewarmUserCache(userID)
	}

	response.Success(c, http.StatusOK, "Onboarding status retrieved", status)
}

// Complete godoc
// @Summary      Perform onboarding
// @Description  Assign the chosen role, grant the full role set and provision tenant resources exactly once. Safe to retry; an already-onboarded user always gets 200.
// @Tags         onboarding
// @Accept       json
// @Produce      json
// @Param        request  body      domain.OnboardingRequest  true  "Onboarding choice"
// @Success      200      {object}  response.Response{data=domain.OnboardingResult}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /onboarding/complete [post]
// @Security     BearerAuth
func (h *OnboardingHandler) Complete(c *gin.Context) {
	userID := c.GetString(string(domain.KeyUserID))

	var req domain.OnboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request body: "+err.Error(), nil)
		return
	}

	result, err := h.onboardingUC.PerformOnboarding(c.Request.Context(), userID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	// Always 200, including alreadyOnboarded=true: the client follows
	// result.redirectTo either way.
	response.Success(c, http.StatusOK, "Onboarding completed", result)
}

// InvalidateCache godoc
// @Summary      Invalidate a user's onboarding cache
// @Description  Drops the cached onboarding result for a user. Admin-class roles only.
// @Tags         onboarding
// @Produce      json
// @Param        userId  path      string  true  "User ID"
// @Success      200     {object}  response.Response
// @Failure      403     {object}  response.Response
// @Router       /onboarding/cache/{userId} [delete]
// @Security     BearerAuth
func (h *OnboardingHandler) InvalidateCache(c *gin.Context) {
	role := domain.Role(c.GetString(string(domain.KeyUserRole)))
	if !role.IsAdminClass() {
		response.Error(c, http.StatusForbidden, "Admin role required", nil)
		return
	}

	h.onboardingUC.InvalidateUserCache(c.Request.Context(), c.Param("userId"))
	response.Success(c, http.StatusOK, "Onboarding cache invalidated", nil)
}
