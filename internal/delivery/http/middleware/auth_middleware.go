package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go-commerce-backend/config"
	"go-commerce-backend/internal/delivery/http/response"
	"go-commerce-backend/internal/domain"
	"go-commerce-backend/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// AuthMiddleware verifies tokens issued by the upstream identity provider.
// Tokens are never issued here; HS256 uses the shared secret, RS256 goes
// through the JWKS provider.
func AuthMiddleware(jwksProvider *auth.Provider, cfg *config.Config, authUC domain.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		// 1. Try to get token from Header
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else {
			// 2. Try to get token from Cookie
			cookie, err := c.Cookie("auth_token")
			if err == nil && cookie != "" {
				tokenString = cookie
			}
		}

		if tokenString == "" {
			response.Error(c, http.StatusUnauthorized, "Authorization header or auth_token cookie required", nil)
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
				if cfg.JWTSecret == "" {
					return nil, fmt.Errorf("HS256 token received but JWT_SECRET is not configured")
				}
				return []byte(cfg.JWTSecret), nil
			}

			if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
				return jwksProvider.KeyFunc(token)
			}

			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		})

		if err != nil || !token.Valid {
			response.Error(c, http.StatusUnauthorized, "Invalid token", nil)
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Invalid claims", nil)
			c.Abort()
			return
		}

		sub, _ := claims["sub"].(string)
		email, _ := claims["email"].(string)
		tenantID, _ := claims["tenant_id"].(string)

		// Sync the identity into the local store on first sight, then load it
		// fresh. The JWT role claim is never trusted: it may be stale.
		user, err := authUC.GetCurrentUser(c.Request.Context(), sub)
		if errors.Is(err, domain.ErrUserNotFound) {
			if syncErr := authUC.EnsureUserExists(c.Request.Context(), &domain.User{
				ID:       sub,
				TenantID: tenantID,
				Email:    email,
			}); syncErr == nil {
				user, err = authUC.GetCurrentUser(c.Request.Context(), sub)
			}
		}
		if err != nil || user == nil {
			response.Error(c, http.StatusUnauthorized, "User not found", nil)
			c.Abort()
			return
		}

		c.Set(string(domain.KeyUserID), sub)
		c.Set(string(domain.KeyUserEmail), email)
		c.Set(string(domain.KeyUserRole), string(user.PrimaryRole()))
		c.Set(string(domain.KeyTenantID), user.TenantID)

		// Usecases read the user id from the request context
		ctx := c.Request.Context()
		ctx = contextWithUser(ctx, sub, email, string(user.PrimaryRole()))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
