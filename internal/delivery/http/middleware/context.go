package middleware

import (
	"context"

	"go-commerce-backend/internal/domain"
)

func contextWithUser(ctx context.Context, userID, email, role string) context.Context {
	ctx = context.WithValue(ctx, domain.KeyUserID, userID)
	ctx = context.WithValue(ctx, domain.KeyUserEmail, email)
	ctx = context.WithValue(ctx, domain.KeyUserRole, role)
	return ctx
}
