package auth

import (
	"context"
	"strconv"

	"github.com/ButyrinIA/blog/internal/models"
)

type ctxKey struct{}

// WithUser stores the signed-in viewer in ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// UserFrom returns the signed-in viewer, if any.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(*models.User)
	return user, ok && user != nil
}

// ViewerKey identifies the viewer in cache keys.
func ViewerKey(ctx context.Context) string {
	if user, ok := UserFrom(ctx); ok {
		return strconv.FormatInt(user.ID, 10)
	}
	return ""
}
