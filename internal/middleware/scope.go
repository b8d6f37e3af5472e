package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/pkg/errcode"
	"github.com/xxxsen/mdesk/internal/pkg/response"
	"github.com/xxxsen/mdesk/internal/search"
)

const ContextScopeKey = "owner_scope"

type ScopeResolver interface {
	Resolve(ctx context.Context, userID string) (search.OwnerScope, error)
}

// OwnerScope resolves the authenticated user's visibility once per request. It
// must run after JWTAuth.
func OwnerScope(resolver ScopeResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserIDKey)
		if userID == "" {
			response.Unauthorized(c, "unauthorized")
			c.Abort()
			return
		}
		scope, err := resolver.Resolve(c.Request.Context(), userID)
		if err != nil {
			logutil.GetLogger(c.Request.Context()).Error("resolve owner scope failed",
				zap.String("user_id", userID), zap.Error(err))
			response.Error(c, errcode.ErrInternal, "internal error")
			c.Abort()
			return
		}
		c.Set(ContextScopeKey, scope)
		c.Next()
	}
}
