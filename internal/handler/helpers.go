package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdesk/internal/middleware"
	"github.com/xxxsen/mdesk/internal/pkg/errcode"
	appErr "github.com/xxxsen/mdesk/internal/pkg/errors"
	"github.com/xxxsen/mdesk/internal/pkg/response"
	"github.com/xxxsen/mdesk/internal/search"
)

func getScope(c *gin.Context) (search.OwnerScope, bool) {
	value, ok := c.Get(middleware.ContextScopeKey)
	if !ok {
		return search.OwnerScope{}, false
	}
	scope, ok := value.(search.OwnerScope)
	return scope, ok && scope.UserID != ""
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, appErr.ErrInvalid
	}
	return v, nil
}

type errMapping struct {
	target error
	code   int
	msg    string
}

// Order matters: the first matching target wins.
var errMappings = []errMapping{
	{appErr.ErrEmptyQuery, errcode.ErrEmptyQuery, "empty query"},
	{appErr.ErrSynthesisUnavailable, errcode.ErrSynthesisUnavailable, "answer synthesis unavailable, retry later"},
	{appErr.ErrConversationWriteConflict, errcode.ErrWriteConflict, "conversation busy, retry later"},
	{appErr.ErrUnauthorized, errcode.ErrUnauthorized, "unauthorized"},
	{appErr.ErrForbidden, errcode.ErrForbidden, "forbidden"},
	{appErr.ErrNotFound, errcode.ErrNotFound, "not found"},
	{appErr.ErrInvalid, errcode.ErrInvalid, "invalid request"},
	{appErr.ErrConflict, errcode.ErrConflict, "conflict"},
	{appErr.ErrTooMany, errcode.ErrTooMany, "too many requests"},
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", c.GetString(middleware.ContextUserIDKey)),
		zap.Error(err))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		response.Error(c, errcode.ErrInternal, "request canceled")
		return
	}
	for _, m := range errMappings {
		if errors.Is(err, m.target) {
			response.Error(c, m.code, m.msg)
			return
		}
	}
	response.Error(c, errcode.ErrInternal, "internal error")
}
