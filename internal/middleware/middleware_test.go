package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mdesk/internal/pkg/jwt"
	"github.com/xxxsen/mdesk/internal/search"
)

type fakeResolver struct {
	err error
}

func (f fakeResolver) Resolve(_ context.Context, userID string) (search.OwnerScope, error) {
	if f.err != nil {
		return search.OwnerScope{}, f.err
	}
	return search.OwnerScope{UserID: userID, WorkspaceIDs: []string{"w1"}}, nil
}

func newTestEngine(resolver ScopeResolver, secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), CORS([]string{"https://app.example.com"}))
	r.GET("/me", JWTAuth(secret), OwnerScope(resolver), func(c *gin.Context) {
		v, _ := c.Get(ContextScopeKey)
		scope := v.(search.OwnerScope)
		c.String(http.StatusOK, scope.UserID)
	})
	return r
}

func TestJWTAuthAndScope(t *testing.T) {
	secret := []byte("s3cret")
	r := newTestEngine(fakeResolver{}, secret)
	tk, err := jwt.GenerateToken("u1", secret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tk)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, "u1", resp.Body.String())
	assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
}

func TestJWTAuthRejects(t *testing.T) {
	secret := []byte("s3cret")
	r := newTestEngine(fakeResolver{}, secret)
	wrong, err := jwt.GenerateToken("u1", []byte("other"), time.Hour)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken("u1", secret, -time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing": "",
		"scheme":  "Basic abc",
		"wrong":   "Bearer " + wrong,
		"expired": "Bearer " + expired,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)
			assert.NotEqual(t, "u1", resp.Body.String())
			assert.Contains(t, resp.Body.String(), "code")
		})
	}
}

func TestOwnerScopeResolveFailure(t *testing.T) {
	secret := []byte("s3cret")
	r := newTestEngine(fakeResolver{err: errors.New("db down")}, secret)
	tk, err := jwt.GenerateToken("u1", secret, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tk)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.NotEqual(t, "u1", resp.Body.String())
}

func TestRequestIDPassThrough(t *testing.T) {
	r := newTestEngine(fakeResolver{}, []byte("x"))
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-Id", "req-1")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, "req-1", resp.Header().Get("X-Request-Id"))
}

func TestCORSAllowlist(t *testing.T) {
	r := newTestEngine(fakeResolver{}, []byte("x"))

	req := httptest.NewRequest(http.MethodOptions, "/me", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "https://app.example.com", resp.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/me", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}
