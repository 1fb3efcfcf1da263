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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"medical-office-server/internal/models"
	"medical-office-server/internal/ratelimit"
	"medical-office-server/internal/utils"
)

const secret = "middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func tokenFor(t *testing.T, id string, role models.Role) string {
	t.Helper()
	token, err := utils.NewAccessTokenSigner(secret, time.Minute, utils.SystemClock{}).
		Sign(&models.User{BaseModel: models.BaseModel{ID: id}, Role: role})
	require.NoError(t, err)
	return token
}

func serve(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	var seen models.Actor
	r := gin.New()
	r.GET("/x", AuthMiddleware(secret), func(c *gin.Context) {
		seen, _ = GetActorFromContext(c)
		c.Status(http.StatusOK)
	})

	w := serve(r, "Bearer "+tokenFor(t, "u-1", models.RoleDoctor))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.Actor{ID: "u-1", Role: models.RoleDoctor}, seen)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer not-a-jwt").Code)
}

func TestRoleAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/x", AuthMiddleware(secret), RoleAuthMiddleware(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, "Bearer "+tokenFor(t, "a", models.RoleAdmin)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "Bearer "+tokenFor(t, "p", models.RolePatient)).Code)
}

type scriptedLimiter struct {
	errs []error
}

func (l *scriptedLimiter) Allow(context.Context, string) error {
	err := l.errs[0]
	l.errs = l.errs[1:]
	return err
}

func TestRateLimit(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	limiter := &scriptedLimiter{errs: []error{
		nil,
		ratelimit.ErrRateLimited,
		errors.Join(ratelimit.ErrBackendUnavailable, errors.New("dial tcp: refused")),
	}}

	r := gin.New()
	r.GET("/x", RateLimit(limiter, zap.New(core)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "").Code)
	assert.Equal(t, http.StatusOK, serve(r, "").Code, "backend failure lets the request through")
	assert.Equal(t, 1, logs.FilterMessage("rate limiter unavailable").Len())
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	serve(r, "")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusTeapot), entries[0].ContextMap()["status"])
	assert.Equal(t, "/x", entries[0].ContextMap()["path"])
}
