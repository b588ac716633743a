package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"dianbiao-backend/internal/auth"
	"dianbiao-backend/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(rate.Limit(1), 2)
	r := gin.New()
	r.Use(RateLimiter(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/", "").Code)
}

func TestIPRateLimiter_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(rate.Limit(1), 1)
	limiter.now = func() time.Time { return now }

	limiter.Allow("10.0.0.1")
	now = now.Add(time.Hour)
	limiter.Allow("10.0.0.2")

	assert.Equal(t, 1, limiter.Sweep())
	assert.Equal(t, 1, limiter.Len())
}

func TestCache_FlushedByWrites(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	hits := 0
	r := gin.New()
	r.Use(InvalidateOnWrite(store))
	r.GET("/stats", Cache(store, time.Minute), func(c *gin.Context) {
		hits++
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/readings", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/broken", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	first := do(r, http.MethodGet, "/stats", "")
	second := do(r, http.MethodGet, "/stats", "")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, 1, hits)

	do(r, http.MethodPost, "/broken", "")
	do(r, http.MethodGet, "/stats", "")
	assert.Equal(t, 1, hits, "failed write keeps the cache")

	do(r, http.MethodPost, "/readings", "")
	do(r, http.MethodGet, "/stats", "")
	assert.Equal(t, 2, hits)
}

func TestAuth(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	adminToken, _, err := issuer.Issue(model.User{ID: 1, Username: "admin", Role: model.RoleAdmin})
	require.NoError(t, err)
	userToken, _, err := issuer.Issue(model.User{ID: 2, Username: "bob", Role: model.RoleUser})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", Auth(issuer), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Username)
	})
	r.GET("/admin", Auth(issuer), RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "bogus").Code)

	w := do(r, http.MethodGet, "/me", userToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "bob", w.Body.String())

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", userToken).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", adminToken).Code)
}

type memAudit struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (m *memAudit) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *entry)
	return nil
}

func TestAudit(t *testing.T) {
	issuer := auth.NewIssuer("secret", time.Hour)
	token, _, err := issuer.Issue(model.User{ID: 7, Username: "carol", Role: model.RoleUser})
	require.NoError(t, err)

	rec := &memAudit{}
	r := gin.New()
	r.Use(RequestID(), Audit(rec, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.DELETE("/devices/:id", Auth(issuer), func(c *gin.Context) {
		c.Set(AuditDeviceKey, int64(3))
		c.Status(http.StatusNoContent)
	})

	do(r, http.MethodGet, "/health", "")
	w := do(r, http.MethodDelete, "/devices/3?force=1", token)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, "DELETE /devices/:id", entry.Action)
	assert.Equal(t, "carol", entry.Username)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, int64(7), *entry.UserID)
	require.NotNil(t, entry.DeviceID)
	assert.Equal(t, int64(3), *entry.DeviceID)
	assert.Equal(t, "force=1", entry.Details["query"])
	assert.Equal(t, http.StatusNoContent, entry.Details["status"])
	assert.Equal(t, w.Header().Get("X-Request-ID"), entry.Details["request_id"])
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://dashboard.local", w.Header().Get("Access-Control-Allow-Origin"))
}
