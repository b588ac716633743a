package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dianbiao-backend/internal/auth"
	"dianbiao-backend/internal/db"
	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestPutSubscription(t *testing.T) {
	r := gin.New()
	handler := NewHandler(nil, nil, nil, Options{})
	r.PUT("/api/subscriptions", handler.PutSubscription)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestGetVAPIDPublicKey(t *testing.T) {
	tests := []struct {
		name    string
		options *webpush.Options
		code    int
	}{
		{"not configured", nil, http.StatusServiceUnavailable},
		{"empty key", &webpush.Options{}, http.StatusServiceUnavailable},
		{"configured", &webpush.Options{VAPIDPublicKey: "BPub"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/key", NewHandler(nil, nil, tt.options, Options{}).GetVAPIDPublicKey)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/key", nil))
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  store.Store
}

func newTestServer(t *testing.T) *testServer {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, gdb.AutoMigrate(db.Models...))

	responseCache := cache.New(time.Minute, 2*time.Minute)
	s := store.NewGormStore(gdb, store.Options{FallbackPrice: 1.0, Location: time.UTC, OnReadingWrite: responseCache.Flush})
	require.NoError(t, auth.EnsureAdmin(context.Background(), s, "admin", "admin123"))

	issuer := auth.NewIssuer("test-secret", time.Hour)
	router := NewRouter(s, issuer, nil, RouterConfig{
		Options:   Options{Location: time.UTC, ReportConcurrency: 4},
		RateLimit: 1000,
		RateBurst: 1000,
		CacheTTL:  time.Minute,
		Cache:     responseCache,
	})
	return &testServer{t: t, router: router, store: s}
}

func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) login(username, password string) string {
	w := ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(ts.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(ts.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type idResponse struct {
	ID int64 `json:"id"`
}

func (ts *testServer) create(token, path string, body any) int64 {
	w := ts.do(http.MethodPost, path, token, body)
	require.Equal(ts.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[idResponse](ts.t, w).ID
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/auth/login", "", gin.H{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/devices", "", nil).Code)

	w = ts.do(http.MethodPost, "/api/auth/register", "", gin.H{"username": "dave", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodPost, "/api/auth/register", "", gin.H{"username": "dave", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(http.MethodPost, "/api/auth/register", "", gin.H{"username": "dave", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	user := ts.login("dave", "secret1")
	me := decode[map[string]any](t, ts.do(http.MethodGet, "/api/auth/me", user, nil))
	assert.Equal(t, "dave", me["username"])
	assert.Equal(t, "user", me["role"])
	assert.NotContains(t, me, "password_hash")

	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodPost, "/api/areas", user, gin.H{"name": "A"}).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(http.MethodGet, "/api/logs", user, nil).Code)

	w = ts.do(http.MethodPut, "/api/auth/password", user, gin.H{"old_password": "nope", "new_password": "secret2"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = ts.do(http.MethodPut, "/api/auth/password", user, gin.H{"old_password": "secret1", "new_password": "secret2"})
	assert.Equal(t, http.StatusOK, w.Code)
	ts.login("dave", "secret2")

	admin := ts.login("admin", "admin123")
	daveID := int64(me["id"].(float64))
	w = ts.do(http.MethodPut, fmt.Sprintf("/api/auth/users/%d/role", daveID), admin, gin.H{"role": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodPut, fmt.Sprintf("/api/auth/users/%d/role", daveID), admin, gin.H{"role": "admin"})
	assert.Equal(t, http.StatusOK, w.Code)
}

type billResponse struct {
	Usage  float64           `json:"usage"`
	Price  float64           `json:"price"`
	Cost   float64           `json:"cost"`
	Source string            `json:"source"`
	Data   []json.RawMessage `json:"data"`
}

func TestMeteringFlow(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login("admin", "admin123")

	areaID := ts.create(admin, "/api/areas", gin.H{"name": "North Campus"})
	floorID := ts.create(admin, "/api/floors", gin.H{"area_id": areaID, "name": "1F"})
	roomID := ts.create(admin, "/api/rooms", gin.H{"floor_id": floorID, "name": "101"})
	deviceID := ts.create(admin, "/api/devices", gin.H{
		"device_id": "M-001", "area_id": areaID, "floor_id": floorID, "room_id": roomID,
	})

	w := ts.do(http.MethodPost, "/api/devices", admin, gin.H{
		"device_id": "M-001", "area_id": areaID, "floor_id": floorID, "room_id": roomID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.create(admin, "/api/prices", gin.H{"area_id": areaID, "price": 0.6})
	w = ts.do(http.MethodPost, "/api/prices", admin, gin.H{"area_id": areaID, "price": 0.8})
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.create(admin, "/api/metrics", gin.H{"device_id": deviceID, "value": 100, "timestamp": "2024-03-01 08:00:00"})
	ts.create(admin, "/api/metrics", gin.H{"device_id": deviceID, "value": 180, "timestamp": "2024-03-31 20:00:00"})
	ts.create(admin, "/api/metrics", gin.H{"device_id": deviceID, "value": 260, "timestamp": "2024-04-15 12:00:00"})

	t.Run("monthly bill", func(t *testing.T) {
		w := ts.do(http.MethodGet, fmt.Sprintf("/api/metrics/monthly/%d?month=2024-03", deviceID), admin, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		bill := decode[billResponse](t, w)
		assert.InDelta(t, 80, bill.Usage, 1e-9)
		assert.InDelta(t, 0.6, bill.Price, 1e-9)
		assert.InDelta(t, 48, bill.Cost, 1e-9)
		assert.Equal(t, "area", bill.Source)
		assert.Len(t, bill.Data, 2)

		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, fmt.Sprintf("/api/metrics/monthly/%d", deviceID), admin, nil).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, fmt.Sprintf("/api/metrics/monthly/%d?month=2024-13", deviceID), admin, nil).Code)
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/metrics/monthly/999?month=2024-03", admin, nil).Code)
	})

	t.Run("device price falls back to default", func(t *testing.T) {
		resp := decode[map[string]any](t, ts.do(http.MethodGet, fmt.Sprintf("/api/devices/%d/price", deviceID), admin, nil))
		assert.Equal(t, "area", resp["source"])

		w := ts.do(http.MethodGet, "/api/prices/default", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.InDelta(t, 1.0, decode[map[string]any](t, w)["price"], 1e-9)
	})

	t.Run("area stats respect the window", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/metrics/area-stats?year=2024&month=3", admin, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		report := decode[map[string]any](t, w)
		assert.InDelta(t, 180, report["totalUsage"], 1e-9)
		assert.InDelta(t, 108, report["totalCost"], 1e-9)
		stats := report["stats"].([]any)
		require.Len(t, stats, 1)
		assert.InDelta(t, 100, stats[0].(map[string]any)["percentage"], 1e-9)

		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/metrics/area-stats?day=3", admin, nil).Code)
	})

	t.Run("overview shows latest reading", func(t *testing.T) {
		items := decode[[]map[string]any](t, ts.do(http.MethodGet, "/api/metrics/overview", admin, nil))
		require.Len(t, items, 1)
		assert.Equal(t, "M-001", items[0]["device_id"])
		assert.InDelta(t, 260, items[0]["current_reading"], 1e-9)
		assert.Equal(t, "North Campus", items[0]["area"])
	})

	t.Run("writes flush cached stats", func(t *testing.T) {
		path := "/api/metrics/area-stats"
		ts.do(http.MethodGet, path, admin, nil)
		assert.Equal(t, "HIT", ts.do(http.MethodGet, path, admin, nil).Header().Get("X-Cache"))

		ts.create(admin, "/api/metrics", gin.H{"device_id": deviceID, "value": 300})
		w := ts.do(http.MethodGet, path, admin, nil)
		assert.Empty(t, w.Header().Get("X-Cache"))
		assert.InDelta(t, 300, decode[map[string]any](t, w)["totalUsage"], 1e-9)
	})

	t.Run("background readings flush cached stats", func(t *testing.T) {
		path := "/api/metrics/area-stats"
		ts.do(http.MethodGet, path, admin, nil)
		assert.Equal(t, "HIT", ts.do(http.MethodGet, path, admin, nil).Header().Get("X-Cache"))

		require.NoError(t, ts.store.CreateReading(context.Background(), &model.Reading{DeviceID: deviceID, Value: 350}))
		w := ts.do(http.MethodGet, path, admin, nil)
		assert.Empty(t, w.Header().Get("X-Cache"))
		assert.InDelta(t, 350, decode[map[string]any](t, w)["totalUsage"], 1e-9)
	})

	t.Run("delete guards", func(t *testing.T) {
		assert.Equal(t, http.StatusConflict, ts.do(http.MethodDelete, fmt.Sprintf("/api/areas/%d", areaID), admin, nil).Code)
		assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, fmt.Sprintf("/api/devices/%d", deviceID), admin, nil).Code)
		assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, fmt.Sprintf("/api/devices/%d", deviceID), admin, nil).Code)
	})

	t.Run("requests are audited", func(t *testing.T) {
		w := ts.do(http.MethodGet, "/api/logs?search=devices&limit=100", admin, nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[store.AuditPage](t, w)
		require.NotZero(t, page.Total)

		var created bool
		for _, entry := range page.Logs {
			if entry.Action == "POST /api/devices" && entry.DeviceID != nil && *entry.DeviceID == deviceID {
				created = true
				assert.Equal(t, "admin", entry.Username)
			}
			assert.NotEqual(t, "POST /api/auth/login", entry.Action)
		}
		assert.True(t, created)
	})
}
