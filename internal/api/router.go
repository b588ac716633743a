package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"dianbiao-backend/internal/auth"
	"dianbiao-backend/internal/mw"
	"dianbiao-backend/internal/store"
)

// RouterConfig holds the HTTP plumbing settings.
type RouterConfig struct {
	Options
	RateLimit rate.Limit
	RateBurst int
	CacheTTL  time.Duration
	// Cache is the response cache; pass the one the store flushes on background writes.
	Cache *cache.Cache
}

// unaudited lists the routes that are too frequent or too sensitive to record.
var unaudited = []string{
	"/api/health",
	"/api/auth/login",
	"/api/metrics/overview",
	"/api/metrics/device/:deviceId",
}

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, issuer *auth.Issuer, webpushOptions *webpush.Options, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestID(), mw.RequestLogger(), mw.CORS())

	handler := NewHandler(s, issuer, webpushOptions, cfg.Options)

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = rate.Limit(10)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	rateLimiter := mw.RateLimiter(mw.NewIPRateLimiter(cfg.RateLimit, cfg.RateBurst))

	// Stats are cached until the TTL expires or any write succeeds.
	cacheStore := cfg.Cache
	if cacheStore == nil {
		cacheStore = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	caching := mw.Cache(cacheStore, cfg.CacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Audit(s, unaudited...), mw.InvalidateOnWrite(cacheStore))
	{
		api.GET("/health", handler.Health)
		api.POST("/auth/login", handler.Login)
		api.POST("/auth/register", handler.Register)
		api.GET("/prices/default", handler.GetDefaultTariff)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	authed := api.Group("", mw.Auth(issuer))
	{
		authed.GET("/auth/me", handler.Me)
		authed.PUT("/auth/profile", handler.UpdateProfile)
		authed.PUT("/auth/password", handler.ChangePassword)

		authed.GET("/areas", handler.ListAreas)
		authed.GET("/areas/:id", handler.GetArea)
		authed.GET("/areas/:id/floors", handler.ListFloors)
		authed.GET("/floors/:id", handler.GetFloor)
		authed.GET("/floors/:id/rooms", handler.ListRooms)
		authed.GET("/rooms/:id", handler.GetRoom)

		authed.GET("/devices", handler.ListDevices)
		authed.GET("/devices/:id", handler.GetDevice)
		authed.GET("/devices/:id/price", handler.GetDevicePrice)

		authed.GET("/metrics/device/:deviceId", handler.ListDeviceReadings)
		authed.POST("/metrics", handler.CreateReading)
		authed.PUT("/metrics/:id", handler.UpdateReading)
		authed.DELETE("/metrics/:id", handler.DeleteReading)
		authed.GET("/metrics/overview", caching, handler.Overview)
		authed.GET("/metrics/monthly/:deviceId", handler.MonthlyBill)
		authed.GET("/metrics/area-stats", caching, handler.AreaStats)

		authed.GET("/prices", handler.ListTariffs)
		authed.GET("/prices/:id", handler.GetTariff)

		authed.GET("/subscriptions", handler.GetSubscription)
		authed.PUT("/subscriptions", handler.PutSubscription)
		authed.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	admin := authed.Group("", mw.RequireAdmin())
	{
		admin.GET("/auth/users", handler.ListUsers)
		admin.PUT("/auth/users/:id/role", handler.ChangeRole)

		admin.POST("/areas", handler.CreateArea)
		admin.PUT("/areas/:id", handler.UpdateArea)
		admin.DELETE("/areas/:id", handler.DeleteArea)
		admin.POST("/floors", handler.CreateFloor)
		admin.PUT("/floors/:id", handler.UpdateFloor)
		admin.DELETE("/floors/:id", handler.DeleteFloor)
		admin.POST("/rooms", handler.CreateRoom)
		admin.PUT("/rooms/:id", handler.UpdateRoom)
		admin.DELETE("/rooms/:id", handler.DeleteRoom)

		admin.POST("/devices", handler.CreateDevice)
		admin.PUT("/devices/:id", handler.UpdateDevice)
		admin.DELETE("/devices/:id", handler.DeleteDevice)

		admin.POST("/prices", handler.CreateTariff)
		admin.POST("/prices/default", handler.SetDefaultTariff)
		admin.PUT("/prices/:id", handler.UpdateTariff)
		admin.DELETE("/prices/:id", handler.DeleteTariff)

		admin.GET("/logs", handler.ListAuditLogs)
		admin.GET("/logs/:id", handler.GetAuditLog)
	}

	return r
}
