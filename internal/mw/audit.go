package mw

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"dianbiao-backend/internal/model"
)

// AuditDeviceKey lets a handler attach the device it acted on to the audit entry.
const AuditDeviceKey = "audit_device_id"

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, entry *model.AuditLog) error
}

// Audit records one entry per handled request after the handler ran.
// Routes listed in skip (gin route patterns) are not recorded.
func Audit(recorder AuditRecorder, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" || c.Request.Method == "OPTIONS" {
			return
		}
		if _, ok := skipped[route]; ok {
			return
		}

		entry := model.AuditLog{
			Action: fmt.Sprintf("%s %s", c.Request.Method, route),
			IP:     c.ClientIP(),
			Details: datatypes.JSONMap{
				"path":        c.Request.URL.Path,
				"status":      c.Writer.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			},
		}
		if q := c.Request.URL.RawQuery; q != "" {
			entry.Details["query"] = q
		}
		if id := c.GetString(requestIDKey); id != "" {
			entry.Details["request_id"] = id
		}
		if claims, ok := ClaimsFrom(c); ok {
			uid := claims.UserID()
			entry.UserID = &uid
			entry.Username = claims.Username
		}
		if v, ok := c.Get(AuditDeviceKey); ok {
			if id, ok := v.(int64); ok {
				entry.DeviceID = &id
			}
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
		defer cancel()
		if err := recorder.CreateAuditLog(ctx, &entry); err != nil {
			log.Error().Err(err).Str("action", entry.Action).Msg("failed to record audit log")
		}
	}
}
