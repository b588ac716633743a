package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dianbiao-backend/internal/parse"
	"dianbiao-backend/internal/store"
)

// ListAuditLogs pages through the audit log, newest first.
func (h *Handler) ListAuditLogs(c *gin.Context) {
	var query struct {
		Search    string `form:"search"`
		StartTime string `form:"start_time"`
		EndTime   string `form:"end_time"`
		Page      int    `form:"page"`
		Limit     int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filter := store.AuditFilter{Search: query.Search, Page: query.Page, Limit: query.Limit}
	for _, bound := range []struct {
		raw string
		dst **time.Time
	}{
		{query.StartTime, &filter.Start},
		{query.EndTime, &filter.End},
	} {
		if bound.raw == "" {
			continue
		}
		ts, err := parse.ParseTimestamp(bound.raw, h.loc)
		if err != nil {
			respondError(c, err)
			return
		}
		*bound.dst = &ts
	}

	page, err := h.store.ListAuditLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetAuditLog(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	entry, err := h.store.GetAuditLog(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}
