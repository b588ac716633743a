package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/mw"
	"dianbiao-backend/internal/parse"
	"dianbiao-backend/internal/store"
)

// ListDeviceReadings returns the readings of a device in ascending time,
// optionally restricted to one month.
func (h *Handler) ListDeviceReadings(c *gin.Context) {
	id, ok := pathID(c, "deviceId")
	if !ok {
		return
	}
	period := c.Query("month")
	if period != "" {
		p, err := parse.ParsePeriod(period)
		if err != nil {
			respondError(c, err)
			return
		}
		period = p.String()
	}

	readings, err := h.store.ListReadings(c.Request.Context(), id, period)
	if err != nil {
		respondError(c, err)
		return
	}
	if readings == nil {
		readings = []model.Reading{}
	}
	c.JSON(http.StatusOK, readings)
}

type readingRequest struct {
	DeviceID  int64    `json:"device_id" binding:"required"`
	Value     *float64 `json:"value" binding:"required"`
	Timestamp string   `json:"timestamp"`
}

// CreateReading stores a manual or uploaded reading. The timestamp defaults to now.
func (h *Handler) CreateReading(c *gin.Context) {
	var req readingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Set(mw.AuditDeviceKey, req.DeviceID)

	reading := model.Reading{DeviceID: req.DeviceID, Value: *req.Value}
	if req.Timestamp != "" {
		ts, err := parse.ParseTimestamp(req.Timestamp, h.loc)
		if err != nil {
			respondError(c, err)
			return
		}
		reading.ReadAt = ts
	}
	if err := h.store.CreateReading(c.Request.Context(), &reading); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reading)
}

type readingPatchRequest struct {
	Value     *float64 `json:"value"`
	Timestamp string   `json:"timestamp"`
}

// UpdateReading corrects the value or time of a reading; the month follows the time.
func (h *Handler) UpdateReading(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req readingPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	patch := store.ReadingPatch{Value: req.Value}
	if req.Timestamp != "" {
		ts, err := parse.ParseTimestamp(req.Timestamp, h.loc)
		if err != nil {
			respondError(c, err)
			return
		}
		patch.ReadAt = &ts
	}
	reading, err := h.store.UpdateReading(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Set(mw.AuditDeviceKey, reading.DeviceID)
	c.JSON(http.StatusOK, reading)
}

func (h *Handler) DeleteReading(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteReading(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type overviewItem struct {
	ID             int64      `json:"id"`
	DeviceID       string     `json:"device_id"`
	Area           string     `json:"area"`
	Floor          string     `json:"floor"`
	Room           string     `json:"room"`
	CurrentReading float64    `json:"current_reading"`
	LastUpdated    *time.Time `json:"last_updated"`
}

// Overview lists the latest reading of every device, optionally for one area.
func (h *Handler) Overview(c *gin.Context) {
	areaID, ok := queryID(c, "area_id")
	if !ok {
		return
	}
	devices, err := h.store.ListDevices(c.Request.Context(), store.DeviceFilter{AreaID: areaID})
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]overviewItem, 0, len(devices))
	for _, d := range devices {
		item := overviewItem{
			ID:       d.ID,
			DeviceID: d.Code,
			Area:     d.AreaName(),
			Floor:    d.FloorName(),
			Room:     d.RoomName(),
		}
		latest, found, err := h.store.LatestReading(c.Request.Context(), d.ID, nil)
		if err != nil {
			respondError(c, err)
			return
		}
		if found {
			item.CurrentReading = latest.Value
			at := latest.ReadAt.In(h.loc)
			item.LastUpdated = &at
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, items)
}

// MonthlyBill returns usage and cost of a device for the month query parameter.
func (h *Handler) MonthlyBill(c *gin.Context) {
	id, ok := pathID(c, "deviceId")
	if !ok {
		return
	}
	month := c.Query("month")
	if month == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month is required"})
		return
	}

	device, err := h.store.GetDevice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	bill, err := h.engine.Bill(c.Request.Context(), device, month)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

// AreaStats aggregates usage and cost over the location hierarchy.
// year, month and day narrow the window; each requires the previous one.
func (h *Handler) AreaStats(c *gin.Context) {
	w, err := parse.ParseWindow(c.Query("year"), c.Query("month"), c.Query("day"), h.loc)
	if err != nil {
		respondError(c, err)
		return
	}
	devices, err := h.store.ListDevices(c.Request.Context(), store.DeviceFilter{})
	if err != nil {
		respondError(c, err)
		return
	}
	report, err := h.reporter.Aggregate(c.Request.Context(), devices, w)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
