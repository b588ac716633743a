package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dianbiao-backend/internal/billing"
	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/mw"
	"dianbiao-backend/internal/store"
)

type deviceRequest struct {
	Code    string `json:"device_id" binding:"required"`
	AreaID  int64  `json:"area_id" binding:"required"`
	FloorID int64  `json:"floor_id" binding:"required"`
	RoomID  int64  `json:"room_id" binding:"required"`
	Remark  string `json:"remark"`
}

func (r deviceRequest) device(id int64) model.Device {
	return model.Device{
		ID:      id,
		Code:    r.Code,
		AreaID:  r.AreaID,
		FloorID: r.FloorID,
		RoomID:  r.RoomID,
		Remark:  r.Remark,
	}
}

// ListDevices supports area_id, floor_id, room_id and search filters.
func (h *Handler) ListDevices(c *gin.Context) {
	var filter store.DeviceFilter
	var ok bool
	if filter.AreaID, ok = queryID(c, "area_id"); !ok {
		return
	}
	if filter.FloorID, ok = queryID(c, "floor_id"); !ok {
		return
	}
	if filter.RoomID, ok = queryID(c, "room_id"); !ok {
		return
	}
	filter.Search = c.Query("search")

	devices, err := h.store.ListDevices(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *Handler) GetDevice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	device, err := h.store.GetDevice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

func (h *Handler) CreateDevice(c *gin.Context) {
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	device := req.device(0)
	if err := h.store.CreateDevice(c.Request.Context(), &device); err != nil {
		respondError(c, err)
		return
	}
	c.Set(mw.AuditDeviceKey, device.ID)

	created, err := h.store.GetDevice(c.Request.Context(), device.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateDevice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Set(mw.AuditDeviceKey, id)

	device := req.device(id)
	if err := h.store.UpdateDevice(c.Request.Context(), &device); err != nil {
		respondError(c, err)
		return
	}
	h.GetDevice(c)
}

// DeleteDevice also removes the readings of the device.
func (h *Handler) DeleteDevice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	c.Set(mw.AuditDeviceKey, id)
	if err := h.store.DeleteDevice(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDevicePrice returns the tariff that applies to the device and where it came from.
func (h *Handler) GetDevicePrice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	device, err := h.store.GetDevice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.resolver.Resolve(c.Request.Context(), billing.LocationOf(device))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device_id": device.Code,
		"price":     res.Price,
		"source":    res.Source,
		"tariff_id": res.TariffID,
	})
}
