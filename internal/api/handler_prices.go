package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/parse"
	"dianbiao-backend/internal/store"
)

// tariffRequest selects the scope with the ids that are set:
// area only, area and floor, or area, floor and room.
type tariffRequest struct {
	AreaID        int64   `json:"area_id" binding:"required"`
	FloorID       int64   `json:"floor_id"`
	RoomID        int64   `json:"room_id"`
	Price         float64 `json:"price" binding:"required"`
	EffectiveDate string  `json:"effective_date"`
}

func (h *Handler) tariffFrom(c *gin.Context, id int64) (model.Tariff, bool) {
	var req tariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return model.Tariff{}, false
	}
	t := model.Tariff{
		ID:      id,
		AreaID:  req.AreaID,
		FloorID: req.FloorID,
		RoomID:  req.RoomID,
		Price:   req.Price,
	}
	if req.EffectiveDate != "" {
		ts, err := parse.ParseTimestamp(req.EffectiveDate, h.loc)
		if err != nil {
			respondError(c, err)
			return model.Tariff{}, false
		}
		t.EffectiveDate = &ts
	}
	return t, true
}

// ListTariffs supports area_id, floor_id and room_id filters.
func (h *Handler) ListTariffs(c *gin.Context) {
	var filter store.TariffFilter
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
	tariffs, err := h.store.ListTariffs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tariffs)
}

func (h *Handler) GetTariff(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.store.GetTariff(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) CreateTariff(c *gin.Context) {
	t, ok := h.tariffFrom(c, 0)
	if !ok {
		return
	}
	if err := h.store.CreateTariff(c.Request.Context(), &t); err != nil {
		respondError(c, err)
		return
	}
	created, err := h.store.GetTariff(c.Request.Context(), t.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateTariff(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, ok := h.tariffFrom(c, id)
	if !ok {
		return
	}
	if err := h.store.UpdateTariff(c.Request.Context(), &t); err != nil {
		respondError(c, err)
		return
	}
	h.GetTariff(c)
}

func (h *Handler) DeleteTariff(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteTariff(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetDefaultTariff returns the fallback price, creating it on first use.
func (h *Handler) GetDefaultTariff(c *gin.Context) {
	def, err := h.store.DefaultTariff(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

type defaultTariffRequest struct {
	Price float64 `json:"price" binding:"required"`
}

func (h *Handler) SetDefaultTariff(c *gin.Context) {
	var req defaultTariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	def, err := h.store.SetDefaultTariff(c.Request.Context(), req.Price)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}
