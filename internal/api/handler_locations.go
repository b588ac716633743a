package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dianbiao-backend/internal/model"
)

// nameRequest is the body of area creation and of every rename.
type nameRequest struct {
	Name   string `json:"name" binding:"required"`
	Remark string `json:"remark"`
}

func (h *Handler) ListAreas(c *gin.Context) {
	areas, err := h.store.ListAreas(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, areas)
}

func (h *Handler) GetArea(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	area, err := h.store.GetArea(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, area)
}

func (h *Handler) CreateArea(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	area := model.Area{Name: req.Name, Remark: req.Remark}
	if err := h.store.CreateArea(c.Request.Context(), &area); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, area)
}

func (h *Handler) UpdateArea(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	area := model.Area{ID: id, Name: req.Name, Remark: req.Remark}
	if err := h.store.UpdateArea(c.Request.Context(), &area); err != nil {
		respondError(c, err)
		return
	}
	h.GetArea(c)
}

// DeleteArea refuses while the area still has floors or devices.
func (h *Handler) DeleteArea(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteArea(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type floorRequest struct {
	AreaID int64  `json:"area_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Remark string `json:"remark"`
}

// ListFloors lists the floors of the area in the path.
func (h *Handler) ListFloors(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	floors, err := h.store.ListFloors(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, floors)
}

func (h *Handler) GetFloor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	floor, err := h.store.GetFloor(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, floor)
}

func (h *Handler) CreateFloor(c *gin.Context) {
	var req floorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	floor := model.Floor{AreaID: req.AreaID, Name: req.Name, Remark: req.Remark}
	if err := h.store.CreateFloor(c.Request.Context(), &floor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, floor)
}

func (h *Handler) UpdateFloor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	floor := model.Floor{ID: id, Name: req.Name, Remark: req.Remark}
	if err := h.store.UpdateFloor(c.Request.Context(), &floor); err != nil {
		respondError(c, err)
		return
	}
	h.GetFloor(c)
}

func (h *Handler) DeleteFloor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteFloor(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type roomRequest struct {
	FloorID int64  `json:"floor_id" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Remark  string `json:"remark"`
}

// ListRooms lists the rooms of the floor in the path.
func (h *Handler) ListRooms(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rooms, err := h.store.ListRooms(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rooms)
}

func (h *Handler) GetRoom(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	room, err := h.store.GetRoom(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) CreateRoom(c *gin.Context) {
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room := model.Room{FloorID: req.FloorID, Name: req.Name, Remark: req.Remark}
	if err := h.store.CreateRoom(c.Request.Context(), &room); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) UpdateRoom(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	room := model.Room{ID: id, Name: req.Name, Remark: req.Remark}
	if err := h.store.UpdateRoom(c.Request.Context(), &room); err != nil {
		respondError(c, err)
		return
	}
	h.GetRoom(c)
}

func (h *Handler) DeleteRoom(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteRoom(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
