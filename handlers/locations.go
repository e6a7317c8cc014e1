package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/models"
)

// ListLocations returns a bare array; page and limit are optional.
func (h *Handler) ListLocations(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	locations, err := h.Catalog.ListLocations(c.Request.Context(), models.LocationFilter{
		PageRequest: models.PageRequest{Page: page, Limit: limit},
		Search:      c.Query("search"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if locations == nil {
		locations = []*models.Location{}
	}
	c.JSON(http.StatusOK, locations)
}

func (h *Handler) CreateLocation(c *gin.Context) {
	var input models.NewLocation
	if !bindJSON(c, &input) {
		return
	}
	location, err := h.Catalog.CreateLocation(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, location)
}

func (h *Handler) GetLocation(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	location, err := h.Catalog.GetLocation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

func (h *Handler) UpdateLocation(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.UpdateLocation
	if !bindJSON(c, &input) {
		return
	}
	location, err := h.Catalog.UpdateLocation(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}

// DeleteLocation answers with the removed location.
func (h *Handler) DeleteLocation(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	location, err := h.Catalog.GetLocation(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Catalog.DeleteLocation(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, location)
}
