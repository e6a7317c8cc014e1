package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/models"
)

type itemListResponse struct {
	Items []*models.Item `json:"items"`
	Total int64          `json:"total"`
}

func (h *Handler) ListItems(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", models.DefaultPageLimit)
	if !ok {
		return
	}
	items, total, err := h.Catalog.ListItems(c.Request.Context(), models.ItemFilter{
		PageRequest: models.PageRequest{Page: page, Limit: limit},
		Search:      c.Query("search"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []*models.Item{}
	}
	c.JSON(http.StatusOK, itemListResponse{Items: items, Total: total})
}

func (h *Handler) CreateItem(c *gin.Context) {
	var input models.NewItem
	if !bindJSON(c, &input) {
		return
	}
	item, err := h.Catalog.CreateItem(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h *Handler) GetItem(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	item, err := h.Catalog.GetItem(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) UpdateItem(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.UpdateItem
	if !bindJSON(c, &input) {
		return
	}
	item, err := h.Catalog.UpdateItem(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) DeleteItem(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.DeleteItem(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
