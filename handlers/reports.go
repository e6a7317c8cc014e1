package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/middlewares"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/models/reports"
)

const reportDateLayout = "2006-01-02"

// engine resolves names through the request's dataloaders when present.
func (h *Handler) engine(c *gin.Context) *reports.Engine {
	if loaders := middlewares.For(c.Request.Context()); loaders != nil {
		return h.Reports.WithNames(loaders)
	}
	return h.Reports
}

func (h *Handler) InventoryReport(c *gin.Context) {
	rows, err := h.engine(c).InventorySnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []*reports.InventoryRow{}
	}
	c.JSON(http.StatusOK, gin.H{"inventory": rows})
}

// IssueReport accepts status, and from/to as RFC 3339 timestamps or dates.
// A bare "to" date covers the whole day.
func (h *Handler) IssueReport(c *gin.Context) {
	var filter reports.IssueReportFilter
	if raw := c.Query("status"); raw != "" {
		status, err := models.ParseIssueStatus(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.Status = &status
	}
	var err error
	if filter.From, err = parseReportTime("from", c.Query("from"), false); err != nil {
		respondError(c, err)
		return
	}
	if filter.To, err = parseReportTime("to", c.Query("to"), true); err != nil {
		respondError(c, err)
		return
	}

	rows, err := h.engine(c).IssueReport(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []*reports.IssueRow{}
	}
	c.JSON(http.StatusOK, gin.H{"issues": rows})
}

func (h *Handler) ItemMovementReport(c *gin.Context) {
	itemId, ok := pathId(c, "itemId")
	if !ok {
		return
	}
	rows, err := h.engine(c).ItemMovementReport(c.Request.Context(), itemId)
	if err != nil {
		respondError(c, err)
		return
	}
	if rows == nil {
		rows = []*reports.IssueRow{}
	}
	c.JSON(http.StatusOK, gin.H{"movements": rows})
}

func parseReportTime(field, raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	day, err := time.Parse(reportDateLayout, raw)
	if err != nil {
		return nil, models.NewValidationError("invalid "+field, map[string]string{field: "datetime"})
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}
