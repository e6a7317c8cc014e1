package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/models"
)

const nextCursorHeader = "X-Next-Cursor"

func (h *Handler) SubmitIssue(c *gin.Context) {
	var input models.NewIssue
	if !bindJSON(c, &input) {
		return
	}
	issue, err := h.Issues.Submit(c.Request.Context(), &input, currentUserId(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issue)
}

// ListPendingIssues returns every pending issue, oldest first. With limit or cursor set it
// returns one page and puts the continuation in the X-Next-Cursor header.
func (h *Handler) ListPendingIssues(c *gin.Context) {
	ctx := c.Request.Context()
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	after, err := models.DecodeIssueCursor(c.Query("cursor"))
	if err != nil {
		respondError(c, err)
		return
	}

	if limit == 0 && after == nil {
		issues, err := h.Issues.ListPending(ctx, 0)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, issues)
		return
	}

	issues, next, err := h.Issues.PendingPage(ctx, after, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if issues == nil {
		issues = []*models.IssueRequest{}
	}
	if next != nil {
		c.Header(nextCursorHeader, next.Encode())
	}
	c.JSON(http.StatusOK, issues)
}

func (h *Handler) GetIssue(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	issue, err := h.Issues.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (h *Handler) ApproveIssue(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	issue, err := h.Issues.Approve(c.Request.Context(), id, currentUserId(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}

func (h *Handler) DenyIssue(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	issue, err := h.Issues.Deny(c.Request.Context(), id, currentUserId(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, issue)
}
