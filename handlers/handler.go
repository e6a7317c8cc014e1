package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/middlewares"
	"github.com/mmdatafocus/warehouse_backend/models/reports"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/mmdatafocus/warehouse_backend/workflow"
	"github.com/sirupsen/logrus"
)

// Handler adapts HTTP requests to the workflow services.
type Handler struct {
	Catalog  *workflow.Catalog
	Issues   *workflow.IssueWorkflow
	Accounts *workflow.Accounts
	Reports  *reports.Engine
	Storage  utils.ObjectStorage
	Logger   *logrus.Logger
}

func (h *Handler) logger() *logrus.Logger {
	if h.Logger == nil {
		return config.GetLogger()
	}
	return h.Logger
}

// RegisterRoutes mounts the API on api, which is expected to be the /api group
// with AuthMiddleware and LoaderMiddleware already applied.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })
	api.POST("/login", h.Login)

	authed := api.Group("", middlewares.RequireSession())
	authed.POST("/logout", h.Logout)

	authed.GET("/items", h.ListItems)
	authed.POST("/items", h.CreateItem)
	authed.GET("/items/:id", h.GetItem)
	authed.PUT("/items/:id", h.UpdateItem)
	authed.DELETE("/items/:id", h.DeleteItem)
	authed.POST("/items/:id/image", h.UploadItemImage)

	authed.GET("/locations", h.ListLocations)
	authed.POST("/locations", h.CreateLocation)
	authed.GET("/locations/:id", h.GetLocation)
	authed.PUT("/locations/:id", h.UpdateLocation)
	authed.DELETE("/locations/:id", h.DeleteLocation)

	authed.POST("/issues", h.SubmitIssue)
	authed.GET("/issues/pending", h.ListPendingIssues)
	authed.GET("/issues/:id", h.GetIssue)
	resolvers := authed.Group("", middlewares.RequireManagerOrAdmin())
	resolvers.POST("/issues/:id/approve", h.ApproveIssue)
	resolvers.POST("/issues/:id/deny", h.DenyIssue)

	authed.GET("/reports/inventory", h.InventoryReport)
	authed.GET("/reports/issues", h.IssueReport)
	authed.GET("/reports/item-movements/:itemId", h.ItemMovementReport)

	admin := authed.Group("/admin", middlewares.RequireAdmin())
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)
}
