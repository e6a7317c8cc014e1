package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/middlewares"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
)

func (h *Handler) setTokenCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middlewares.TokenCookieName, token, maxAge, "/", "", config.IsProduction(), true)
}

func (h *Handler) Login(c *gin.Context) {
	var input models.LoginInput
	if !bindJSON(c, &input) {
		return
	}
	info, err := h.Accounts.Login(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	h.setTokenCookie(c, info.Token, int(utils.TokenLifespan().Seconds()))
	c.JSON(http.StatusOK, info)
}

func (h *Handler) Logout(c *gin.Context) {
	token, _ := utils.GetTokenFromContext(c.Request.Context())
	if err := h.Accounts.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	h.setTokenCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
