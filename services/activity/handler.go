package activity

import (
	"net/http"

	"progression-engine/pkg/httpapi"
	"progression-engine/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Engagement credits are rate limited per user.
func registerRoutes(routes *httpapi.Routes, h *Handler) {
	routes.Limited.POST("/activity/click", h.Click)
	routes.Limited.POST("/activity/ad", h.AdWatch)
}

func (h *Handler) Click(c *gin.Context) {
	out, err := h.service.RecordClick(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) AdWatch(c *gin.Context) {
	out, err := h.service.RecordAdWatch(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
