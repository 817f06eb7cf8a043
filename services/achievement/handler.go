package achievement

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

func registerRoutes(routes *httpapi.Routes, h *Handler) {
	routes.V1.GET("/achievements", h.List)
}

func (h *Handler) List(c *gin.Context) {
	out, err := h.service.ListAchievements(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}
