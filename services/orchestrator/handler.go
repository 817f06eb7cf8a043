package orchestrator

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
	routes.V1.POST("/habits/:id/complete", h.CompleteHabit)
	routes.V1.POST("/challenges/:id/claim", h.ClaimChallenge)
}

func (h *Handler) CompleteHabit(c *gin.Context) {
	out, err := h.service.CompleteHabit(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ClaimChallenge(c *gin.Context) {
	out, err := h.service.ClaimChallenge(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
