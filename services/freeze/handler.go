package freeze

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
	g := routes.V1.Group("/habits/:id/freeze")
	g.POST("/purchase", h.Purchase)
	g.POST("/use", h.Use)
}

func (h *Handler) Purchase(c *gin.Context) {
	out, err := h.service.PurchaseFreeze(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Use(c *gin.Context) {
	out, err := h.service.UseFreeze(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}
