package leaderboard

import (
	"net/http"
	"strconv"

	"progression-engine/pkg/errutil"
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
	routes.V1.GET("/leaderboard", h.Top)
}

func (h *Handler) Top(c *gin.Context) {
	var n int64
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			_ = c.Error(errutil.BadRequest("invalid limit", err))
			return
		}
		n = parsed
	}

	ctx := c.Request.Context()
	top, err := h.service.Top(ctx, n)
	if err != nil {
		_ = c.Error(err)
		return
	}
	rank, err := h.service.Rank(ctx, middleware.UserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": top, "my_rank": rank})
}
