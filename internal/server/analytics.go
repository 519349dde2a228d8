package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	analyticsdomain "github.com/paissive/monetize/internal/analytics/domain"
)

func (s *Server) AnalyticsOverview(c *gin.Context) {
	overview, err := s.analyticsSvc.Overview(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

func (s *Server) ForecastRevenue(c *gin.Context) {
	var req analyticsdomain.ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	projections, err := s.analyticsSvc.ForecastRevenue(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projections": projections})
}
