package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	usagedomain "github.com/paissive/monetize/internal/usage/domain"
)

func (s *Server) TrackUsage(c *gin.Context) {
	var req usagedomain.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.usageSvc.Track(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) ListUsageRecords(c *gin.Context) {
	var req usagedomain.ListRecordsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	page, err := s.usageSvc.ListRecords(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

func (s *Server) CheckUsage(c *gin.Context) {
	var req usagedomain.CheckRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.usageSvc.CheckAllowed(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) UsageSummary(c *gin.Context) {
	var req usagedomain.SummaryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	summary, err := s.usageSvc.GetSummary(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (s *Server) UsageTrends(c *gin.Context) {
	var req usagedomain.TrendsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	trends, err := s.usageSvc.GetTrends(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, trends)
}

func (s *Server) SetUsageLimit(c *gin.Context) {
	var req usagedomain.SetLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	limit, err := s.usageSvc.SetLimit(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, limit)
}

func (s *Server) ListUsageLimits(c *gin.Context) {
	customerID := strings.TrimSpace(c.Query("customer_id"))
	if customerID == "" {
		AbortWithError(c, usagedomain.ErrInvalidCustomer)
		return
	}

	limits, err := s.usageSvc.ListLimits(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"limits": limits})
}
