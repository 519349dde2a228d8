package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	pricingdomain "github.com/paissive/monetize/internal/pricing/domain"
)

type createPricingRuleRequest struct {
	Metric       string                   `json:"metric"`
	Category     string                   `json:"category"`
	Kind         string                   `json:"kind"`
	Graduated    bool                     `json:"graduated"`
	PricePerUnit decimal.Decimal          `json:"price_per_unit"`
	Tiers        []pricingdomain.TierSpec `json:"tiers"`
}

func (s *Server) CreatePricingRule(c *gin.Context) {
	var req createPricingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var (
		rule *pricingdomain.PricingRule
		err  error
	)
	switch req.Kind {
	case "tiered":
		rule, err = s.pricingSvc.CreateTieredRule(c.Request.Context(), pricingdomain.TieredRuleRequest{
			Metric:    req.Metric,
			Category:  req.Category,
			Graduated: req.Graduated,
			Tiers:     req.Tiers,
		})
	case "", "per_unit":
		rule, err = s.pricingSvc.CreatePerUnitRule(c.Request.Context(), pricingdomain.PerUnitRuleRequest{
			Metric:       req.Metric,
			Category:     req.Category,
			PricePerUnit: req.PricePerUnit,
		})
	default:
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rule)
}

func (s *Server) ListPricingRules(c *gin.Context) {
	rules, err := s.pricingSvc.ListRules(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

func (s *Server) CalculateCost(c *gin.Context) {
	var req pricingdomain.CostRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	cost, err := s.pricingSvc.CalculateCost(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"metric":   req.Metric,
		"category": req.Category,
		"quantity": req.Quantity,
		"cost":     cost,
	})
}
