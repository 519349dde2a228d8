package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
)

func (s *Server) CreateCharge(c *gin.Context) {
	var req paymentdomain.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	tx, err := s.paymentSvc.Charge(c.Request.Context(), req)
	if err != nil {
		// A declined charge still produced a ledger row; surface both.
		if tx != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"transaction": tx,
				"error": errorPayload{
					Type:    "payment_processing_failed",
					Message: err.Error(),
				},
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

func (s *Server) ListTransactions(c *gin.Context) {
	req := paymentdomain.ListRequest{
		CustomerID: c.Query("customer_id"),
		Status:     c.Query("status"),
	}

	txs, err := s.paymentSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (s *Server) GetTransaction(c *gin.Context) {
	tx, err := s.paymentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) RefundTransaction(c *gin.Context) {
	var req refundRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
	}

	tx, err := s.paymentSvc.Refund(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}
