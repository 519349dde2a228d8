package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	invoicedomain "github.com/paissive/monetize/internal/invoice/domain"
)

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, inv)
}

func (s *Server) ListInvoices(c *gin.Context) {
	req := invoicedomain.ListRequest{
		CustomerID: c.Query("customer_id"),
		Status:     c.Query("status"),
	}

	invoices, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (s *Server) GetInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

func (s *Server) RenderInvoicePDF(c *gin.Context) {
	doc, err := s.invoiceSvc.RenderPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, doc)
}

func (s *Server) SendInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Send(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

type payInvoiceRequest struct {
	TransactionID string `json:"transaction_id"`
}

func (s *Server) PayInvoice(c *gin.Context) {
	var req payInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	inv, err := s.invoiceSvc.Pay(c.Request.Context(), c.Param("id"), req.TransactionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}

func (s *Server) VoidInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Void(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, inv)
}
