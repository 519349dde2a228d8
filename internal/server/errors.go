package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	analyticsdomain "github.com/paissive/monetize/internal/analytics/domain"
	invoicedomain "github.com/paissive/monetize/internal/invoice/domain"
	paymentdomain "github.com/paissive/monetize/internal/payment/domain"
	plandomain "github.com/paissive/monetize/internal/plan/domain"
	pricingdomain "github.com/paissive/monetize/internal/pricing/domain"
	prorationdomain "github.com/paissive/monetize/internal/proration/domain"
	subscriptiondomain "github.com/paissive/monetize/internal/subscription/domain"
	usagedomain "github.com/paissive/monetize/internal/usage/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// ErrorHandlingMiddleware turns errors recorded on the context into one
// JSON error response. Handlers abort with AbortWithError and never
// write error bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrPaymentProcessing):
		return http.StatusBadGateway, errorPayload{
			Type:    "payment_processing_failed",
			Message: err.Error(),
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, usagedomain.ErrInvalidCustomer),
		errors.Is(err, usagedomain.ErrInvalidMetric),
		errors.Is(err, usagedomain.ErrInvalidPeriod),
		errors.Is(err, usagedomain.ErrInvalidQuantity),
		errors.Is(err, usagedomain.ErrInvalidInterval),
		errors.Is(err, usagedomain.ErrInvalidPageToken),
		errors.Is(err, pricingdomain.ErrInvalidMetric),
		errors.Is(err, pricingdomain.ErrInvalidPrice),
		errors.Is(err, pricingdomain.ErrInvalidQuantity),
		errors.Is(err, pricingdomain.ErrInvalidTiers),
		errors.Is(err, prorationdomain.ErrInvalidAmount),
		errors.Is(err, prorationdomain.ErrInvalidPeriod),
		errors.Is(err, prorationdomain.ErrInvalidDate),
		errors.Is(err, plandomain.ErrInvalidCode),
		errors.Is(err, plandomain.ErrInvalidName),
		errors.Is(err, plandomain.ErrInvalidAmount),
		errors.Is(err, plandomain.ErrInvalidCurrency),
		errors.Is(err, plandomain.ErrInvalidPeriod),
		errors.Is(err, plandomain.ErrInvalidID),
		errors.Is(err, subscriptiondomain.ErrInvalidCustomer),
		errors.Is(err, subscriptiondomain.ErrInvalidPlan),
		errors.Is(err, subscriptiondomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrInvalidCustomer),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidCurrency),
		errors.Is(err, paymentdomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidCustomer),
		errors.Is(err, invoicedomain.ErrInvalidCurrency),
		errors.Is(err, invoicedomain.ErrInvalidItems),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, analyticsdomain.ErrInvalidPeriods),
		errors.Is(err, analyticsdomain.ErrInvalidGrowthRate),
		errors.Is(err, analyticsdomain.ErrInvalidRange):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, plandomain.ErrNotFound),
		errors.Is(err, subscriptiondomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, invoicedomain.ErrNotFound),
		errors.Is(err, pricingdomain.ErrNoRule),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, plandomain.ErrDuplicateCode),
		errors.Is(err, subscriptiondomain.ErrNotActive),
		errors.Is(err, subscriptiondomain.ErrAlreadyCanceled),
		errors.Is(err, subscriptiondomain.ErrSamePlan),
		errors.Is(err, paymentdomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrInvalidTransition),
		errors.Is(err, invoicedomain.ErrInvalidTransaction):
		return true
	default:
		return false
	}
}
