package server

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
)

type usageIngestKey struct {
	CustomerID string `json:"customer_id"`
}

// UsageIngestRateLimit throttles ingest per customer. The body is read
// ahead of binding to extract the key, then restored for the handler.
func (s *Server) UsageIngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.usageLimiter == nil || !s.usageLimiter.Enabled() {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var key usageIngestKey
		if err := json.Unmarshal(body, &key); err != nil || key.CustomerID == "" {
			// Let the handler produce the validation error.
			c.Next()
			return
		}

		res, err := s.usageLimiter.AllowCustomer(c.Request.Context(), key.CustomerID)
		if err != nil {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
			AbortWithError(c, ErrTooManyRequests)
			return
		}

		c.Next()
	}
}
