package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
)

const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client supplied ids before they reach logs.
const maxRequestIDLength = 128

// RequestID honors an incoming X-Request-ID or generates one, and echoes it
// on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}

		reqctx.From(c).RequestID = id
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}
