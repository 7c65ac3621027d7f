package apierror

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

var statusCodes = map[string]int{
	EInternal:        http.StatusInternalServerError,
	EInvalid:         http.StatusBadRequest,
	EUnauthorized:    http.StatusUnauthorized,
	EForbidden:       http.StatusForbidden,
	ENotFound:        http.StatusNotFound,
	EConflict:        http.StatusConflict,
	ETooManyRequests: http.StatusTooManyRequests,
	EUnavailable:     http.StatusServiceUnavailable,
}

// StatusCode maps err to an HTTP status. Unknown codes are 500.
func StatusCode(err error) int {
	if status, ok := statusCodes[ErrorCode(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Body is the JSON shape of every resolution and permission error.
type Body struct {
	Error     string  `json:"error"`
	Message   string  `json:"message"`
	RequestID *string `json:"request_id"`
}

func NewBody(err error, requestID string) (int, Body) {
	status := StatusCode(err)
	body := Body{
		Error:   http.StatusText(status),
		Message: ErrorMessage(err),
	}
	if requestID != "" {
		body.RequestID = &requestID
	}
	return status, body
}

// Abort writes err as a JSON body and stops the gin handler chain.
func Abort(c *gin.Context, err error, requestID string) {
	status, body := NewBody(err, requestID)
	c.AbortWithStatusJSON(status, body)
}
