package httpmiddleware

import (
	"github.com/gin-gonic/gin"
)

// ErrorResponse 是所有接口统一的错误体。
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// AbortWithError 写错误体并中止后续 handler。
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      status,
		Message:   message,
		RequestID: RequestIDFrom(c),
	})
}
