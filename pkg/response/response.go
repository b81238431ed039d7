package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope every chat endpoint answers with.
// Failures carry Error; successes carry Data.
type APIResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func SendAPIResponse(c *gin.Context, code int, success bool, message string, data any) {
	resp := APIResponse{
		Success:   success,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}
	if !success {
		resp.Error = message
	}

	c.JSON(code, resp)
}

// SendError writes a failure envelope and aborts the handler chain.
func SendError(c *gin.Context, code int, message string) {
	SendAPIResponse(c, code, false, message, nil)
	c.Abort()
}
