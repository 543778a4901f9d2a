package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope wraps every status API reply
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// JSONResponse sends data inside the envelope
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Envelope{Status: status, Message: message, Data: data})
}

// JSONError sends err inside the envelope; a nil err falls back to the message
func JSONError(c *gin.Context, status int, err error, message string) {
	detail := message
	if err != nil {
		detail = err.Error()
	}
	c.AbortWithStatusJSON(status, Envelope{Status: status, Message: message, Error: detail})
}

// NoRoute answers unknown paths with an enveloped 404
func NoRoute(c *gin.Context) {
	JSONError(c, http.StatusNotFound, nil, "route not found: "+c.Request.URL.Path)
}
