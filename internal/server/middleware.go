package server

import (
	"net/http"
	"time"

	"auctioneer/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs status API requests; polling traffic stays at debug
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next()

	fields := map[string]any{
		"method":      c.Request.Method,
		"route":       c.FullPath(),
		"path":        c.Request.URL.Path,
		"status":      c.Writer.Status(),
		"latency_ms":  time.Since(start).Milliseconds(),
		"remote_addr": c.ClientIP(),
	}
	if len(c.Errors) > 0 {
		fields["errors"] = c.Errors.String()
	}

	switch status := c.Writer.Status(); {
	case status >= http.StatusInternalServerError:
		utils.Error("status API request failed", fields)
	case status >= http.StatusBadRequest:
		utils.Warn("status API request rejected", fields)
	default:
		utils.Debug("status API request", fields)
	}
}
