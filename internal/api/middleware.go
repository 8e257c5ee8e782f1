package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const userIDKey = "user_id"

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond),
			"client":  c.ClientIP(),
			"bytes":   c.Writer.Size(),
		}
		if uid := c.GetString(userIDKey); uid != "" {
			fields["user_id"] = uid
		}
		entry := logrus.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("api: request")
		case status >= 400:
			entry.Warn("api: request")
		default:
			entry.Debug("api: request")
		}
	}
}

// identity reads the caller's user ID from the gateway-set header and
// rejects the request when it is absent.
func identity(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(header))
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "authentication required"})
			return
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}
