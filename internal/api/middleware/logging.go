// Package middleware holds the gin middleware of the serve command.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bhandras/shellkit/pkg/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

var log = logger.Named("http")

// RequestID reuses the caller's X-Request-Id or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *gin.Context) (string, bool) {
	id, ok := c.Get(requestIDKey)
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		// [method] path?query - status (latency) id
		if raw != "" {
			path = path + "?" + raw
		}
		id, _ := GetRequestID(c)

		switch {
		case statusCode >= 500:
			log.Warnf("[%s] %s - %d (%v) %s", c.Request.Method, path, statusCode, latency, id)
		default:
			log.Infof("[%s] %s - %d (%v) %s", c.Request.Method, path, statusCode, latency, id)
		}
	}
}
