package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// requestContext returns the request context, or a background context when the handler
// runs without a request.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

func channelParam(c *gin.Context) string {
	return strings.TrimSpace(c.Param("channel"))
}

// participantID reads the caller from the participant query parameter, falling back to the
// X-Participant-ID header.
func participantID(c *gin.Context) string {
	if id := strings.TrimSpace(c.Query("participant")); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader("X-Participant-ID"))
}
