package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/samintell/songquiz/internal/realtime"
	"github.com/samintell/songquiz/pkg/errors"
	"github.com/samintell/songquiz/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into channel event streams.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a realtime handler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream subscribes the caller to the quiz stream of the path channel and to any extra
// quiz streams listed in the query. The participant id is taken from the query or the
// X-Participant-ID header.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	participant := participantID(c)
	if participant == "" {
		response.Error(c, errors.NewBadRequest("participant is required"))
		return
	}

	streams, ok := gatherStreams(c)
	if !ok || len(streams) == 0 {
		response.Error(c, errors.ErrNotFound)
		return
	}

	h.hub.Serve(participant, streams, c.Writer, c.Request)
}

func gatherStreams(c *gin.Context) ([]string, bool) {
	var streams []string

	if channel := channelParam(c); channel != "" {
		streams = append(streams, realtime.QuizStream(channel))
	}

	extra := c.QueryArray("stream")
	if raw := c.Query("streams"); raw != "" {
		extra = append(extra, strings.Split(raw, ",")...)
	}
	for _, stream := range extra {
		stream = strings.TrimSpace(stream)
		if stream == "" {
			continue
		}
		if _, ok := realtime.ChannelFromStream(stream); !ok {
			return nil, false
		}
		streams = append(streams, realtime.NormalizeStream(stream))
	}

	return streams, true
}
