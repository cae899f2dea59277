package realtime

import "strings"

// StreamQuizPrefix prefixes per-channel quiz streams.
const StreamQuizPrefix = "quiz."

// QuizStream names the stream that carries the events of one chat channel. Channel ids
// are case sensitive, so only the prefix is canonical.
func QuizStream(channelID string) string {
	return StreamQuizPrefix + strings.TrimSpace(channelID)
}

// ChannelFromStream extracts the channel of a quiz stream.
func ChannelFromStream(stream string) (string, bool) {
	stream = NormalizeStream(stream)
	if !strings.HasPrefix(stream, StreamQuizPrefix) {
		return "", false
	}
	channel := strings.TrimPrefix(stream, StreamQuizPrefix)
	return channel, channel != ""
}

// NormalizeStream trims stream and lowercases a quiz prefix, leaving the channel part
// untouched.
func NormalizeStream(stream string) string {
	stream = strings.TrimSpace(stream)
	if len(stream) >= len(StreamQuizPrefix) && strings.EqualFold(stream[:len(StreamQuizPrefix)], StreamQuizPrefix) {
		return StreamQuizPrefix + strings.TrimSpace(stream[len(StreamQuizPrefix):])
	}
	return stream
}

func uniqueStreams(streams []string) []string {
	unique := make(map[string]struct{}, len(streams))
	var result []string
	for _, stream := range streams {
		if stream = NormalizeStream(stream); stream != "" {
			if _, exists := unique[stream]; !exists {
				unique[stream] = struct{}{}
				result = append(result, stream)
			}
		}
	}
	return result
}
