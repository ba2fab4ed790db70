package serialmux

import (
	"strconv"
	"strings"
)

const (
	EventTypeReply   = "reply"
	EventTypeNotice  = "notice"
	EventTypeUnknown = "unknown"
)

// ClassifyPayload sorts a line read from the sonar: replies start with a
// numeric request id followed by OK or ERR, notices start with '!'.
func ClassifyPayload(payload string) string {
	if strings.HasPrefix(payload, "!") {
		return EventTypeNotice
	}
	id, rest, ok := strings.Cut(payload, " ")
	if !ok {
		return EventTypeUnknown
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return EventTypeUnknown
	}
	status, _, _ := strings.Cut(rest, " ")
	if status == "OK" || status == "ERR" {
		return EventTypeReply
	}
	return EventTypeUnknown
}
