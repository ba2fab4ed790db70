package serialmux

import (
	"context"

	"github.com/banshee-data/sidescan/internal/monitoring"
)

// LogUnsolicited subscribes to m and writes every line that is not a reply
// to the diagnostic stream: device notices to help explain a failure, and
// unparseable lines that hint at a baud mismatch. It returns when ctx is
// done or the mux is closed.
func LogUnsolicited(ctx context.Context, m SerialMuxInterface) {
	id, lines := m.Subscribe()
	defer m.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			HandleLine(line)
		}
	}
}

// HandleLine logs one line according to its class and returns the class.
func HandleLine(line string) string {
	kind := ClassifyPayload(line)
	switch kind {
	case EventTypeNotice:
		monitoring.Diagf("[sonarlink] device notice: %s", line[1:])
	case EventTypeUnknown:
		monitoring.Diagf("[sonarlink] unrecognised line: %q", line)
	}
	return kind
}
