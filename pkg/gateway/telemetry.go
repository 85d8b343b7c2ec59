package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TelemetryEvent is one device-reported state transition, published on the
// update topic as JSON.
type TelemetryEvent struct {
	FromMotion int     `json:"from_motion"`
	AlarmState string  `json:"alarm_state"`
	WarnType   *string `json:"warn_type"`
	Timestamp  string  `json:"timestamp"`
}

// ErrMalformedTelemetry flags a device payload that does not match the
// FROM_MOTION|WARN_TYPE|ALARM_STATE shape.
var ErrMalformedTelemetry = errors.New("gateway: malformed telemetry payload")

// decodeTelemetry parses the panel's pipe-delimited payload.
// Examples: "1|HIGH|WARN" (motion event), "0||DISARMED" (command event;
// the empty warn field becomes null).
func decodeTelemetry(data []byte) (TelemetryEvent, error) {
	parts := strings.Split(string(data), "|")
	if len(parts) != 3 {
		return TelemetryEvent{}, fmt.Errorf("%w: want 3 fields, got %d in %q", ErrMalformedTelemetry, len(parts), data)
	}

	fromMotion, err := strconv.Atoi(parts[0])
	if err != nil {
		return TelemetryEvent{}, fmt.Errorf("%w: motion flag %q is not an integer", ErrMalformedTelemetry, parts[0])
	}

	var warnType *string
	if parts[1] != "" {
		w := parts[1]
		warnType = &w
	}

	return TelemetryEvent{
		FromMotion: fromMotion,
		AlarmState: parts[2],
		WarnType:   warnType,
	}, nil
}
