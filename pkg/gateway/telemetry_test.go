package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librealarm/alarm-gateway/pkg/config"
)

func TestDecodeTelemetryMotionEvent(t *testing.T) {
	event, err := decodeTelemetry([]byte("1|HIGH|WARN"))
	require.NoError(t, err)

	assert.Equal(t, 1, event.FromMotion)
	require.NotNil(t, event.WarnType)
	assert.Equal(t, "HIGH", *event.WarnType)
	assert.Equal(t, "WARN", event.AlarmState)
}

func TestDecodeTelemetryCommandEvent(t *testing.T) {
	event, err := decodeTelemetry([]byte("0||DISARMED"))
	require.NoError(t, err)

	assert.Equal(t, 0, event.FromMotion)
	assert.Nil(t, event.WarnType)
	assert.Equal(t, "DISARMED", event.AlarmState)
}

func TestDecodeTelemetryMalformed(t *testing.T) {
	tests := []string{
		"",
		"1|HIGH",
		"1|HIGH|WARN|extra",
		"x|HIGH|WARN",
		"|HIGH|WARN",
	}
	for _, payload := range tests {
		_, err := decodeTelemetry([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedTelemetry, "payload %q", payload)
	}
}

func TestHandleFrameStampsAndPublishes(t *testing.T) {
	pub := &fakePublisher{}
	g := New(config.Default(), &fakeLink{connected: true}, pub, nil)
	fixed := time.Date(2026, 8, 1, 12, 30, 45, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	g.handleFrame([]byte("1|HIGH|WARN"))

	require.Len(t, pub.events, 1)
	assert.Equal(t, []string{"alarm/updates"}, pub.topics)
	assert.Equal(t, "2026-08-01T12:30:45Z", pub.events[0].Timestamp)
	assert.Equal(t, "WARN", pub.events[0].AlarmState)
}

func TestHandleFrameDropsMalformed(t *testing.T) {
	pub := &fakePublisher{}
	g := New(config.Default(), &fakeLink{connected: true}, pub, nil)

	g.handleFrame([]byte("garbage"))
	assert.Empty(t, pub.events)
}

func TestHandleFramePublishFailureDoesNotPanic(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unreachable")}
	mirror := newFakeMirror()
	g := New(config.Default(), &fakeLink{connected: true}, pub, mirror)

	g.handleFrame([]byte("0||ARMED"))

	// the event is dropped cloud-side but the mirror still sees it
	assert.Equal(t, "ARMED", mirror.strings["alarm/state"])
}

func TestHandleFrameMirrorsState(t *testing.T) {
	mirror := newFakeMirror()
	g := New(config.Default(), &fakeLink{connected: true}, &fakePublisher{}, mirror)
	g.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }

	g.handleFrame([]byte("1|HIGH|WARN"))

	assert.Equal(t, "WARN", mirror.strings["alarm/state"])
	assert.Equal(t, "HIGH", mirror.strings["alarm/warn_type"])
	assert.Equal(t, 1, mirror.ints["alarm/from_motion"])
	assert.Equal(t, "2026-08-01T00:00:00Z", mirror.strings["alarm/timestamp"])
}

func TestHandleFrameMirrorFailureDoesNotAffectPublish(t *testing.T) {
	pub := &fakePublisher{}
	mirror := newFakeMirror()
	mirror.err = errors.New("redis down")
	g := New(config.Default(), &fakeLink{connected: true}, pub, mirror)

	g.handleFrame([]byte("0||DISARMED"))
	assert.Len(t, pub.events, 1)
}

func TestHandleFrameCommandEventPublishesNullWarn(t *testing.T) {
	pub := &fakePublisher{}
	g := New(config.Default(), &fakeLink{connected: true}, pub, nil)

	g.handleFrame([]byte("0||DISARMED"))
	require.Len(t, pub.events, 1)
	assert.Nil(t, pub.events[0].WarnType)
	assert.Equal(t, 0, pub.events[0].FromMotion)
	assert.Equal(t, "DISARMED", pub.events[0].AlarmState)
}
