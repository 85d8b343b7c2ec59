// Package gateway wires the serial link, frame parser and broker clients
// into the bidirectional bridge: commands flow cloud → serial, telemetry
// flows serial → cloud.
package gateway

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/librealarm/alarm-gateway/pkg/config"
	"github.com/librealarm/alarm-gateway/pkg/frame"
)

// RX loop timing. The retry delay doubles on every failed reconnect and
// resets on a successful connect or read.
const (
	initialRetryDelay = 1 * time.Second
	maxRetryDelay     = 5 * time.Second
	idleInterval      = 1 * time.Millisecond
	errorPause        = 100 * time.Millisecond
	joinTimeout       = 1 * time.Second
)

// stateKey is the Redis hash holding the mirrored alarm state.
const stateKey = "alarm"

// SerialLink is the slice of the serial layer the gateway drives. *serialio.Link
// satisfies it; tests substitute a scripted fake.
type SerialLink interface {
	frame.AckWriter
	Reconnect() error
	IsConnected() bool
	InWaiting() int
	ReadByte() (b byte, ok bool, err error)
	Send(command string) error
	Flush() error
	Close() error
}

// Publisher pushes telemetry to the cloud.
type Publisher interface {
	Publish(topic string, payload any) error
}

// StateMirror caches the latest device state for local consumers.
type StateMirror interface {
	WriteAndPublishString(key, field, value string) error
	WriteAndPublishInt(key, field string, value int) error
}

// Gateway owns the RX worker and the command path.
type Gateway struct {
	link   SerialLink
	pub    Publisher
	mirror StateMirror // nil when the mirror is disabled

	proto         frame.Protocol
	updateTopic   string
	payloadKey    string
	validCommands map[string]struct{}

	parser  *frame.Parser
	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	now   func() time.Time
	sleep func(d time.Duration) // interruptible; swapped in tests
}

// New wires a gateway from its collaborators. mirror may be nil.
func New(cfg config.Config, link SerialLink, pub Publisher, mirror StateMirror) *Gateway {
	valid := make(map[string]struct{}, len(cfg.Commands.Valid))
	for _, c := range cfg.Commands.Valid {
		valid[c] = struct{}{}
	}

	g := &Gateway{
		link:   link,
		pub:    pub,
		mirror: mirror,
		proto: frame.Protocol{
			STX:    cfg.Protocol.STX,
			ETX:    cfg.Protocol.ETX,
			ACK:    cfg.Protocol.ACK,
			MaxLen: cfg.Protocol.MaxDataLength,
		},
		updateTopic:   cfg.Topics.Update,
		payloadKey:    cfg.Commands.PayloadKey,
		validCommands: valid,
		stopCh:        make(chan struct{}),
		now:           time.Now,
	}
	g.sleep = g.pause
	g.parser = frame.NewParser(g.proto, g.handleFrame, link)
	return g
}

// Start launches the RX worker.
func (g *Gateway) Start() {
	g.running.Store(true)
	g.wg.Add(1)
	go g.rxLoop()
}

// rxLoop drains the serial port byte by byte, reconnecting with exponential
// backoff whenever the link drops.
func (g *Gateway) rxLoop() {
	defer g.wg.Done()
	log.Info("[GATEWAY] serial RX loop started")

	retryDelay := initialRetryDelay
	for g.running.Load() {
		if !g.link.IsConnected() {
			log.Infof("[GATEWAY] serial disconnected, reconnecting in %s", retryDelay)
			g.sleep(retryDelay)
			if !g.running.Load() {
				break
			}
			if err := g.link.Reconnect(); err != nil {
				log.Warnf("[GATEWAY] reconnect failed: %v", err)
				retryDelay = min(retryDelay*2, maxRetryDelay)
				continue
			}
			log.Info("[GATEWAY] serial reconnected")
			retryDelay = initialRetryDelay
			// Fresh parser bound to the new session: no half-frame from
			// the old one may bleed across.
			g.parser = frame.NewParser(g.proto, g.handleFrame, g.link)
			if err := g.link.Flush(); err != nil {
				log.Debugf("[GATEWAY] post-reconnect flush failed: %v", err)
			}
			continue
		}

		b, ok, err := g.link.ReadByte()
		switch {
		case err != nil && !g.link.IsConnected():
			// transport error; the link has already marked itself down
			log.Warnf("[GATEWAY] serial error (will reconnect): %v", err)
		case err != nil:
			log.Errorf("[GATEWAY] unexpected error in RX loop: %v", err)
			g.sleep(errorPause)
		case ok:
			g.parser.ProcessByte(b)
			retryDelay = initialRetryDelay
		default:
			// nothing arrived within the read timeout
			if g.link.InWaiting() == 0 {
				g.sleep(idleInterval)
			}
		}
	}

	log.Info("[GATEWAY] serial RX loop stopped")
}

// handleFrame is the parser's sink: decode the telemetry payload, stamp it,
// publish it, and mirror the new state.
func (g *Gateway) handleFrame(data []byte) {
	event, err := decodeTelemetry(data)
	if err != nil {
		log.Errorf("[GATEWAY] %v", err)
		return
	}
	event.Timestamp = g.now().UTC().Format(time.RFC3339)

	if err := g.pub.Publish(g.updateTopic, event); err != nil {
		log.Errorf("[GATEWAY] telemetry publish failed: %v", err)
	}
	g.mirrorState(event)
}

// mirrorState caches the event in Redis. Failures are logged and never
// affect the MQTT path.
func (g *Gateway) mirrorState(event TelemetryEvent) {
	if g.mirror == nil {
		return
	}
	warnType := ""
	if event.WarnType != nil {
		warnType = *event.WarnType
	}
	err := errors.Join(
		g.mirror.WriteAndPublishString(stateKey, "state", event.AlarmState),
		g.mirror.WriteAndPublishString(stateKey, "warn_type", warnType),
		g.mirror.WriteAndPublishInt(stateKey, "from_motion", event.FromMotion),
		g.mirror.WriteAndPublishString(stateKey, "timestamp", event.Timestamp),
	)
	if err != nil {
		log.Warnf("[GATEWAY] state mirror update failed: %v", err)
	}
}

// pause sleeps for d or until Stop is called, whichever comes first.
func (g *Gateway) pause(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-g.stopCh:
	case <-timer.C:
	}
}

// Stop shuts the gateway down cooperatively: the RX worker exits at its
// next loop turn (bounded by one read timeout), is joined with a timeout,
// and the serial link is closed unconditionally.
func (g *Gateway) Stop() {
	if !g.running.CompareAndSwap(true, false) {
		return
	}
	close(g.stopCh)

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		log.Warn("[GATEWAY] RX worker did not stop in time, abandoning")
	}

	if err := g.link.Close(); err != nil {
		log.Warnf("[GATEWAY] closing serial link: %v", err)
	}
}
