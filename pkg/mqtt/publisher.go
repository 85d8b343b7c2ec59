package mqtt

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Publisher sends telemetry to the broker at QoS 1, reconnecting on demand.
type Publisher struct {
	client *Client
}

// NewPublisher returns a publisher. Reconnection is not automatic: a dead
// connection is re-dialed synchronously by the next Publish, bounded by the
// connect timeout, so the caller is never stalled longer than that.
func NewPublisher(cfg Config) *Publisher {
	return &Publisher{client: newClient(cfg, false, nil)}
}

// Connect dials the broker.
func (p *Publisher) Connect() error {
	return p.client.Connect()
}

// Publish sends payload to topic. Strings and byte slices go out verbatim;
// anything else is JSON-encoded first.
func (p *Publisher) Publish(topic string, payload any) error {
	if !p.client.IsConnected() {
		log.Warn("[MQTT] publisher disconnected, attempting reconnect")
		if err := p.client.Connect(); err != nil {
			return fmt.Errorf("mqtt: reconnect failed: %w", err)
		}
	}

	var msg []byte
	switch v := payload.(type) {
	case string:
		msg = []byte(v)
	case []byte:
		msg = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("mqtt: encode payload: %w", err)
		}
		msg = encoded
	}

	token := p.client.paho.Publish(topic, qosAtLeastOnce, false, msg)
	if !token.WaitTimeout(p.client.cfg.ConnectTimeout) {
		return ErrPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	log.Debugf("[MQTT] published to %s: %s", topic, msg)
	return nil
}

// Disconnect closes the broker connection.
func (p *Publisher) Disconnect() {
	p.client.Disconnect()
}
