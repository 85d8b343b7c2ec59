package mqtt

import (
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Handler receives the raw payload of each message on the subscribed topic.
// It runs on the broker library's dispatch goroutine.
type Handler func(payload []byte)

// Subscriber maintains one topic subscription across broker reconnects.
type Subscriber struct {
	client *Client

	mu      sync.Mutex
	topic   string
	handler Handler
}

// NewSubscriber returns a subscriber that re-subscribes to its topic every
// time the broker connection is (re)established.
func NewSubscriber(cfg Config) *Subscriber {
	s := &Subscriber{}
	s.client = newClient(cfg, true, s.resubscribe)
	return s
}

// Connect dials the broker.
func (s *Subscriber) Connect() error {
	return s.client.Connect()
}

// Subscribe registers the topic and handler. Only one subscription is held
// at a time; a second call replaces the first. If the broker is not yet
// connected the subscription is deferred to the connect hook.
func (s *Subscriber) Subscribe(topic string, handler Handler) error {
	s.mu.Lock()
	s.topic = topic
	s.handler = handler
	s.mu.Unlock()

	if !s.client.IsConnected() {
		return nil
	}
	return s.subscribe(topic, handler)
}

func (s *Subscriber) subscribe(topic string, handler Handler) error {
	token := s.client.paho.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, msg paho.Message) {
		log.Debugf("[MQTT] message on %s: %s", msg.Topic(), msg.Payload())
		handler(msg.Payload())
	})
	if !token.WaitTimeout(s.client.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt: subscribe to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	log.Infof("[MQTT] subscribed to %s", topic)
	return nil
}

// resubscribe restores the subscription after a reconnect.
func (s *Subscriber) resubscribe() {
	s.mu.Lock()
	topic, handler := s.topic, s.handler
	s.mu.Unlock()

	if topic == "" {
		return
	}
	if err := s.subscribe(topic, handler); err != nil {
		log.Errorf("[MQTT] resubscribe failed: %v", err)
	}
}

// Disconnect closes the broker connection.
func (s *Subscriber) Disconnect() {
	s.client.Disconnect()
}
