// Package mqtt wraps the broker client behind the two roles the gateway
// needs: a single-topic subscriber for commands and a QoS-1 publisher for
// telemetry. Both compose a Client value instead of sharing a base type.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Telemetry and commands both travel at-least-once.
const qosAtLeastOnce = 1

// ErrConnectTimeout is returned when the broker did not answer a connect
// attempt within the configured timeout.
var ErrConnectTimeout = errors.New("mqtt: connect timed out")

// ErrPublishTimeout is returned when a publish was not acknowledged within
// the configured timeout.
var ErrPublishTimeout = errors.New("mqtt: publish timed out")

// Config holds broker connection settings shared by both roles.
type Config struct {
	Broker         string
	Port           int
	KeepAlive      time.Duration
	Username       string
	Password       string
	ClientID       string
	ConnectTimeout time.Duration
}

// Client manages one broker connection.
type Client struct {
	cfg       Config
	paho      paho.Client
	onConnect func()
}

// newClient builds the underlying paho client. onConnect runs on every
// (re)connect, on paho's dispatch goroutine. autoReconnect controls whether
// the library re-dials on its own; the publisher reconnects on demand
// instead.
func newClient(cfg Config, autoReconnect bool, onConnect func()) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	c := &Client{cfg: cfg, onConnect: onConnect}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(autoReconnect).
		SetOnConnectHandler(func(paho.Client) {
			log.Infof("[MQTT] %s connected to %s:%d", cfg.ClientID, cfg.Broker, cfg.Port)
			if c.onConnect != nil {
				c.onConnect()
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("[MQTT] %s connection lost: %v", cfg.ClientID, err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	c.paho = paho.NewClient(opts)
	return c
}

// Connect dials the broker and waits for the result, bounded by the
// connect timeout.
func (c *Client) Connect() error {
	token := c.paho.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return ErrConnectTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to %s:%d: %w", c.cfg.Broker, c.cfg.Port, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.paho.IsConnectionOpen()
}

// Disconnect closes the connection, allowing a short drain for inflight
// messages.
func (c *Client) Disconnect() {
	c.paho.Disconnect(250)
	log.Infof("[MQTT] %s disconnected", c.cfg.ClientID)
}
