package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: broker.example.com
  port: 8883
  username: gateway
  password: secret
serial:
  baud: 9600
topics:
  command: site1/alarm/commands
  update: site1/alarm/updates
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.example.com", cfg.MQTT.Broker)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, "secret", cfg.MQTT.Password)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, "site1/alarm/commands", cfg.Topics.Command)

	// untouched fields keep their defaults
	assert.Equal(t, 60, cfg.MQTT.KeepAlive)
	assert.Equal(t, uint16(0x0D28), cfg.Serial.VID)
	assert.Equal(t, uint16(0x0204), cfg.Serial.PID)
	assert.Equal(t, byte(0x02), cfg.Protocol.STX)
	assert.Equal(t, []string{"ARM", "DISARM", "RESOLVE"}, cfg.Commands.Valid)
}

func TestLoadPasswordEnvOverride(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: broker.example.com
  password: from-file
`)
	t.Setenv(PasswordEnvVar, "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MQTT.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfig(t, "mqtt: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty broker", func(c *Config) { c.MQTT.Broker = "" }},
		{"bad port", func(c *Config) { c.MQTT.Port = 70000 }},
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }},
		{"missing topic", func(c *Config) { c.Topics.Update = "" }},
		{"no commands", func(c *Config) { c.Commands.Valid = nil }},
		{"no payload key", func(c *Config) { c.Commands.PayloadKey = "" }},
		{"max length zero", func(c *Config) { c.Protocol.MaxDataLength = 0 }},
		{"max length too large", func(c *Config) { c.Protocol.MaxDataLength = 300 }},
		{"stx equals etx", func(c *Config) { c.Protocol.ETX = c.Protocol.STX }},
		{"bad encoding", func(c *Config) { c.Protocol.Encoding = "latin-1" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestHexIdentifiersParse(t *testing.T) {
	path := writeConfig(t, `
serial:
  vid: 0x2341
  pid: 0x0043
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2341), cfg.Serial.VID)
	assert.Equal(t, uint16(0x0043), cfg.Serial.PID)
}
