package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PasswordEnvVar overrides the broker password from the file when set.
const PasswordEnvVar = "MQTT_PASSWORD"

// MQTT holds broker connection settings.
type MQTT struct {
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	KeepAlive int    `yaml:"keep_alive"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// Serial holds the device-side settings. VID/PID identify the USB interface
// to auto-detect.
type Serial struct {
	Baud          int    `yaml:"baud"`
	VID           uint16 `yaml:"vid"`
	PID           uint16 `yaml:"pid"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// Topics names the two broker topics the gateway uses.
type Topics struct {
	Command string `yaml:"command"`
	Update  string `yaml:"update"`
}

// Commands defines the accepted command vocabulary and the JSON key that
// carries it.
type Commands struct {
	Valid      []string `yaml:"valid"`
	PayloadKey string   `yaml:"payload_key"`
}

// Protocol holds the serial framing constants. Both ends of the link must
// agree on these.
type Protocol struct {
	STX           byte   `yaml:"stx"`
	ETX           byte   `yaml:"etx"`
	ACK           byte   `yaml:"ack"`
	MaxDataLength int    `yaml:"max_data_length"`
	Encoding      string `yaml:"encoding"`
}

// Redis configures the optional local state mirror. Empty Addr disables it.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Log holds logging settings.
type Log struct {
	Level string `yaml:"level"`
}

// Config is the full gateway configuration, passed explicitly to every
// constructor.
type Config struct {
	MQTT     MQTT     `yaml:"mqtt"`
	Serial   Serial   `yaml:"serial"`
	Topics   Topics   `yaml:"topics"`
	Commands Commands `yaml:"commands"`
	Protocol Protocol `yaml:"protocol"`
	Redis    Redis    `yaml:"redis"`
	Log      Log      `yaml:"log"`
}

// Default returns the configuration the file overlays.
func Default() Config {
	return Config{
		MQTT: MQTT{
			Broker:    "localhost",
			Port:      1883,
			KeepAlive: 60,
		},
		Serial: Serial{
			Baud:          115200,
			VID:           0x0D28,
			PID:           0x0204,
			ReadTimeoutMs: 200,
		},
		Topics: Topics{
			Command: "alarm/commands",
			Update:  "alarm/updates",
		},
		Commands: Commands{
			Valid:      []string{"ARM", "DISARM", "RESOLVE"},
			PayloadKey: "command",
		},
		Protocol: Protocol{
			STX:           0x02,
			ETX:           0x03,
			ACK:           0x06,
			MaxDataLength: 64,
			Encoding:      "utf-8",
		},
		Log: Log{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults and applies the
// password environment override. A missing or invalid file is an error; the
// caller treats it as fatal.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		cfg.MQTT.Password = pw
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the gateway relies on.
func (c Config) Validate() error {
	if c.MQTT.Broker == "" {
		return fmt.Errorf("config: mqtt.broker must be set")
	}
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("config: mqtt.port %d out of range", c.MQTT.Port)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("config: serial.baud must be positive")
	}
	if c.Topics.Command == "" || c.Topics.Update == "" {
		return fmt.Errorf("config: both topics must be set")
	}
	if len(c.Commands.Valid) == 0 {
		return fmt.Errorf("config: commands.valid must not be empty")
	}
	if c.Commands.PayloadKey == "" {
		return fmt.Errorf("config: commands.payload_key must be set")
	}
	if c.Protocol.MaxDataLength < 1 || c.Protocol.MaxDataLength > 255 {
		return fmt.Errorf("config: protocol.max_data_length %d out of range [1,255]", c.Protocol.MaxDataLength)
	}
	if c.Protocol.STX == c.Protocol.ETX || c.Protocol.STX == c.Protocol.ACK || c.Protocol.ETX == c.Protocol.ACK {
		return fmt.Errorf("config: protocol framing bytes must be distinct")
	}
	switch strings.ToLower(c.Protocol.Encoding) {
	case "utf-8", "utf8", "ascii", "us-ascii":
	default:
		return fmt.Errorf("config: unsupported protocol.encoding %q", c.Protocol.Encoding)
	}
	return nil
}
