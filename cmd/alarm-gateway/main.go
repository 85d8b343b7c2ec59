package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/librealarm/alarm-gateway/pkg/config"
	"github.com/librealarm/alarm-gateway/pkg/frame"
	"github.com/librealarm/alarm-gateway/pkg/gateway"
	"github.com/librealarm/alarm-gateway/pkg/mqtt"
	"github.com/librealarm/alarm-gateway/pkg/redis"
	"github.com/librealarm/alarm-gateway/pkg/serialio"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level %q: %v", cfg.Log.Level, err)
	}
	log.SetLevel(level)

	log.Info("Starting alarm gateway")
	log.Infof("Broker: %s:%d", cfg.MQTT.Broker, cfg.MQTT.Port)
	log.Infof("Serial: %d baud, USB %04X:%04X", cfg.Serial.Baud, cfg.Serial.VID, cfg.Serial.PID)

	proto := frame.Protocol{
		STX:    cfg.Protocol.STX,
		ETX:    cfg.Protocol.ETX,
		ACK:    cfg.Protocol.ACK,
		MaxLen: cfg.Protocol.MaxDataLength,
	}
	link := serialio.NewLink(proto, cfg.Serial.Baud, cfg.Serial.VID, cfg.Serial.PID,
		time.Duration(cfg.Serial.ReadTimeoutMs)*time.Millisecond)
	if err := link.Connect(); err != nil {
		// Not fatal: the RX loop keeps retrying until the panel shows up.
		log.Warnf("Serial device not available yet: %v", err)
	}

	mqttCfg := mqtt.Config{
		Broker:    cfg.MQTT.Broker,
		Port:      cfg.MQTT.Port,
		KeepAlive: time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		Username:  cfg.MQTT.Username,
		Password:  cfg.MQTT.Password,
	}

	pubCfg := mqttCfg
	pubCfg.ClientID = "alarm-gateway-pub"
	publisher := mqtt.NewPublisher(pubCfg)
	if err := publisher.Connect(); err != nil {
		log.Fatalf("Failed to connect telemetry publisher: %v", err)
	}
	defer publisher.Disconnect()

	subCfg := mqttCfg
	subCfg.ClientID = "alarm-gateway-sub"
	subscriber := mqtt.NewSubscriber(subCfg)
	if err := subscriber.Connect(); err != nil {
		log.Fatalf("Failed to connect command subscriber: %v", err)
	}
	defer subscriber.Disconnect()

	var mirror gateway.StateMirror
	if cfg.Redis.Addr != "" {
		client, err := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warnf("State mirror disabled: %v", err)
		} else {
			defer client.Close()
			mirror = client
			log.Infof("State mirror enabled on %s", cfg.Redis.Addr)
		}
	}

	gw := gateway.New(cfg, link, publisher, mirror)
	if err := subscriber.Subscribe(cfg.Topics.Command, gw.HandleCommand); err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", cfg.Topics.Command, err)
	}

	gw.Start()
	defer gw.Stop()
	log.Info("Alarm gateway running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down...")
}
