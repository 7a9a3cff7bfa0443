package scene

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ResolveMQTT applies the MQTT_* environment overrides to cfg. An empty broker
// after resolution means MQTT is disabled.
func ResolveMQTT(cfg MQTTConfig) MQTTConfig {
	override := func(v *string, env string) {
		if e := os.Getenv(env); e != "" {
			*v = e
		}
	}
	override(&cfg.Broker, "MQTT_BROKER")
	override(&cfg.ClientID, "MQTT_CLIENT_ID")
	override(&cfg.Username, "MQTT_USERNAME")
	override(&cfg.Password, "MQTT_PASSWORD")
	override(&cfg.PublishPrefix, "MQTT_PUBLISH_PREFIX")
	if cfg.ClientID == "" {
		cfg.ClientID = "cziscene"
	}
	if cfg.PublishPrefix == "" {
		cfg.PublishPrefix = "cziscene"
	}
	return cfg
}

// ClientOptions builds paho options for cfg
func ClientOptions(cfg MQTTConfig, logger *log.Logger) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection interrupted, auto-reconnect will retry", "err", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Debug("MQTT reconnecting")
	})
	return opts
}

// ConnectMQTT connects to the configured broker and waits up to timeout for
// the connection. It returns a nil client when no broker is configured.
func ConnectMQTT(cfg MQTTConfig, timeout time.Duration, logger *log.Logger) (mqtt.Client, error) {
	cfg = ResolveMQTT(cfg)
	if cfg.Broker == "" {
		logger.Debug("MQTT disabled: no broker configured")
		return nil, nil
	}

	client := mqtt.NewClient(ClientOptions(cfg, logger))
	logger.Info("connecting to MQTT broker", "broker", cfg.Broker)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("MQTT connection to %s timed out after %v", cfg.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connection to %s: %w", cfg.Broker, err)
	}
	return client, nil
}
