package sink

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/zberg/go-vcontrold/internal/config"
)

const (
	// mqttConnectTimeout is the maximum time to wait for the initial connection.
	mqttConnectTimeout = 10 * time.Second

	// mqttPublishTimeout is the maximum time to wait for a publish acknowledgment.
	mqttPublishTimeout = 5 * time.Second

	// mqttDisconnectQuiesce is the time in milliseconds to wait for pending work on disconnect.
	mqttDisconnectQuiesce = 1000

	mqttKeepAlive = 60 * time.Second
)

// publisher is the part of the paho client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// MQTT publishes readings as retained messages on <prefix>/<item>/state.
// Availability is announced on <prefix>/status ("online"/"offline"), with a
// last will so an unexpected disconnect is visible as well.
type MQTT struct {
	client publisher
	prefix string
	qos    byte
	logger *slog.Logger
}

// NewMQTT connects to the broker described by cfg.
func NewMQTT(cfg config.MQTTConfig, logger *slog.Logger) (*MQTT, error) {
	opts := buildClientOptions(cfg)
	prefix := strings.TrimSuffix(cfg.TopicPrefix, "/")
	opts.SetWill(statusTopic(prefix), "offline", 1, true)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("%w: mqtt: timeout after %v", ErrConnectionFailed, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: mqtt: %w", ErrConnectionFailed, err)
	}

	m := newMQTT(client, prefix, byte(cfg.QoS), logger)
	if err := m.publish(statusTopic(prefix), "online"); err != nil && logger != nil {
		logger.Warn("publishing online status failed", "error", err)
	}
	if logger != nil {
		logger.Info("connected to mqtt broker", "client_id", opts.ClientID, "prefix", prefix)
	}
	return m, nil
}

func newMQTT(client publisher, prefix string, qos byte, logger *slog.Logger) *MQTT {
	return &MQTT{client: client, prefix: prefix, qos: qos, logger: logger}
}

// buildClientOptions creates paho options from the MQTT config.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(clientID(cfg.Broker.ClientID))

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)
	return opts
}

// clientID returns configured, or a fresh "vclient-<uuid>" when it is empty.
func clientID(configured string) string {
	if configured != "" {
		return configured
	}
	return "vclient-" + uuid.NewString()
}

func stateTopic(prefix, item string) string {
	return prefix + "/" + item + "/state"
}

func statusTopic(prefix string) string {
	return prefix + "/status"
}

// Write publishes the formatted value of r.
func (m *MQTT) Write(_ context.Context, r Reading) error {
	if err := m.publish(stateTopic(m.prefix, r.Item), r.Value.String()); err != nil {
		return fmt.Errorf("%s: %w", r.Item, err)
	}
	return nil
}

func (m *MQTT) publish(topic, payload string) error {
	token := m.client.Publish(topic, m.qos, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("%w: mqtt: timeout after %v", ErrWriteFailed, mqttPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: mqtt: %w", ErrWriteFailed, err)
	}
	return nil
}

// Close announces the graceful shutdown and disconnects.
func (m *MQTT) Close() error {
	if err := m.publish(statusTopic(m.prefix), "offline"); err != nil && m.logger != nil {
		m.logger.Warn("publishing offline status failed", "error", err)
	}
	m.client.Disconnect(mqttDisconnectQuiesce)
	return nil
}
