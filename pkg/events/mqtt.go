package events

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"clientID"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topicPrefix"`
	QoS         byte          `mapstructure:"qos" validate:"lte=2"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

var errPublishTimeout = errors.New("MQTT publish timed out")

// MQTT publishes events to prefix/schema/table/op.
type MQTT struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// ConnectMQTT connects to the broker with auto reconnect enabled.
func ConnectMQTT(cfg MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cmp.Or(cfg.Broker, "tcp://127.0.0.1:1883")).
		SetClientID(cmp.Or(cfg.ClientID, "pgrepo")).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("broker connection error: %w", token.Error())
	}
	return NewMQTT(client, cfg), nil
}

// NewMQTT wraps a connected client.
func NewMQTT(client mqtt.Client, cfg MQTTConfig) *MQTT {
	return &MQTT{
		client:  client,
		prefix:  cmp.Or(cfg.TopicPrefix, "pgrepo"),
		qos:     cfg.QoS,
		timeout: cmp.Or(cfg.Timeout, 5*time.Second),
	}
}

func (p *MQTT) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	token := p.client.Publish(e.Subject(p.prefix, "/"), p.qos, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return errPublishTimeout
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to MQTT: %w", err)
	}
	return nil
}

func (p *MQTT) Close() error {
	p.client.Disconnect(250)
	return nil
}
