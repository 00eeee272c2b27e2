package events

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/edgeflare/pgrepo/pkg/model"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topicPrefix"`
	Version     string   `mapstructure:"version"`
}

// Kafka publishes events to one topic per schema, table and operation,
// keyed by the entity's primary key.
type Kafka struct {
	producer sarama.SyncProducer
	prefix   string
}

// ConnectKafka creates a synchronous producer waiting for all replicas.
func ConnectKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = []string{"localhost:9092"}
	}
	version, err := sarama.ParseKafkaVersion(cmp.Or(cfg.Version, "2.1.1"))
	if err != nil {
		return nil, fmt.Errorf("invalid Kafka version: %w", err)
	}

	sc := sarama.NewConfig()
	sc.Version = version
	sc.ClientID = "pgrepo"
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Retry.Backoff = time.Second
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create Kafka producer: %w", err)
	}
	return NewKafka(producer, cfg.TopicPrefix), nil
}

// NewKafka wraps an existing producer. prefix defaults to pgrepo.
func NewKafka(producer sarama.SyncProducer, prefix string) *Kafka {
	return &Kafka{producer: producer, prefix: cmp.Or(prefix, "pgrepo")}
}

func (p *Kafka) Publish(_ context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: e.Subject(p.prefix, "."),
		Key:   sarama.StringEncoder(model.KeyString(e.Key)),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("publish to Kafka: %w", err)
	}
	return nil
}

func (p *Kafka) Close() error {
	return p.producer.Close()
}
