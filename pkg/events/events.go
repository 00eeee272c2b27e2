// Package events publishes a notification for every entity written through a
// repository. Subjects follow prefix.schema.table.op, with "/" in place of
// "." on MQTT.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/google/uuid"
)

// Operation is the kind of write an Event reports.
type Operation string

const (
	OpCreate Operation = "c"
	OpUpdate Operation = "u"
	OpDelete Operation = "d"
)

// Event describes one completed write.
type Event struct {
	ID     string       `json:"id"`
	Op     Operation    `json:"op"`
	Entity string       `json:"entity"`
	Schema string       `json:"schema"`
	Table  string       `json:"table"`
	Key    any          `json:"key"`
	After  model.Entity `json:"after,omitempty"`
	TsMs   int64        `json:"ts_ms"`
}

// New returns an Event for a write of op on t. after is the entity as
// stored, nil for deletes.
func New(t *model.Type, op Operation, key any, after model.Entity) Event {
	return Event{
		ID:     uuid.NewString(),
		Op:     op,
		Entity: t.Name,
		Schema: t.SchemaName(),
		Table:  t.TableName(),
		Key:    key,
		After:  after,
		TsMs:   time.Now().UnixMilli(),
	}
}

// Subject joins prefix, schema, table and op with sep.
func (e Event) Subject(prefix, sep string) string {
	return fmt.Sprintf("%s%s%s%s%s%s%s", prefix, sep, e.Schema, sep, e.Table, sep, e.Op)
}

// Publisher delivers events to a broker.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Multi fans every event out to all of its publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Config selects the brokers events go to. A nil section is disabled.
type Config struct {
	NATS  *NATSConfig  `mapstructure:"nats"`
	Kafka *KafkaConfig `mapstructure:"kafka"`
	MQTT  *MQTTConfig  `mapstructure:"mqtt"`
}

// Open connects every configured broker. It returns nil when none is
// configured.
func Open(cfg Config) (Publisher, error) {
	var m Multi
	if cfg.NATS != nil {
		p, err := ConnectNATS(*cfg.NATS)
		if err != nil {
			return nil, err
		}
		m = append(m, p)
	}
	if cfg.Kafka != nil {
		p, err := ConnectKafka(*cfg.Kafka)
		if err != nil {
			m.Close()
			return nil, err
		}
		m = append(m, p)
	}
	if cfg.MQTT != nil {
		p, err := ConnectMQTT(*cfg.MQTT)
		if err != nil {
			m.Close()
			return nil, err
		}
		m = append(m, p)
	}

	switch len(m) {
	case 0:
		return nil, nil
	case 1:
		return m[0], nil
	}
	return m, nil
}
