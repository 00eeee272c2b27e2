package events

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSConfig configures the JetStream publisher.
type NATSConfig struct {
	Servers       []string `mapstructure:"servers"`
	Stream        string   `mapstructure:"stream"`
	SubjectPrefix string   `mapstructure:"subjectPrefix"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
}

type jetStreamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATS publishes events to a JetStream stream.
type NATS struct {
	nc     *nats.Conn
	js     jetStreamPublisher
	prefix string
}

// ConnectNATS connects to the first reachable server and makes sure the
// stream capturing prefix.> exists.
func ConnectNATS(cfg NATSConfig) (*NATS, error) {
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{nats.DefaultURL}
	}
	cfg.SubjectPrefix = cmp.Or(cfg.SubjectPrefix, "pgrepo")
	cfg.Stream = cmp.Or(cfg.Stream, cfg.SubjectPrefix+"-stream")

	opts := []nats.Option{nats.Name("pgrepo")}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	if _, err := js.StreamInfo(cfg.Stream); errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.SubjectPrefix + ".>"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream: %w", err)
		}
	} else if err != nil {
		nc.Close()
		return nil, fmt.Errorf("stream info: %w", err)
	}

	return &NATS{nc: nc, js: js, prefix: cfg.SubjectPrefix}, nil
}

// Publish sends e with its ID as the JetStream message id, so a retried
// publish is deduplicated by the server.
func (p *NATS) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(e.Subject(p.prefix, "."))
	msg.Data = data
	if _, err := p.js.PublishMsg(msg, nats.MsgId(e.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}
	return nil
}

func (p *NATS) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
