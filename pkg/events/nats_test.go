package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jetStream struct {
	msgs []*nats.Msg
	opts int
	err  error
}

func (js *jetStream) PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if js.err != nil {
		return nil, js.err
	}
	js.msgs = append(js.msgs, m)
	js.opts = len(opts)
	return &nats.PubAck{Stream: "pgrepo-stream", Sequence: uint64(len(js.msgs))}, nil
}

func TestNATSPublish(t *testing.T) {
	js := &jetStream{}
	p := &NATS{js: js, prefix: "pgrepo"}
	e := New(&model.Type{Name: "tags"}, OpUpdate, int64(2), model.Entity{"id": int64(2), "label": "sf"})

	require.NoError(t, p.Publish(context.Background(), e))
	require.Len(t, js.msgs, 1)
	assert.Equal(t, "pgrepo.public.tags.u", js.msgs[0].Subject)
	assert.Equal(t, 2, js.opts)

	var got Event
	require.NoError(t, json.Unmarshal(js.msgs[0].Data, &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "sf", got.After["label"])

	js.err = nats.ErrNoResponders
	assert.ErrorIs(t, p.Publish(context.Background(), e), nats.ErrNoResponders)
	require.NoError(t, p.Close())
}

func TestConnectNATSUnreachable(t *testing.T) {
	_, err := ConnectNATS(NATSConfig{Servers: []string{"nats://127.0.0.1:1"}})
	assert.ErrorIs(t, err, nats.ErrNoServers)
}
