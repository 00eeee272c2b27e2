package pgx

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	_ Conn = (*pgx.Conn)(nil)
	_ Conn = (*pgxpool.Pool)(nil)
	_ Conn = (pgx.Tx)(nil)
)

func TestConnectInvalidConnString(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", ConnectOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse connection string")
}

func TestConnectRetriesUntilDeadline(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	// nothing listens on port 1
	_, err := Connect(context.Background(), "postgres://u:p@127.0.0.1:1/db?connect_timeout=1", ConnectOptions{
		MaxElapsed: 1500 * time.Millisecond,
		Logger:     zap.New(core),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
	assert.GreaterOrEqual(t, logs.FilterMessage("database not reachable").Len(), 1)
}
