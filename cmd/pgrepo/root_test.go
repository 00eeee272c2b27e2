package pgrepo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edgeflare/pgrepo/internal/testutil"
	"github.com/edgeflare/pgrepo/pkg/config"
	"github.com/edgeflare/pgrepo/pkg/query"
	"github.com/edgeflare/pgrepo/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("none")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))

	logger, err = newLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	logger, err = newLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud")
	assert.Error(t, err)
}

func TestMemoryStoreWiring(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pgrepo.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
entities:
  - name: tags
    fillable: [label]
`), 0o600))
	seedPath := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seedPath, []byte(`{"tags":[{"id":1,"label":"classic"}]}`), 0o600))

	var err error
	cfg, err = config.Load(cfgPath, nil)
	require.NoError(t, err)
	reg, rules, err := cfg.Registry()
	require.NoError(t, err)

	s, closeStore, err := openStore(t.Context(), reg, true, seedPath, zap.NewNop())
	require.NoError(t, err)
	defer closeStore()

	pub := &testutil.Publisher{}
	repos := repositories(s, reg, rules, zap.NewNop(), repository.WithPublisher(pub))
	require.Len(t, repos, 1)
	coll, report, err := repos[0].List(t.Context(), query.Params{})
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Len(t, coll.Items, 1)

	_, err = repos[0].Destroy(t.Context(), &repository.Request{}, int64(1))
	require.NoError(t, err)
	assert.Len(t, pub.Events(), 1)

	_, _, err = openStore(t.Context(), reg, true, filepath.Join(dir, "missing.json"), zap.NewNop())
	assert.Error(t, err)

	cfg.REST.PG.ConnString = ""
	_, _, err = openStore(t.Context(), reg, false, "", zap.NewNop())
	assert.ErrorContains(t, err, "connection string required")
}
