package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixtureDir is the directory holding this package's JSON fixtures.
func fixtureDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Dir(file)
}

// LoadJSON decodes the fixture named filename into target, failing t on any
// error. Numbers decode as float64, the way request bodies do.
func LoadJSON(t testing.TB, filename string, target any) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fixtureDir(), filename))
	require.NoError(t, err, "reading fixture %s", filename)
	require.NoError(t, json.Unmarshal(data, target), "decoding fixture %s", filename)
}
