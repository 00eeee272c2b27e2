package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVar(t *testing.T) {
	assert.NoError(t, Var("1000", "numeric"))
	assert.Error(t, Var("cheap", "numeric"))
	assert.NoError(t, Var("2017-02-03", "datetime=2006-01-02"))
	assert.Error(t, Var("03/02/2017", "datetime=2006-01-02"))
}

func TestCheck(t *testing.T) {
	rules := map[string]string{
		"title": "required,max=10",
		"price": "numeric",
		"isbn":  "numeric",
	}

	res := Check(map[string]any{"title": "Dune", "price": "12.5"}, rules)
	assert.False(t, res.Fails())

	res = Check(map[string]any{"price": "free"}, rules)
	require.True(t, res.Fails())
	assert.Equal(t, map[string][]string{
		"price": {"price does not satisfy numeric"},
		"title": {"title is required"},
	}, res.Errors())

	res = Check(map[string]any{"title": "A very long title"}, rules)
	require.True(t, res.Fails())
	assert.Equal(t, []string{"title does not satisfy max=10"}, res.Errors()["title"])
}

func TestResultJSON(t *testing.T) {
	var empty Result
	b, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(b))

	var res Result
	res.Add("price_min", "price_min does not satisfy numeric")
	b, err = json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"price_min":["price_min does not satisfy numeric"]}`, string(b))
}

func TestCheckUnsupportedType(t *testing.T) {
	rules := map[string]string{"title": "required,max=200"}

	var res Result
	require.NotPanics(t, func() {
		res = Check(map[string]any{"title": true}, rules)
	})
	require.True(t, res.Fails())
	assert.Equal(t, []string{"title has an unsupported type for required,max=200"}, res.Errors()["title"])

	assert.ErrorIs(t, Var(true, "max=200"), ErrUnsupportedValue)
}

func TestValidRule(t *testing.T) {
	for _, rule := range []string{"numeric", "required,max=120", "datetime=2006-01-02", "gte=0", "omitempty,email"} {
		assert.NoError(t, ValidRule(rule), rule)
	}

	err := ValidRule("numerik")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	assert.Contains(t, err.Error(), "numerik")

	assert.Error(t, ValidRule("max=ten"))
}
