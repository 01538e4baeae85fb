package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_Comparisons(t *testing.T) {
	e := NewEvaluator()
	activation := map[string]interface{}{
		"score":  0.8,
		"count":  int64(3),
		"status": "ok",
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"score > 0.5", true},
		{"score < 0.5", false},
		{"count >= 3", true},
		{"status == 'ok'", true},
		{"status != 'ok'", false},
		{"score > 0.5 && count < 10", true},
		{"score > 0.9 || status == 'ok'", true},
		{"!(score > 0.9)", true},
	}
	for _, tc := range cases {
		got, err := e.Evaluate(tc.expr, activation)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestEvaluate_DottedAccess(t *testing.T) {
	e := NewEvaluator()
	activation := map[string]interface{}{
		"fetch": map[string]interface{}{
			"status": float64(200),
			"body":   map[string]interface{}{"approved": true},
		},
	}

	got, err := e.Evaluate("fetch.status == 200.0", activation)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.Evaluate("fetch.body.approved", activation)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluate_NonBooleanResult(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("1 + 2", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boolean")
}

func TestEvaluate_EmptyExpression(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("  ", map[string]interface{}{})
	require.Error(t, err)
}

func TestEvaluate_CompileError(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("score >", map[string]interface{}{"score": 1})
	require.Error(t, err)
}

func TestEvaluate_UnknownVariable(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Evaluate("missing > 1", map[string]interface{}{"present": 1})
	require.Error(t, err)
}

func TestProgramCache(t *testing.T) {
	e := NewEvaluator()
	activation := map[string]interface{}{"x": int64(1)}

	_, err := e.Evaluate("x > 0", activation)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	// Same expression and variable set reuses the program.
	_, err = e.Evaluate("x > 0", activation)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	// A different variable set compiles a new program.
	_, err = e.Evaluate("x > 0", map[string]interface{}{"x": int64(1), "y": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEvaluate_SkipsInvalidIdentifiers(t *testing.T) {
	e := NewEvaluator()
	activation := map[string]interface{}{
		"valid":      true,
		"not-an-id":  1,
		"2leading":   2,
		"with space": 3,
	}
	got, err := e.Evaluate("valid", activation)
	require.NoError(t, err)
	assert.True(t, got)
}
