package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVars() map[string]interface{} {
	return map[string]interface{}{
		"name": "ada",
		"fetch": map[string]interface{}{
			"status": float64(200),
			"body":   map[string]interface{}{"title": "hello"},
			"items":  []interface{}{"a", "b", "c"},
		},
		"inputs": map[string]interface{}{"topic": "compilers"},
	}
}

func TestRender_Substitution(t *testing.T) {
	out, err := Render("Hi {{name}}, topic is {{ inputs.topic }}", sampleVars())
	require.NoError(t, err)
	assert.Equal(t, "Hi ada, topic is compilers", out)
}

func TestRender_NestedAndIndexedPaths(t *testing.T) {
	out, err := Render("title={{fetch.body.title}} second={{fetch.items.1}}", sampleVars())
	require.NoError(t, err)
	assert.Equal(t, "title=hello second=b", out)
}

func TestRender_MissingPathFails(t *testing.T) {
	_, err := Render("{{nope}}", sampleVars())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")

	_, err = Render("{{fetch.body.missing}}", sampleVars())
	require.Error(t, err)
}

func TestRender_ComplexValueMarshalsToJSON(t *testing.T) {
	out, err := Render("body={{fetch.body}}", sampleVars())
	require.NoError(t, err)
	assert.Equal(t, `body={"title":"hello"}`, out)
}

func TestRenderValue_ExactPlaceholderKeepsType(t *testing.T) {
	// A string that is exactly one placeholder resolves to the value, not
	// its string form.
	resolved, err := RenderValue("{{fetch.status}}", sampleVars())
	require.NoError(t, err)
	assert.Equal(t, float64(200), resolved)

	resolved, err = RenderValue("status: {{fetch.status}}", sampleVars())
	require.NoError(t, err)
	assert.Equal(t, "status: 200", resolved)
}

func TestRenderValue_RecursesIntoContainers(t *testing.T) {
	args := map[string]interface{}{
		"url":   "https://example.com/{{inputs.topic}}",
		"tags":  []interface{}{"{{name}}", "static"},
		"count": float64(3),
	}
	resolved, err := RenderValue(args, sampleVars())
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"url":   "https://example.com/compilers",
		"tags":  []interface{}{"ada", "static"},
		"count": float64(3),
	}, resolved)
}

func TestResolvePath_WholeContext(t *testing.T) {
	vars := sampleVars()
	whole, err := ResolvePath(vars, "")
	require.NoError(t, err)
	assert.Equal(t, vars, whole)

	dot, err := ResolvePath(vars, ".")
	require.NoError(t, err)
	assert.Equal(t, vars, dot)
}

func TestSubpath(t *testing.T) {
	value := map[string]interface{}{"a": []interface{}{map[string]interface{}{"v": float64(7)}}}
	out, err := Subpath(value, "a.0.v")
	require.NoError(t, err)
	assert.Equal(t, float64(7), out)

	_, err = Subpath(value, "a.5.v")
	require.Error(t, err)
}
