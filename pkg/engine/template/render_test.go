package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saclot/flowengine/pkg/engine/template"
)

func TestRender_SimpleInterpolation(t *testing.T) {
	t.Parallel()

	eng := template.New()
	eng.Autoescape = false
	out, err := eng.Render("hello {{ variables.name }}", map[string]any{
		"variables": map[string]any{"name": "world"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestRender_UndefinedRaises(t *testing.T) {
	t.Parallel()

	eng := template.New()
	_, err := eng.Render("{{ variables.missing }}", map[string]any{
		"variables": map[string]any{"present": 1},
	})
	require.Error(t, err)
	var undef *template.UndefinedError
	require.ErrorAs(t, err, &undef)
}

func TestRender_Filters(t *testing.T) {
	t.Parallel()

	eng := template.New()
	eng.Autoescape = false
	out, err := eng.Render("{{ variables.name | to_upper }}", map[string]any{
		"variables": map[string]any{"name": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out)

	out, err = eng.Render("{{ variables.missing | default_if_empty('fallback') }}", map[string]any{
		"variables": map[string]any{},
	})
	require.Error(t, err)
	_ = out
}

func TestRender_IfBlock(t *testing.T) {
	t.Parallel()

	eng := template.New()
	eng.Autoescape = false
	out, err := eng.Render(
		"{% if variables.n > 1 %}many{% else %}one{% endif %}",
		map[string]any{"variables": map[string]any{"n": 5.0}},
	)
	require.NoError(t, err)
	assert.Equal(t, "many", out)
}

func TestRender_ForBlock(t *testing.T) {
	t.Parallel()

	eng := template.New()
	eng.Autoescape = false
	out, err := eng.Render(
		"{% for x in variables.items %}[{{ x }}]{% endfor %}",
		map[string]any{"variables": map[string]any{"items": []any{"a", "b"}}},
	)
	require.NoError(t, err)
	assert.Equal(t, "[a][b]", out)
}

func TestRenderDataStructure_PassthroughWhenNoTemplate(t *testing.T) {
	t.Parallel()

	eng := template.New()
	input := map[string]any{"a": 1.0, "b": []any{"x", "y"}}
	out, err := eng.RenderDataStructure(input, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, input, out)
}

func TestRender_Autoescape(t *testing.T) {
	t.Parallel()

	eng := template.New()
	out, err := eng.Render("{{ variables.v }}", map[string]any{
		"variables": map[string]any{"v": "<b>x</b>"},
	})
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;x&lt;/b&gt;", out)
}
