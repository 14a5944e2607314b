package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/imagebuild/src/value"
)

func testContext() *value.Map {
	return value.MapOf(
		"_source", value.MapOf("name", value.String("alpine"), "tag", value.String("3.15"), "primary", value.Bool(true)),
		"_dest", value.MapOf("name", value.String("alpine"), "namespace", value.String("library"),
			"tags", value.Strings([]string{"alpine:3.15", "alpine:latest"})),
		"python", value.Number{Float: 3.1, Text: "3.10"},
		"workers", value.Number{Float: 4, Text: "4"},
		"packages", value.Strings([]string{"curl", "git"}),
		"empty", value.String(""),
		"enabled", value.Bool(true),
		"greeting", value.String("hello {{ _dest.name }}"),
		"loop_a", value.String("x{{ loop_a }}"),
	)
}

func TestRender(t *testing.T) {
	ctx := testContext()
	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"plain text", "FROM scratch\n", "FROM scratch\n"},
		{"tag", "{{_dest.name}}:{{_source.tag}}", "alpine:3.15"},
		{"subscript", `{{ _dest["namespace"] }}/{{ packages[1] }}`, "library/git"},
		{"number spelling", "{{ python }}", "3.10"},
		{"integer arithmetic", "{{ workers * 2 }}", "8"},
		{"number literal", "{{ 1 + 2 }}", "3"},
		{"bool", "{{ enabled }}", "True"},
		{"list", "{{ packages }}", "['curl', 'git']"},
		{"concat", `{{ _dest.name ~ "-" ~ _source.tag }}`, "alpine-3.15"},
		{"comparison", `{{ _source.tag == "3.15" }}`, "True"},
		{"in list", `{{ "curl" in packages }}`, "True"},
		{"not in", `{{ "wget" not in packages }}`, "True"},
		{"ternary", `{{ "yes" if enabled else "no" }}`, "yes"},
		{"ternary no else", `[{{ "yes" if empty }}]`, "[]"},
		{"if", `{% if _source.primary %}latest{% endif %}`, "latest"},
		{"elif", `{% if empty %}a{% elif enabled %}b{% else %}c{% endif %}`, "b"},
		{"else", `{% if not enabled %}a{% else %}c{% endif %}`, "c"},
		{"for", `{% for p in packages %}{{ loop.index }}={{ p }}{% if not loop.last %},{% endif %}{% endfor %}`, "1=curl,2=git"},
		{"for else", `{% for p in [] %}x{% else %}none{% endfor %}`, "none"},
		{"for map", `{% for k, v in _dest %}{% if k == "name" %}{{ v }}{% endif %}{% endfor %}`, "alpine"},
		{"set", `{% set full = _dest.namespace ~ "/" ~ _dest.name %}{{ full }}`, "library/alpine"},
		{"comment", "a{# ignored #}b", "ab"},
		{"whitespace control", "a  {{- 'b' -}}  \n c", "abc"},
		{"block trim", "RUN x\n{%- if enabled %}\nRUN y{% endif %}", "RUN x\nRUN y"},
		{"defined", `{{ missing is defined }} {{ _source is defined }} {{ missing is not defined }}`, "False True True"},
		{"default undefined", `{{ missing | default("d") }}`, "d"},
		{"default attr", `{{ _source.missing | d("d") }}`, "d"},
		{"default boolean", `{{ empty | default("d", True) }}`, "d"},
		{"default defined", `{{ _source.tag | default("d") }}`, "3.15"},
		{"upper", "{{ _dest.name | upper }}", "ALPINE"},
		{"replace", `{{ _source.tag | replace(".", "_") }}`, "3_15"},
		{"join", `{{ packages | join(" ") }}`, "curl git"},
		{"length", "{{ packages | length }}", "2"},
		{"first last", "{{ packages | first }} {{ packages | last }}", "curl git"},
		{"chain", `{{ _dest.tags | first | replace("alpine", "x") | upper }}`, "X:3.15"},
		{"semver", "{{ _source.tag | major }}.{{ _source.tag | minor }}.{{ _source.tag | patch }}", "3.15.0"},
		{"semver prefix", `{{ "v2.4.1" | minor }}`, "4"},
		{"title", `{{ "hello world" | title }}`, "Hello World"},
		{"sort", `{{ ["b", "a"] | sort | join(",") }}`, "a,b"},
		{"recursive value", "{{ greeting }}", "hello alpine"},
		{"dest tags", "{{ _dest.tags | join(' ') }}", "alpine:3.15 alpine:latest"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Render(tc.name, tc.tmpl, ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	ctx := testContext()
	tmpl := "{% for k, v in _source %}{{ k }}={{ v }}\n{% endfor %}"
	a, err := Render("d", tmpl, ctx)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		b, err := Render("d", tmpl, ctx)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestRenderDoesNotMutateContext(t *testing.T) {
	ctx := testContext()
	before := ctx.Keys()
	_, err := Render("set", "{% set extra = 1 %}{% for p in packages %}{% set inner = p %}{% endfor %}", ctx)
	require.NoError(t, err)
	assert.Equal(t, before, ctx.Keys())
}

func TestRenderUndefined(t *testing.T) {
	for _, tmpl := range []string{
		"{{ nope }}",
		"{{ _source.nope }}",
		"{% if nope %}x{% endif %}",
		"{{ nope | upper }}",
	} {
		_, err := Render("tag", tmpl, testContext())
		require.Error(t, err, tmpl)
		assert.True(t, errors.Is(err, ErrUndefined), "%s: %v", tmpl, err)

		var re *RenderError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "tag", re.Name)
		assert.Equal(t, 1, re.Line)
	}
}

func TestRenderSyntaxErrors(t *testing.T) {
	for _, tmpl := range []string{
		"{{ unclosed",
		"{% if x %}no end",
		"{{ a + }}",
		"{% unknown %}",
		"{% include 'other.j2' %}",
		"{{ x | nosuchfilter }}",
	} {
		_, err := Render("bad", tmpl, value.MapOf("x", value.String("1"), "y", value.List{}))
		require.Error(t, err, tmpl)
		assert.True(t, errors.Is(err, ErrSyntax), "%s: %v", tmpl, err)
	}
}

func TestRenderRemovesUnsafeFilters(t *testing.T) {
	for _, tmpl := range []string{
		`{{ "/etc/hostname" | file }}`,
		`{{ packages | random }}`,
	} {
		_, err := Render("unsafe", tmpl, testContext())
		assert.True(t, errors.Is(err, ErrSyntax), "%s: %v", tmpl, err)
	}
}

func TestRenderErrorLine(t *testing.T) {
	_, err := Render("Dockerfile", "FROM alpine\nRUN true\nLABEL x={{ nope }}\n", value.NewMap())
	var re *RenderError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 3, re.Line)
	assert.Contains(t, err.Error(), "render Dockerfile line 3")
}

func TestRenderRecursionLimit(t *testing.T) {
	_, err := Render("loop", "{{ loop_a }}", testContext())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecursion))

	_, err = Render("self", "FROM {{ a }}", value.MapOf("a", value.String("{{ a }}")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecursion), err)
}

func TestRenderFilterErrors(t *testing.T) {
	_, err := Render("t", `{{ "x" | major }}`, value.NewMap())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrType), err)
	assert.Contains(t, err.Error(), "parsing version")
}

func TestHasMarkup(t *testing.T) {
	assert.True(t, HasMarkup("{{ x }}"))
	assert.True(t, HasMarkup("{% if %}"))
	assert.True(t, HasMarkup("{# c #}"))
	assert.False(t, HasMarkup("${HOME} {x}"))
}

func TestParseThenExecute(t *testing.T) {
	tmpl, err := Parse("tag", "{{ _dest.name }}:{{ _source.tag }}")
	require.NoError(t, err)
	out, err := tmpl.Execute(testContext())
	require.NoError(t, err)
	assert.Equal(t, "alpine:3.15", out)
}

func TestNativeNumber(t *testing.T) {
	assert.Equal(t, "3.10", nativeNumber(value.Number{Float: 3.1, Text: "3.10"}))
	assert.Equal(t, 4, nativeNumber(value.Number{Float: 4, Text: "4"}))
	assert.Equal(t, 1.5, nativeNumber(value.Float(1.5)))
	assert.Equal(t, 7, nativeNumber(value.Int(7)))
}
