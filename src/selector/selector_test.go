package selector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideTable(t *testing.T) {
	tests := []struct {
		onlyPrimary, isPrimary, hasSelectors, matched, negate bool
		want                                                  bool
	}{
		// primary gate wins over everything
		{true, false, false, false, false, false},
		{true, false, true, true, false, false},
		{true, false, true, false, true, false},
		// empty selector list
		{false, false, false, false, false, true},
		{false, false, false, false, true, false},
		{true, true, false, false, false, true},
		{true, true, false, false, true, false},
		// non-empty selector list
		{false, false, true, true, false, true},
		{false, false, true, false, false, false},
		{false, false, true, true, true, false},
		{false, false, true, false, true, true},
		{true, true, true, true, false, true},
	}
	for _, tt := range tests {
		got := Decide(tt.onlyPrimary, tt.isPrimary, tt.hasSelectors, tt.matched, tt.negate)
		assert.Equal(t, tt.want, got, "%+v", tt)
	}
}

func TestAppliesSelectorLaw(t *testing.T) {
	r := MustCompile([]string{"^v"}, false, false)
	assert.True(t, r.Applies(false, "v2"))
	assert.False(t, r.Applies(false, "x2"))

	neg := MustCompile([]string{"^v"}, true, false)
	assert.False(t, neg.Applies(false, "v2"))
	assert.True(t, neg.Applies(false, "x2"))
}

func TestAppliesSearchSemantics(t *testing.T) {
	r := MustCompile([]string{"rc"}, false, false)
	assert.True(t, r.Applies(false, "v1.0-rc1"))
	assert.False(t, r.Applies(false, "v1.0"))
}

func TestAppliesEmptySelectors(t *testing.T) {
	always := MustCompile(nil, false, false)
	never := MustCompile(nil, true, false)
	for _, s := range []string{"", "anything", "v1"} {
		assert.True(t, always.Applies(false, s), "selector %q", s)
		assert.False(t, never.Applies(true, s), "selector %q", s)
	}
}

func TestAppliesWithoutSelectString(t *testing.T) {
	// a pattern that would match the empty string still does not match when
	// no selector string is supplied
	r := MustCompile([]string{".*"}, false, false)
	assert.False(t, r.Applies(true, ""))

	rc := MustCompile([]string{"^rc"}, false, false)
	assert.False(t, rc.Applies(true, ""))
}

func TestAppliesPrimaryGate(t *testing.T) {
	r := MustCompile([]string{"^v"}, false, true)
	assert.False(t, r.Applies(false, "v2"))
	assert.True(t, r.Applies(true, "v2"))

	always := MustCompile(nil, false, true)
	assert.False(t, always.Applies(false, ""))
	assert.True(t, always.Applies(true, ""))
}

func TestAnyPatternMatches(t *testing.T) {
	r := MustCompile([]string{"^alpha", "^beta"}, false, false)
	assert.True(t, r.Applies(false, "beta-1"))
	assert.True(t, r.Match("alpha"))
	assert.False(t, r.Match("gamma"))
	assert.Equal(t, []string{"^alpha", "^beta"}, r.Patterns())
}

func TestCompileError(t *testing.T) {
	_, err := Compile([]string{"ok", "(unclosed"}, false, false)
	require.Error(t, err)

	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "(unclosed", ce.Pattern)
	assert.Contains(t, err.Error(), "(unclosed")
}
