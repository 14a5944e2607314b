package config

import "github.com/sofmeright/imagebuild/src/selector"

// TagTemplate is a destination tag rule: a template string plus the
// conditions under which it applies to a variant.
type TagTemplate struct {
	// Template is rendered against the variant context, e.g.
	// "{{ _dest.name }}:{{ _source.tag }}".
	Template string `yaml:"template"`

	// Selectors are regex patterns searched in the --select string.
	// Empty = always applies (never, when Negate is set).
	Selectors []string `yaml:"selectors"`

	// Negate inverts the selector match.
	Negate bool `yaml:"negate"`

	// OnlyPrimary restricts the template to the primary source tag.
	OnlyPrimary bool `yaml:"only_primary"`
}

// Rule compiles the template's selection conditions.
func (t TagTemplate) Rule() (*selector.Rule, error) {
	return selector.Compile(t.Selectors, t.Negate, t.OnlyPrimary)
}
