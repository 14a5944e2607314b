package config

import (
	"fmt"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/sofmeright/imagebuild/src/value"
)

// TOML documents decode through mirror types because variables are
// free-form tables. Table key order is not preserved by the decoder, so
// variables from TOML are ordered by key.

type tomlConfig struct {
	Builds []tomlBuild `toml:"builds"`
}

type tomlBuild struct {
	Name         string         `toml:"name"`
	Source       *tomlSource    `toml:"source"`
	Namespace    string         `toml:"namespace"`
	VariantsDir  string         `toml:"variants_dir"`
	TemplateFile string         `toml:"template_file"`
	Tags         []tomlTag      `toml:"tags"`
	Variables    map[string]any `toml:"variables"`
}

type tomlSource struct {
	Name    string   `toml:"name"`
	Tags    []string `toml:"tags"`
	Primary string   `toml:"primary"`
}

type tomlTag struct {
	Template    string   `toml:"template"`
	Selectors   []string `toml:"selectors"`
	Negate      bool     `toml:"negate"`
	OnlyPrimary bool     `toml:"only_primary"`
}

type tomlVariant struct {
	Variables    map[string]any `toml:"variables"`
	TemplateFile string         `toml:"template_file"`
	Tags         []tomlTag      `toml:"tags"`
}

func parseTOML(data []byte) (*Config, error) {
	var raw tomlConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	cfg := &Config{Builds: make([]BuildSpec, 0, len(raw.Builds))}
	for i, rb := range raw.Builds {
		vars, err := tomlVariables(rb.Variables)
		if err != nil {
			return nil, fmt.Errorf("builds[%d].variables: %w", i, err)
		}
		b := BuildSpec{
			Name:         rb.Name,
			Namespace:    rb.Namespace,
			VariantsDir:  rb.VariantsDir,
			TemplateFile: rb.TemplateFile,
			Tags:         tomlTags(rb.Tags),
			Variables:    vars,
		}
		if rb.Source != nil {
			b.Source = &SourceSpec{
				Name:    rb.Source.Name,
				Tags:    rb.Source.Tags,
				Primary: rb.Source.Primary,
			}
		}
		cfg.Builds = append(cfg.Builds, b)
	}
	return cfg, nil
}

func parseVariantTOML(data []byte) (*VariantConfig, error) {
	var raw tomlVariant
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}
	vars, err := tomlVariables(raw.Variables)
	if err != nil {
		return nil, fmt.Errorf("variables: %w", err)
	}
	return &VariantConfig{
		Variables:    vars,
		TemplateFile: raw.TemplateFile,
		Tags:         tomlTags(raw.Tags),
	}, nil
}

func tomlVariables(in map[string]any) (*value.Map, error) {
	if in == nil {
		return nil, nil
	}
	return value.MapFromAny(in)
}

func tomlTags(in []tomlTag) []TagTemplate {
	if in == nil {
		return nil
	}
	out := make([]TagTemplate, len(in))
	for i, t := range in {
		out[i] = TagTemplate{
			Template:    t.Template,
			Selectors:   t.Selectors,
			Negate:      t.Negate,
			OnlyPrimary: t.OnlyPrimary,
		}
	}
	return out
}
