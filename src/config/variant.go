package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sofmeright/imagebuild/src/value"
)

// VariantConfigFiles are the fragment names looked up inside a variant
// override directory, in order. The first one present wins.
var VariantConfigFiles = []string{"image-build.yml", "image-build.yaml", "image-build.toml"}

// VariantConfig is the optional configuration fragment inside a variant
// override directory. Everything it sets applies to that variant only.
type VariantConfig struct {
	// Variables override build-scope variables of the same name.
	Variables *value.Map `yaml:"variables"`

	// TemplateFile names the variant Dockerfile template inside the
	// override directory. Default: the build's template_file name.
	TemplateFile string `yaml:"template_file"`

	// Tags extend the build's tag templates. A template with the same text
	// as a build template replaces it in place.
	Tags []TagTemplate `yaml:"tags"`
}

// ParseVariant decodes a variant fragment.
func ParseVariant(data []byte, format Format) (*VariantConfig, error) {
	if format == FormatTOML {
		return parseVariantTOML(data)
	}

	vc := &VariantConfig{}
	if len(bytes.TrimSpace(data)) == 0 {
		return vc, nil
	}
	if err := yaml.Unmarshal(data, vc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return vc, nil
}
