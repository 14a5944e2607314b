package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sofmeright/imagebuild/src/value"
)

// Defaults applied to every build when the configuration leaves them out.
const (
	DefaultConfigFile   = "image-build.yml"
	DefaultVariantsDir  = "variants/"
	DefaultTemplateFile = "Dockerfile.j2"
)

// Format identifies the configuration syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the syntax from a file extension. Anything that is not
// .toml is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Config is one parsed configuration file.
type Config struct {
	Builds []BuildSpec `yaml:"builds"`

	// Path is the file the configuration was loaded from.
	Path string `yaml:"-"`

	// Dir is the directory relative paths (variants_dir, template_file)
	// resolve against. It is also the root of the build context.
	Dir string `yaml:"-"`
}

// Load reads, defaults and validates a configuration file.
// If path is empty, the default file name is used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.Path = abs
	cfg.Dir = filepath.Dir(abs)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration bytes and applies defaults. It does not
// validate; call Validate before planning.
func Parse(data []byte, format Format) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch format {
	case FormatTOML:
		cfg, err = parseTOML(data)
	default:
		cfg, err = parseYAML(data)
	}
	if err != nil {
		return nil, err
	}

	for i := range cfg.Builds {
		cfg.Builds[i].applyDefaults()
	}
	return cfg, nil
}

// parseYAML accepts both a mapping with a top-level "builds" key and a bare
// sequence of builds.
func parseYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	if root.Kind == yaml.SequenceNode {
		if err := root.Decode(&cfg.Builds); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
		return cfg, nil
	}

	if err := root.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return cfg, nil
}

func (b *BuildSpec) applyDefaults() {
	if b.VariantsDir == "" {
		b.VariantsDir = DefaultVariantsDir
	}
	if b.TemplateFile == "" {
		b.TemplateFile = DefaultTemplateFile
	}
	if b.Source != nil && b.Source.Name == "" {
		b.Source.Name = b.Name
	}
	if b.Variables == nil {
		b.Variables = value.NewMap()
	}
}
