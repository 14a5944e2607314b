package config

import "github.com/sofmeright/imagebuild/src/value"

// BuildSpec describes one source image and the destination tags derived
// from it. Names are not required to be unique.
type BuildSpec struct {
	// Name is the destination image name (the last path element of the
	// destination repository).
	Name string `yaml:"name"`

	// Source is the upstream image and the tags to derive variants from.
	Source *SourceSpec `yaml:"source"`

	// Namespace is the destination repository prefix: "<namespace>/<name>".
	Namespace string `yaml:"namespace"`

	// VariantsDir holds per-source-tag override directories.
	// Relative to the config file. Default: "variants/".
	VariantsDir string `yaml:"variants_dir"`

	// TemplateFile is the main Dockerfile template.
	// Relative to the config file. Default: "Dockerfile.j2".
	TemplateFile string `yaml:"template_file"`

	// Tags are the destination tag templates.
	Tags []TagTemplate `yaml:"tags"`

	// Variables are the build-scope template variables.
	Variables *value.Map `yaml:"variables"`
}

// Repository returns the destination repository "<namespace>/<name>".
func (b *BuildSpec) Repository() string {
	if b.Namespace == "" {
		return b.Name
	}
	return b.Namespace + "/" + b.Name
}
