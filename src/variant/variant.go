// Package variant expands a build into one variant per source tag and
// attaches each variant's override directory.
//
// A variant override directory is <variants_dir>/<source tag>. When it
// exists it may hold a configuration fragment (image-build.yml, .yaml or
// .toml) with variables, extra tag templates and a template_file name, and
// a variant Dockerfile template. Overrides apply to that variant only.
package variant

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/sofmeright/imagebuild/src/config"
	"github.com/sofmeright/imagebuild/src/selector"
	"github.com/sofmeright/imagebuild/src/value"
)

// Tag is a tag template with its compiled selection rule.
type Tag struct {
	Template string
	Rule     *selector.Rule
}

// Template is a Dockerfile template read from the configuration directory.
type Template struct {
	// Path is the slash-separated path relative to the configuration
	// directory. It names the template in render errors.
	Path string
	Text string
}

// Variant is one (build, source tag) pair. Variants are never modified
// after Enumerate returns them.
type Variant struct {
	Build     *config.BuildSpec
	SourceTag string
	IsPrimary bool

	// Dir is the override directory relative to the configuration
	// directory, "" when the variant has none.
	Dir string

	// Variables are the variant-scope variables, nil when none.
	Variables *value.Map

	// Tags are the build's tag templates followed by the fragment's.
	Tags []Tag

	// Template is the variant Dockerfile template, nil when none.
	Template *Template
}

// Enumerate returns one variant per source tag, in source tag order.
// fsys is rooted at the configuration directory.
func Enumerate(fsys fs.FS, b *config.BuildSpec) ([]Variant, error) {
	if b.Source == nil || len(b.Source.Tags) == 0 {
		return nil, nil
	}

	buildTags, err := compileTags(b.Name, b.Tags)
	if err != nil {
		return nil, err
	}

	variantsDir := cleanRel(b.VariantsDir)
	out := make([]Variant, 0, len(b.Source.Tags))
	primarySeen := false
	for _, tag := range b.Source.Tags {
		// A repeated source tag yields another variant; only its first
		// occurrence can be primary.
		primary := !primarySeen && b.Source.IsPrimary(tag)
		primarySeen = primarySeen || primary
		v := Variant{
			Build:     b,
			SourceTag: tag,
			IsPrimary: primary,
			Tags:      buildTags,
		}

		dir := path.Join(variantsDir, tag)
		info, err := fs.Stat(fsys, dir)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			out = append(out, v)
			continue
		case err != nil:
			return nil, fmt.Errorf("build %q variant %s: %w", b.Name, tag, err)
		case !info.IsDir():
			out = append(out, v)
			continue
		}

		v.Dir = dir
		if err := applyOverride(fsys, b, &v); err != nil {
			return nil, fmt.Errorf("build %q variant %s: %w", b.Name, tag, err)
		}
		log.Debug().
			Str("build", b.Name).
			Str("tag", tag).
			Str("dir", dir).
			Bool("template", v.Template != nil).
			Msg("variant override")
		out = append(out, v)
	}
	return out, nil
}

// applyOverride loads the fragment and template from v.Dir.
func applyOverride(fsys fs.FS, b *config.BuildSpec, v *Variant) error {
	vc, err := loadFragment(fsys, v.Dir)
	if err != nil {
		return err
	}

	templateFile := cleanRel(b.TemplateFile)
	if vc != nil {
		v.Variables = vc.Variables
		if len(vc.Tags) > 0 {
			extra, err := compileTags(b.Name, vc.Tags)
			if err != nil {
				return err
			}
			v.Tags = mergeTags(v.Tags, extra)
		}
		if vc.TemplateFile != "" {
			if filepath.IsAbs(vc.TemplateFile) || !fs.ValidPath(cleanRel(vc.TemplateFile)) {
				return &config.ConfigError{Problems: []string{
					fmt.Sprintf("%s: template_file %q must be relative to the variant directory", v.Dir, vc.TemplateFile),
				}}
			}
			templateFile = cleanRel(vc.TemplateFile)
		}
	}

	tmpl, err := readTemplate(fsys, path.Join(v.Dir, templateFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	v.Template = tmpl
	return nil
}

// loadFragment reads the first fragment file present in dir, nil if none.
func loadFragment(fsys fs.FS, dir string) (*config.VariantConfig, error) {
	for _, name := range config.VariantConfigFiles {
		p := path.Join(dir, name)
		data, err := fs.ReadFile(fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		vc, err := config.ParseVariant(data, config.FormatFor(name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		return vc, nil
	}
	return nil, nil
}

// MainTemplate reads the build's shared Dockerfile template.
func MainTemplate(fsys fs.FS, b *config.BuildSpec) (*Template, error) {
	tmpl, err := readTemplate(fsys, cleanRel(b.TemplateFile))
	if err != nil {
		return nil, fmt.Errorf("build %q: %w", b.Name, err)
	}
	return tmpl, nil
}

func readTemplate(fsys fs.FS, p string) (*Template, error) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", p, err)
	}
	return &Template{Path: p, Text: string(data)}, nil
}

func compileTags(build string, in []config.TagTemplate) ([]Tag, error) {
	out := make([]Tag, 0, len(in))
	for i, t := range in {
		if t.Template == "" {
			return nil, &config.ConfigError{Problems: []string{
				fmt.Sprintf("build %q: tags[%d].template is required", build, i),
			}}
		}
		rule, err := config.CompileTag(build, t)
		if err != nil {
			return nil, err
		}
		out = append(out, Tag{Template: t.Template, Rule: rule})
	}
	return out, nil
}

// mergeTags appends extra to base; an extra template whose text equals a
// base template replaces it in place. base is not modified.
func mergeTags(base, extra []Tag) []Tag {
	out := make([]Tag, len(base), len(base)+len(extra))
	copy(out, base)
	for _, t := range extra {
		replaced := false
		for i := range out {
			if out[i].Template == t.Template {
				out[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, t)
		}
	}
	return out
}

// cleanRel turns a configured relative path into an fs.FS path.
func cleanRel(p string) string {
	return path.Clean(filepath.ToSlash(p))
}
