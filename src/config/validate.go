package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sofmeright/imagebuild/src/selector"
)

// Validate checks structural invariants of a loaded Config.
// Structural problems are collected into a single *ConfigError. Selector
// patterns are compiled afterwards; the first one that fails is returned as
// a *SelectorCompileError.
func Validate(cfg *Config) error {
	var errs []string

	for i, b := range cfg.Builds {
		bpath := fmt.Sprintf("builds[%d]", i)
		if b.Name != "" {
			bpath = fmt.Sprintf("builds[%d] (%s)", i, b.Name)
		}

		// ── Identity ──────────────────────────────────────────────────────

		if b.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: name is required", bpath))
		}
		if b.Namespace == "" {
			errs = append(errs, fmt.Sprintf("%s: namespace is required", bpath))
		}

		// ── Source ────────────────────────────────────────────────────────

		if b.Source == nil {
			errs = append(errs, fmt.Sprintf("%s: source is required", bpath))
		} else {
			for j, tag := range b.Source.Tags {
				switch {
				case tag == "":
					errs = append(errs, fmt.Sprintf("%s: source.tags[%d] is empty", bpath, j))
				case strings.ContainsAny(tag, `/\`):
					errs = append(errs, fmt.Sprintf("%s: source.tags[%d] %q must not contain a path separator", bpath, j, tag))
				}
			}
			if b.Source.Primary != "" && !slices.Contains(b.Source.Tags, b.Source.Primary) {
				errs = append(errs, fmt.Sprintf("%s: source.primary %q is not one of source.tags", bpath, b.Source.Primary))
			}
		}

		// ── Paths ─────────────────────────────────────────────────────────

		if filepath.IsAbs(b.VariantsDir) || escapesRoot(b.VariantsDir) {
			errs = append(errs, fmt.Sprintf("%s: variants_dir %q must be relative to the config file", bpath, b.VariantsDir))
		}
		if filepath.IsAbs(b.TemplateFile) || escapesRoot(b.TemplateFile) {
			errs = append(errs, fmt.Sprintf("%s: template_file %q must be relative to the config file", bpath, b.TemplateFile))
		}

		// ── Tags ──────────────────────────────────────────────────────────

		for j, t := range b.Tags {
			if strings.TrimSpace(t.Template) == "" {
				errs = append(errs, fmt.Sprintf("%s: tags[%d].template is required", bpath, j))
			}
		}
	}

	if len(errs) > 0 {
		return &ConfigError{Problems: errs}
	}

	for _, b := range cfg.Builds {
		for _, t := range b.Tags {
			if _, err := CompileTag(b.Name, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// CompileTag compiles a tag template's rule, attributing failures to build.
func CompileTag(build string, t TagTemplate) (*selector.Rule, error) {
	rule, err := t.Rule()
	if err != nil {
		var ce *selector.CompileError
		if errors.As(err, &ce) {
			return nil, &SelectorCompileError{Build: build, Pattern: ce.Pattern, Err: ce.Err}
		}
		return nil, err
	}
	return rule, nil
}

// escapesRoot reports whether a relative path climbs above its base.
func escapesRoot(p string) bool {
	clean := filepath.Clean(filepath.FromSlash(p))
	return clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator))
}
