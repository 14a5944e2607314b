package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/imagebuild/src/value"
)

const sampleYAML = `
builds:
  - name: alpine
    namespace: library
    source:
      tags: ["3.14", "3.15"]
      primary: "3.15"
    tags:
      - template: "{{ _dest.name }}:{{ _source.tag }}"
      - template: "{{ _dest.name }}:latest"
        only_primary: true
      - template: "{{ _dest.name }}:edge"
        selectors: ["^edge$"]
        negate: false
    variables:
      maintainer: ops
      packages: [curl, git]
`

const sampleTOML = `
[[builds]]
name = "alpine"
namespace = "library"

[builds.source]
tags = ["3.14", "3.15"]
primary = "3.15"

[[builds.tags]]
template = "{{ _dest.name }}:{{ _source.tag }}"

[[builds.tags]]
template = "{{ _dest.name }}:latest"
only_primary = true

[[builds.tags]]
template = "{{ _dest.name }}:edge"
selectors = ["^edge$"]

[builds.variables]
maintainer = "ops"
packages = ["curl", "git"]
`

func TestParseYAML(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	require.Len(t, cfg.Builds, 1)

	b := cfg.Builds[0]
	assert.Equal(t, "alpine", b.Name)
	assert.Equal(t, "library/alpine", b.Repository())
	assert.Equal(t, "alpine", b.Source.Name, "source name defaults to build name")
	assert.Equal(t, []string{"3.14", "3.15"}, b.Source.Tags)
	assert.True(t, b.Source.IsPrimary("3.15"))
	assert.False(t, b.Source.IsPrimary("3.14"))
	assert.Equal(t, DefaultVariantsDir, b.VariantsDir)
	assert.Equal(t, DefaultTemplateFile, b.TemplateFile)
	require.Len(t, b.Tags, 3)
	assert.True(t, b.Tags[1].OnlyPrimary)
	assert.Equal(t, []string{"maintainer", "packages"}, b.Variables.Keys())

	require.NoError(t, Validate(cfg))
}

func TestParseYAMLBareSequence(t *testing.T) {
	src := `
- name: busybox
  namespace: tools
  source: {name: library/busybox, tags: [latest]}
`
	cfg, err := Parse([]byte(src), FormatYAML)
	require.NoError(t, err)
	require.Len(t, cfg.Builds, 1)
	assert.Equal(t, "library/busybox", cfg.Builds[0].Source.Name)
	assert.Equal(t, "library/busybox:latest", cfg.Builds[0].Source.Ref("latest"))
	assert.Equal(t, 0, cfg.Builds[0].Variables.Len())
}

func TestParseTOMLMatchesYAML(t *testing.T) {
	fromYAML, err := Parse([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)
	fromTOML, err := Parse([]byte(sampleTOML), FormatTOML)
	require.NoError(t, err)

	require.Len(t, fromTOML.Builds, 1)
	y, tm := fromYAML.Builds[0], fromTOML.Builds[0]
	assert.Equal(t, y.Name, tm.Name)
	assert.Equal(t, y.Namespace, tm.Namespace)
	assert.Equal(t, y.Source, tm.Source)
	assert.Equal(t, y.Tags, tm.Tags)
	assert.True(t, value.Equal(y.Variables, tm.Variables))
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse([]byte("  \n"), FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, cfg.Builds)
	assert.NoError(t, Validate(cfg))
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("builds: [\n"), FormatYAML)
	assert.Error(t, err)
}

func TestValidateStructuralErrors(t *testing.T) {
	src := `
builds:
  - source: {tags: ["1", "1", "a/b"], primary: "2"}
    tags:
      - template: ""
  - name: nosource
    namespace: x
    variants_dir: ../elsewhere
`
	cfg, err := Parse([]byte(src), FormatYAML)
	require.NoError(t, err)

	err = Validate(cfg)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce), "got %v", err)

	joined := ce.Error()
	assert.Contains(t, joined, "builds[0]: name is required")
	assert.Contains(t, joined, "builds[0]: namespace is required")
	assert.NotContains(t, joined, "duplicate")
	assert.Contains(t, joined, "must not contain a path separator")
	assert.Contains(t, joined, `source.primary "2" is not one of source.tags`)
	assert.Contains(t, joined, "tags[0].template is required")
	assert.Contains(t, joined, "builds[1] (nosource): source is required")
	assert.Contains(t, joined, "variants_dir")
}

func TestValidateEmptySourceTagsIsLegal(t *testing.T) {
	src := `
builds:
  - name: empty
    namespace: x
    source: {tags: []}
`
	cfg, err := Parse([]byte(src), FormatYAML)
	require.NoError(t, err)
	assert.NoError(t, Validate(cfg))
}

func TestValidateSelectorCompileError(t *testing.T) {
	src := `
builds:
  - name: broken
    namespace: x
    source: {tags: [a]}
    tags:
      - template: "x"
        selectors: ["[a-"]
`
	cfg, err := Parse([]byte(src), FormatYAML)
	require.NoError(t, err)

	err = Validate(cfg)
	var se *SelectorCompileError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "broken", se.Build)
	assert.Equal(t, "[a-", se.Pattern)
	assert.Contains(t, err.Error(), `build "broken"`)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image-build.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, path, cfg.Path)
}

func TestLoadTOMLByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image-build.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Builds, 1)
	assert.Equal(t, "alpine", cfg.Builds[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestParseVariant(t *testing.T) {
	vc, err := ParseVariant([]byte(`
template_file: Dockerfile.variant
variables: {flavor: slim}
tags:
  - template: "{{ _dest.name }}:slim"
`), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "Dockerfile.variant", vc.TemplateFile)
	assert.Equal(t, []string{"flavor"}, vc.Variables.Keys())
	require.Len(t, vc.Tags, 1)

	vt, err := ParseVariant([]byte(`
template_file = "Dockerfile.variant"
[variables]
flavor = "slim"
`), FormatTOML)
	require.NoError(t, err)
	assert.True(t, value.Equal(vc.Variables, vt.Variables))

	empty, err := ParseVariant(nil, FormatYAML)
	require.NoError(t, err)
	assert.Nil(t, empty.Variables)
}
