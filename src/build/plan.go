package build

import (
	"strings"

	"github.com/sofmeright/imagebuild/src/config"
)

// BuildPlan is the resolved result for one build variant: what to build
// and what to name it. Plans are not modified after assembly.
type BuildPlan struct {
	// BuildIndex is the position of the owning build in the configuration.
	// Build names are not unique, so this is the build's identity.
	BuildIndex int `json:"-" yaml:"-"`

	Build      string   `json:"build" yaml:"build"`
	Namespace  string   `json:"namespace" yaml:"namespace"`
	Repository string   `json:"repository" yaml:"repository"`
	Source     string   `json:"source" yaml:"source"`
	SourceTag  string   `json:"source_tag" yaml:"source_tag"`
	Primary    bool     `json:"primary" yaml:"primary"`
	Tags       []string `json:"tags" yaml:"tags"`
	Dockerfile string   `json:"dockerfile" yaml:"dockerfile"`

	// VariantDir is the override directory relative to the configuration
	// directory, "" when the variant has none.
	VariantDir string `json:"variant_dir,omitempty" yaml:"variant_dir,omitempty"`

	// VariantTemplate is the variant Dockerfile template path, kept out of
	// the build context.
	VariantTemplate string `json:"-" yaml:"-"`
}

// Refs returns the image references to tag. A rendered tag without a ':'
// is a tag of the build's repository; one with a ':' is already a full
// reference and is used as is.
func (p *BuildPlan) Refs() []string {
	refs := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		if strings.Contains(t, ":") {
			refs = append(refs, t)
		} else {
			refs = append(refs, p.Repository+":"+t)
		}
	}
	return refs
}

// BaseImages lists the FROM images of the rendered Dockerfile.
func (p *BuildPlan) BaseImages() []string {
	info := ParseDockerfile(strings.NewReader(p.Dockerfile))
	var out []string
	for _, s := range info.Stages {
		out = append(out, s.BaseImage)
	}
	return out
}

// Unapplied returns the names of builds for which no plan carries a tag.
// Such a build has no applicable destination for any source tag.
func Unapplied(cfg *config.Config, plans []BuildPlan) []string {
	tagged := make([]bool, len(cfg.Builds))
	for _, p := range plans {
		if len(p.Tags) > 0 && p.BuildIndex < len(tagged) {
			tagged[p.BuildIndex] = true
		}
	}
	var out []string
	for i, ok := range tagged {
		if !ok {
			out = append(out, cfg.Builds[i].Name)
		}
	}
	return out
}

// ByBuild groups plans by owning build, keeping order.
func ByBuild(plans []BuildPlan) [][]BuildPlan {
	var (
		out  [][]BuildPlan
		last = -1
	)
	for _, p := range plans {
		if len(out) == 0 || p.BuildIndex != last {
			out = append(out, nil)
			last = p.BuildIndex
		}
		out[len(out)-1] = append(out[len(out)-1], p)
	}
	return out
}
