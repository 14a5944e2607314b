package build

import (
	"context"
	"fmt"
	"io/fs"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sofmeright/imagebuild/src/config"
	"github.com/sofmeright/imagebuild/src/render"
	"github.com/sofmeright/imagebuild/src/value"
	"github.com/sofmeright/imagebuild/src/variant"
	"github.com/sofmeright/imagebuild/src/vars"
)

// Options control plan assembly.
type Options struct {
	// Select is the selector string matched against tag selectors.
	// Empty selects only templates without selectors.
	Select string

	// IgnoreEmpty drops variants that end up with no tags.
	IgnoreEmpty bool

	// Variables are the command-line variables (highest precedence).
	Variables *value.Map

	// Timestamp is the per-run _timestamp value.
	Timestamp string

	// Git is exposed as _git when non-nil.
	Git *value.Map

	// Jobs limits concurrent variant planning. <= 0 means GOMAXPROCS.
	Jobs int
}

// Planner turns a validated configuration into build plans.
type Planner struct {
	fsys fs.FS
	opts Options
}

// NewPlanner returns a planner reading templates and variant directories
// from fsys, which is rooted at the configuration directory.
func NewPlanner(fsys fs.FS, opts Options) *Planner {
	return &Planner{fsys: fsys, opts: opts}
}

type job struct {
	build int
	main  *variant.Template
	v     variant.Variant
}

// Plan assembles the plans of every build, builds in declaration order and
// variants in source tag order. Variants are planned concurrently; on the
// first error nothing is returned.
func (p *Planner) Plan(ctx context.Context, cfg *config.Config) ([]BuildPlan, error) {
	var jobs []job
	for i := range cfg.Builds {
		b := &cfg.Builds[i]
		variants, err := variant.Enumerate(p.fsys, b)
		if err != nil {
			return nil, err
		}
		if len(variants) == 0 {
			log.Debug().Str("build", b.Name).Msg("build has no source tags")
			continue
		}
		main, err := variant.MainTemplate(p.fsys, b)
		if err != nil {
			return nil, err
		}
		for _, v := range variants {
			jobs = append(jobs, job{build: i, main: main, v: v})
		}
	}

	limit := p.opts.Jobs
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]*BuildPlan, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for idx, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plan, err := p.PlanVariant(j.v, j.main)
			if err != nil {
				return err
			}
			if plan != nil {
				plan.BuildIndex = j.build
			}
			results[idx] = plan
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	plans := make([]BuildPlan, 0, len(results))
	for _, r := range results {
		if r != nil {
			plans = append(plans, *r)
		}
	}
	return plans, nil
}

// PlanVariant selects and renders the tags of one variant, then renders its
// Dockerfile. It returns nil when the variant has no tags and IgnoreEmpty
// is set; template errors are reported either way.
func (p *Planner) PlanVariant(v variant.Variant, main *variant.Template) (*BuildPlan, error) {
	b := v.Build
	scope := vars.Resolve(b.Variables, v.Variables, p.opts.Variables, vars.Computed{
		SourceName: b.Source.Name,
		SourceTag:  v.SourceTag,
		Primary:    v.IsPrimary,
		DestName:   b.Name,
		Namespace:  b.Namespace,
		Timestamp:  p.opts.Timestamp,
		Git:        p.opts.Git,
	})

	tags, err := p.renderTags(v, scope)
	if err != nil {
		return nil, err
	}

	scope = vars.WithTags(scope, tags)
	dockerfile, err := render.Render(main.Path, main.Text, scope)
	if err != nil {
		return nil, fmt.Errorf("build %q source tag %s: %w", b.Name, v.SourceTag, err)
	}
	if v.Template != nil {
		dockerfile, err = render.Render(v.Template.Path, v.Template.Text, vars.WithBase(scope, dockerfile))
		if err != nil {
			return nil, fmt.Errorf("build %q source tag %s: %w", b.Name, v.SourceTag, err)
		}
	}

	// Dropping happens after rendering so a broken Dockerfile still fails.
	if len(tags) == 0 && p.opts.IgnoreEmpty {
		log.Debug().Str("build", b.Name).Str("tag", v.SourceTag).Msg("no applicable tags, variant dropped")
		return nil, nil
	}

	log.Debug().
		Str("build", b.Name).
		Str("tag", v.SourceTag).
		Strs("tags", tags).
		Msg("variant planned")

	plan := &BuildPlan{
		Build:      b.Name,
		Namespace:  b.Namespace,
		Repository: b.Repository(),
		Source:     b.Source.Ref(v.SourceTag),
		SourceTag:  v.SourceTag,
		Primary:    v.IsPrimary,
		Tags:       tags,
		Dockerfile: dockerfile,
		VariantDir: v.Dir,
	}
	if v.Template != nil {
		plan.VariantTemplate = v.Template.Path
	}
	return plan, nil
}

// renderTags renders every applicable tag template, dropping duplicates
// and empty results while keeping first-seen order.
func (p *Planner) renderTags(v variant.Variant, scope *value.Map) ([]string, error) {
	tags := []string{}
	seen := map[string]bool{}
	for i, t := range v.Tags {
		if !t.Rule.Applies(v.IsPrimary, p.opts.Select) {
			continue
		}
		name := fmt.Sprintf("%s tags[%d]", v.Build.Name, i)
		out, err := render.Render(name, t.Template, scope)
		if err != nil {
			return nil, fmt.Errorf("build %q source tag %s: %w", v.Build.Name, v.SourceTag, err)
		}
		tag := strings.TrimSpace(out)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags, nil
}
