package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/sofmeright/imagebuild/src/config"
)

// Image labels applied to every built image.
const (
	LabelRunID  = "io.image-build.run-id"
	LabelBuild  = "io.image-build.build"
	LabelSource = "org.opencontainers.image.base.name"
)

// Runner executes plans against an engine: build and tag every plan with
// tags, then per build push the references and export them to
// <repository>.tar.gz with '/' replaced by '_'.
type Runner struct {
	Engine    Engine
	Config    *config.Config
	Push      bool
	Export    bool
	ExportDir string

	// RunID labels every image built by this runner.
	RunID string
}

// NewRunner returns a runner with a fresh run ID.
func NewRunner(engine Engine, cfg *config.Config) *Runner {
	return &Runner{
		Engine:    engine,
		Config:    cfg,
		ExportDir: ".",
		RunID:     uuid.NewString(),
	}
}

// Run executes plans in order and stops at the first failure. The partial
// result is returned alongside the error.
func (r *Runner) Run(ctx context.Context, plans []BuildPlan) (*BuildResult, error) {
	start := time.Now()
	result := &BuildResult{}
	defer func() { result.Duration = time.Since(start) }()

	for _, group := range ByBuild(plans) {
		var refs []string
		for i := range group {
			plan := &group[i]
			if len(plan.Tags) == 0 {
				log.Warn().
					Str("build", plan.Build).
					Str("tag", plan.SourceTag).
					Msg("no applicable destination tags, skipping build")
				result.Steps = append(result.Steps, StepResult{Name: plan.Source, Status: "skipped"})
				continue
			}

			step, err := r.build(ctx, plan)
			result.Steps = append(result.Steps, *step)
			if err != nil {
				return result, err
			}
			refs = append(refs, step.Images...)
		}
		if len(refs) == 0 {
			continue
		}

		if r.Push {
			for _, ref := range refs {
				log.Info().Str("image", ref).Msg("pushing")
				if err := r.Engine.Push(ctx, ref); err != nil {
					return result, fmt.Errorf("pushing %s: %w", ref, err)
				}
			}
		}
		if r.Export {
			path, err := r.export(ctx, group[0].Repository, refs)
			if err != nil {
				return result, err
			}
			result.Exports = append(result.Exports, path)
		}
	}
	return result, nil
}

func (r *Runner) build(ctx context.Context, plan *BuildPlan) (*StepResult, error) {
	bc, err := NewBuildContext(r.Config, plan)
	if err != nil {
		return &StepResult{Name: plan.Source, Status: "failed", Error: err}, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(bc.WriteTar(pw, plan.Dockerfile))
	}()
	defer pr.Close()

	log.Info().
		Str("source", plan.Source).
		Strs("tags", plan.Tags).
		Msg("building")

	step, err := r.Engine.Build(ctx, BuildRequest{
		Name:    plan.Source,
		Context: pr,
		Refs:    plan.Refs(),
		Labels: map[string]string{
			LabelRunID:  r.RunID,
			LabelBuild:  plan.Build,
			LabelSource: plan.Source,
		},
	})
	if step == nil {
		step = &StepResult{Name: plan.Source, Status: "failed", Error: err}
	}
	if err != nil {
		return step, fmt.Errorf("building %s: %w", plan.Source, err)
	}
	return step, nil
}

// ExportPath returns the archive path for a repository.
func (r *Runner) ExportPath(repository string) string {
	return filepath.Join(r.ExportDir, strings.ReplaceAll(repository, "/", "_")+".tar.gz")
}

func (r *Runner) export(ctx context.Context, repository string, refs []string) (_ string, err error) {
	path := r.ExportPath(repository)
	log.Info().Str("repository", repository).Str("path", path).Msg("exporting")

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("exporting %s: %w", repository, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(path)
		}
	}()

	gz := gzip.NewWriter(f)
	if err := r.Engine.Save(ctx, refs, gz); err != nil {
		return "", fmt.Errorf("exporting %s: %w", repository, err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("exporting %s: %w", repository, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("exporting %s: %w", repository, err)
	}
	return path, nil
}
