package engines

import (
	"context"
	"sync"

	"github.com/sofmeright/imagebuild/src/build"
)

func init() {
	build.Register("buildx", func(opts build.EngineOptions) (build.Engine, error) {
		bx := build.NewBuildx(opts.Verbose)
		if opts.Stdout != nil {
			bx.Stdout = opts.Stdout
		}
		if opts.Stderr != nil {
			bx.Stderr = opts.Stderr
		}
		return &buildxEngine{Buildx: bx}, nil
	})
}

// buildxEngine drives the docker CLI. A builder is ensured once, before the
// first build.
type buildxEngine struct {
	*build.Buildx
	once     sync.Once
	setupErr error
}

func (e *buildxEngine) Name() string { return "buildx" }

func (e *buildxEngine) Build(ctx context.Context, req build.BuildRequest) (*build.StepResult, error) {
	e.once.Do(func() { e.setupErr = e.EnsureBuilder(ctx) })
	if e.setupErr != nil {
		return nil, e.setupErr
	}
	return e.Buildx.Build(ctx, req)
}

func (e *buildxEngine) Close() error { return nil }
