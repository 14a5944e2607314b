package build

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// Engine is the container backend that executes plans. Implementations
// register themselves from init() in the engines package.
type Engine interface {
	Name() string
	// Build builds the image described by req and applies req.Refs.
	Build(ctx context.Context, req BuildRequest) (*StepResult, error)
	Push(ctx context.Context, ref string) error
	// Save writes a docker-save archive of refs to w.
	Save(ctx context.Context, refs []string, w io.Writer) error
	// Images lists local images, one entry per repo:tag reference and one
	// entry with an empty Ref for each untagged image.
	Images(ctx context.Context) ([]LocalImage, error)
	// Remove force-removes a reference or image ID.
	Remove(ctx context.Context, ref string) error
	Close() error
}

// LocalImage is one image reference present in the local store.
type LocalImage struct {
	ID  string
	Ref string // empty when the image is untagged
}

// Name returns the reference, or the image ID for an untagged image.
func (i LocalImage) Name() string {
	if i.Ref == "" {
		return i.ID
	}
	return i.Ref
}

// BuildRequest is one image build.
type BuildRequest struct {
	Name    string    // display name, e.g. "library/alpine:3.15"
	Context io.Reader // tar stream with the Dockerfile at its root
	Refs    []string
	Labels  map[string]string
}

// EngineOptions configure an engine instance.
type EngineOptions struct {
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// Constructor creates an engine.
type Constructor func(opts EngineOptions) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds an engine constructor to the global registry.
func Register(name string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("build: duplicate engine registration: %s", name))
	}
	registry[name] = constructor
}

// Get returns a new instance of the named engine.
func Get(name string, opts EngineOptions) (Engine, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("build: unknown engine %q (available: %v)", name, All())
	}
	return ctor(opts)
}

// All returns sorted names of all registered engines.
func All() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
