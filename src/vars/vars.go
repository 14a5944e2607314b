// Package vars builds the variable context a build variant renders against.
//
// Scopes merge with fixed precedence, later winning on key collision:
//
//	build variables < variant variables < command-line variables
//
// The merge is shallow: a colliding key replaces the whole value. Computed
// keys (_source, _dest, _timestamp, _git, _base) are injected afterwards
// and always win over user input.
package vars

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sofmeright/imagebuild/src/value"
)

// Computed variable names.
const (
	SourceKey    = "_source"
	DestKey      = "_dest"
	BaseKey      = "_base"
	TimestampKey = "_timestamp"
	GitKey       = "_git"
)

// TimestampLayout renders the per-run timestamp as YYYYMMDDHHMMSS.
const TimestampLayout = "20060102150405"

// Timestamp formats t for the _timestamp variable.
func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Computed carries the per-variant metadata injected into every context.
type Computed struct {
	SourceName string
	SourceTag  string
	Primary    bool
	DestName   string
	Namespace  string
	Timestamp  string
	// Git is exposed as _git when non-nil.
	Git *value.Map
}

// Merge overlays the scopes into a new map. None of the inputs is modified
// and any of them may be nil.
func Merge(build, variant, cli *value.Map) *value.Map {
	out := build.Clone()
	for _, scope := range []*value.Map{variant, cli} {
		for _, k := range scope.Keys() {
			v, _ := scope.Get(k)
			out.Set(k, v)
		}
	}
	return out
}

// Resolve merges the scopes and injects the computed keys. _dest.tags
// starts empty; see WithTags.
func Resolve(build, variant, cli *value.Map, c Computed) *value.Map {
	ctx := Merge(build, variant, cli)

	inject := func(key string, v value.Value) {
		if _, shadowed := ctx.Get(key); shadowed {
			log.Debug().Str("variable", key).Msg("user variable replaced by computed value")
		}
		ctx.Set(key, v)
	}

	inject(SourceKey, value.MapOf(
		"name", value.String(c.SourceName),
		"tag", value.String(c.SourceTag),
		"primary", value.Bool(c.Primary),
	))
	inject(DestKey, value.MapOf(
		"name", value.String(c.DestName),
		"namespace", value.String(c.Namespace),
		"tags", value.List{},
	))
	inject(TimestampKey, value.String(c.Timestamp))
	if c.Git != nil {
		inject(GitKey, c.Git)
	} else {
		ctx.Delete(GitKey)
	}
	ctx.Delete(BaseKey)
	return ctx
}

// WithTags returns a copy of ctx whose _dest.tags holds tags.
func WithTags(ctx *value.Map, tags []string) *value.Map {
	out := ctx.Clone()
	dest := value.NewMap()
	if cur, ok := ctx.Get(DestKey); ok {
		if m, ok := cur.(*value.Map); ok {
			dest = m.Clone()
		}
	}
	dest.Set("tags", value.Strings(tags))
	out.Set(DestKey, dest)
	return out
}

// WithBase returns a copy of ctx exposing the rendered main Dockerfile as
// _base.
func WithBase(ctx *value.Map, base string) *value.Map {
	out := ctx.Clone()
	out.Set(BaseKey, value.String(base))
	return out
}

// ParseAssignments converts positional KEY=VALUE arguments into a map.
// The value is everything after the first '='; later duplicates win.
func ParseAssignments(args []string) (*value.Map, error) {
	out := value.NewMap()
	for _, arg := range args {
		key, val, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q: expected KEY=VALUE", arg)
		}
		out.Set(key, value.String(val))
	}
	return out, nil
}

// FromEnv converts dotenv entries into a map ordered by key.
func FromEnv(env map[string]string) *value.Map {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := value.NewMap()
	for _, k := range keys {
		out.Set(k, value.String(env[k]))
	}
	return out
}
