package render

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/nikolalohinski/gonja/exec"
)

// filters extend the gonja builtins.
var filters = map[string]exec.FilterFunction{
	"major": semverFilter("major", func(v *semver.Version) uint64 { return v.Major() }),
	"minor": semverFilter("minor", func(v *semver.Version) uint64 { return v.Minor() }),
	"patch": semverFilter("patch", func(v *semver.Version) uint64 { return v.Patch() }),
}

// semverFilter extracts one component of a version string. Parsing is
// lenient: "3.15" is 3.15.0 and a leading "v" is accepted.
func semverFilter(name string, part func(*semver.Version) uint64) exec.FilterFunction {
	return func(_ *exec.Evaluator, in *exec.Value, params *exec.VarArgs) *exec.Value {
		if in.IsError() {
			return in
		}
		if p := params.ExpectNothing(); p.IsError() {
			return exec.AsValue(fmt.Errorf("wrong signature for '%s': %s", name, p.Error()))
		}
		v, err := semver.NewVersion(in.String())
		if err != nil {
			return exec.AsValue(fmt.Errorf("filter %s: parsing version %q: %w", name, in.String(), err))
		}
		return exec.AsValue(int(part(v)))
	}
}
