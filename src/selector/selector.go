// Package selector decides whether a tag template applies to a build variant.
//
// A rule pairs regex patterns with two flags. Evaluation against a variant
// and the runtime selector string (the --select value) follows a fixed table:
//
//	only_primary  primary  selectors  negate  result
//	true          false    any        any     false
//	*             *        empty      false   true
//	*             *        empty      true    false
//	*             *        non-empty  false   matched
//	*             *        non-empty  true    !matched
//
// matched is true when the selector string is non-empty and any pattern finds
// a match anywhere in it (search semantics, not full match).
package selector

import (
	"fmt"
	"regexp"
)

// Rule is a compiled tag selection rule.
type Rule struct {
	patterns    []*regexp.Regexp
	negate      bool
	onlyPrimary bool
}

// CompileError reports a selector pattern that is not a valid regex.
type CompileError struct {
	Pattern string
	Err     error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("invalid selector %q: %v", e.Pattern, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Compile builds a rule. Patterns use RE2 syntax.
func Compile(patterns []string, negate, onlyPrimary bool) (*Rule, error) {
	r := &Rule{negate: negate, onlyPrimary: onlyPrimary}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &CompileError{Pattern: p, Err: err}
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// MustCompile is Compile that panics on error. Intended for tests and
// package-level fixtures.
func MustCompile(patterns []string, negate, onlyPrimary bool) *Rule {
	r, err := Compile(patterns, negate, onlyPrimary)
	if err != nil {
		panic(err)
	}
	return r
}

// Match reports whether any pattern matches a substring of s.
// Unlike Applies it does not special-case the empty string.
func (r *Rule) Match(s string) bool {
	for _, re := range r.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Applies reports whether the rule selects a variant with the given primary
// flag for the selector string.
func (r *Rule) Applies(isPrimary bool, selectorString string) bool {
	hasSelectors := len(r.patterns) > 0
	matched := false
	if hasSelectors && selectorString != "" {
		matched = r.Match(selectorString)
	}
	return Decide(r.onlyPrimary, isPrimary, hasSelectors, matched, r.negate)
}

// Decide is the selection truth table as a pure function.
func Decide(onlyPrimary, isPrimary, hasSelectors, matched, negate bool) bool {
	if onlyPrimary && !isPrimary {
		return false
	}
	if !hasSelectors {
		return !negate
	}
	return matched != negate
}

// Negate reports whether the rule inverts its match.
func (r *Rule) Negate() bool { return r.negate }

// OnlyPrimary reports whether the rule is gated to the primary variant.
func (r *Rule) OnlyPrimary() bool { return r.onlyPrimary }

// Patterns returns the source text of the compiled patterns.
func (r *Rule) Patterns() []string {
	out := make([]string, len(r.patterns))
	for i, re := range r.patterns {
		out[i] = re.String()
	}
	return out
}
