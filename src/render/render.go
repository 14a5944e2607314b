// Package render renders the Jinja templates used for tag templates and
// Dockerfile templates on top of gonja.
//
// The environment is strict: referencing an undefined name, attribute or
// item is an error unless guarded by the default filter or an "is defined"
// test. Filters and statements that touch the filesystem or are not
// deterministic are removed, so rendering depends only on its inputs.
package render

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
	"github.com/nikolalohinski/gonja/exec"

	"github.com/sofmeright/imagebuild/src/value"
)

// MaxPasses bounds recursive rendering of output that still contains markup.
const MaxPasses = 16

var (
	// ErrSyntax marks malformed template markup or an unknown filter or test.
	ErrSyntax = errors.New("template syntax error")
	// ErrUndefined marks a reference to an undefined variable or attribute.
	ErrUndefined = errors.New("undefined")
	// ErrRecursion marks output that kept producing markup.
	ErrRecursion = errors.New("recursion limit reached")
	// ErrType marks any other evaluation failure, such as a filter applied
	// to a value it cannot handle.
	ErrType = errors.New("evaluation error")
)

// RenderError locates a failure inside a named template.
type RenderError struct {
	Name string
	Line int
	Err  error
}

func (e *RenderError) Error() string {
	var b strings.Builder
	b.WriteString("render")
	if e.Name != "" {
		fmt.Fprintf(&b, " %s", e.Name)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *RenderError) Unwrap() error { return e.Err }

var env = newEnvironment()

// unsafeFilters read files, panic or return random output.
var unsafeFilters = []string{"file", "fileset", "dir", "random", "panic"}

// loaderStatements resolve other templates through the filesystem.
var loaderStatements = []string{"include", "extends", "import", "from"}

func newEnvironment() *gonja.Environment {
	cfg := config.NewConfig()
	cfg.StrictUndefined = true

	e := gonja.NewEnvironment(cfg, gonja.DefaultLoader)
	for _, name := range unsafeFilters {
		delete(*e.Filters, name)
	}
	for _, name := range loaderStatements {
		delete(*e.Statements, name)
	}
	for name, fn := range filters {
		(*e.Filters)[name] = fn
	}
	return e
}

// Template is a parsed template ready to execute.
type Template struct {
	name string
	tpl  *exec.Template
}

// Parse compiles template text. name is used in error messages only.
func Parse(name, text string) (*Template, error) {
	tpl, err := exec.NewTemplate(name, text, env.EvalConfig)
	if err != nil {
		return nil, wrap(name, ErrSyntax, err)
	}
	return &Template{name: name, tpl: tpl}, nil
}

// Execute renders the template once against ctx. ctx is never modified.
func (t *Template) Execute(ctx *value.Map) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RenderError{Name: t.name, Err: fmt.Errorf("%w: %v", ErrType, r)}
		}
	}()
	out, err = t.tpl.Execute(contextOf(ctx))
	if err != nil {
		return "", wrap(t.name, classify(err), err)
	}
	return out, nil
}

// Render parses and executes text against ctx. While the output still
// contains markup it is rendered again, so a variable whose value is
// itself a template is expanded. Output that renders to itself while
// still holding markup is a recursion error.
func Render(name, text string, ctx *value.Map) (string, error) {
	cur := text
	for pass := 0; pass < MaxPasses; pass++ {
		tmpl, err := Parse(name, cur)
		if err != nil {
			return "", err
		}
		out, err := tmpl.Execute(ctx)
		if err != nil {
			return "", err
		}
		if !HasMarkup(out) {
			return out, nil
		}
		if out == cur {
			return "", &RenderError{Name: name, Err: fmt.Errorf("%w: output renders to itself", ErrRecursion)}
		}
		cur = out
	}
	return "", &RenderError{Name: name, Err: fmt.Errorf("%w after %d passes", ErrRecursion, MaxPasses)}
}

// HasMarkup reports whether s contains any template delimiters.
func HasMarkup(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%") || strings.Contains(s, "{#")
}

var (
	lineRe      = regexp.MustCompile(`(?i)\bline:? (\d+)`)
	undefinedRe = regexp.MustCompile(`Unable to evaluate name "|(attribute|item) '[^']*' not found|item -?\d+ not found`)
	unknownRe   = regexp.MustCompile(`(Filter|Test) "[^"]*" not found`)
)

// classify maps a gonja execution error onto the package sentinels. gonja
// reports errors as wrapped message strings, so the message is matched.
func classify(err error) error {
	msg := err.Error()
	switch {
	case unknownRe.MatchString(msg):
		return ErrSyntax
	case undefinedRe.MatchString(msg):
		return ErrUndefined
	default:
		return ErrType
	}
}

func wrap(name string, kind, err error) error {
	msg := strings.TrimPrefix(err.Error(), "Unable to Execute template: ")
	re := &RenderError{Name: name, Err: fmt.Errorf("%w: %s", kind, msg)}
	if m := lineRe.FindStringSubmatch(msg); m != nil {
		re.Line, _ = strconv.Atoi(m[1])
	}
	return re
}
