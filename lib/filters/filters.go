package filters

import (
	"errors"
	"fmt"
	"strings"

	"pagekit/lib/document"
	"pagekit/lib/objects"
)

// Kind classifies extraction failures.
type Kind int

const (
	NotFound Kind = iota
	ParseError
	AmbiguousSelection
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case AmbiguousSelection:
		return "ambiguous selection"
	default:
		return "not found"
	}
}

// ExtractionError is the typed failure of a filter. Stage names the
// filter that failed, so a composed chain reports exactly where it
// stopped.
type ExtractionError struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func failf(kind Kind, stage, format string, args ...any) *ExtractionError {
	return &ExtractionError{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err is an ExtractionError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ee *ExtractionError
	return errors.As(err, &ee) && ee.Kind == kind
}

// Context carries what a filter may read besides its direct input: the
// extraction root node and the named navigation parameters of the page
// being parsed.
type Context struct {
	Node document.Node
	Env  map[string]string
}

// Param reads a named navigation parameter.
func (c *Context) Param(name string) (string, bool) {
	if c == nil || c.Env == nil {
		return "", false
	}
	v, ok := c.Env[name]
	return v, ok
}

// Filter is a pure extraction step: node-or-value in, value or typed
// failure out. Filters compose left to right with Then.
type Filter interface {
	Name() string
	Apply(ctx *Context, in any) (any, error)
}

type funcFilter struct {
	name string
	fn   func(ctx *Context, in any) (any, error)
}

func (f funcFilter) Name() string { return f.name }

func (f funcFilter) Apply(ctx *Context, in any) (any, error) {
	return f.fn(ctx, in)
}

// New wraps a function as a named filter.
func New(name string, fn func(ctx *Context, in any) (any, error)) Filter {
	return funcFilter{name: name, fn: fn}
}

// Chain applies its filters left to right, feeding each output into
// the next. The first failure short-circuits; a not-available sentinel
// stops evaluation and propagates as a value.
type Chain struct {
	stages []Filter
}

// Then composes filters left to right. Nested chains are flattened, so
// composition is associative: regrouping never changes which stage
// fails or what it fails with.
func Then(fs ...Filter) Chain {
	var stages []Filter
	for _, f := range fs {
		if c, ok := f.(Chain); ok {
			stages = append(stages, c.stages...)
			continue
		}
		stages = append(stages, f)
	}
	return Chain{stages: stages}
}

// Then appends further stages to the chain.
func (c Chain) Then(fs ...Filter) Chain {
	return Then(append([]Filter{c}, fs...)...)
}

func (c Chain) Name() string {
	names := make([]string, len(c.stages))
	for i, f := range c.stages {
		names[i] = f.Name()
	}
	return strings.Join(names, ".")
}

func (c Chain) Apply(ctx *Context, in any) (any, error) {
	value := in
	for _, f := range c.stages {
		if _, isNA := value.(objects.Sentinel); isNA {
			return value, nil
		}
		var err error
		value, err = f.Apply(ctx, value)
		if err != nil {
			return nil, err
		}
	}
	return value, nil
}

// Const always returns a fixed value.
func Const(v any) Filter {
	return New("const", func(ctx *Context, in any) (any, error) {
		return v, nil
	})
}

// Env reads a named navigation parameter from the extraction context.
func Env(name string) Filter {
	stage := fmt.Sprintf("env(%s)", name)
	return New(stage, func(ctx *Context, in any) (any, error) {
		v, ok := ctx.Param(name)
		if !ok {
			return nil, failf(NotFound, stage, "no navigation parameter %q", name)
		}
		return v, nil
	})
}

// Eval evaluates an arbitrary function against the extraction context
// and the upstream value.
func Eval(name string, fn func(ctx *Context, in any) (any, error)) Filter {
	return New(name, func(ctx *Context, in any) (any, error) {
		out, err := fn(ctx, in)
		if err == nil {
			return out, nil
		}
		var ee *ExtractionError
		if errors.As(err, &ee) {
			return nil, err
		}
		return nil, failf(ParseError, name, "%w", err)
	})
}

// NotAvailable always yields the not-available sentinel: the site has
// no concept of this field.
func NotAvailable(reason string) Filter {
	return New("not-available", func(ctx *Context, in any) (any, error) {
		return objects.NotAvailableValue(reason), nil
	})
}

// nodeOf resolves the node a selector filter should run against: the
// upstream value when it is a node, otherwise the context root.
func nodeOf(ctx *Context, in any, stage string) (document.Node, error) {
	if n, ok := in.(document.Node); ok {
		return n, nil
	}
	if in == nil && ctx != nil && ctx.Node != nil {
		return ctx.Node, nil
	}
	return nil, failf(ParseError, stage, "input %T is not a document node", in)
}

// asString renders the upstream value as text. Nodes yield their text
// content.
func asString(in any, stage string) (string, error) {
	switch v := in.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case document.Node:
		return v.Text(), nil
	case fmt.Stringer:
		return v.String(), nil
	case nil:
		return "", failf(ParseError, stage, "no input value")
	default:
		return fmt.Sprint(v), nil
	}
}
