package filters

import (
	"fmt"
	"strings"

	"pagekit/lib/document"

	"github.com/antchfx/xpath"
)

type selectConfig struct {
	strict     bool
	hasDefault bool
	def        any
	join       bool
	sep        string
}

// Option configures a selector filter.
type Option func(*selectConfig)

// Strict makes a selector fail with AmbiguousSelection when more than
// one node matches. The default policy takes the first match.
func Strict() Option {
	return func(c *selectConfig) { c.strict = true }
}

// Default suppresses the NotFound failure of an empty selection and
// yields v instead.
func Default(v any) Option {
	return func(c *selectConfig) {
		c.hasDefault = true
		c.def = v
	}
}

// JoinAll makes Text concatenate every match, separated by sep.
func JoinAll(sep string) Option {
	return func(c *selectConfig) {
		c.join = true
		c.sep = sep
	}
}

// validateExpr compiles XPath expressions eagerly so a typo fails
// deterministically at every evaluation rather than depending on the
// document.
func validateExpr(expr string) error {
	if !strings.HasPrefix(expr, "/") && !strings.HasPrefix(expr, ".") && !strings.HasPrefix(expr, "(") {
		return nil
	}
	_, err := xpath.Compile(expr)
	return err
}

func selectNodes(ctx *Context, in any, expr, stage string, cfg selectConfig) ([]document.Node, any, error) {
	node, err := nodeOf(ctx, in, stage)
	if err != nil {
		return nil, nil, err
	}
	matches, err := node.Select(expr)
	if err != nil {
		return nil, nil, failf(ParseError, stage, "%w", err)
	}
	if len(matches) == 0 {
		if cfg.hasDefault {
			return nil, cfg.def, nil
		}
		return nil, nil, failf(NotFound, stage, "selector matched nothing")
	}
	if cfg.strict && len(matches) > 1 {
		return nil, nil, failf(AmbiguousSelection, stage, "selector matched %d nodes", len(matches))
	}
	return matches, nil, nil
}

// Raw selects nodes and yields the first one (or all of them under
// JoinAll-less multi use through Select in the element builder). It is
// the entry point for chaining further node-aware filters.
func Raw(expr string, opts ...Option) Filter {
	cfg := selectConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	stage := fmt.Sprintf("raw(%s)", expr)
	exprErr := validateExpr(expr)
	return New(stage, func(ctx *Context, in any) (any, error) {
		if exprErr != nil {
			return nil, failf(ParseError, stage, "%w", exprErr)
		}
		matches, def, err := selectNodes(ctx, in, expr, stage, cfg)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			return def, nil
		}
		return matches[0], nil
	})
}

// Text selects nodes and yields their text content. By default the
// first match is used; JoinAll concatenates every match.
func Text(expr string, opts ...Option) Filter {
	cfg := selectConfig{sep: " "}
	for _, o := range opts {
		o(&cfg)
	}
	stage := fmt.Sprintf("text(%s)", expr)
	exprErr := validateExpr(expr)
	return New(stage, func(ctx *Context, in any) (any, error) {
		if exprErr != nil {
			return nil, failf(ParseError, stage, "%w", exprErr)
		}
		matches, def, err := selectNodes(ctx, in, expr, stage, cfg)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			return def, nil
		}
		if cfg.join {
			parts := make([]string, len(matches))
			for i, m := range matches {
				parts[i] = m.Text()
			}
			return strings.Join(parts, cfg.sep), nil
		}
		return matches[0].Text(), nil
	})
}

// Attr selects nodes and reads a named attribute off the first match.
// A match without the attribute fails NotFound unless a default is
// set.
func Attr(expr, name string, opts ...Option) Filter {
	cfg := selectConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	stage := fmt.Sprintf("attr(%s,@%s)", expr, name)
	exprErr := validateExpr(expr)
	return New(stage, func(ctx *Context, in any) (any, error) {
		if exprErr != nil {
			return nil, failf(ParseError, stage, "%w", exprErr)
		}
		matches, def, err := selectNodes(ctx, in, expr, stage, cfg)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			return def, nil
		}
		value, ok := matches[0].Attr(name)
		if !ok {
			if cfg.hasDefault {
				return cfg.def, nil
			}
			return nil, failf(NotFound, stage, "attribute missing")
		}
		return value, nil
	})
}

// Link reads the href attribute, the usual case for navigation.
func Link(expr string, opts ...Option) Filter {
	return Attr(expr, "href", opts...)
}

// SelfAttr reads an attribute of the current node without selecting.
func SelfAttr(name string, opts ...Option) Filter {
	cfg := selectConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	stage := fmt.Sprintf("attr(@%s)", name)
	return New(stage, func(ctx *Context, in any) (any, error) {
		node, err := nodeOf(ctx, in, stage)
		if err != nil {
			return nil, err
		}
		value, ok := node.Attr(name)
		if !ok {
			if cfg.hasDefault {
				return cfg.def, nil
			}
			return nil, failf(NotFound, stage, "attribute missing")
		}
		return value, nil
	})
}
