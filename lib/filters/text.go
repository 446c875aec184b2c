package filters

import (
	"fmt"
	"regexp"

	"pagekit/lib/textutil"

	"github.com/tidwall/gjson"
)

// CleanText renders the upstream value as text and normalizes its
// whitespace: runs collapse to single spaces, ends are trimmed,
// non-breaking spaces count as whitespace.
func CleanText() Filter {
	return New("clean-text", func(ctx *Context, in any) (any, error) {
		s, err := asString(in, "clean-text")
		if err != nil {
			return nil, err
		}
		return textutil.CleanWhitespace(s), nil
	})
}

type regexpConfig struct {
	group    int
	name     string
	template string
	def      any
	hasDef   bool
}

// RegexpOption configures a Regexp filter.
type RegexpOption func(*regexpConfig)

// Group picks a capture group by index (default 1).
func Group(n int) RegexpOption {
	return func(c *regexpConfig) { c.group = n }
}

// NamedGroup picks a capture group by name.
func NamedGroup(name string) RegexpOption {
	return func(c *regexpConfig) { c.name = name }
}

// Template expands the match through a ${group} template.
func Template(tmpl string) RegexpOption {
	return func(c *regexpConfig) { c.template = tmpl }
}

// RegexpDefault suppresses the no-match failure and yields v.
func RegexpDefault(v any) RegexpOption {
	return func(c *regexpConfig) {
		c.hasDef = true
		c.def = v
	}
}

// Regexp matches the upstream text against a pattern and yields a
// capture group (the first one by default) or a template expansion.
// No match is a ParseError.
func Regexp(pattern string, opts ...RegexpOption) Filter {
	cfg := regexpConfig{group: 1}
	for _, o := range opts {
		o(&cfg)
	}
	stage := fmt.Sprintf("regexp(%s)", pattern)
	re, compileErr := regexp.Compile(pattern)
	return New(stage, func(ctx *Context, in any) (any, error) {
		if compileErr != nil {
			return nil, failf(ParseError, stage, "%w", compileErr)
		}
		s, err := asString(in, stage)
		if err != nil {
			return nil, err
		}
		m := re.FindStringSubmatchIndex(s)
		if m == nil {
			if cfg.hasDef {
				return cfg.def, nil
			}
			return nil, failf(ParseError, stage, "no match in %q", s)
		}
		if cfg.template != "" {
			return string(re.ExpandString(nil, cfg.template, s, m)), nil
		}
		group := cfg.group
		if cfg.name != "" {
			group = re.SubexpIndex(cfg.name)
			if group < 0 {
				return nil, failf(ParseError, stage, "no capture group %q", cfg.name)
			}
		}
		if group*2+1 >= len(m) || m[group*2] < 0 {
			return nil, failf(ParseError, stage, "capture group %d unmatched", group)
		}
		return s[m[group*2]:m[group*2+1]], nil
	})
}

// Format evaluates each sub-filter against the original input and
// renders them through a fmt template.
func Format(tmpl string, fs ...Filter) Filter {
	stage := fmt.Sprintf("format(%s)", tmpl)
	return New(stage, func(ctx *Context, in any) (any, error) {
		values := make([]any, len(fs))
		for i, f := range fs {
			v, err := f.Apply(ctx, in)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return fmt.Sprintf(tmpl, values...), nil
	})
}

// MapValue translates the upstream value through a lookup table.
// Unknown keys fail NotFound.
func MapValue(table map[string]any) Filter {
	return New("map-value", func(ctx *Context, in any) (any, error) {
		s, err := asString(in, "map-value")
		if err != nil {
			return nil, err
		}
		v, ok := table[s]
		if !ok {
			return nil, failf(NotFound, "map-value", "no mapping for %q", s)
		}
		return v, nil
	})
}

// JSONPath evaluates a gjson path against the upstream text, for JSON
// embedded in attributes or scripts.
func JSONPath(path string) Filter {
	stage := fmt.Sprintf("json(%s)", path)
	return New(stage, func(ctx *Context, in any) (any, error) {
		s, err := asString(in, stage)
		if err != nil {
			return nil, err
		}
		value := gjson.Get(s, path)
		if !value.Exists() {
			return nil, failf(NotFound, stage, "path matched nothing")
		}
		return value.String(), nil
	})
}
