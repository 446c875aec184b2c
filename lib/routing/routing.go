package routing

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
)

var (
	// ErrNoMatchingPattern means no registered template fits; a
	// programmer error, always propagated.
	ErrNoMatchingPattern = errors.New("no matching pattern")
	// ErrAmbiguousPattern means several templates map to the handler
	// type and the supplied params do not disambiguate.
	ErrAmbiguousPattern = errors.New("ambiguous pattern")
	// ErrMissingParameter means a named capture in the template was not
	// supplied.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrFrozen is returned when registering on a frozen registry.
	ErrFrozen = errors.New("registry is frozen")
)

var absoluteURL = regexp.MustCompile(`^[a-zA-Z][\w+.-]*://`)

// Location is a resolved address plus the named parameters extracted
// from (or substituted into) its pattern. Immutable.
type Location struct {
	url    string
	params map[string]string
}

func NewLocation(url string, params map[string]string) Location {
	return Location{url: url, params: maps.Clone(params)}
}

func (l Location) URL() string { return l.url }

func (l Location) Param(name string) (string, bool) {
	v, ok := l.params[name]
	return v, ok
}

// Params returns a copy of all named parameters.
func (l Location) Params() map[string]string {
	out := maps.Clone(l.params)
	if out == nil {
		out = map[string]string{}
	}
	return out
}

type template struct {
	pattern string
	re      *regexp.Regexp
	// named capture groups in the pattern
	groups []string
}

// Route binds one or more location templates to a handler type.
// Registration order sets precedence on overlap.
type Route struct {
	handlerType string
	templates   []*template
}

func (r *Route) HandlerType() string { return r.handlerType }

// Patterns returns the raw templates in declaration order.
func (r *Route) Patterns() []string {
	out := make([]string, len(r.templates))
	for i, t := range r.templates {
		out[i] = t.pattern
	}
	return out
}

// Registry is the ordered set of pattern→handler-type bindings of one
// site module. Build it at module load, freeze it, then share it
// read-only across sessions.
type Registry struct {
	baseURL string
	routes  []*Route
	byType  map[string]*Route
	frozen  bool
}

// NewRegistry creates a registry. Base-relative templates are anchored
// under baseURL.
func NewRegistry(baseURL string) *Registry {
	return &Registry{
		baseURL: strings.TrimRight(baseURL, "/"),
		byType:  map[string]*Route{},
	}
}

func (r *Registry) BaseURL() string { return r.baseURL }

// Register binds templates to a handler type, preserving registration
// order. Templates are regexes with named groups; a template without a
// scheme is matched relative to the base URL. One handler type may be
// registered once, with any number of templates.
func (r *Registry) Register(handlerType string, patterns ...string) error {
	if r.frozen {
		return ErrFrozen
	}
	if handlerType == "" {
		return fmt.Errorf("empty handler type")
	}
	if _, exists := r.byType[handlerType]; exists {
		return fmt.Errorf("handler type %q registered twice", handlerType)
	}
	if len(patterns) == 0 {
		return fmt.Errorf("handler type %q needs at least one pattern", handlerType)
	}

	route := &Route{handlerType: handlerType}
	for _, pattern := range patterns {
		full := pattern
		if !absoluteURL.MatchString(pattern) {
			full = regexp.QuoteMeta(r.baseURL) + "/" + strings.TrimPrefix(pattern, "/")
		}
		if !strings.HasPrefix(full, "^") {
			full = "^" + full
		}
		re, err := regexp.Compile(full)
		if err != nil {
			return fmt.Errorf("handler type %q: bad pattern %q: %w", handlerType, pattern, err)
		}
		var groups []string
		for _, name := range re.SubexpNames() {
			if name != "" {
				groups = append(groups, name)
			}
		}
		route.templates = append(route.templates, &template{
			pattern: pattern,
			re:      re,
			groups:  groups,
		})
	}

	r.routes = append(r.routes, route)
	r.byType[handlerType] = route
	return nil
}

// Freeze makes the registry immutable; it is then safe to share across
// concurrent sessions.
func (r *Registry) Freeze() { r.frozen = true }

// Routes returns the bindings in registration order.
func (r *Registry) Routes() []*Route {
	return append([]*Route(nil), r.routes...)
}

// Match resolves a URL to the first structurally matching route in
// registration order, extracting named parameters. The boolean is
// false when nothing matches.
func (r *Registry) Match(url string) (*Route, Location, bool) {
	for _, route := range r.routes {
		for _, t := range route.templates {
			m := t.re.FindStringSubmatch(url)
			if m == nil {
				continue
			}
			params := map[string]string{}
			for i, name := range t.re.SubexpNames() {
				if name != "" && i < len(m) {
					params[name] = m[i]
				}
			}
			return route, NewLocation(url, params), true
		}
	}
	return nil, Location{}, false
}

// Resolve builds the location for a handler type from named
// parameters: the inverse of Match. All of a template's captures must
// be supplied and all supplied params must be used; when several
// templates still fit, the resolution is ambiguous.
func (r *Registry) Resolve(handlerType string, params map[string]string) (Location, error) {
	route, ok := r.byType[handlerType]
	if !ok {
		return Location{}, fmt.Errorf("%w: unknown handler type %q", ErrNoMatchingPattern, handlerType)
	}

	var (
		fits         []*template
		sawMissing   error
		builtByTempl = map[*template]string{}
	)
	for _, t := range route.templates {
		url, err := t.build(r.baseURL, params)
		if err != nil {
			if errors.Is(err, ErrMissingParameter) {
				sawMissing = err
			}
			continue
		}
		fits = append(fits, t)
		builtByTempl[t] = url
	}

	switch len(fits) {
	case 1:
		return NewLocation(builtByTempl[fits[0]], params), nil
	case 0:
		if sawMissing != nil {
			return Location{}, sawMissing
		}
		return Location{}, fmt.Errorf("%w: no template of %q accepts params %v",
			ErrNoMatchingPattern, handlerType, params)
	default:
		return Location{}, fmt.Errorf("%w: %d templates of %q accept params %v",
			ErrAmbiguousPattern, len(fits), handlerType, params)
	}
}

// build substitutes params into the regex template, producing a
// concrete URL. Every named group must be supplied; every supplied
// param must be consumed by a group.
func (t *template) build(baseURL string, params map[string]string) (string, error) {
	used := map[string]bool{}
	out, err := substituteGroups(t.pattern, params, used)
	if err != nil {
		return "", err
	}
	for name := range params {
		if !used[name] {
			return "", fmt.Errorf("parameter %q is not used by pattern %q", name, t.pattern)
		}
	}
	out = strings.TrimSuffix(out, "$")
	out = strings.TrimPrefix(out, "^")
	out = unescapeLiteral(out)
	if !absoluteURL.MatchString(out) {
		out = baseURL + "/" + strings.TrimPrefix(out, "/")
	}
	return out, nil
}

// substituteGroups replaces every (?P<name>...) group in pattern with
// the supplied parameter value, tracking balanced parentheses.
func substituteGroups(pattern string, params map[string]string, used map[string]bool) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(pattern) {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			out.WriteString(pattern[i : i+2])
			i += 2
			continue
		}
		if strings.HasPrefix(pattern[i:], "(?P<") {
			end := strings.IndexByte(pattern[i+4:], '>')
			if end < 0 {
				return "", fmt.Errorf("malformed group in pattern %q", pattern)
			}
			name := pattern[i+4 : i+4+end]
			// skip over the group body, tracking nesting
			j := i
			depth := 0
			for ; j < len(pattern); j++ {
				if pattern[j] == '\\' {
					j++
					continue
				}
				if pattern[j] == '(' {
					depth++
				}
				if pattern[j] == ')' {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			if depth != 0 {
				return "", fmt.Errorf("unbalanced group in pattern %q", pattern)
			}
			value, ok := params[name]
			if !ok {
				return "", fmt.Errorf("%w: %q required by pattern %q", ErrMissingParameter, name, pattern)
			}
			out.WriteString(value)
			used[name] = true
			i = j + 1
			continue
		}
		out.WriteByte(pattern[i])
		i++
	}
	return out.String(), nil
}

var escapedLiteral = regexp.MustCompile(`\\(.)`)

func unescapeLiteral(s string) string {
	return escapedLiteral.ReplaceAllString(s, "$1")
}
