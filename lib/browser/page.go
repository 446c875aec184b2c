package browser

import (
	"fmt"

	"pagekit/lib/document"
	"pagekit/lib/routing"
)

// Traits is the capability flag set of a handler type. It replaces
// page class hierarchies: whether a page implies an authenticated
// session is a flag looked up in the handler table, not an inheritance
// question.
type Traits uint8

const (
	// TraitLogged marks pages only reachable while authenticated;
	// landing on one proves the session is logged in, and such a page
	// reporting not-logged means the session expired.
	TraitLogged Traits = 1 << iota
	// TraitRaw marks pages whose body is not parsed into a document
	// (file downloads and the like).
	TraitRaw
)

func (t Traits) Has(flag Traits) bool {
	return t&flag != 0
}

// PageContext is everything a page constructor gets: the parsed
// document, the matched location, and the raw response.
type PageContext struct {
	Doc      document.Node
	Location routing.Location
	Response *Response
}

// Page is one successfully fetched and dispatched page. Instances
// live until the next navigation replaces them; each owns its parsed
// document.
type Page interface {
	HandlerType() string
	Doc() document.Node
	Location() routing.Location
	// Params are the named parameters extracted by the route match.
	Params() map[string]string
	// Logged reports whether the page's content shows an authenticated
	// session. Pages detect their own login markers; the default is
	// the handler's TraitLogged flag.
	Logged() bool
	// IsHere double-checks that the fetched document really is this
	// kind of page, for sites where one URL serves several.
	IsHere() bool
}

// BasePage implements Page with sane defaults; site page types embed
// it and override what they need.
type BasePage struct {
	handlerType string
	traits      Traits
	doc         document.Node
	location    routing.Location
	response    *Response
}

func (p *BasePage) HandlerType() string         { return p.handlerType }
func (p *BasePage) Doc() document.Node          { return p.doc }
func (p *BasePage) Location() routing.Location  { return p.location }
func (p *BasePage) Params() map[string]string   { return p.location.Params() }
func (p *BasePage) Logged() bool                { return p.traits.Has(TraitLogged) }
func (p *BasePage) IsHere() bool                { return true }
func (p *BasePage) Response() *Response         { return p.response }
func (p *BasePage) Traits() Traits              { return p.traits }

// Constructor builds a concrete page from its context. The BasePage
// argument is ready to embed.
type Constructor func(base BasePage) (Page, error)

type handlerDef struct {
	traits Traits
	ctor   Constructor
}

// HandlerSet is the closed handler-type table of one site module:
// type tag → traits + constructor, resolved once at module load.
type HandlerSet struct {
	defs   map[string]handlerDef
	frozen bool
}

func NewHandlerSet() *HandlerSet {
	return &HandlerSet{defs: map[string]handlerDef{}}
}

// Register binds a handler type tag to its traits and constructor. A
// nil constructor yields a plain BasePage.
func (h *HandlerSet) Register(handlerType string, traits Traits, ctor Constructor) error {
	if h.frozen {
		return fmt.Errorf("handler set is frozen")
	}
	if handlerType == "" {
		return fmt.Errorf("empty handler type")
	}
	if _, dup := h.defs[handlerType]; dup {
		return fmt.Errorf("handler type %q registered twice", handlerType)
	}
	h.defs[handlerType] = handlerDef{traits: traits, ctor: ctor}
	return nil
}

func (h *HandlerSet) Freeze() { h.frozen = true }

func (h *HandlerSet) Traits(handlerType string) (Traits, bool) {
	def, ok := h.defs[handlerType]
	return def.traits, ok
}

func (h *HandlerSet) build(handlerType string, ctx PageContext) (Page, error) {
	def, ok := h.defs[handlerType]
	if !ok {
		return nil, fmt.Errorf("no handler registered for type %q", handlerType)
	}
	base := BasePage{
		handlerType: handlerType,
		traits:      def.traits,
		doc:         ctx.Doc,
		location:    ctx.Location,
		response:    ctx.Response,
	}
	if def.ctor == nil {
		return &base, nil
	}
	return def.ctor(base)
}
