package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pagekit/lib/document"
	"pagekit/lib/routing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("pagekit.lib.browser")
var meter = otel.Meter("pagekit.lib.browser")

var fetchCounter, _ = meter.Int64Counter("pagekit.navigation.fetches",
	metric.WithDescription("page fetches issued by sessions"))

// AuthState is the authentication state of one session.
type AuthState int

const (
	Anonymous AuthState = iota
	Authenticating
	Authenticated
	AuthFailed
)

func (s AuthState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case AuthFailed:
		return "auth-failed"
	default:
		return "anonymous"
	}
}

var (
	// ErrInvalidCredentials is returned by login handlers on a
	// credential rejection. It is never retried.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired signals that a login-gated page unexpectedly
	// reported not-logged mid-operation.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotLogged is the login gate failing to reach a logged page.
	ErrNotLogged = errors.New("login did not reach a logged page")
)

// AuthError wraps a failed login.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Err.Error())
}

func (e *AuthError) Unwrap() error { return e.Err }

// Credentials of one configured backend.
type Credentials struct {
	Username string
	Password string
}

// LoginFunc performs the site's login sequence: one or more
// navigations that must end on a page declaring itself logged. It
// returns ErrInvalidCredentials (possibly wrapped) when the site
// rejects the credentials.
type LoginFunc func(ctx context.Context, s *Session) error

// Options assembles a session.
type Options struct {
	// Registry is the site's frozen pattern table; it may be shared
	// across sessions.
	Registry *routing.Registry
	Handlers *HandlerSet
	Transport Transport
	Credentials Credentials
	// Login is required as soon as any handler carries TraitLogged.
	Login LoginFunc
}

// Session owns one browsing context: the current page and the
// authentication state. A session is sequential; do not call its
// operations concurrently. Independent sessions (one per backend) may
// run in parallel and share the registry.
type Session struct {
	registry  *routing.Registry
	handlers  *HandlerSet
	transport Transport
	creds     Credentials
	login     LoginFunc

	// serializes gated operations
	opMu sync.Mutex

	state AuthState
	page  Page
}

func NewSession(opts Options) (*Session, error) {
	if opts.Registry == nil || opts.Handlers == nil || opts.Transport == nil {
		return nil, fmt.Errorf("session requires registry, handlers and transport")
	}
	return &Session{
		registry:  opts.Registry,
		handlers:  opts.Handlers,
		transport: opts.Transport,
		creds:     opts.Credentials,
		login:     opts.Login,
	}, nil
}

// CurrentPage is the page of the last successful navigation, nil
// before the first one.
func (s *Session) CurrentPage() Page { return s.page }

func (s *Session) State() AuthState { return s.state }

func (s *Session) Credentials() Credentials { return s.creds }

func (s *Session) Registry() *routing.Registry { return s.registry }

// Go resolves the handler type's pattern against params, always
// fetches, and replaces the current page. On any failure the prior
// current page is kept and the error is returned as-is.
func (s *Session) Go(ctx context.Context, handlerType string, params map[string]string) (Page, error) {
	loc, err := s.registry.Resolve(handlerType, params)
	if err != nil {
		return nil, err
	}
	return s.GoURL(ctx, loc.URL())
}

// GoURL navigates to a raw URL, dispatching the response through the
// registry.
func (s *Session) GoURL(ctx context.Context, url string) (Page, error) {
	page, err := s.fetchPage(ctx, Request{URL: url})
	if err != nil {
		return nil, err
	}
	s.page = page
	return page, nil
}

// Submit navigates with a form post, dispatching like GoURL.
func (s *Session) Submit(ctx context.Context, url string, form map[string]string) (Page, error) {
	page, err := s.fetchPage(ctx, Request{Method: "POST", URL: url, Form: form})
	if err != nil {
		return nil, err
	}
	s.page = page
	return page, nil
}

// Open fetches and builds a page without touching the current page,
// for side lookups during an extraction.
func (s *Session) Open(ctx context.Context, handlerType string, params map[string]string) (Page, error) {
	loc, err := s.registry.Resolve(handlerType, params)
	if err != nil {
		return nil, err
	}
	return s.fetchPage(ctx, Request{URL: loc.URL()})
}

// StayOrGo fetches only when the current page's handler type or any
// named parameter differs from the target; otherwise the current page
// is returned with no fetch at all.
func (s *Session) StayOrGo(ctx context.Context, handlerType string, params map[string]string) (Page, error) {
	if s.page != nil && s.page.HandlerType() == handlerType && paramsMatch(s.page.Params(), params) {
		return s.page, nil
	}
	return s.Go(ctx, handlerType, params)
}

func paramsMatch(current, target map[string]string) bool {
	for name, want := range target {
		if current[name] != want {
			return false
		}
	}
	for name := range current {
		if _, ok := target[name]; !ok {
			return false
		}
	}
	return true
}

func (s *Session) fetchPage(ctx context.Context, req Request) (Page, error) {
	ctx, span := tracer.Start(ctx, "fetchPage")
	defer span.End()
	fetchCounter.Add(ctx, 1)

	resp, err := s.transport.Fetch(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	route, loc, ok := s.registry.Match(resp.FinalURL)
	if !ok {
		span.SetStatus(codes.Error, "no pattern matched response url")
		return nil, fmt.Errorf("%w: %s", routing.ErrNoMatchingPattern, resp.FinalURL)
	}

	pctx := PageContext{Location: loc, Response: resp}
	traits, _ := s.handlers.Traits(route.HandlerType())
	if !traits.Has(TraitRaw) {
		doc, err := document.Parse(resp.Body, resp.ContentType)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "document parse failed")
			return nil, err
		}
		pctx.Doc = doc
	}

	page, err := s.handlers.build(route.HandlerType(), pctx)
	if err != nil {
		return nil, err
	}
	if !page.IsHere() {
		span.SetStatus(codes.Error, "page declined its own document")
		return nil, fmt.Errorf("url %s matched handler %q but the page content disagrees",
			resp.FinalURL, route.HandlerType())
	}
	return page, nil
}

// RequireLogin is the login gate: a no-op while authenticated,
// otherwise it runs the login sequence. Success requires ending on a
// page declaring itself logged.
func (s *Session) RequireLogin(ctx context.Context) error {
	if s.state == Authenticated {
		return nil
	}
	return s.doLogin(ctx)
}

func (s *Session) doLogin(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "doLogin")
	defer span.End()

	if s.login == nil {
		return &AuthError{Err: fmt.Errorf("no login handler configured")}
	}

	s.state = Authenticating
	slog.Debug("login sequence started")
	err := s.login(ctx, s)
	if err != nil {
		s.state = AuthFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return &AuthError{Err: err}
	}

	if s.page == nil || !s.page.Logged() {
		s.state = AuthFailed
		span.SetStatus(codes.Error, ErrNotLogged.Error())
		return &AuthError{Err: ErrNotLogged}
	}

	s.state = Authenticated
	slog.Debug("login sequence succeeded")
	return nil
}

// Do runs a login-gated operation. The gate logs in first when
// needed. If the operation reports a mid-call session expiry, the
// gate re-runs login exactly once and retries the operation exactly
// once; an expiry on the retry is returned as-is. Invalid credentials
// are never retried.
func (s *Session) Do(ctx context.Context, op func(ctx context.Context) error) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.RequireLogin(ctx); err != nil {
		return err
	}

	err := op(ctx)
	if !errors.Is(err, ErrSessionExpired) {
		return err
	}

	slog.Info("session expired mid-operation, re-running login once")
	s.state = Anonymous
	if err := s.doLogin(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// CheckLogged maps a fetched page to ErrSessionExpired when its
// handler promises an authenticated session but the content disagrees.
// Gated operations call it after navigating.
func (s *Session) CheckLogged(page Page) error {
	if page == nil {
		return nil
	}
	traits, ok := s.handlers.Traits(page.HandlerType())
	if !ok || !traits.Has(TraitLogged) {
		return nil
	}
	if !page.Logged() {
		return fmt.Errorf("%w: page %q reports not logged", ErrSessionExpired, page.HandlerType())
	}
	return nil
}

// ForEachPage drives pagination: it navigates to the start location,
// calls visit, and follows the returned next URL until visit returns
// an empty one.
func (s *Session) ForEachPage(ctx context.Context, handlerType string, params map[string]string, visit func(Page) (next string, err error)) error {
	page, err := s.Go(ctx, handlerType, params)
	if err != nil {
		return err
	}
	for {
		next, err := visit(page)
		if err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		page, err = s.GoURL(ctx, next)
		if err != nil {
			return err
		}
	}
}
