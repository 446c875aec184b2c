// Package demobank is a complete site module built on the navigation
// runtime: a pattern registry, page handlers, a login sequence and a
// completion routine for a small online-banking site. It is the
// reference for writing further site modules.
package demobank

import (
	"context"
	"fmt"
	"time"

	"pagekit/lib/browser"
	"pagekit/lib/fill"
	"pagekit/lib/objects"
)

// AccountFields is the account schema in display order.
var AccountFields = []string{"label", "balance", "currency", "iban", "url"}

type Options struct {
	BaseURL     string
	Credentials browser.Credentials
	// Transport overrides the default resty transport, for tests.
	Transport browser.Transport
	Timeout   time.Duration
}

type Module struct {
	session *browser.Session
	fills   *fill.Coordinator
}

func New(opts Options) (*Module, error) {
	registry, err := NewRegistry(opts.BaseURL)
	if err != nil {
		return nil, err
	}
	handlers, err := NewHandlers()
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport, err = browser.NewTransport(browser.TransportOptions{
			BaseURL:    opts.BaseURL,
			Timeout:    opts.Timeout,
			TracerName: "pagekit.modules.demobank",
		})
		if err != nil {
			return nil, err
		}
	}

	session, err := browser.NewSession(browser.Options{
		Registry:    registry,
		Handlers:    handlers,
		Transport:   transport,
		Credentials: opts.Credentials,
		Login:       login,
	})
	if err != nil {
		return nil, err
	}

	m := &Module{session: session}

	fills := fill.NewCoordinator()
	if err := fills.Register("account", m.fillAccount); err != nil {
		return nil, err
	}
	fills.Freeze()
	m.fills = fills

	return m, nil
}

func (m *Module) Session() *browser.Session { return m.session }

// login posts the credential form and expects the site to redirect to
// the accounts listing. A rejected login re-renders the form with an
// error paragraph instead.
func login(ctx context.Context, s *browser.Session) error {
	page, err := s.Go(ctx, PageLogin, nil)
	if err != nil {
		return err
	}

	creds := s.Credentials()
	page, err = s.Submit(ctx, page.Location().URL(), map[string]string{
		"username": creds.Username,
		"password": creds.Password,
	})
	if err != nil {
		return err
	}

	if lp, ok := page.(*LoginPage); ok && lp.HasError() {
		return browser.ErrInvalidCredentials
	}
	return nil
}

// Accounts lists every account, logging in first when needed. The
// listing is always re-fetched: it doubles as the session liveness
// probe.
func (m *Module) Accounts(ctx context.Context) ([]*objects.Object, error) {
	var out []*objects.Object
	err := m.session.Do(ctx, func(ctx context.Context) error {
		page, err := m.session.Go(ctx, PageAccounts, nil)
		if err != nil {
			return err
		}
		listing, ok := page.(*AccountsPage)
		if !ok {
			return fmt.Errorf("expected accounts page, got %q", page.HandlerType())
		}
		if err := m.session.CheckLogged(listing); err != nil {
			return err
		}
		out, err = listing.Accounts()
		return err
	})
	return out, err
}

// Account fetches one account's detail page.
func (m *Module) Account(ctx context.Context, accountID string) (*objects.Object, error) {
	var out *objects.Object
	err := m.session.Do(ctx, func(ctx context.Context) error {
		page, err := m.session.Go(ctx, PageDetail, map[string]string{"accountID": accountID})
		if err != nil {
			return err
		}
		detail, ok := page.(*DetailPage)
		if !ok {
			return fmt.Errorf("expected detail page, got %q", page.HandlerType())
		}
		if err := m.session.CheckLogged(detail); err != nil {
			return err
		}
		out, err = detail.Account()
		return err
	})
	return out, err
}

// History walks every page of an account's operations, following the
// pagination links until the last one.
func (m *Module) History(ctx context.Context, accountID string) ([]*objects.Object, error) {
	var out []*objects.Object
	err := m.session.Do(ctx, func(ctx context.Context) error {
		params := map[string]string{"accountID": accountID}
		return m.session.ForEachPage(ctx, PageHistory, params, func(page browser.Page) (string, error) {
			history, ok := page.(*HistoryPage)
			if !ok {
				return "", fmt.Errorf("expected history page, got %q", page.HandlerType())
			}
			if err := m.session.CheckLogged(history); err != nil {
				return "", err
			}
			txns, err := history.Transactions()
			if err != nil {
				return "", err
			}
			out = append(out, txns...)
			return history.NextURL(), nil
		})
	})
	return out, err
}

// Fill completes the requested fields of an object in place, fetching
// whatever pages are needed. Requested fields the site cannot provide
// come back marked not-available.
func (m *Module) Fill(ctx context.Context, obj *objects.Object, fields ...string) error {
	return m.session.Do(ctx, func(ctx context.Context) error {
		return m.fills.Fill(ctx, obj, fields...)
	})
}

// fillAccount is the completion routine for accounts: the detail page
// has every field the listing omits.
func (m *Module) fillAccount(ctx context.Context, obj *objects.Object, missing []string) error {
	page, err := m.session.Open(ctx, PageDetail, map[string]string{"accountID": obj.ID()})
	if err != nil {
		return err
	}
	detail, ok := page.(*DetailPage)
	if !ok {
		return fmt.Errorf("expected detail page, got %q", page.HandlerType())
	}
	if err := m.session.CheckLogged(detail); err != nil {
		return err
	}
	full, err := detail.Account()
	if err != nil {
		return err
	}

	for _, name := range missing {
		value, ok := full.Get(name)
		if !ok {
			continue
		}
		if err := obj.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}
