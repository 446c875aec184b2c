package demobank

import (
	"errors"
	"net/url"

	"pagekit/lib/browser"
	"pagekit/lib/elements"
	"pagekit/lib/filters"
	"pagekit/lib/objects"
	"pagekit/lib/routing"
)

const (
	PageLogin    = "login"
	PageAccounts = "accounts"
	PageDetail   = "account_detail"
	PageHistory  = "history"
)

func NewRegistry(baseURL string) (*routing.Registry, error) {
	reg := routing.NewRegistry(baseURL)
	bindings := []struct {
		handlerType string
		patterns    []string
	}{
		{PageLogin, []string{`/login$`}},
		{PageAccounts, []string{`/accounts$`}},
		{PageDetail, []string{`/accounts/(?P<accountID>\w+)$`}},
		{PageHistory, []string{
			`/accounts/(?P<accountID>\w+)/history$`,
			`/accounts/(?P<accountID>\w+)/history\?page=(?P<page>\d+)$`,
		}},
	}
	for _, b := range bindings {
		if err := reg.Register(b.handlerType, b.patterns...); err != nil {
			return nil, err
		}
	}
	reg.Freeze()
	return reg, nil
}

func NewHandlers() (*browser.HandlerSet, error) {
	handlers := browser.NewHandlerSet()
	defs := []struct {
		handlerType string
		traits      browser.Traits
		ctor        browser.Constructor
	}{
		{PageLogin, 0, func(base browser.BasePage) (browser.Page, error) {
			return &LoginPage{BasePage: base}, nil
		}},
		{PageAccounts, browser.TraitLogged, func(base browser.BasePage) (browser.Page, error) {
			return &AccountsPage{BasePage: base}, nil
		}},
		{PageDetail, browser.TraitLogged, func(base browser.BasePage) (browser.Page, error) {
			return &DetailPage{BasePage: base}, nil
		}},
		{PageHistory, browser.TraitLogged, func(base browser.BasePage) (browser.Page, error) {
			return &HistoryPage{BasePage: base}, nil
		}},
	}
	for _, d := range defs {
		if err := handlers.Register(d.handlerType, d.traits, d.ctor); err != nil {
			return nil, err
		}
	}
	handlers.Freeze()
	return handlers, nil
}

// absolutize resolves an href against the page it came from.
func absolutize(pageURL, href string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

type LoginPage struct {
	browser.BasePage
}

func (p *LoginPage) HasError() bool {
	nodes, err := p.Doc().Select(`p.error`)
	return err == nil && len(nodes) > 0
}

type AccountsPage struct {
	browser.BasePage
}

// The accounts listing is only served to authenticated sessions, but
// an expired session gets a stale-looking copy without the logout
// link. Content decides, not the trait default.
func (p *AccountsPage) Logged() bool {
	nodes, err := p.Doc().Select(`a#logout`)
	return err == nil && len(nodes) > 0
}

// accountSpec declares the full account schema. The listing only
// carries label, balance and the detail link; iban and currency stay
// not-loaded until a completion pass visits the detail page.
var accountSpec = elements.Spec{
	Type: "account",
	ID:   filters.SelfAttr("data-id"),
	Fields: map[string]filters.Filter{
		"label":    filters.Then(filters.Text(`span.label`), filters.CleanText()),
		"balance":  filters.Then(filters.Text(`span.balance`), filters.CleanDecimal(filters.DecimalDot, filters.DecimalComma)),
		"url":      filters.Link(`a.detail`),
		"iban":     filters.Then(filters.Text(`span.iban`), filters.CleanText()),
		"currency": filters.Then(filters.Text(`span.currency`), filters.CleanText()),
	},
	Mandatory: []string{"label", "balance"},
}

func (p *AccountsPage) Accounts() ([]*objects.Object, error) {
	objs, errs := elements.Collect(elements.BuildMany(
		p.Doc(), `li.account`, accountSpec, p.Params(),
	))
	for _, obj := range objs {
		if href := obj.GetString("url"); href != "" {
			if err := obj.Set("url", absolutize(p.Location().URL(), href)); err != nil {
				return nil, err
			}
		}
	}
	return objs, errors.Join(errs...)
}

type DetailPage struct {
	browser.BasePage
}

var detailSpec = elements.Spec{
	Type: "account",
	ID:   filters.SelfAttr("data-id"),
	Fields: map[string]filters.Filter{
		"label":    filters.Then(filters.Text(`h1.label`), filters.CleanText()),
		"balance":  filters.Then(filters.Text(`span.balance`), filters.CleanDecimal(filters.DecimalDot, filters.DecimalComma)),
		"iban":     filters.Then(filters.Text(`span.iban`), filters.CleanText()),
		"currency": filters.Then(filters.Text(`span.currency`), filters.CleanText()),
		"url":      filters.SelfAttr("data-self"),
	},
	Mandatory: []string{"iban"},
}

func (p *DetailPage) Account() (*objects.Object, error) {
	return elements.BuildOne(p.Doc(), `div.account`, detailSpec, p.Params())
}

type HistoryPage struct {
	browser.BasePage
}

const dateLayout = "2006-01-02"

// Transactions reads the operations table, locating columns by header
// text so the site can reorder them without breaking extraction.
func (p *HistoryPage) Transactions() ([]*objects.Object, error) {
	table, err := elements.NewTable(p.Doc(), `table#history thead th`, map[string][]string{
		"date":   {"date"},
		"label":  {"label", "description"},
		"amount": {"amount"},
	})
	if err != nil {
		return nil, err
	}

	spec := elements.Spec{
		Type: "transaction",
		ID:   filters.SelfAttr("data-id"),
		Fields: map[string]filters.Filter{
			"date":   filters.Then(table.Cell("date"), filters.Date(dateLayout)),
			"label":  filters.Then(table.Cell("label"), filters.CleanText()),
			"amount": filters.Then(table.Cell("amount"), filters.CleanDecimal(filters.DecimalDot, filters.DecimalComma)),
		},
		Mandatory: []string{"date", "amount"},
	}
	objs, errs := elements.Collect(elements.BuildMany(
		p.Doc(), `table#history tbody tr`, spec, p.Params(),
	))
	return objs, errors.Join(errs...)
}

// NextURL returns the absolute URL of the next history page, or ""
// on the last one.
func (p *HistoryPage) NextURL() string {
	node, err := p.Doc().First(`a[rel="next"]`)
	if err != nil || node == nil {
		return ""
	}
	href, ok := node.Attr("href")
	if !ok {
		return ""
	}
	return absolutize(p.Location().URL(), href)
}
