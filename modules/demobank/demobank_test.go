package demobank

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pagekit/lib/browser"
	"pagekit/lib/objects"
	"pagekit/lib/telemetry"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fixtureSite struct {
	mu       sync.Mutex
	sessions map[string]bool
	logins   int
}

func (f *fixtureSite) authed(r *http.Request) bool {
	cookie, err := r.Cookie("session")
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[cookie.Value]
}

func (f *fixtureSite) expireAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = map[string]bool{}
}

const loginForm = `<html><body>
<form action="/login" method="post">
<input name="username"><input name="password">
</form>%s
</body></html>`

const accountList = `<html><body>%s
<ul>
<li class="account" data-id="chk1">
  <span class="label"> Checking&nbsp;Plus </span>
  <span class="balance">1,234.56 USD</span>
  <a class="detail" href="/accounts/chk1">detail</a>
</li>
<li class="account" data-id="sav1">
  <span class="label">Savings</span>
  <span class="balance">-42.00 USD</span>
  <a class="detail" href="/accounts/sav1">detail</a>
</li>
</ul>
</body></html>`

var accountDetails = map[string]string{
	"chk1": `<html><body><a id="logout" href="/logout">log out</a>
<div class="account" data-id="chk1" data-self="/accounts/chk1">
<h1 class="label">Checking Plus</h1>
<span class="balance">1,234.56</span>
<span class="iban">US12500000001234</span>
<span class="currency">USD</span>
</div></body></html>`,
	"sav1": `<html><body><a id="logout" href="/logout">log out</a>
<div class="account" data-id="sav1" data-self="/accounts/sav1">
<h1 class="label">Savings</h1>
<span class="balance">-42.00</span>
<span class="iban">US12500000009999</span>
<span class="currency">USD</span>
</div></body></html>`,
}

var historyPages = map[string]string{
	"1": `<html><body><a id="logout" href="/logout">log out</a>
<table id="history">
<thead><tr><th>Date</th><th>Description</th><th>Amount</th></tr></thead>
<tbody>
<tr data-id="t1"><td>2026-01-05</td><td>COFFEE SHOP</td><td>-3.50</td></tr>
<tr data-id="t2"><td>2026-01-03</td><td>SALARY</td><td>2,000.00</td></tr>
</tbody>
</table>
<a rel="next" href="/accounts/chk1/history?page=2">older</a>
</body></html>`,
	"2": `<html><body><a id="logout" href="/logout">log out</a>
<table id="history">
<thead><tr><th>Date</th><th>Description</th><th>Amount</th></tr></thead>
<tbody>
<tr data-id="t3"><td>2025-12-28</td><td>RENT</td><td>-950.00</td></tr>
</tbody>
</table>
</body></html>`,
}

func newFixtureServer(t *testing.T) (*fixtureSite, *httptest.Server) {
	t.Helper()
	site := &fixtureSite{sessions: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, loginForm, "")
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("username") != "alice" || r.FormValue("password") != "hunter2" {
			fmt.Fprintf(w, loginForm, `<p class="error">invalid credentials</p>`)
			return
		}
		site.mu.Lock()
		site.logins++
		token := fmt.Sprintf("tok%d", site.logins)
		site.sessions[token] = true
		site.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "session", Value: token, Path: "/"})
		http.Redirect(w, r, "/accounts", http.StatusFound)
	})
	mux.HandleFunc("GET /accounts", func(w http.ResponseWriter, r *http.Request) {
		// an expired session still gets the listing, just without
		// the logout link
		logout := ""
		if site.authed(r) {
			logout = `<a id="logout" href="/logout">log out</a>`
		}
		fmt.Fprintf(w, accountList, logout)
	})
	mux.HandleFunc("GET /accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !site.authed(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		detail, ok := accountDetails[r.PathValue("id")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, detail)
	})
	mux.HandleFunc("GET /accounts/{id}/history", func(w http.ResponseWriter, r *http.Request) {
		if !site.authed(r) {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		body, ok := historyPages[page]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return site, server
}

func newTestModule(t *testing.T, server *httptest.Server, creds browser.Credentials) *Module {
	t.Helper()
	transport, err := browser.NewTransport(browser.TransportOptions{
		BaseURL: server.URL,
		Timeout: time.Second * 5,
	})
	require.NoError(t, err)

	module, err := New(Options{
		BaseURL:     server.URL,
		Credentials: creds,
		Transport:   transport,
	})
	require.NoError(t, err)
	return module
}

func goodCreds() browser.Credentials {
	return browser.Credentials{Username: "alice", Password: "hunter2"}
}

func TestAccounts(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:demobank")
	defer cleanup()

	site, server := newFixtureServer(t)
	module := newTestModule(t, server, goodCreds())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	accounts, err := module.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	checking := accounts[0]
	require.Equal(t, "chk1", checking.ID())
	require.Equal(t, "Checking Plus", checking.GetString("label"))
	balance, ok := checking.Get("balance")
	require.True(t, ok)
	require.Equal(t, 1234.56, balance)
	require.Equal(t, server.URL+"/accounts/chk1", checking.GetString("url"))

	// the listing does not carry these
	require.Equal(t, objects.NotLoaded, checking.State("iban"))
	require.Equal(t, objects.NotLoaded, checking.State("currency"))

	balance, ok = accounts[1].Get("balance")
	require.True(t, ok)
	require.Equal(t, -42.0, balance)

	site.mu.Lock()
	require.Equal(t, 1, site.logins)
	site.mu.Unlock()
}

func TestInvalidCredentials(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:demobank")
	defer cleanup()

	_, server := newFixtureServer(t)
	module := newTestModule(t, server, browser.Credentials{Username: "alice", Password: "wrong"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := module.Accounts(ctx)
	require.ErrorIs(t, err, browser.ErrInvalidCredentials)
	require.Equal(t, browser.AuthFailed, module.Session().State())
}

func TestFillAccount(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:demobank")
	defer cleanup()

	_, server := newFixtureServer(t)
	module := newTestModule(t, server, goodCreds())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	accounts, err := module.Accounts(ctx)
	require.NoError(t, err)
	checking := accounts[0]

	err = module.Fill(ctx, checking, "iban", "currency", "balance")
	require.NoError(t, err)

	require.Equal(t, "US12500000001234", checking.GetString("iban"))
	require.Equal(t, "USD", checking.GetString("currency"))
	// already loaded from the listing, untouched by the fill
	balance, ok := checking.Get("balance")
	require.True(t, ok)
	require.Equal(t, 1234.56, balance)
}

func TestHistoryPagination(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:demobank")
	defer cleanup()

	_, server := newFixtureServer(t)
	module := newTestModule(t, server, goodCreds())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	txns, err := module.History(ctx, "chk1")
	require.NoError(t, err)

	type txnSummary struct {
		ID     string
		Date   time.Time
		Label  string
		Amount float64
	}
	summaries := make([]txnSummary, len(txns))
	for i, txn := range txns {
		date, _ := txn.Get("date")
		amount, _ := txn.Get("amount")
		summaries[i] = txnSummary{
			ID:     txn.ID(),
			Date:   date.(time.Time),
			Label:  txn.GetString("label"),
			Amount: amount.(float64),
		}
	}
	diff := cmp.Diff([]txnSummary{
		{"t1", time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), "COFFEE SHOP", -3.50},
		{"t2", time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC), "SALARY", 2000.00},
		{"t3", time.Date(2025, 12, 28, 0, 0, 0, 0, time.UTC), "RENT", -950.00},
	}, summaries)
	if diff != "" {
		t.Fatal(diff)
	}
}

func TestSessionExpiryRelogin(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:demobank")
	defer cleanup()

	site, server := newFixtureServer(t)
	module := newTestModule(t, server, goodCreds())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	_, err := module.Accounts(ctx)
	require.NoError(t, err)

	site.expireAll()

	accounts, err := module.Accounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	site.mu.Lock()
	require.Equal(t, 2, site.logins)
	site.mu.Unlock()
}

func TestAccountDetail(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:demobank")
	defer cleanup()

	_, server := newFixtureServer(t)
	module := newTestModule(t, server, goodCreds())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	account, err := module.Account(ctx, "sav1")
	require.NoError(t, err)
	require.Equal(t, "sav1", account.ID())
	require.Equal(t, "US12500000009999", account.GetString("iban"))
	require.True(t, account.Complete())
}
