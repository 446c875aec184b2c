package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRestyTransport(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>ok</body></html>"))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	transport, err := NewTransport(TransportOptions{
		BaseURL: server.URL,
		Timeout: time.Second * 5,
	})
	require.NoError(t, err)
	ctx := context.Background()

	resp, err := transport.Fetch(ctx, Request{URL: server.URL + "/ok"})
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(resp.Body), "ok")
	require.Contains(t, resp.ContentType, "text/html")

	resp, err = transport.Fetch(ctx, Request{URL: server.URL + "/redirect"})
	require.NoError(t, err)
	require.Equal(t, server.URL+"/ok", resp.FinalURL)

	_, err = transport.Fetch(ctx, Request{URL: server.URL + "/missing"})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, 404, httpErr.Status)
}
