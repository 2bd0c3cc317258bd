package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method, path, auth string
	body               map[string]string
}

func newAPI(t *testing.T, status int, resp string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
		calls = append(calls, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func runWith(srv *httptest.Server, token string, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr, func() *Client { return NewClient(srv.URL, token) })
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	code := run([]string{"version"}, &stdout, &bytes.Buffer{}, nil)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "listing-watcher")
}

func TestRun_StartWithDestinationAndToken(t *testing.T) {
	srv, calls := newAPI(t, http.StatusOK, `{"running":true}`)

	code, out, _ := runWith(srv, "tok", "start", "chat-9")
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"running": true`)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, http.MethodPost, c.method)
	assert.Equal(t, "/api/watch/start", c.path)
	assert.Equal(t, "Bearer tok", c.auth)
	assert.Equal(t, "chat-9", c.body["destination"])
}

func TestRun_AcceptFailurePrintsOutcome(t *testing.T) {
	srv, calls := newAPI(t, http.StatusGone, `{"outcome":"expired","handle":"h1"}`)

	code, out, errOut := runWith(srv, "", "accept", "h1")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"outcome": "expired"`)
	assert.Contains(t, errOut, "410")
	assert.Equal(t, "/api/items/h1/accept", (*calls)[0].path)
	assert.Empty(t, (*calls)[0].auth)
}

func TestRun_SkipStopStatus(t *testing.T) {
	srv, calls := newAPI(t, http.StatusOK, `{"ok":true}`)

	for _, args := range [][]string{{"skip", "h2"}, {"stop"}, {"status"}} {
		code, _, _ := runWith(srv, "", args...)
		assert.Equal(t, 0, code, args)
	}
	require.Len(t, *calls, 3)
	assert.Equal(t, "/api/items/h2/skip", (*calls)[0].path)
	assert.Equal(t, "/api/watch/stop", (*calls)[1].path)
	assert.Equal(t, http.MethodGet, (*calls)[2].method)
	assert.Equal(t, "/api/status", (*calls)[2].path)
}

func TestRun_Login(t *testing.T) {
	srv, calls := newAPI(t, http.StatusOK, `{"code":200,"token":"jwt-abc"}`)

	code, out, _ := runWith(srv, "", "login", "admin", "pw")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "WATCHER_API_TOKEN=jwt-abc")
	assert.Equal(t, "admin", (*calls)[0].body["username"])
}

func TestRun_UsageErrors(t *testing.T) {
	srv, calls := newAPI(t, http.StatusOK, `{}`)
	for _, args := range [][]string{{"accept"}, {"skip"}, {"login", "a"}, {"bogus"}} {
		code, _, _ := runWith(srv, "", args...)
		assert.Equal(t, 1, code, args)
	}
	assert.Empty(t, *calls)
}
