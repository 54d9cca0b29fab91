package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ncstreamer/config"
	"ncstreamer/internal/transport/ws"
)

type stubRemote struct {
	state ws.State
	hits  int
}

func (r *stubRemote) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r.hits++
	w.WriteHeader(http.StatusNoContent)
}

func (r *stubRemote) State() ws.State { return r.state }

func newRouter(remote *stubRemote, auth bool, metrics bool) http.Handler {
	cfg := &config.Config{
		Auth:    config.AuthConfig{Enable: auth, Token: "secret"},
		Metrics: config.MetricsConfig{Enable: metrics},
	}
	return NewRouter(NewHandler(remote, cfg, nil))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(newRouter(&stubRemote{}, false, false), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		state ws.State
		code  int
	}{
		{ws.StateUnconfigured, http.StatusServiceUnavailable},
		{ws.StateRunning, http.StatusOK},
		{ws.StateShuttingDown, http.StatusServiceUnavailable},
		{ws.StateStopped, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			rec := serve(newRouter(&stubRemote{state: tt.state}, false, false),
				httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["state"] != tt.state.String() {
				t.Fatalf("state = %q", body["state"])
			}
		})
	}
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		code   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong header", "nope", "", http.StatusUnauthorized},
		{"header", "secret", "", http.StatusNoContent},
		{"bearer header", "Bearer secret", "", http.StatusNoContent},
		{"query", "", "secret", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &stubRemote{state: ws.StateRunning}
			target := "/ws"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(newRouter(remote, true, false), req)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if want := tt.code != http.StatusUnauthorized; (remote.hits == 1) != want {
				t.Fatalf("remote hits = %d", remote.hits)
			}
		})
	}
}

func TestRootPathReachesRemote(t *testing.T) {
	for _, path := range []string{"/", "/ws"} {
		t.Run(path, func(t *testing.T) {
			remote := &stubRemote{state: ws.StateRunning}
			rec := serve(newRouter(remote, false, false), httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusNoContent || remote.hits != 1 {
				t.Fatalf("code = %d hits = %d", rec.Code, remote.hits)
			}
		})
	}
}

func TestRootPathRequiresToken(t *testing.T) {
	remote := &stubRemote{state: ws.StateRunning}
	router := newRouter(remote, true, false)

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized || remote.hits != 0 {
		t.Fatalf("without token: code = %d hits = %d", rec.Code, remote.hits)
	}
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/?token=secret", nil))
	if rec.Code != http.StatusNoContent || remote.hits != 1 {
		t.Fatalf("with token: code = %d hits = %d", rec.Code, remote.hits)
	}
}

func TestAuthDisabled(t *testing.T) {
	remote := &stubRemote{state: ws.StateRunning}
	rec := serve(newRouter(remote, false, false), httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusNoContent || remote.hits != 1 {
		t.Fatalf("code = %d hits = %d", rec.Code, remote.hits)
	}
}

func TestMetrics(t *testing.T) {
	rec := serve(newRouter(&stubRemote{}, false, true), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("metrics body missing runtime metrics")
	}

	rec = serve(newRouter(&stubRemote{}, false, false), httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("disabled metrics code = %d", rec.Code)
	}
}
