package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/Weft/pkg/store"
)

func setupTestServer(tb testing.TB) (*Server, *httptest.Server) {
	tb.Helper()

	db, err := initDB(filepath.Join(tb.TempDir(), "test.db"))
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	if err = store.SetupSchema(db); err != nil {
		tb.Fatalf("failed to set up schema: %v", err)
	}

	config := &Config{
		Server:   DefaultServerConfig(),
		Renderer: DefaultRendererConfig(),
	}
	server, err := NewServer(config, slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})), db, make(chan string, 1))
	if err != nil {
		tb.Fatalf("failed to create server: %v", err)
	}
	tb.Cleanup(server.Close)

	ts := httptest.NewServer(server.apiMux)
	tb.Cleanup(ts.Close)
	return server, ts
}

func postJSON(tb testing.TB, url string, payload any) *http.Response {
	tb.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		tb.Fatalf("failed to marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		tb.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func decodeJSON[T any](tb testing.TB, resp *http.Response) T {
	tb.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		tb.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	body := decodeJSON[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Errorf("got body %v", body)
	}
}

func TestRenderEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	t.Run("renders template text", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/render", map[string]any{
			"template": "Hello {{name}}",
			"context":  map[string]any{"name": "World"},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", resp.StatusCode)
		}
		body := decodeJSON[map[string]string](t, resp)
		if body["output"] != "Hello World" {
			t.Errorf("got output %q", body["output"])
		}
	})

	t.Run("compile error is a bad request", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/render", map[string]any{
			"template": "{% if x %}unclosed",
		})
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("got status %d", resp.StatusCode)
		}
	})

	t.Run("strict override fails on missing context", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/render", map[string]any{
			"template":   "Hello {{name}}",
			"error_mode": "strict",
		})
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Fatalf("got status %d", resp.StatusCode)
		}
	})

	t.Run("lenient default echoes token", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/render", map[string]any{
			"template": "Hello {{name}}",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", resp.StatusCode)
		}
		body := decodeJSON[map[string]string](t, resp)
		if body["output"] != "Hello {{name}}" {
			t.Errorf("got output %q", body["output"])
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/render")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("got status %d", resp.StatusCode)
		}
	})
}

func TestValidateEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	t.Run("valid template reports refs", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/validate", map[string]any{
			"template": "{% for i in items %}{{i}}{{sep}}{% endfor %}",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", resp.StatusCode)
		}
		body := decodeJSON[map[string]any](t, resp)
		if body["valid"] != true {
			t.Fatalf("got body %v", body)
		}
		refs, _ := body["context_refs"].([]any)
		if len(refs) != 2 || refs[0] != "items" || refs[1] != "sep" {
			t.Errorf("got refs %v", refs)
		}
	})

	t.Run("invalid template reports the error", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/validate", map[string]any{
			"template": "{% break %}",
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", resp.StatusCode)
		}
		body := decodeJSON[map[string]any](t, resp)
		if body["valid"] != false {
			t.Fatalf("got body %v", body)
		}
		msg, _ := body["error"].(string)
		if !strings.Contains(msg, "outside a for block") {
			t.Errorf("got error %q", msg)
		}
	})
}

func putTemplate(tb testing.TB, ts *httptest.Server, name, source string) *http.Response {
	tb.Helper()
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/templates/"+name, strings.NewReader(source))
	if err != nil {
		tb.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		tb.Fatal(err)
	}
	return resp
}

func TestTemplateEndpoints(t *testing.T) {
	_, ts := setupTestServer(t)

	t.Run("put and get", func(t *testing.T) {
		resp := putTemplate(t, ts, "greeting", "Hello {{name}}")
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("got status %d", resp.StatusCode)
		}

		getResp, err := http.Get(ts.URL + "/api/templates/greeting")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = getResp.Body.Close() }()
		if getResp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", getResp.StatusCode)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(getResp.Body); err != nil {
			t.Fatal(err)
		}
		if buf.String() != "Hello {{name}}" {
			t.Errorf("got body %q", buf.String())
		}
	})

	t.Run("put rejects templates that cannot compile", func(t *testing.T) {
		resp := putTemplate(t, ts, "broken", "{% endif %}")
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("got status %d", resp.StatusCode)
		}
	})

	t.Run("list", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/templates")
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", resp.StatusCode)
		}
		infos := decodeJSON[[]map[string]any](t, resp)
		if len(infos) != 1 {
			t.Fatalf("got %d templates, want 1", len(infos))
		}
		if infos[0]["Name"] != "greeting" {
			t.Errorf("got %v", infos[0])
		}
	})

	t.Run("render stored template", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/render/greeting", map[string]any{
			"context": map[string]any{"name": "Store"},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", resp.StatusCode)
		}
		body := decodeJSON[map[string]string](t, resp)
		if body["output"] != "Hello Store" {
			t.Errorf("got output %q", body["output"])
		}
	})

	t.Run("render missing stored template", func(t *testing.T) {
		resp := postJSON(t, ts.URL+"/api/render/nothing", map[string]any{
			"context": map[string]any{},
		})
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("got status %d", resp.StatusCode)
		}
	})

	t.Run("export and import", func(t *testing.T) {
		exportResp, err := http.Get(ts.URL + "/api/templates/export")
		if err != nil {
			t.Fatal(err)
		}
		var doc bytes.Buffer
		if _, err := doc.ReadFrom(exportResp.Body); err != nil {
			t.Fatal(err)
		}
		_ = exportResp.Body.Close()

		// Import into a fresh server and check the template came across.
		_, ts2 := setupTestServer(t)
		importResp, err := http.Post(ts2.URL+"/api/templates/import", "application/json", &doc)
		if err != nil {
			t.Fatal(err)
		}
		if importResp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", importResp.StatusCode)
		}
		imported := decodeJSON[map[string]int](t, importResp)
		if imported["imported"] != 1 {
			t.Errorf("got %v", imported)
		}

		getResp, err := http.Get(ts2.URL + "/api/templates/greeting")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = getResp.Body.Close() }()
		if getResp.StatusCode != http.StatusOK {
			t.Fatalf("got status %d", getResp.StatusCode)
		}
	})

	t.Run("delete", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/templates/greeting", nil)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("got status %d", resp.StatusCode)
		}

		getResp, err := http.Get(ts.URL + "/api/templates/greeting")
		if err != nil {
			t.Fatal(err)
		}
		defer func() { _ = getResp.Body.Close() }()
		if getResp.StatusCode != http.StatusNotFound {
			t.Fatalf("got status %d after delete", getResp.StatusCode)
		}
	})
}

func TestServerConfigEndpoint(t *testing.T) {
	server, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/server/config")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	got := decodeJSON[Config](t, resp)
	if got.Server.ApiAddr != server.config.Server.ApiAddr {
		t.Errorf("got api addr %q, want %q", got.Server.ApiAddr, server.config.Server.ApiAddr)
	}
}

func TestVersionEndpoint(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/server/version")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}
	info := decodeJSON[VersionInfo](t, resp)
	if info.Version != Version {
		t.Errorf("got version %q, want %q", info.Version, Version)
	}
}
