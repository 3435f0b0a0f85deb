package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sumomoText = "すもももももももものうち\n"

// setupTestServer builds a server on a temporary data directory. The action
// channel is returned so tests can observe shutdown requests.
func setupTestServer(t *testing.T) (*Server, chan string) {
	t.Helper()

	dir := t.TempDir()
	cm, err := NewConfigManager(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("NewConfigManager failed: %v", err)
	}
	config := cm.Get()
	config.Server.DataDir = dir
	config.Server.DatabasePath = filepath.Join(dir, "lyrian.db")
	// Forms draw many lines; a generous budget keeps them from flaking.
	config.Templates.MaxAttempts = 1000
	if err = cm.Update(config); err != nil {
		t.Fatalf("config update failed: %v", err)
	}

	if err = os.MkdirAll(filepath.Join(dir, "forms"), 0755); err != nil {
		t.Fatal(err)
	}
	haiku := `{{define "haiku.tmpl.txt"}}{{line . 5}}/{{line . 7}}/{{line . 5}}{{end}}`
	if err = os.WriteFile(filepath.Join(dir, "forms", "haiku.tmpl.txt"), []byte(haiku), 0644); err != nil {
		t.Fatal(err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, closeStore, err := openStore(config, logger)
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	t.Cleanup(closeStore)

	actionChan := make(chan string, 1)
	server, err := NewServer(cm, logger, store, actionChan)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(server.Close)
	return server, actionChan
}

func doRequest(t *testing.T, s *Server, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.apiMux.ServeHTTP(rec, req)
	return rec
}

func trainSumomo(t *testing.T, s *Server) {
	t.Helper()
	rec := doRequest(t, s, http.MethodPost, "/api/models?name=sumomo", sumomoText)
	if rec.Code != http.StatusCreated {
		t.Fatalf("training failed with %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	s, _ := setupTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTrainAndListModels(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/models?name=sumomo", sumomoText)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var details ModelDetails
	if err := json.NewDecoder(rec.Body).Decode(&details); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if details.Name != "sumomo" || details.Stats.States != 5 || details.MinMora != 1 {
		t.Errorf("unexpected model details: %+v", details)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/models", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"sumomo"`) {
		t.Errorf("model missing from list: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodPost, "/api/models", sumomoText)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a name, got %d", rec.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	s, _ := setupTestServer(t)
	trainSumomo(t, s)

	rec := doRequest(t, s, http.MethodGet, "/api/models/sumomo/generate?length=3&count=2&metric=mora", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp GenerateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RequestID == "" || resp.RequestID != rec.Header().Get("X-Request-Id") {
		t.Errorf("request id %q does not match header %q", resp.RequestID, rec.Header().Get("X-Request-Id"))
	}
	if len(resp.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(resp.Lines))
	}
	for _, l := range resp.Lines {
		// Every reading in this text is plain kana, one mora per rune.
		if n := len([]rune(l.Reading)); n != 3 {
			t.Errorf("line %q has reading %q, expected 3 morae", l.Text, l.Reading)
		}
	}

	testCases := []struct {
		name   string
		target string
		code   int
	}{
		{"unknown model", "/api/models/missing/generate?length=3", http.StatusNotFound},
		{"zero length", "/api/models/sumomo/generate?length=0", http.StatusBadRequest},
		{"bad metric", "/api/models/sumomo/generate?length=3&metric=beats", http.StatusBadRequest},
		{"unknown seed", "/api/models/sumomo/generate?length=3&seed=%E3%82%8A%E3%82%93%E3%81%94", http.StatusBadRequest},
		{"too many lines", "/api/models/sumomo/generate?length=3&count=1000", http.StatusBadRequest},
		{"length over limit", "/api/models/sumomo/generate?length=1000000000", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodGet, tc.target, "")
			if rec.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}

	rec = doRequest(t, s, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats failed with %d", rec.Code)
	}
	var summary StatsSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	// Requests rejected before generation starts are not counted.
	if summary.TotalRequests != 3 || summary.TotalFailures != 2 {
		t.Errorf("unexpected usage totals: %d requests, %d failures", summary.TotalRequests, summary.TotalFailures)
	}
}

func TestExportImportPruneRemove(t *testing.T) {
	s, _ := setupTestServer(t)
	trainSumomo(t, s)

	rec := doRequest(t, s, http.MethodGet, "/api/models/sumomo/export", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("export failed with %d: %s", rec.Code, rec.Body.String())
	}
	snapshot := rec.Body.String()

	rec = doRequest(t, s, http.MethodPost, "/api/models/import?name=copy", snapshot)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import failed with %d: %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(t, s, http.MethodPost, "/api/models/import?name=broken", `{"version": 99}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad snapshot, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/models/copy/prune", `{"min_freq": 1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("prune failed with %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/models/copy", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove failed with %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodDelete, "/api/models/copy", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 removing twice, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/vocabulary/prune", "")
	if rec.Code != http.StatusOK {
		t.Errorf("vocabulary prune failed with %d", rec.Code)
	}
}

func TestRenderForm(t *testing.T) {
	s, _ := setupTestServer(t)
	trainSumomo(t, s)

	rec := doRequest(t, s, http.MethodGet, "/api/forms/render?name=haiku.tmpl.txt&model=sumomo", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("render failed with %d: %s", rec.Code, rec.Body.String())
	}
	if parts := strings.Split(rec.Body.String(), "/"); len(parts) != 3 {
		t.Errorf("expected three lines, got %q", rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/api/forms/render?name=missing.tmpl.txt&model=sumomo", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing form, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPut, "/api/forms/files/broken.tmpl.txt", `{{line . 5`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected a broken form to be rejected, got %d", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(s.tm.GetTemplateDir(), "broken.tmpl.txt")); !os.IsNotExist(err) {
		t.Error("rejected form was left on disk")
	}

	for _, name := range []string{"config.json", "..%5Cconfig.tmpl.txt"} {
		rec = doRequest(t, s, http.MethodGet, "/api/forms/files/"+name, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected %q to be rejected, got %d", name, rec.Code)
		}
	}
}

func TestAuthentication(t *testing.T) {
	s, _ := setupTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/auth/keys", `{"description": "admin"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("creating the first key failed with %d: %s", rec.Code, rec.Body.String())
	}
	var master CreateKeyResponse
	if err := json.NewDecoder(rec.Body).Decode(&master); err != nil {
		t.Fatal(err)
	}
	if len(master.Scopes) != 1 || master.Scopes[0] != scopeMaster {
		t.Errorf("first key should be a master key, got %v", master.Scopes)
	}

	if rec = doRequest(t, s, http.MethodGet, "/api/models", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a key, got %d", rec.Code)
	}
	if rec = doRequest(t, s, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health check should stay open, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/auth/keys", `{"description": "reader", "scopes": ["models:read"]}`, authHeader, master.RawKey)
	if rec.Code != http.StatusCreated {
		t.Fatalf("creating a scoped key failed with %d: %s", rec.Code, rec.Body.String())
	}
	var reader CreateKeyResponse
	if err := json.NewDecoder(rec.Body).Decode(&reader); err != nil {
		t.Fatal(err)
	}

	if rec = doRequest(t, s, http.MethodGet, "/api/models", "", authHeader, reader.RawKey); rec.Code != http.StatusOK {
		t.Errorf("reader should list models, got %d", rec.Code)
	}
	if rec = doRequest(t, s, http.MethodPost, "/api/models?name=x", sumomoText, authHeader, reader.RawKey); rec.Code != http.StatusForbidden {
		t.Errorf("reader should not train, got %d", rec.Code)
	}
	if rec = doRequest(t, s, http.MethodDelete, "/api/auth/keys/"+reader.ID, "", authHeader, master.RawKey); rec.Code != http.StatusNoContent {
		t.Errorf("deleting the reader key failed with %d", rec.Code)
	}
	if rec = doRequest(t, s, http.MethodGet, "/api/models", "", authHeader, reader.RawKey); rec.Code != http.StatusUnauthorized {
		t.Errorf("deleted key should be rejected, got %d", rec.Code)
	}
}

func TestShutdownAction(t *testing.T) {
	s, actions := setupTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/server/shutdown", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if action := <-actions; action != actionShutdown {
		t.Errorf("expected %q, got %q", actionShutdown, action)
	}
}
