package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"ragchatgo/internal/ingest"
	"ragchatgo/internal/models"
	"ragchatgo/internal/service/rag"
	"ragchatgo/internal/session"
)

type fakeChat struct {
	turnErr    error
	historyErr error
	ready      bool
	lastNS     string
	lastSID    string
	history    []models.Message
}

func (f *fakeChat) AddTurn(_ context.Context, ns, sessionID, query string) (*models.TurnResult, error) {
	f.lastNS = ns
	f.lastSID = sessionID
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	return &models.TurnResult{Answer: "echo: " + query, SessionID: sessionID, Namespace: ns}, nil
}

func (f *fakeChat) GetHistory(_ context.Context, ns, sessionID string) ([]models.Message, error) {
	f.lastNS = ns
	f.lastSID = sessionID
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeChat) ClearHistory(_ context.Context, ns, sessionID string) error {
	f.lastNS = ns
	f.lastSID = sessionID
	return f.historyErr
}

func (f *fakeChat) ListNamespaces(context.Context) ([]string, error) {
	return []string{"__default__", "docs"}, nil
}

func (f *fakeChat) Ready(context.Context) bool { return f.ready }

type fakeIngestor struct {
	healthy bool
	sources []ingest.Summary
	addErr  error
}

func (f *fakeIngestor) AddFiles(_ context.Context, ns string, paths []string) ([]ingest.Summary, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	out := make([]ingest.Summary, 0, len(paths))
	for _, p := range paths {
		out = append(out, ingest.Summary{Source: p, Chunks: 1})
	}
	return out, nil
}

func (f *fakeIngestor) DeleteSource(_ context.Context, _, source string) (int, error) {
	return 3, nil
}

func (f *fakeIngestor) ListSources(_ context.Context, _ string) ([]ingest.Summary, error) {
	return f.sources, nil
}

func (f *fakeIngestor) Health(context.Context) bool { return f.healthy }

func newTestRouter(chat *fakeChat, ing *fakeIngestor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(chat, ing, []string{"http://localhost:3000"}).RegisterRoutes(router)
	return router
}

func doJSONRequest(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, data []byte, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, data)
	}
}

func TestPostMessageReturnsTurnResult(t *testing.T) {
	chat := &fakeChat{ready: true}
	router := newTestRouter(chat, &fakeIngestor{healthy: true})

	rec := doJSONRequest(t, router, http.MethodPost, "/api/chat/s1/message", map[string]string{
		"content":   "hello",
		"namespace": "docs",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var result models.TurnResult
	decodeJSON(t, rec.Body.Bytes(), &result)
	if result.Answer != "echo: hello" || result.SessionID != "s1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if chat.lastNS != "docs" || chat.lastSID != "s1" {
		t.Fatalf("chat called with ns=%q sid=%q", chat.lastNS, chat.lastSID)
	}
}

func TestPostMessageMintsSessionID(t *testing.T) {
	chat := &fakeChat{}
	router := newTestRouter(chat, &fakeIngestor{})

	rec := doJSONRequest(t, router, http.MethodPost, "/api/chat/message", map[string]string{
		"content": "hello",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var result models.TurnResult
	decodeJSON(t, rec.Body.Bytes(), &result)
	if result.SessionID == "" {
		t.Fatalf("expected a minted session id")
	}
}

func TestPostMessageValidation(t *testing.T) {
	router := newTestRouter(&fakeChat{}, &fakeIngestor{})

	rec := doJSONRequest(t, router, http.MethodPost, "/api/chat/s1/message", map[string]string{"content": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank content should be rejected, got %d", rec.Code)
	}
	rec = doJSONRequest(t, router, http.MethodPost, "/api/chat/s1/message", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body should be rejected, got %d", rec.Code)
	}
}

func TestErrorCategoryMapping(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		category string
	}{
		{fmt.Errorf("%w: redis gone", session.ErrStoreUnavailable), http.StatusServiceUnavailable, "store_unavailable"},
		{fmt.Errorf("%w: index gone", rag.ErrRetrievalUnavailable), http.StatusBadGateway, "retrieval_unavailable"},
		{fmt.Errorf("%w: model gone", rag.ErrSynthesisUnavailable), http.StatusBadGateway, "synthesis_unavailable"},
		{errors.New("query must not be empty"), http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		router := newTestRouter(&fakeChat{turnErr: tc.err}, &fakeIngestor{})
		rec := doJSONRequest(t, router, http.MethodPost, "/api/chat/s1/message", map[string]string{"content": "hi"})
		if rec.Code != tc.status {
			t.Fatalf("err %v: want status %d got %d", tc.err, tc.status, rec.Code)
		}
		var body struct {
			Category string `json:"category"`
		}
		decodeJSON(t, rec.Body.Bytes(), &body)
		if body.Category != tc.category {
			t.Fatalf("err %v: want category %q got %q", tc.err, tc.category, body.Category)
		}
	}
}

func TestGetHistory(t *testing.T) {
	chat := &fakeChat{history: []models.Message{
		{Role: models.RoleHuman, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	}}
	router := newTestRouter(chat, &fakeIngestor{})

	rec := doJSONRequest(t, router, http.MethodGet, "/api/chat/s9/history?namespace=docs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SessionID string           `json:"session_id"`
		Messages  []models.Message `json:"messages"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.SessionID != "s9" || len(body.Messages) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if chat.lastNS != "docs" {
		t.Fatalf("namespace query param not forwarded: %q", chat.lastNS)
	}
}

func TestGetHistoryEmptyIsArray(t *testing.T) {
	router := newTestRouter(&fakeChat{}, &fakeIngestor{})
	rec := doJSONRequest(t, router, http.MethodGet, "/api/chat/s1/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"messages":[]`)) {
		t.Fatalf("empty history should serialize as []: %s", rec.Body.String())
	}
}

func TestClearHistory(t *testing.T) {
	router := newTestRouter(&fakeChat{}, &fakeIngestor{})
	rec := doJSONRequest(t, router, http.MethodDelete, "/api/chat/s1/history", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestListNamespaces(t *testing.T) {
	router := newTestRouter(&fakeChat{}, &fakeIngestor{})
	rec := doJSONRequest(t, router, http.MethodGet, "/api/namespaces", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Namespaces []string `json:"namespaces"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if len(body.Namespaces) != 2 {
		t.Fatalf("unexpected namespaces: %v", body.Namespaces)
	}
}

func TestAddDocuments(t *testing.T) {
	router := newTestRouter(&fakeChat{}, &fakeIngestor{})
	rec := doJSONRequest(t, router, http.MethodPost, "/api/documents", map[string]interface{}{
		"namespace": "docs",
		"paths":     []string{"a.txt", "b.md"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Documents []ingest.Summary `json:"documents"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if len(body.Documents) != 2 {
		t.Fatalf("unexpected documents: %v", body.Documents)
	}

	rec = doJSONRequest(t, router, http.MethodPost, "/api/documents", map[string]interface{}{"namespace": "docs"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing paths should be rejected, got %d", rec.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	router := newTestRouter(&fakeChat{}, &fakeIngestor{})
	rec := doJSONRequest(t, router, http.MethodDelete, "/api/documents/report.txt?namespace=docs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body struct {
		Source  string `json:"source"`
		Deleted int    `json:"deleted_chunks"`
	}
	decodeJSON(t, rec.Body.Bytes(), &body)
	if body.Source != "report.txt" || body.Deleted != 3 {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&fakeChat{ready: true}, &fakeIngestor{healthy: true})
	rec := doJSONRequest(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status %d", rec.Code)
	}

	router = newTestRouter(&fakeChat{ready: false}, &fakeIngestor{healthy: true})
	rec = doJSONRequest(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status %d", rec.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	router := newTestRouter(&fakeChat{}, &fakeIngestor{})
	req := httptest.NewRequest(http.MethodOptions, "/api/namespaces", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("expected allow-origin header on preflight")
	}
	if rec.Header().Get("Access-Control-Max-Age") == "" {
		t.Fatalf("expected max-age header on preflight")
	}

	req = httptest.NewRequest(http.MethodGet, "/api/namespaces", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("disallowed origin should be rejected, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origin must not be allowed")
	}
}
