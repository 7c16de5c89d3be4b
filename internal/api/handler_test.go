package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gradeinsight/gradeinsight/internal/assistant"
	"github.com/gradeinsight/gradeinsight/internal/config"
	"github.com/gradeinsight/gradeinsight/internal/gradedb"
	"github.com/gradeinsight/gradeinsight/internal/memory"
	"github.com/gradeinsight/gradeinsight/internal/quickquery"
)

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

type fakeAssistant struct {
	resp     assistant.Response
	err      error
	status   assistant.Status
	requests []assistant.Request
}

func (a *fakeAssistant) ProcessMessage(_ context.Context, req assistant.Request) (assistant.Response, error) {
	a.requests = append(a.requests, req)
	if a.err != nil {
		return assistant.Response{}, a.err
	}
	return a.resp, nil
}

func (a *fakeAssistant) Health(context.Context) assistant.Status { return a.status }

type fakeMemoryStore struct {
	memories   []memory.Memory
	saveErr    error
	updateErr  error
	deleteErr  error
	saved      []memory.Memory
	updatedIDs []int64
}

func (m *fakeMemoryStore) Save(_ context.Context, teacherID int64, studentID *int64, content string, tags []string) (memory.Memory, error) {
	if m.saveErr != nil {
		return memory.Memory{}, m.saveErr
	}
	saved := memory.Memory{ID: int64(len(m.saved) + 1), TeacherID: teacherID, StudentID: studentID, Content: content, Tags: tags}
	m.saved = append(m.saved, saved)
	return saved, nil
}

func (m *fakeMemoryStore) Recall(context.Context, int64, string, int) ([]memory.Memory, error) {
	return m.memories, nil
}

func (m *fakeMemoryStore) Update(_ context.Context, _ int64, id int64, _ string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updatedIDs = append(m.updatedIDs, id)
	return nil
}

func (m *fakeMemoryStore) Delete(context.Context, int64, int64) error { return m.deleteErr }

type fakeAPICatalog struct {
	defs   []quickquery.Definition
	result gradedb.Result
	err    error
}

func (c *fakeAPICatalog) List() []quickquery.Definition { return c.defs }

func (c *fakeAPICatalog) Run(context.Context, string, int64, map[string]any) (gradedb.Result, error) {
	if c.err != nil {
		return gradedb.Result{}, c.err
	}
	return c.result, nil
}

func newTestHandler(t *testing.T, deps Dependencies, env map[string]string) http.Handler {
	t.Helper()
	cfg, err := config.Load("gradeinsight-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return NewHandler(cfg, deps)
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t, Dependencies{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "gradeinsight-api") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestReadyEndpointReportsFailure(t *testing.T) {
	handler := newTestHandler(t, Dependencies{
		Readiness: func(context.Context) error { return errors.New("database dsn is not configured") },
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/ready", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["error_code"] != "NOT_READY" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestStatusEndpointReportsDegradation(t *testing.T) {
	handler := newTestHandler(t, Dependencies{
		Assistant: &fakeAssistant{status: assistant.Status{LLMReachable: false, DBReachable: true}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["llm_status"] != "disconnected" {
		t.Fatalf("llm_status = %v", body["llm_status"])
	}
	if body["db_status"] != "connected" {
		t.Fatalf("db_status = %v", body["db_status"])
	}
}

func TestChatEndpointReturnsReply(t *testing.T) {
	fake := &fakeAssistant{resp: assistant.Response{
		Reply:          "Three students are below 70%.",
		UsedData:       true,
		Path:           assistant.PathQuickQuery,
		ConversationID: "conv-1",
		Data:           &gradedb.Result{Columns: []string{"name"}, Rows: [][]any{{"Alice"}}},
	}}
	handler := newTestHandler(t, Dependencies{Assistant: fake}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"who is struggling?"}`))
	req.Header.Set("X-Teacher-ID", "7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var body chatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body.Reply != "Three students are below 70%." {
		t.Fatalf("reply = %q", body.Reply)
	}
	if !body.UsedData || body.Path != "quick_query" {
		t.Fatalf("used_data = %v, path = %q", body.UsedData, body.Path)
	}
	if body.Data == nil || len(body.Data.Rows) != 1 {
		t.Fatalf("data = %+v", body.Data)
	}
	if len(fake.requests) != 1 || fake.requests[0].TeacherID != 7 {
		t.Fatalf("requests = %+v", fake.requests)
	}
}

func TestChatEndpointRequiresTeacherContext(t *testing.T) {
	handler := newTestHandler(t, Dependencies{Assistant: &fakeAssistant{}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"hello"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestChatEndpointRejectsEmptyMessage(t *testing.T) {
	handler := newTestHandler(t, Dependencies{Assistant: &fakeAssistant{}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"   "}`))
	req.Header.Set("X-Teacher-ID", "7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMemoriesLifecycle(t *testing.T) {
	store := &fakeMemoryStore{}
	handler := newTestHandler(t, Dependencies{Memories: store}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/memories", strings.NewReader(`{"content":"Maria needs a retake","student_id":3}`))
	req.Header.Set("X-Teacher-ID", "7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(store.saved) != 1 || store.saved[0].TeacherID != 7 {
		t.Fatalf("saved = %+v", store.saved)
	}

	store.memories = store.saved
	req = httptest.NewRequest(http.MethodGet, "/v1/memories?filter=maria", nil)
	req.Header.Set("X-Teacher-ID", "7")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Maria needs a retake") {
		t.Fatalf("body = %s", rr.Body.String())
	}
}

func TestUpdateMemory(t *testing.T) {
	store := &fakeMemoryStore{}
	handler := newTestHandler(t, Dependencies{Memories: store}, nil)

	req := httptest.NewRequest(http.MethodPut, "/v1/memories/12", strings.NewReader(`{"content":"prefers written feedback"}`))
	req.Header.Set("X-Teacher-ID", "7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if len(store.updatedIDs) != 1 || store.updatedIDs[0] != 12 {
		t.Fatalf("updated ids = %v", store.updatedIDs)
	}
}

func TestUpdateMemoryNotFound(t *testing.T) {
	handler := newTestHandler(t, Dependencies{Memories: &fakeMemoryStore{updateErr: memory.ErrNotFound}}, nil)

	req := httptest.NewRequest(http.MethodPut, "/v1/memories/99", strings.NewReader(`{"content":"anything"}`))
	req.Header.Set("X-Teacher-ID", "7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestDeleteMemoryNotFound(t *testing.T) {
	handler := newTestHandler(t, Dependencies{Memories: &fakeMemoryStore{deleteErr: memory.ErrNotFound}}, nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/memories/99", nil)
	req.Header.Set("X-Teacher-ID", "7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRunQuickQueryUnknownKey(t *testing.T) {
	handler := newTestHandler(t, Dependencies{Catalog: &fakeAPICatalog{err: quickquery.ErrUnknownQuery}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/quickqueries/nope/run", strings.NewReader(`{}`))
	req.Header.Set("X-Teacher-ID", "7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRunQuickQueryTimeout(t *testing.T) {
	handler := newTestHandler(t, Dependencies{Catalog: &fakeAPICatalog{err: gradedb.ErrTimeout}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/quickqueries/class_overview/run", strings.NewReader(`{}`))
	req.Header.Set("X-Teacher-ID", "7")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if body["retryable"] != true {
		t.Fatalf("retryable = %v", body["retryable"])
	}
}

func TestProtectedRoutesRequireAuthWhenConfigured(t *testing.T) {
	env := map[string]string{
		"GRADEINSIGHT_AUTH_REQUIRED":    "true",
		"GRADEINSIGHT_AUTH_STATIC_KEYS": "key-1:7:chat",
	}
	cfg, err := config.Load("gradeinsight-api", mapLookup(env))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}

	denyAll := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "missing api key", false, nil)
		})
	}
	handler := NewHandler(cfg, Dependencies{Assistant: &fakeAssistant{}, AuthMiddleware: denyAll})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"message":"hi"}`))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("health status = %d", rr.Code)
	}
}
