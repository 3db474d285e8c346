package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/CMCFame/ACEBotV2/internal/models"
	"github.com/CMCFame/ACEBotV2/internal/registry"
	"github.com/CMCFame/ACEBotV2/internal/store"
	"github.com/CMCFame/ACEBotV2/internal/summary"
	"github.com/CMCFame/ACEBotV2/internal/testutil"
)

func newTestServer(ai *testutil.MockAIClient, opts ...Option) *Server {
	return NewServer(registry.New(), store.NewInMemoryStore(), ai, opts...)
}

// createSession drives POST /sessions and returns the new session ID.
func createSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions", models.SessionCreateRequest{Name: "Sam", Company: "Acme"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")

	var resp struct {
		Result struct {
			Session models.Session `json:"session"`
			Reply   string         `json:"reply"`
		} `json:"result"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	if resp.Result.Session.ID == "" {
		t.Fatal("create response has no session ID")
	}
	if resp.Result.Reply == "" {
		t.Fatal("create response has no greeting")
	}
	return resp.Result.Session.ID
}

func allTopicNames() []string {
	names := make([]string, len(models.AllTopics))
	for i, topic := range models.AllTopics {
		names[i] = string(topic)
	}
	return names
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient()).Handler()
	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestCreateSessionValidation(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient()).Handler()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions", models.SessionCreateRequest{Branch: "nuclear"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "invalid branch")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestMessageRoundtrip(t *testing.T) {
	ai := testutil.NewMockAIClient()
	handler := newTestServer(ai).Handler()
	id := createSession(t, handler)

	ai.QueueToolCall("record_answer_classification", map[string]interface{}{
		"kind":               "answer",
		"questions_answered": []string{"name_company"},
		"quality":            "complete",
	})
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/"+id+"/messages", models.SessionMessageRequest{Message: "Sam from Acme"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "post message")
	resp := testutil.AssertJSONResponse(t, rr, "ok")

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing result: %v", resp)
	}
	if result["reply"] == "" {
		t.Error("empty reply")
	}
	progress, ok := result["progress"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing progress: %v", result)
	}
	if progress["covered_count"].(float64) != 0 {
		t.Errorf("covered count = %v after one partial topic answer", progress["covered_count"])
	}
}

func TestMessageValidation(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient()).Handler()
	id := createSession(t, handler)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/"+id+"/messages", models.SessionMessageRequest{Message: ""})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "empty message")
}

func TestMessageUnknownSession(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient()).Handler()
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/nope/messages", models.SessionMessageRequest{Message: "hi"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown session")
}

func TestAccessCodeRequired(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient(), WithAccessCode("secret1")).Handler()

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions", models.SessionCreateRequest{})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "missing access code")

	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions", models.SessionCreateRequest{})
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusUnauthorized, rr.Code, "wrong access code")

	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions", models.SessionCreateRequest{})
	req.Header.Set("Authorization", "Bearer secret1")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusCreated, rr.Code, "correct access code")

	// Health stays open for probes.
	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health without access code")
}

func TestProgressEndpoint(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient()).Handler()
	id := createSession(t, handler)

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/"+id+"/progress", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "progress")
	resp := testutil.AssertJSONResponse(t, rr, "ok")

	result := resp["result"].(map[string]interface{})
	if result["percentage"].(float64) != 0 {
		t.Errorf("fresh session percentage = %v", result["percentage"])
	}
	missing, _ := result["missing_topics"].([]interface{})
	if len(missing) != len(models.AllTopics) {
		t.Errorf("missing topics = %d, want %d", len(missing), len(models.AllTopics))
	}
}

func TestSummaryEndpointPremature(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient()).Handler()
	id := createSession(t, handler)

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/"+id+"/summary", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "premature summary")
	resp := testutil.AssertJSONResponse(t, rr, "error")

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("premature summary response missing topic list: %v", resp)
	}
	if missing, _ := result["missing_topics"].([]interface{}); len(missing) == 0 {
		t.Error("no missing topics listed")
	}
}

func TestSummaryAndExportAfterCompletion(t *testing.T) {
	ai := testutil.NewMockAIClient()
	handler := newTestServer(ai).Handler()
	id := createSession(t, handler)

	ai.QueueToolCall("record_answer_classification", map[string]interface{}{
		"kind":           "answer",
		"topics_covered": allTopicNames(),
		"quality":        "complete",
	})
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/"+id+"/messages", models.SessionMessageRequest{Message: "everything covered"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "completing message")

	req = testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/"+id+"/summary", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "summary after completion")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	result := resp["result"].(map[string]interface{})
	if md, _ := result["summary"].(string); !strings.Contains(md, "Callout Procedure Summary") {
		t.Errorf("unexpected summary payload: %v", result)
	}

	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/"+id+"/export", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "export after completion")
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("export content type = %s", ct)
	}
	if !strings.Contains(rr.Body.String(), "company,contact,utility_type") {
		t.Errorf("export body missing CSV header: %q", rr.Body.String())
	}
}

func TestExportBlockedWhileIncomplete(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient()).Handler()
	id := createSession(t, handler)

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/"+id+"/export", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusConflict, rr.Code, "export while incomplete")
}

func TestGetSessionWithTranscript(t *testing.T) {
	handler := newTestServer(testutil.NewMockAIClient()).Handler()
	id := createSession(t, handler)

	req := testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/"+id, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get session")
	resp := testutil.AssertJSONResponse(t, rr, "ok")

	result := resp["result"].(map[string]interface{})
	messages, _ := result["messages"].([]interface{})
	if len(messages) != 1 {
		t.Errorf("transcript length = %d, want 1 greeting message", len(messages))
	}
}

func TestSessionLocksPruned(t *testing.T) {
	ai := testutil.NewMockAIClient()
	server := newTestServer(ai)
	handler := server.Handler()
	id := createSession(t, handler)

	ai.QueueToolCall("record_answer_classification", map[string]interface{}{
		"kind":               "answer",
		"questions_answered": []string{"name_company"},
		"quality":            "complete",
	})
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/"+id+"/messages", models.SessionMessageRequest{Message: "Sam from Acme"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "post message")

	// Turn locks are released and pruned, so long-running deployments do not
	// accumulate an entry per session ever seen.
	server.mu.Lock()
	remaining := len(server.sessLocks)
	server.mu.Unlock()
	if remaining != 0 {
		t.Errorf("lock map holds %d entries after the turn completed", remaining)
	}
}

// mailerFunc adapts a function to the export.Mailer interface for tests.
type mailerFunc func(to []string, s summary.Summary, markdown string) error

func (f mailerFunc) SendSummary(to []string, s summary.Summary, markdown string) error {
	return f(to, s, markdown)
}

func TestExportByEmail(t *testing.T) {
	ai := testutil.NewMockAIClient()
	var sentTo []string
	server := newTestServer(ai, WithMailer(mailerFunc(func(to []string, s summary.Summary, markdown string) error {
		sentTo = to
		return nil
	})))
	handler := server.Handler()
	id := createSession(t, handler)

	ai.QueueToolCall("record_answer_classification", map[string]interface{}{
		"kind":           "answer",
		"topics_covered": allTopicNames(),
		"quality":        "complete",
	})
	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/sessions/"+id+"/messages", models.SessionMessageRequest{Message: "everything covered"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "completing message")

	req = testutil.CreateHTTPRequest(t, http.MethodGet, "/sessions/"+id+"/export?email=ops@example.com", nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "email export")
	if len(sentTo) != 1 || sentTo[0] != "ops@example.com" {
		t.Errorf("summary sent to %v", sentTo)
	}
}
