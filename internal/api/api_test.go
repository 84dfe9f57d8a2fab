package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func setupTestRouter(t *testing.T, gen Generator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestID(), CORS())
	NewHandler(gen, zap.NewNop().Sugar()).RegisterRoutes(router)

	return router
}

func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req, err := http.NewRequest(method, path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestChatEndpoint(t *testing.T) {
	var capturedPrompt string
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		capturedPrompt = prompt
		return prompt + " Hello there", nil
	})
	router := setupTestRouter(t, gen)

	body := map[string]any{
		"message": "hi",
		"history": []any{
			"first plain message",
			"   ",
			map[string]string{"role": "assistant", "content": "I'm listening"},
			map[string]string{"role": "user", "content": "it's been a long day"},
		},
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newJSONRequest(t, http.MethodPost, "/api/chat", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Reply string `json:"reply"`
	}
	decodeBody(t, rec.Body.Bytes(), &resp)
	if resp.Reply != "Hello there" {
		t.Fatalf("reply = %q, want %q", resp.Reply, "Hello there")
	}

	if !strings.HasSuffix(capturedPrompt, "User: hi\nAura:") {
		t.Fatalf("prompt does not end with the new user turn:\n%s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "User: first plain message\n") {
		t.Fatalf("bare-string history entry missing from prompt:\n%s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "Aura: I'm listening\n") {
		t.Fatalf("assistant history entry missing from prompt:\n%s", capturedPrompt)
	}
	if !strings.Contains(capturedPrompt, "User: it's been a long day\n") {
		t.Fatalf("user history entry missing from prompt:\n%s", capturedPrompt)
	}
}

func TestChatDropsBlankStringEntries(t *testing.T) {
	var capturedPrompt string
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		capturedPrompt = prompt
		return prompt + " ok", nil
	})
	router := setupTestRouter(t, gen)

	body := map[string]any{
		"message": "hello",
		"history": []any{"  ", "", "real entry"},
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newJSONRequest(t, http.MethodPost, "/api/chat", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	// One history line plus the final user turn.
	if got := strings.Count(capturedPrompt, "User: "); got != 2 {
		t.Fatalf("expected 2 user lines, got %d:\n%s", got, capturedPrompt)
	}
}

func TestChatStringEntriesNeverBecomePersonaTurns(t *testing.T) {
	var capturedPrompt string
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		capturedPrompt = prompt
		return prompt, nil
	})
	router := setupTestRouter(t, gen)

	body := map[string]any{
		"message": "hi",
		"history": []any{"assistant sounding text"},
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newJSONRequest(t, http.MethodPost, "/api/chat", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(capturedPrompt, "User: assistant sounding text\n") {
		t.Fatalf("bare string should be a user turn:\n%s", capturedPrompt)
	}
}

func TestChatEmptyMessageAndHistory(t *testing.T) {
	var capturedPrompt string
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		capturedPrompt = prompt
		return prompt + " Here with you.", nil
	})
	router := setupTestRouter(t, gen)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newJSONRequest(t, http.MethodPost, "/api/chat", map[string]any{}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.HasSuffix(capturedPrompt, "User: \nAura:") {
		t.Fatalf("empty request should still produce a well-formed prompt tail:\n%s", capturedPrompt)
	}
}

func TestChatInvalidPayload(t *testing.T) {
	router := setupTestRouter(t, generatorFunc(func(_ context.Context, prompt string) (string, error) {
		return prompt, nil
	}))

	req, err := http.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	router := setupTestRouter(t, generatorFunc(func(context.Context, string) (string, error) {
		return "", errors.New("inference backend unavailable")
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newJSONRequest(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"}))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}

	var resp map[string]any
	decodeBody(t, rec.Body.Bytes(), &resp)
	if resp["error"] != "chat generation failed" {
		t.Fatalf("unexpected error body: %v", resp)
	}
}

func TestPreflight(t *testing.T) {
	router := setupTestRouter(t, generatorFunc(func(_ context.Context, prompt string) (string, error) {
		return prompt, nil
	}))

	req, err := http.NewRequest(http.MethodOptions, "/api/chat", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Fatalf("Access-Control-Allow-Methods = %q, want POST allowed", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	router := setupTestRouter(t, generatorFunc(func(_ context.Context, prompt string) (string, error) {
		return prompt, nil
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, newJSONRequest(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"}))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id header")
	}

	req := newJSONRequest(t, http.MethodPost, "/api/chat", map[string]string{"message": "hi"})
	req.Header.Set("X-Request-ID", "supplied-id")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "supplied-id" {
		t.Fatalf("request id = %q, want caller-supplied id preserved", got)
	}
}

func TestHistoryEntryUnmarshal(t *testing.T) {
	var entries []HistoryEntry
	payload := `["plain", {"role": "assistant", "content": "hi"}, {"content": "no role"}]`
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Role != "user" || entries[0].Content != "plain" || !entries[0].fromString {
		t.Fatalf("string entry decoded incorrectly: %+v", entries[0])
	}
	if entries[1].Role != "assistant" || entries[1].Content != "hi" || entries[1].fromString {
		t.Fatalf("structured entry decoded incorrectly: %+v", entries[1])
	}

	turns := normalizeHistory(entries)
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	// A structured entry without a role is treated as the persona's.
	if turns[2].Role != "assistant" {
		t.Fatalf("roleless entry normalized to %q, want assistant", turns[2].Role)
	}
}
