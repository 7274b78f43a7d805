// Package testutil provides common test utilities and helpers for hapa-chat tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rosebeck482/hapa-chat/internal/genai"
)

// LLMCall records one Generate invocation.
type LLMCall struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// ScriptedLLM is a genai.Generator that answers from a queue of replies or
// from a responder func. An exhausted queue behaves like an unavailable
// service.
type ScriptedLLM struct {
	mu        sync.Mutex
	replies   []string
	responder func(system, user string) (string, error)
	calls     []LLMCall
}

// NewScriptedLLM returns a generator that answers with replies in order.
func NewScriptedLLM(replies ...string) *ScriptedLLM {
	return &ScriptedLLM{replies: replies}
}

// NewRespondingLLM returns a generator that delegates to fn.
func NewRespondingLLM(fn func(system, user string) (string, error)) *ScriptedLLM {
	return &ScriptedLLM{responder: fn}
}

// UnavailableLLM returns a generator that always fails.
func UnavailableLLM() *ScriptedLLM {
	return NewRespondingLLM(func(string, string) (string, error) {
		return "", fmt.Errorf("%w: test double", genai.ErrUnavailable)
	})
}

// Generate implements genai.Generator.
func (s *ScriptedLLM) Generate(_ context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, LLMCall{System: system, User: user, MaxTokens: maxTokens, Temperature: temperature})
	if s.responder != nil {
		return s.responder(system, user)
	}
	if len(s.replies) == 0 {
		return "", fmt.Errorf("%w: no scripted reply left", genai.ErrUnavailable)
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

// Calls returns a copy of the recorded calls.
func (s *ScriptedLLM) Calls() []LLMCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LLMCall(nil), s.calls...)
}

// CallsContaining counts calls whose system or user prompt contains substr.
func (s *ScriptedLLM) CallsContaining(substr string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c.System, substr) || strings.Contains(c.User, substr) {
			n++
		}
	}
	return n
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an API envelope and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if status, ok := response["status"].(string); !ok || status != expectedStatus {
		t.Errorf("expected status '%s', got '%v'", expectedStatus, response["status"])
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals v or fails the test.
func MustMarshalJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals data into target or fails the test.
func MustUnmarshalJSON(t *testing.T, data []byte, target any) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
