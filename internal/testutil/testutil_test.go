package testutil

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rosebeck482/hapa-chat/internal/genai"
)

func TestScriptedLLM_Queue(t *testing.T) {
	llm := NewScriptedLLM("first", "second")
	ctx := context.Background()

	for _, want := range []string{"first", "second"} {
		got, err := llm.Generate(ctx, "sys", "usr", 10, 0.5)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
	if _, err := llm.Generate(ctx, "sys", "usr", 10, 0.5); !errors.Is(err, genai.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable once exhausted, got %v", err)
	}
	if len(llm.Calls()) != 3 {
		t.Errorf("expected 3 recorded calls, got %d", len(llm.Calls()))
	}
	if llm.CallsContaining("usr") != 3 {
		t.Errorf("expected 3 calls containing prompt text")
	}
}

func TestUnavailableLLM(t *testing.T) {
	_, err := UnavailableLLM().Generate(context.Background(), "s", "u", 1, 0)
	if !errors.Is(err, genai.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	req := CreateHTTPRequest(t, http.MethodPost, "/webhook", map[string]string{"a": "b"})
	if req.Method != http.MethodPost {
		t.Errorf("expected POST, got %s", req.Method)
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type")
	}
}
