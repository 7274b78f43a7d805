package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
	calls  int
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	m.params = params
	return m.resp, m.err
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGenerate_Success(t *testing.T) {
	mock := &mockChatService{resp: completion("  Hello World \n")}
	client := &Client{chat: mock, model: "phi4", available: true}

	out, err := client.Generate(context.Background(), "system prompt", "user prompt", 50, 0.1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if mock.params.Model != "phi4" {
		t.Errorf("expected model phi4, got %s", mock.params.Model)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.params.Messages))
	}
	if mock.params.MaxTokens.Value != 50 {
		t.Errorf("expected max tokens 50, got %d", mock.params.MaxTokens.Value)
	}
}

func TestGenerate_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: "m", available: true}
	_, err := client.Generate(context.Background(), "sys", "usr", 10, 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected cause in error, got %v", err)
	}
}

func TestGenerate_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}, model: "m", available: true}
	_, err := client.Generate(context.Background(), "sys", "usr", 10, 0)
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected no choices to count as unavailable, got %v", err)
	}
}

func TestGenerate_Disabled(t *testing.T) {
	mock := &mockChatService{resp: completion("unused")}
	client := &Client{chat: mock, model: "m", available: false}
	_, err := client.Generate(context.Background(), "sys", "usr", 10, 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if mock.calls != 0 {
		t.Errorf("expected no call when disabled, got %d", mock.calls)
	}
}

func TestNewClient_NoModel(t *testing.T) {
	_, err := NewClient(Config{}, WithModel(""))
	if err == nil {
		t.Error("expected error when model not provided, got nil")
	}
}

func TestNewClient_WithOptions(t *testing.T) {
	cli, err := NewClient(DefaultConfig(), WithAPIKey("test-key"), WithModel("llama3"), WithAvailable(false))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cli.model != "llama3" {
		t.Errorf("expected model llama3, got %s", cli.model)
	}
	if cli.Available() {
		t.Error("expected client to be unavailable")
	}
}

func TestBaseURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:11434":  "http://localhost:11434/v1/",
		"http://localhost:11434/": "http://localhost:11434/v1/",
		"http://ollama:11434/v1":  "http://ollama:11434/v1/",
		"":                        "http://localhost:11434/v1/",
	}
	for in, want := range tests {
		if got := baseURL(in); got != want {
			t.Errorf("baseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string, string, int, float64) (string, error) {
	return "", errors.New("boom")
}

func TestCall_WrapsPlainErrors(t *testing.T) {
	_, err := Call(context.Background(), failingGenerator{}, "test", "s", "u", 1, 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	_, err = Call(context.Background(), nil, "test", "s", "u", 1, 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for nil generator, got %v", err)
	}
}
