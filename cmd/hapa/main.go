// Command hapa runs the profile-collection action server and exports the
// stored conversation logs.
package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rosebeck482/hapa-chat/internal/api"
	"github.com/rosebeck482/hapa-chat/internal/config"
	"github.com/rosebeck482/hapa-chat/internal/conversation"
	"github.com/rosebeck482/hapa-chat/internal/flow"
	"github.com/rosebeck482/hapa-chat/internal/genai"
	"github.com/rosebeck482/hapa-chat/internal/store"
)

func main() {
	initializeLogger(os.Stderr, slog.LevelInfo, "text")
	if err := buildRootCommand().Execute(); err != nil {
		slog.Error("hapa failed", "error", err)
		os.Exit(1)
	}
}

// initializeLogger installs the process-wide structured logger.
func initializeLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// openConversations opens the configured document store and wraps it in the
// conversation log. The caller closes the returned document store.
func openConversations(cfg config.Config, readOnly bool) (*conversation.Store, store.DocumentStore, error) {
	docs, err := store.New(cfg.StoreOptions(readOnly)...)
	if err != nil {
		return nil, nil, err
	}
	return conversation.NewStore(docs), docs, nil
}

// buildServer wires the language model, extraction, handlers and HTTP layer.
func buildServer(cfg config.Config, conversations *conversation.Store) (*api.Server, error) {
	llm, err := genai.NewClient(cfg.GenAI())
	if err != nil {
		return nil, err
	}
	registry := flow.NewDefaultRegistry(flow.Deps{
		LLM:           llm,
		Conversations: conversations,
		AssistantID:   cfg.AssistantID,
		SlotWindow:    cfg.SlotWindow,
	})
	slog.Debug("buildServer: modules configured", "actions", len(registry.Names()),
		"llmEnabled", cfg.LLMEnabled, "model", cfg.LLMModel, "backend", store.DetectDSNType(cfg.StoreDSN))
	return api.NewServer(registry, conversations, api.WithAddr(cfg.APIAddr)), nil
}
