package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosebeck482/hapa-chat/internal/store"
)

func TestFromMapDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "./conversation_logs", cfg.StateDir)
	assert.Empty(t, cfg.StoreDSN)
	assert.Equal(t, ":5055", cfg.APIAddr)
	assert.Equal(t, "http://localhost:11434", cfg.LLMHost)
	assert.Equal(t, "phi4", cfg.LLMModel)
	assert.Equal(t, "ollama", cfg.LLMAPIKey)
	assert.True(t, cfg.LLMEnabled)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, "dating_profile_assistant", cfg.AssistantID)
	assert.Equal(t, 20, cfg.SlotWindow)
}

func TestFromMapOverrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"HAPA_STORE_DSN":   "redis://localhost:6379/0",
		"OLLAMA_MODEL":     "llama3",
		"HAPA_LLM_ENABLED": "false",
		"HAPA_LLM_TIMEOUT": "5s",
		"HAPA_LOG_LEVEL":   "debug",
		"HAPA_LOG_FORMAT":  "json",
		"HAPA_SLOT_WINDOW": "5",
	})
	require.NoError(t, err)

	assert.Equal(t, store.BackendRedis, store.DetectDSNType(cfg.StoreDSN))
	gc := cfg.GenAI()
	assert.Equal(t, "llama3", gc.Model)
	assert.False(t, gc.Available)
	assert.Equal(t, 5*time.Second, gc.Timeout)
	assert.Equal(t, 5, cfg.SlotWindow)
}

func TestFromMapInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad window":   {"HAPA_SLOT_WINDOW": "0"},
		"bad duration": {"HAPA_LLM_TIMEOUT": "soon"},
		"bad level":    {"HAPA_LOG_LEVEL": "loud"},
		"bad format":   {"HAPA_LOG_FORMAT": "xml"},
		"bad bool":     {"HAPA_LLM_ENABLED": "maybe"},
	}
	for name, environ := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromMap(environ)
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "": slog.LevelInfo,
		"warning": slog.LevelWarn, "error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HAPA_ASSISTANT_ID=from-dotenv\n"), 0o600))
	t.Setenv("HAPA_ASSISTANT_ID", "")
	require.NoError(t, os.Unsetenv("HAPA_ASSISTANT_ID"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.AssistantID)
}

func TestLoadMissingDotEnvIsFine(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestStoreOptions(t *testing.T) {
	cfg := Config{StateDir: "/tmp/logs", StoreDSN: "memory"}
	var opts store.Opts
	for _, o := range cfg.StoreOptions(true) {
		o(&opts)
	}
	assert.Equal(t, store.Opts{DSN: "memory", Dir: "/tmp/logs", ReadOnly: true}, opts)
}
