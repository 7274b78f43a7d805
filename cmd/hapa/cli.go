package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rosebeck482/hapa-chat/internal/config"
	"github.com/rosebeck482/hapa-chat/internal/export"
)

// globalFlags are the overrides shared by every subcommand.
type globalFlags struct {
	envFile  string
	stateDir string
	dsn      string
	llmHost  string
	llmModel string
	noLLM    bool
}

func buildRootCommand() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:   "hapa",
		Short: "Dating-profile action server with persistent conversation logs",
		Long: strings.TrimSpace(`hapa serves the custom actions of the profile-collection assistant.

It extracts profile fields from user messages, drives the collection stages,
and keeps a per-conversation log that can be exported as JSON, CSV or text.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errors.New("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", "", "Path to a .env file (default .env)")
	pf.StringVar(&flags.stateDir, "state-dir", "", "Directory for flat-file conversation logs (overrides $HAPA_STATE_DIR)")
	pf.StringVar(&flags.dsn, "dsn", "", "Document store DSN: memory, *.db, postgres://, redis:// (overrides $HAPA_STORE_DSN)")
	pf.StringVar(&flags.llmHost, "llm-host", "", "Language model server URL (overrides $OLLAMA_API_HOST)")
	pf.StringVar(&flags.llmModel, "llm-model", "", "Language model name (overrides $OLLAMA_MODEL)")
	pf.BoolVar(&flags.noLLM, "no-llm", false, "Disable language model calls")

	root.AddCommand(newServeCommand(&flags))
	root.AddCommand(newExportCommand(&flags))
	root.AddCommand(newListCommand(&flags))
	return root
}

// loadConfig reads the environment and applies the flags that were set on
// the command line.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	var files []string
	if flags.envFile != "" {
		files = append(files, flags.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return config.Config{}, err
	}

	if changed(cmd, "state-dir") {
		cfg.StateDir = flags.stateDir
	}
	if changed(cmd, "dsn") {
		cfg.StoreDSN = flags.dsn
	}
	if changed(cmd, "llm-host") {
		cfg.LLMHost = flags.llmHost
	}
	if changed(cmd, "llm-model") {
		cfg.LLMModel = flags.llmModel
	}
	if flags.noLLM {
		cfg.LLMEnabled = false
	}
	if changed(cmd, "addr") {
		addr, _ := cmd.Flags().GetString("addr")
		cfg.APIAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	initializeLogger(os.Stderr, level, cfg.LogFormat)
	slog.Debug("loadConfig: configuration resolved", "stateDir", cfg.StateDir, "dsnSet", cfg.StoreDSN != "",
		"addr", cfg.APIAddr, "llmHost", cfg.LLMHost, "llmEnabled", cfg.LLMEnabled)
	return cfg, nil
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

func newServeCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the action server",
		Example: "  hapa serve --addr :5055 --state-dir ./conversation_logs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			conversations, docs, err := openConversations(cfg, false)
			if err != nil {
				return err
			}
			defer func() {
				if err := docs.Close(); err != nil {
					slog.Warn("serve: failed to close document store", "error", err)
				}
			}()

			server, err := buildServer(cfg, conversations)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (overrides $HAPA_API_ADDR)")
	return cmd
}

func newExportCommand(flags *globalFlags) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <conversation-id>",
		Short: "Export one conversation as JSON, CSV or text",
		Example: strings.Join([]string{
			"  hapa export user-42",
			"  hapa export user-42 --format csv --output user-42.csv",
		}, "\n"),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			conversations, docs, err := openConversations(cfg, true)
			if err != nil {
				return err
			}
			defer docs.Close()

			id := args[0]
			doc, err := conversations.Document(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(doc.Messages) == 0 && len(doc.Metadata) == 0 {
				return fmt.Errorf("conversation %s not found", id)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				w = file
			}
			if err := export.Write(w, doc, f); err != nil {
				return err
			}
			if output != "" {
				slog.Info("export: conversation exported", "conversationID", id, "format", f, "output", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(export.FormatJSON), "Export format: json, csv or text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored conversation ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			conversations, docs, err := openConversations(cfg, true)
			if err != nil {
				return err
			}
			defer docs.Close()

			ids, err := conversations.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No conversations found.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
}
