package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/driftlock/symbiont/internal/config"
	"github.com/driftlock/symbiont/internal/gateway"
	"github.com/driftlock/symbiont/internal/llm"
	"github.com/driftlock/symbiont/internal/pipeline"
	"github.com/driftlock/symbiont/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "symbiont",
	Short: "symbiont - conversational companion with durable memory",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in single message or REPL mode",
	RunE:  runChat,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (telegram + webui channels)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show symbiont status",
	RunE:  runStatus,
}

var messageFlag string

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	rootCmd.AddCommand(chatCmd, gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ChatOptions for running the chat loop with custom dependencies
type ChatOptions struct {
	Backend llm.Backend
	Store   store.FactStore
	Stdin   io.Reader
	Stdout  io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions runs the chat loop with injectable dependencies for
// testing.
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" && opts.Backend == nil {
		return fmt.Errorf("API key not set. Run 'symbiont onboard' or set SYMBIONT_API_KEY / OPENROUTER_API_KEY")
	}

	backend := opts.Backend
	if backend == nil {
		backend = llm.NewClient(cfg)
	}

	st := opts.Store
	if st == nil {
		st, err = gateway.OpenFactStore(cfg)
		if err != nil {
			return err
		}
	}

	coord := pipeline.NewCoordinator(cfg, backend, st)
	defer coord.Close()

	ctx := context.Background()
	if err := coord.RestoreSession(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "session restore warning: %v\n", err)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	if messageFlag != "" {
		result, err := coord.RunTurn(ctx, messageFlag, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "[%s] %s\n", result.Mood, result.Reply)
		return nil
	}

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}

	fmt.Fprintln(stdout, "symbiont chat. 'question time' to interrogate, 'done' to return, 'exit' to quit.")

	questionMode := false
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		switch strings.ToLower(text) {
		case "question time":
			questionMode = true
			fmt.Fprintln(stdout, "[QUESTION] MODE: INTERROGATION. WHAT SHALL WE DISCUSS?")
			continue
		case "done":
			if questionMode {
				questionMode = false
				fmt.Fprintln(stdout, "[NEUTRAL] RETURNING TO HOMEOSTASIS.")
				continue
			}
		}

		result, err := coord.RunTurn(ctx, text, questionMode)
		if err != nil {
			fmt.Fprintf(stdout, "[DISLIKE] SYSTEM FAILURE. (%v)\n", err)
			continue
		}
		fmt.Fprintf(stdout, "[%s] %s\n", result.Mood, result.Reply)
	}

	return scanner.Err()
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'symbiont onboard' or set SYMBIONT_API_KEY / OPENROUTER_API_KEY")
	}

	g, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	return g.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Printf("config already exists at %s\n", config.ConfigPath())
		return nil
	}

	cfg := config.DefaultConfig()
	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("config written to %s\n", config.ConfigPath())
	fmt.Println("set provider.apiKey (or SYMBIONT_API_KEY) before chatting")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("config:   %s\n", config.ConfigPath())
	fmt.Printf("model:    %s\n", cfg.Provider.Model)
	fmt.Printf("api key:  %s\n", presence(cfg.Provider.APIKey))

	switch {
	case cfg.Memory.StoreURL != "":
		fmt.Printf("memory:   remote (%s)\n", cfg.Memory.StoreURL)
	case cfg.Memory.LocalPath != "":
		fmt.Printf("memory:   local (%s)\n", cfg.Memory.LocalPath)
		if st, err := store.NewLocalStore(cfg.Memory.LocalPath); err == nil {
			if count, err := st.FactCount(context.Background()); err == nil {
				fmt.Printf("facts:    %d\n", count)
			}
			_ = st.Close()
		}
	default:
		fmt.Println("memory:   disabled")
	}

	fmt.Printf("telegram: %s\n", enabled(cfg.Channels.Telegram.Enabled))
	fmt.Printf("webui:    %s\n", enabled(cfg.Channels.WebUI.Enabled))
	return nil
}

func presence(s string) string {
	if strings.TrimSpace(s) == "" {
		return "not set"
	}
	return "set"
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
