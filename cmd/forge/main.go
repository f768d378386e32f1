// Package main provides the entry point for the Forge CLI: starting a
// conversation from an event, replaying/inspecting a stored conversation,
// and printing version info. Grounded in the teacher's cmd/kodelet/main.go
// init()/persistent-flags/subcommand-registration shape, trimmed to the
// orchestrator's actual surface.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/genai"

	forgeconfig "github.com/vanshchauhan21/forge/pkg/config"
	"github.com/vanshchauhan21/forge/pkg/compactor"
	"github.com/vanshchauhan21/forge/pkg/conversation"
	"github.com/vanshchauhan21/forge/pkg/dispatcher"
	"github.com/vanshchauhan21/forge/pkg/forgetype"
	"github.com/vanshchauhan21/forge/pkg/logger"
	"github.com/vanshchauhan21/forge/pkg/orchestrator"
	"github.com/vanshchauhan21/forge/pkg/presenter"
	"github.com/vanshchauhan21/forge/pkg/provider"
	"github.com/vanshchauhan21/forge/pkg/store"
	"github.com/vanshchauhan21/forge/pkg/telemetry"
	"github.com/vanshchauhan21/forge/pkg/version"
	"github.com/vanshchauhan21/forge/pkg/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Forge runs the conversation orchestrator for an agentic coding assistant",
	Long:  `Forge loads a workflow of agents and drives it from events through the conversation orchestrator.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help() //nolint:errcheck
	},
}

func buildProvider(cfg forgeconfig.Config) (provider.Provider, error) {
	retry := provider.DefaultRetryConfig()
	switch cfg.Provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		client := openai.NewClient(apiKey)
		return provider.NewOpenAIProviderWithMaxTokens(client, retry, cfg.MaxTokens), nil
	case "anthropic", "":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		return provider.NewAnthropicProviderWithMaxTokens(&client, retry, int64(cfg.MaxTokens)), nil
	case "google":
		apiKey := os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY not set")
		}
		client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
			APIKey:  apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("build google genai client: %w", err)
		}
		return provider.NewGoogleProviderWithMaxTokens(client, retry, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

func buildOrchestrator(ctx context.Context, cfg forgeconfig.Config) (*orchestrator.Orchestrator, *conversation.Store, error) {
	prov, err := buildProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	builtins := []dispatcher.Tool{
		dispatcher.NewBashTool(nil),
		dispatcher.FileReadTool{},
		dispatcher.FileWriteTool{},
		dispatcher.CompletionTool{},
		dispatcher.EventDispatchTool{},
	}
	if len(cfg.MCPServers) > 0 {
		mcpTools, err := dispatcher.DiscoverMCPTools(ctx, cfg.MCPServers)
		if err != nil {
			logger.G(ctx).WithError(err).Warn("some MCP servers failed to initialize")
		}
		builtins = append(builtins, mcpTools...)
	}
	registry := dispatcher.NewRegistry(builtins...)

	loaded := workflow.List(cfg.WorkflowDirs...)
	if len(loaded) == 0 {
		return nil, nil, fmt.Errorf("no workflows found under %v", cfg.WorkflowDirs)
	}
	renderer := loaded[0].Renderer

	summarizer := compactor.NewProviderSummarizer(prov)
	comp := compactor.New(summarizer, compactor.DefaultConfig())

	convStore := conversation.NewStore()
	orchCfg := cfg.Orchestrator.ToOrchestratorConfig(nil)
	orch := orchestrator.New(convStore, registry, prov, renderer, comp, orchCfg)

	return orch, convStore, nil
}

var runCmd = &cobra.Command{
	Use:   "run [workflow-name] [event-value]",
	Short: "Start a conversation from a user_task_init event and stream the response",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := forgeconfig.Load()
		if err != nil {
			return err
		}

		orch, convStore, err := buildOrchestrator(ctx, cfg)
		if err != nil {
			return err
		}

		loaded := workflow.List(cfg.WorkflowDirs...)
		var wf forgetype.Workflow
		found := false
		for _, l := range loaded {
			if strings.HasSuffix(l.Dir, args[0]) {
				wf = l.Workflow
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("workflow %q not found under %v", args[0], cfg.WorkflowDirs)
		}

		conv := convStore.Create(wf)

		eventValue := "start"
		if len(args) > 1 {
			eventValue = strings.Join(args[1:], " ")
		}
		evt, err := forgetype.NewEvent("user_task_init", eventValue)
		if err != nil {
			return err
		}

		pres := presenter.New()
		for resp := range orch.Dispatch(ctx, conv.ID, evt) {
			switch resp.Kind {
			case forgetype.ChatResponseText:
				fmt.Print(resp.Text)
				if resp.IsComplete {
					fmt.Println()
				}
			case forgetype.ChatResponseToolCallEnd:
				pres.ToolCall(resp.ToolName, resp.ToolResult.IsError, resp.ToolResult.Content)
			case forgetype.ChatResponseError:
				pres.Error(fmt.Errorf("%s: %s", resp.Error.Title, resp.Error.Description), resp.AgentID)
			case forgetype.ChatResponseUsage:
				pres.Stats(presenter.ConvertUsageStats(resp.Usage))
			}
		}

		pres.Success(fmt.Sprintf("conversation %s finished", conv.ID))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show [conversation-id]",
	Short: "Inspect a conversation persisted in the durable sqlite store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dbPath := viper.GetString("db_path")
		if dbPath == "" {
			p, err := store.DefaultDBPath()
			if err != nil {
				return err
			}
			dbPath = p
		}

		s, err := store.Open(ctx, dbPath)
		if err != nil {
			return err
		}
		defer s.Close()

		conv, ok, err := s.Find(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("conversation %s not found", args[0])
		}

		presenter.Section(fmt.Sprintf("Conversation %s", conv.ID))
		for id, st := range conv.AgentStates {
			presenter.Info(fmt.Sprintf("agent %s: %d turns", id, st.TurnCount))
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print forge's version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}

func main() {
	ctx := context.Background()

	forgeconfig.Init()

	cobra.OnInitialize(func() {
		if logLevel := viper.GetString("log_level"); logLevel != "" {
			if err := logger.SetLogLevel(logLevel); err != nil {
				logger.G(ctx).WithError(err).WithField("log_level", logLevel).Warn("invalid log level, using default")
			}
		}
		if logFormat := viper.GetString("log_format"); logFormat != "" {
			logger.SetLogFormat(logFormat)
		}
	})

	rootCmd.PersistentFlags().String("provider", "anthropic", "LLM provider to use (anthropic, openai, google)")
	rootCmd.PersistentFlags().String("model", "claude-sonnet-4-0", "Model id stored in config (each agent uses the model named in its own definition)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (json, text, fmt)")
	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))   //nolint:errcheck
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))         //nolint:errcheck
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")) //nolint:errcheck
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format")) //nolint:errcheck

	rootCmd.AddCommand(runCmd, showCmd, versionCmd)

	tracingCfg := telemetry.Config{
		Enabled:        viper.GetBool("tracing.enabled"),
		ServiceName:    "forge",
		ServiceVersion: version.Get().Version,
		SamplerType:    viper.GetString("tracing.sampler"),
		SamplerRatio:   viper.GetFloat64("tracing.ratio"),
	}
	shutdown, err := telemetry.InitTracer(ctx, tracingCfg)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to initialize tracing")
	} else if shutdown != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(sctx)
		}()
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("forge exited with error")
		os.Exit(1)
	}
}
