package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"routa/internal/config"
	"routa/internal/coordination"
	"routa/internal/coordination/events"
	"routa/internal/llm"
	"routa/internal/orchestrator"
	"routa/internal/shared/logging"
	"routa/pkg/types"
)

var (
	flagConfig    string
	flagProvider  string
	flagModel     string
	flagAPIKey    string
	flagBaseURL   string
	flagParallel  int
	flagWorkspace string
	flagCwd       string
)

func main() {
	root := &cobra.Command{
		Use:   "routa",
		Short: "Multi-agent coordination runtime",
	}

	runCmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Plan, craft and verify a user request",
		Args:  cobra.ExactArgs(1),
		RunE:  runOrchestration,
	}
	runCmd.Flags().StringVar(&flagConfig, "config", "", "model config file (default: platform config path)")
	runCmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider tag (overrides config file)")
	runCmd.Flags().StringVar(&flagModel, "model", "", "model id (overrides config file)")
	runCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "API key (overrides config file)")
	runCmd.Flags().StringVar(&flagBaseURL, "base-url", "", "base URL (overrides config file)")
	runCmd.Flags().IntVar(&flagParallel, "parallel", 1, "max concurrent CRAFTER agents")
	runCmd.Flags().StringVar(&flagWorkspace, "workspace", "default", "workspace id")
	runCmd.Flags().StringVar(&flagCwd, "cwd", ".", "working directory for file tools")
	root.AddCommand(runCmd)

	modelsCmd := &cobra.Command{
		Use:   "models <provider>",
		Short: "List known models for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, model := range llm.GetAvailableModels(llm.ParseProvider(args[0])) {
				fmt.Printf("%-40s ctx=%-9d out=%d\n", model.ID, model.ContextLength, model.MaxOutputTokens)
			}
			return nil
		},
	}
	root.AddCommand(modelsCmd)

	if err := root.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func resolveModelConfig() (llm.NamedModelConfig, error) {
	var cfg llm.NamedModelConfig
	if flagProvider != "" && flagModel != "" {
		cfg = llm.NamedModelConfig{
			Name:     "cli",
			Provider: flagProvider,
			APIKey:   flagAPIKey,
			BaseURL:  flagBaseURL,
			Model:    flagModel,
		}
		return cfg, nil
	}

	opts := []config.Option{}
	if flagConfig != "" {
		opts = append(opts, config.WithEnvLookup(func(key string) (string, bool) {
			if key == "ROUTA_CONFIG" {
				return flagConfig, true
			}
			return os.LookupEnv(key)
		}))
	}
	return config.Load(opts...)
}

func runOrchestration(cmd *cobra.Command, args []string) error {
	llm.RegisterProvider(llm.ProviderCopilot, llm.NewCopilotProvider())

	modelCfg, err := resolveModelConfig()
	if err != nil {
		return err
	}

	executor, err := llm.CreateExecutor(modelCfg)
	if err != nil {
		return err
	}

	store := coordination.NewMemoryStore()
	bus := events.NewBus()
	defer bus.Close()

	orch := orchestrator.New(orchestrator.Config{
		WorkspaceID: flagWorkspace,
		Store:       store,
		Bus:         bus,
		ExecutorFor: func(coordination.AgentRole, coordination.ModelTier) (llm.Executor, error) {
			return executor, nil
		},
		Cwd:         flagCwd,
		MaxParallel: flagParallel,
		Logger:      logging.NewComponentLogger("cli"),
	})

	taskColor := color.New(color.FgCyan)
	toolColor := color.New(color.FgYellow)
	orch.SubscribeAll(func(taskID string, chunk types.StreamChunk) {
		switch chunk.Kind {
		case types.ChunkText:
			fmt.Print(chunk.Content)
		case types.ChunkToolCall:
			toolColor.Printf("\n[%s %s]\n", chunk.ToolName, chunk.ToolStatus)
		case types.ChunkError:
			color.Red("\n[error] %s\n", chunk.Message)
		case types.ChunkCompletionReport:
			taskColor.Printf("\n[task %s done] %s\n", taskID, chunk.Summary)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		orch.Cancel()
	}()

	result := orch.Run(ctx, args[0])

	fmt.Println()
	switch result.Status {
	case orchestrator.StatusSuccess:
		color.Green("Verdict: %s", result.Verdict)
		fmt.Println(result.VerdictText)
	case orchestrator.StatusNoTasks:
		color.Yellow("The planner produced no tasks.")
	case orchestrator.StatusCancelled:
		color.Yellow("Cancelled at phase %s.", result.ReachedPhase)
	default:
		color.Red("Failed at phase %s: %s", result.ReachedPhase, result.Reason)
	}
	for _, task := range result.Tasks {
		fmt.Printf("  - %s [%s]\n", task.Title, task.Status)
	}
	return nil
}
