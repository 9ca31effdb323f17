// Package main provides the agentcore CLI: a thin command that wires the
// Tool Catalog/Registry, LLM Client, Context Tracker, Compactor, Planner,
// Agent Loop, Worker Host, and Worker Manager together for local exercising
// of a single session from a terminal, matching the teacher's cmd/nexus
// convention of a runnable binary built around cobra.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agentcore-dev/agentcore/internal/agent"
	"github.com/agentcore-dev/agentcore/internal/config"
	"github.com/agentcore-dev/agentcore/internal/observability"
	"github.com/agentcore-dev/agentcore/internal/worker"
	"github.com/agentcore-dev/agentcore/pkg/models"
)

var (
	version = "dev"

	configPath  string
	autoApprove bool
	workDir     string
)

// rootLogger is the process-wide redacting logger: every subsystem that
// still threads a bare *slog.Logger (ManagerConfig, HostConfig, the LLM
// client) receives rootLogger.Slog() so API keys and tokens stay out of
// stderr regardless of which component logs them.
var rootLogger = observability.MustNewLogger(observability.LogConfig{
	Level:  levelFromEnv(),
	Format: "json",
	Output: os.Stderr,
})

func levelFromEnv() string {
	if l := os.Getenv("AGENTCORE_LOG_LEVEL"); l != "" {
		return l
	}
	return "info"
}

func main() {
	slog.SetDefault(rootLogger.Slog())

	if err := buildRootCmd().Execute(); err != nil {
		rootLogger.Error(context.Background(), "command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentcore",
		Short:        "agentcore - local desktop coding-agent core",
		Version:      version,
		SilenceUsage: true,
	}
	defaultConfig := filepath.Join(defaultConfigDir(), "config.json")
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "path to config.json (§6)")
	root.AddCommand(buildRunCmd())
	return root
}

func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".agentcore")
}

func buildRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start one interactive session, reading prompts from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve every tool call without prompting")
	cmd.Flags().StringVar(&workDir, "workdir", ".", "working directory the session operates in")
	return cmd
}

// runInteractive wires one Worker Host/Manager pair and drives it from
// stdin, printing every broadcast and resolving approval/ask-user
// round-trips from the terminal (or automatically, under --auto-approve).
func runInteractive(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Settings.DebugMode {
		rootLogger = observability.MustNewLogger(observability.LogConfig{Level: "debug", Format: "json", Output: os.Stderr, AddSource: true})
		slog.SetDefault(rootLogger.Slog())
	}
	endpoint, ok := cfg.CurrentEndpointConfig()
	if !ok {
		return fmt.Errorf("no current endpoint configured in %s; set AGENTCORE_BASE_URL/AGENTCORE_API_KEY or edit the config", configPath)
	}

	const sessionID = "cli"
	ctx = observability.AddSessionID(ctx, sessionID)

	// Metrics and the tracer are process-wide singletons: Metrics registers
	// against Prometheus's global default registry and must be built
	// exactly once, and the tracer owns a single OTLP exporter connection.
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "agentcore",
		ServiceVersion: version,
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	defer func() { _ = shutdownTracer(context.Background()) }()

	events := make(chan worker.WorkerToMain, 64)
	runDone := make(chan struct{}, 1)
	manager := worker.NewManager(worker.ManagerConfig{
		RegistryFactory: func() *agent.Registry { return agent.NewRegistry() },
		ToUI:            func(msg worker.WorkerToMain) { events <- msg },
		Logger:          rootLogger.Slog(),
		Metrics:         metrics,
		Tracer:          tracer,
		ObsLogger:       rootLogger,
	})

	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return fmt.Errorf("resolve workdir: %w", err)
	}

	if err := manager.CreateWorker(ctx, sessionID, worker.HostConfig{
		BaseURL:          endpoint.BaseURL,
		APIKey:           endpoint.APIKey,
		DefaultModel:     cfg.CurrentModel,
		WorkingDirectory: absWorkDir,
	}); err != nil {
		rootLogger.WithContext(ctx).Error(ctx, "create worker failed", "error", err)
		return fmt.Errorf("create worker: %w", err)
	}
	defer manager.TerminateWorker(sessionID)
	rootLogger.WithContext(ctx).Info(ctx, "worker ready", "work_dir", absWorkDir, "model", cfg.CurrentModel)

	go relayEvents(ctx, manager, sessionID, events, runDone, autoApprove || cfg.Settings.AutoApprove)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("agentcore ready. Type a prompt and press enter (Ctrl-D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		runCtx := observability.AddRequestID(ctx, uuid.NewString())
		rootLogger.WithContext(runCtx).Debug(runCtx, "dispatching run", "message_len", len(line))
		manager.Run(sessionID, worker.RunPayload{UserMessage: line, AutoMode: autoApprove})
		select {
		case <-ctx.Done():
			return nil
		case <-runDone:
		}
	}
}

// relayEvents prints every worker event, answers approval/ask-user
// round-trips either from the terminal or, under autoApprove, immediately,
// and signals runDone once a run finishes so the prompt loop can resume.
func relayEvents(ctx context.Context, manager *worker.Manager, sessionID string, events <-chan worker.WorkerToMain, runDone chan<- struct{}, autoApprove bool) {
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-events:
			switch msg.Kind {
			case worker.EvtComplete:
				if msg.Complete.Result.Success {
					fmt.Printf("\n%s\n", msg.Complete.Result.Response)
				} else {
					fmt.Printf("\nrun failed: %s\n", msg.Complete.Result.Error)
					rootLogger.WithContext(ctx).Warn(ctx, "run failed", "session_id", msg.SessionID, "error", msg.Complete.Result.Error)
				}
				select {
				case runDone <- struct{}{}:
				default:
				}
			case worker.EvtError:
				fmt.Printf("\nerror: %s\n", msg.Error.Error)
				rootLogger.WithContext(ctx).Error(ctx, "worker error", "session_id", msg.SessionID, "error", msg.Error.Error)
				select {
				case runDone <- struct{}{}:
				default:
				}
			case worker.EvtBroadcast:
				fmt.Printf("\n[%s] %v\n", msg.Broadcast.Channel, msg.Broadcast.Data)
			case worker.EvtApprovalRequest:
				decision := models.ApprovalApprovedOnce
				if !autoApprove {
					fmt.Printf("\napprove %s(%v)? [y/N] ", msg.ApprovalRequest.ToolName, msg.ApprovalRequest.Args)
					answer, _ := reader.ReadString('\n')
					if answer != "y\n" && answer != "Y\n" {
						decision = models.ApprovalRejected
					}
				}
				manager.Send(sessionID, worker.MainToWorker{
					Kind: worker.MsgApprovalResponse,
					ApprovalResponse: &worker.ApprovalResponsePayload{
						RequestID: msg.ApprovalRequest.RequestID,
						Result:    &models.ApprovalOutcome{Decision: decision},
					},
				})
			case worker.EvtAskUser:
				response := ""
				if !autoApprove {
					fmt.Printf("\n%s\n> ", msg.AskUser.Request)
					response, _ = reader.ReadString('\n')
				}
				manager.Send(sessionID, worker.MainToWorker{
					Kind: worker.MsgAskUserResponse,
					AskUserResponse: &worker.AskUserResponsePayload{
						RequestID: msg.AskUser.RequestID,
						Response:  response,
					},
				})
			case worker.EvtFlashWindows, worker.EvtShowTaskWindow, worker.EvtFileEdit, worker.EvtCompactResult, worker.EvtReady:
				// no terminal affordance for these; desktop UI would render them.
			}
		}
	}
}
