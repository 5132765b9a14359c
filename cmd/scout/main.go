// Scout is a conversational SRE assistant.
//
// It routes on-call questions through an Anthropic model that can call
// tools against Datadog APM, PagerDuty, Kubernetes clusters, and AWS
// SQS queues. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]), with
// environment variable overrides for every credential.
//
// Usage:
//
//	scout serve              Start the API server
//	scout ask <question>     Ask a single question (for testing)
//	scout tools              List the tools available with the current config
//	scout version            Print version and build information
//	scout -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/halverson/scout-sre-agent/internal/agent"
	"github.com/halverson/scout-sre-agent/internal/api"
	"github.com/halverson/scout-sre-agent/internal/archive"
	"github.com/halverson/scout-sre-agent/internal/buildinfo"
	"github.com/halverson/scout-sre-agent/internal/catalog"
	"github.com/halverson/scout-sre-agent/internal/config"
	"github.com/halverson/scout-sre-agent/internal/llm"
	"github.com/halverson/scout-sre-agent/internal/memory"
	"github.com/halverson/scout-sre-agent/internal/mqtt"
	"github.com/halverson/scout-sre-agent/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the scout command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of all servers and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:], parsed manually rather than with the flag
//     package to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: scout ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "tools":
		return runTools(ctx, stdout, configPath, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// scout is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Scout - Conversational SRE Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: scout [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  tools        List tools available with the current config")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintf(w, "  %s\n", strings.Join(config.DefaultSearchPaths(), ", "))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Without a config file, configuration is read from the environment")
	fmt.Fprintln(w, "(ANTHROPIC_API_KEY, DD_API_KEY, PAGERDUTY_API_KEY, ...).")
	return nil
}

// runAsk handles the "scout ask <question>" subcommand. It boots a
// minimal assistant (in-memory conversation store, no archive, no HTTP
// server) and processes a single question, printing the response to
// stdout. Useful for quick smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn)

	question := strings.Join(args, " ")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger.Debug("config loaded", "path", cfgPath)

	if !cfg.IsConfigured(config.IntegrationAnthropic) {
		return errors.New("anthropic api key not configured (set ANTHROPIC_API_KEY or anthropic.api_key)")
	}

	client := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	registry := tools.NewRegistry(catalog.Build(ctx, cfg, logger))

	// In-memory store is fine for a single question, nothing to persist.
	ctrl := agent.NewController(client, cfg.Anthropic.Model, registry, memory.NewStore(), nil, cfg.Agent.MaxToolRounds, logger)

	out := ctrl.SubmitStream(ctx, "cli", question, func(ev llm.StreamEvent) {
		switch ev.Kind {
		case llm.KindToken:
			fmt.Fprint(stdout, ev.Token)
		case llm.KindToolCallStart:
			if ev.ToolCall != nil {
				fmt.Fprintf(stderr, "*Using %s...*\n", ev.ToolCall.Function.Name)
			}
		}
	})
	fmt.Fprintln(stdout)

	if out.State == agent.StateFailed {
		return fmt.Errorf("ask failed: %s", out.Text)
	}
	return nil
}

// runTools prints the tool catalog the current configuration permits.
// Handy for verifying credentials are picked up before starting the
// server.
func runTools(ctx context.Context, stdout io.Writer, configPath string, outputFmt string) error {
	logger := newLogger(io.Discard, slog.LevelInfo)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	built := catalog.Build(ctx, cfg, logger)

	if outputFmt == "json" {
		names := make([]string, len(built))
		for i, t := range built {
			names[i] = t.Name
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"integrations": cfg.Status(),
			"tools":        names,
		})
	}

	fmt.Fprintf(stdout, "Integrations:\n")
	for name, ok := range cfg.Status() {
		state := "not configured"
		if ok {
			state = "configured"
		}
		fmt.Fprintf(stdout, "  %-12s %s\n", name+":", state)
	}
	fmt.Fprintf(stdout, "\nTools (%d):\n", len(built))
	for _, t := range built {
		marker := ""
		if t.Mutating {
			marker = " (mutating)"
		}
		fmt.Fprintf(stdout, "  %s%s\n", t.Name, marker)
	}
	return nil
}

// runServe handles the "scout serve" subcommand. It is the primary
// operating mode: loads config, opens the archive database, builds the
// tool catalog, starts the HTTP API server and the optional MQTT status
// publisher, and blocks until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The MQTT publisher sends its "offline" availability message
//  3. The HTTP server drains in-flight requests
//  4. The archive database is closed via defer
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Scout", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Anthropic.Model,
	)

	// --- Model backbone ---
	// Optional at startup so the status endpoint can report the missing
	// key instead of the process refusing to boot.
	var client llm.Client
	if cfg.IsConfigured(config.IntegrationAnthropic) {
		anthropic := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
		client = anthropic

		pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := anthropic.Ping(pingCtx); err != nil {
			logger.Warn("anthropic API not reachable at startup", "error", err)
		}
		pingCancel()
	} else {
		logger.Warn("anthropic api key not configured - chat requests will fail")
	}

	// --- Tool catalog ---
	// Built once from the configured integrations. POST /v1/refresh
	// rebuilds it at runtime after credential changes.
	registry := tools.NewRegistry(catalog.Build(ctx, cfg, logger))
	logger.Info("tool registry built", "tools", registry.Len())

	// --- Turn archive ---
	// Optional SQLite audit trail of every turn and tool call.
	var arch *archive.Store
	if cfg.ArchiveDB != "" {
		arch, err = archive.NewStore(cfg.ArchiveDB)
		if err != nil {
			return fmt.Errorf("open archive database %s: %w", cfg.ArchiveDB, err)
		}
		defer arch.Close()
		logger.Info("archive database opened", "path", cfg.ArchiveDB)
	}

	ctrl := agent.NewController(client, cfg.Anthropic.Model, registry, memory.NewStore(), arch, cfg.Agent.MaxToolRounds, logger)

	// --- API server ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, ctrl, registry, cfg, logger)

	// --- MQTT publisher ---
	// Optional: publishes availability and status topics so dashboards
	// can watch the assistant without polling the HTTP API.
	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		mqttPub = mqtt.New(cfg.MQTT, &mqttStatsAdapter{
			model:  cfg.Anthropic.Model,
			ctrl:   ctrl,
			server: server,
		}, logger)
		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher failed", "error", err)
			}
		}()
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		// Publish MQTT offline status before disconnecting.
		if mqttPub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttPub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		_ = server.Shutdown(context.Background())
	}()

	// Start the API server. This blocks until the server is shut down
	// via context cancellation or a fatal error.
	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}

	logger.Info("Scout stopped")
	return nil
}

// mqttStatsAdapter bridges the turn controller and API server counters
// to the [mqtt.StatsSource] interface.
type mqttStatsAdapter struct {
	model  string
	ctrl   *agent.Controller
	server *api.Server
}

func (a *mqttStatsAdapter) Uptime() time.Duration { return buildinfo.Uptime() }
func (a *mqttStatsAdapter) Version() string       { return buildinfo.Version }
func (a *mqttStatsAdapter) Model() string         { return a.model }
func (a *mqttStatsAdapter) ActiveSessions() int   { return a.ctrl.Store().Len() }

func (a *mqttStatsAdapter) TurnTotals() (int64, int64) {
	snap := a.server.Stats().Snapshot()
	return snap.TotalTurns, snap.FailedTurns
}

func (a *mqttStatsAdapter) TokenTotals() (int64, int64) {
	snap := a.server.Stats().Snapshot()
	return snap.TotalInputTokens, snap.TotalOutputTokens
}

// newLogger creates a structured text logger that writes to w at the
// given level. All log output in Scout goes through slog; this helper
// standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used and must exist. Otherwise,
// [config.FindConfig] searches the default locations; when no file is
// found, configuration falls back to environment variables alone.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.FromEnv(), "(environment)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
