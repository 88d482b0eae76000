package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sghr/warden/internal/approval"
	"github.com/sghr/warden/internal/auth"
	"github.com/sghr/warden/internal/client"
	"github.com/sghr/warden/internal/config"
	"github.com/sghr/warden/internal/events"
	"github.com/sghr/warden/internal/lock"
	"github.com/sghr/warden/internal/manager"
	"github.com/sghr/warden/internal/model"
	"github.com/sghr/warden/internal/notify"
	"github.com/sghr/warden/internal/oracle"
	"github.com/sghr/warden/internal/orchestrator"
	"github.com/sghr/warden/internal/policy"
	"github.com/sghr/warden/internal/server"
	"github.com/sghr/warden/internal/session"
	"github.com/sghr/warden/internal/setup"
	"github.com/sghr/warden/internal/tool"
)

const version = "0.1.0"

type logLevel int

const (
	logLevelDebug logLevel = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

func parseLogLevel(s string) logLevel {
	switch strings.ToLower(s) {
	case "debug":
		return logLevelDebug
	case "info":
		return logLevelInfo
	case "warn", "warning":
		return logLevelWarn
	case "error":
		return logLevelError
	default:
		return logLevelInfo
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "run":
		os.Exit(runLocal(os.Args[2:]))
	case "serve":
		runServe(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "approve":
		runApprove(os.Args[2:])
	case "version":
		fmt.Printf("warden %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type runFlags struct {
	goal       string
	cwd        string
	maxSteps   int
	maxRetries int
	provider   string
	model      string
	approval   string
	logLevelS  string
	configPath string
	teamMode   bool
}

func parseRunFlags(args []string) (runFlags, error) {
	f := runFlags{cwd: ".", maxRetries: -1, logLevelS: "info"}
	for i := 0; i < len(args); i++ {
		takeValue := func(name string) (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", name)
			}
			i++
			return args[i], nil
		}
		var err error
		switch args[i] {
		case "--goal":
			f.goal, err = takeValue("--goal")
		case "--cwd":
			f.cwd, err = takeValue("--cwd")
		case "--max-steps":
			var v string
			if v, err = takeValue("--max-steps"); err == nil {
				f.maxSteps, err = strconv.Atoi(v)
			}
		case "--max-retries":
			var v string
			if v, err = takeValue("--max-retries"); err == nil {
				f.maxRetries, err = strconv.Atoi(v)
			}
		case "--provider":
			f.provider, err = takeValue("--provider")
		case "--model":
			f.model, err = takeValue("--model")
		case "--approval":
			f.approval, err = takeValue("--approval")
			if err == nil && f.approval != orchestrator.ApprovalModeStrict && f.approval != orchestrator.ApprovalModeNormal {
				err = fmt.Errorf("--approval must be strict or normal")
			}
		case "--log-level":
			f.logLevelS, err = takeValue("--log-level")
		case "--config":
			f.configPath, err = takeValue("--config")
		case "--team-mode":
			f.teamMode = true
		default:
			err = fmt.Errorf("unknown flag: %s", args[i])
		}
		if err != nil {
			return runFlags{}, err
		}
	}
	return f, nil
}

// runLocal drives one run in the current terminal with a console approval
// gate. Returns the process exit code.
func runLocal(args []string) int {
	f, err := parseRunFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nusage: warden run --goal <text> [--cwd <dir>] [--max-steps N] [--max-retries N] [--provider <name>] [--model <name>] [--approval strict|normal] [--config <path>] [--team-mode] [--log-level <level>]\n", err)
		return 1
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	cwd, err := filepath.Abs(f.cwd)
	if err != nil {
		fmt.Printf("Invalid --cwd path: %s\n", f.cwd)
		return 2
	}
	if info, statErr := os.Stat(cwd); statErr != nil || !info.IsDir() {
		fmt.Printf("Invalid --cwd path: %s\n", cwd)
		return 2
	}
	if strings.TrimSpace(f.goal) == "" {
		fmt.Println("Goal must be non-empty.")
		return 2
	}

	provider := firstNonEmpty(f.provider, cfg.Provider)
	modelName := firstNonEmpty(f.model, modelFromEnv(provider), cfg.Model)
	maxSteps := cfg.Run.MaxSteps
	if f.maxSteps > 0 {
		maxSteps = f.maxSteps
	}
	maxRetries := cfg.Run.MaxRetries
	if f.maxRetries >= 0 {
		maxRetries = f.maxRetries
	}
	approvalMode := firstNonEmpty(f.approval, cfg.Run.ApprovalMode)

	logger := log.New(os.Stderr, "warden ", log.LstdFlags)
	if parseLogLevel(f.logLevelS) > logLevelInfo {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := oracle.NewClient(provider, modelName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "model client: %v\n", err)
		return 1
	}

	audit, err := events.NewAuditLogger("agent_run.jsonl", events.DefaultMaxLogSize, logger)
	if err != nil {
		logger.Printf("audit log unavailable: %v", err)
		audit = nil
	} else {
		defer audit.Close()
	}

	runner := tool.NewRunner(
		tool.NewFileTool(cwd),
		tool.NewShellTool(cwd, cfg.Shell.AllowedCommands, time.Duration(cfg.Shell.TimeoutSec)*time.Second),
		tool.NewWebTool(cfg.Web.MaxResults),
	)
	orch := orchestrator.New(client, policy.NewEngine(cwd, cfg.Shell.AllowedCommands), runner, audit, logger)

	sess := session.New(f.goal, cwd)
	finalText := orch.Run(sess, orchestrator.RunConfig{
		MaxSteps:     maxSteps,
		MaxRetries:   maxRetries,
		ApprovalMode: approvalMode,
		TeamMode:     f.teamMode,
	}, approval.NewConsoleGate(os.Stdin, os.Stdout))

	fmt.Println("\n=== Final Report ===")
	fmt.Println(finalText)
	fmt.Printf("Events logged: %d\n", len(sess.Events))
	return 0
}

func runServe(args []string) {
	configPath := ""
	addr := ""
	stateDir := ".warden"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--config requires a value")
				os.Exit(1)
			}
			i++
			configPath = args[i]
		case "--addr":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--addr requires a value")
				os.Exit(1)
			}
			i++
			addr = args[i]
		case "--state-dir":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--state-dir requires a value")
				os.Exit(1)
			}
			i++
			stateDir = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: warden serve [--config <path>] [--addr <host:port>] [--state-dir <dir>]\n", args[i])
			os.Exit(1)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	if err := os.MkdirAll(stateDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "create state dir: %v\n", err)
		os.Exit(1)
	}

	fl := lock.NewFileLock(filepath.Join(stateDir, "warden.lock"))
	if err := fl.TryLock(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer fl.Unlock()

	logger, logClose, err := openLogger(stateDir, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer logClose()

	if cfg.Server.Token == "" {
		logger.Printf("warning: no server token configured; API requests will be rejected until WARDEN_TOKEN or server.token is set")
	}
	tokens := auth.NewTokenStore()
	tokens.Put(cfg.Server.Token, 0)

	bus := events.NewBus(100)
	defer bus.Close()
	unsubNotify := notify.WatchApprovals(bus)
	defer unsubNotify()

	mgr := manager.New(manager.Deps{
		Config:          cfg,
		Logger:          logger,
		Bus:             bus,
		AuditDir:        filepath.Join(stateDir, "runs"),
		ApprovalTimeout: time.Duration(cfg.Server.ApprovalTimeoutSec) * time.Second,
	})
	srv := server.New(mgr, tokens, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Printf("daemon starting pid=%d addr=%s", os.Getpid(), addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := srv.Serve(gctx, addr)
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return config.Watch(gctx, configPath, logger, func(updated model.Config) {
			mgr.UpdateConfig(updated)
			if updated.Server.Token != "" && updated.Server.Token != cfg.Server.Token {
				tokens.Put(updated.Server.Token, 0)
				logger.Printf("server token rotated; previous token stays valid until restart")
			}
		})
	})

	if err := g.Wait(); err != nil {
		logger.Printf("daemon error: %v", err)
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
	logger.Printf("daemon stopped")
}

func runInit(args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := setup.Run(dir); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Initialized warden workspace in %s\n", dir)
}

// apiClient parses the shared --addr/--token flags for daemon-facing commands
// and returns the client plus the remaining positional arguments.
func apiClient(args []string) (*client.Client, []string) {
	addr := ""
	token := os.Getenv("WARDEN_TOKEN")
	var rest []string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--addr requires a value")
				os.Exit(1)
			}
			i++
			addr = args[i]
		case "--token":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--token requires a value")
				os.Exit(1)
			}
			i++
			token = args[i]
		default:
			rest = append(rest, args[i])
		}
	}
	if addr == "" {
		cfg, err := config.Load("")
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		addr = cfg.Server.Addr
		if token == "" {
			token = cfg.Server.Token
		}
	}
	return client.New(addr, token), rest
}

func runStatus(args []string) {
	c, rest := apiClient(args)

	if len(rest) == 0 {
		runs, err := c.ListRuns()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if len(runs) == 0 {
			fmt.Println("No runs.")
			return
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-18s %s", r.RunID, r.Status, r.Goal)
			if r.Pending != nil {
				line += fmt.Sprintf("  [pending %s: %s]", r.Pending.Stage, r.Pending.Tool)
			}
			fmt.Println(line)
		}
		return
	}

	snap, err := c.GetRun(rest[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Run:     %s\n", snap.RunID)
	fmt.Printf("Status:  %s\n", snap.Status)
	fmt.Printf("Goal:    %s\n", snap.Goal)
	fmt.Printf("Cwd:     %s\n", snap.Cwd)
	fmt.Printf("Events:  %d\n", snap.EventCount)
	if snap.Pending != nil {
		fmt.Printf("Pending: %s approval for %s (%s)\n", snap.Pending.Stage, snap.Pending.Tool, snap.Pending.Reason)
		fmt.Printf("         request_id=%s\n", snap.Pending.RequestID)
	}
	if snap.FinalText != "" {
		fmt.Printf("Final:   %s\n", snap.FinalText)
	}
	if snap.Error != "" {
		fmt.Printf("Error:   %s\n", snap.Error)
	}
}

// runApprove answers the run's currently pending request. The request ID is
// fetched from the snapshot so the caller only names the run and a decision.
func runApprove(args []string) {
	c, rest := apiClient(args)
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "usage: warden approve <run-id> <y|n|ad> [--addr <host:port>] [--token <token>]")
		os.Exit(1)
	}
	runID, decision := rest[0], rest[1]
	if !model.ValidApprovalAnswer(decision) {
		fmt.Fprintln(os.Stderr, "decision must be one of y/n/ad/yes/no.")
		os.Exit(1)
	}

	snap, err := c.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if snap.Pending == nil {
		fmt.Fprintln(os.Stderr, "No matching pending approval.")
		os.Exit(1)
	}
	if err := c.Approve(runID, snap.Pending.RequestID, decision); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recorded %q for %s on run %s\n", decision, snap.Pending.Tool, runID)
}

// openLogger writes to a file under the log dir, falling back to stderr.
func openLogger(stateDir string, logCfg model.LoggingConfig) (*log.Logger, func(), error) {
	dir := logCfg.Dir
	if dir == "" {
		dir = filepath.Join(stateDir, "logs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "daemon.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open daemon.log: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), func() { f.Close() }, nil
}

func modelFromEnv(provider string) string {
	switch provider {
	case oracle.ProviderOpenAI:
		return os.Getenv("OPENAI_MODEL")
	case oracle.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_MODEL")
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `warden %s — approval-gated agent execution engine

Usage: warden <command> [options]

Commands:
  init    Create the .warden state layout and a seed config.yaml
            [dir]                    target directory (default .)
  run     Run one goal locally with console approvals
            --goal <text>            goal for the agent (required)
            --cwd <dir>              working directory scope (default .)
            --max-steps <n>          step budget
            --max-retries <n>        retry budget per tool call
            --provider <name>        anthropic|openai
            --model <name>           model override
            --approval strict|normal extra-confirmation mode
            --config <path>          config file (default config.yaml)
            --team-mode              planner/executor/reviewer prompt framing
            --log-level <level>      debug|info|warn|error
  serve   Run the HTTP daemon for remote runs and approvals
            --config <path>          config file (default config.yaml)
            --addr <host:port>       listen address
            --state-dir <dir>        lock, logs and audit dir (default .warden)
  status  List daemon runs, or show one run in detail
            [run-id]                 run to inspect (omit to list all)
            --addr <host:port>       daemon address (default from config)
            --token <token>          bearer token (default WARDEN_TOKEN)
  approve Answer a run's pending approval request
            <run-id> <y|n|ad>        run and decision
            --addr, --token          as for status
  version Print version
  help    Show this help
`, version)
}
