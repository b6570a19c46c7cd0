package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bhandras/delight-acp/internal/agentengine"
	"github.com/bhandras/delight-acp/internal/agentengine/claudeengine"
	"github.com/bhandras/delight-acp/internal/agentengine/fakeengine"
	"github.com/bhandras/delight-acp/internal/config"
	"github.com/bhandras/delight-acp/internal/permission"
	"github.com/bhandras/delight-acp/internal/session"
	"github.com/bhandras/delight-acp/internal/storage"
	"github.com/bhandras/delight-acp/internal/version"
	"github.com/bhandras/delight-acp/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Errorf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		printUsage(os.Stdout)
		return nil
	}
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.LogLevel)

	if len(args) > 0 {
		switch args[0] {
		case "help":
			printUsage(os.Stdout)
			return nil
		case "version":
			fmt.Printf("%s %s\n", version.AgentName, version.RichVersion())
			return nil
		default:
			return fmt.Errorf("unknown command %q", args[0])
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to prepare directories: %w", err)
	}
	logger.Debugf("Config: DelightHome=%s, PlanDir=%s, Agent=%s", cfg.DelightHome, cfg.PlanDir, cfg.Agent)

	rules, err := permission.LoadRules(cfg.PolicyFile)
	if err != nil {
		return err
	}
	store, err := storage.NewStore(cfg.DelightHome)
	if err != nil {
		return err
	}
	factory, agentType, err := newFactory(cfg)
	if err != nil {
		return err
	}

	srv := newServer(os.Stdin, os.Stdout)
	policy, err := permission.NewEngine(permission.Config{
		Rules:           rules,
		PlanDir:         cfg.PlanDir,
		Decider:         srv,
		DecisionTimeout: cfg.DecisionTimeout,
	})
	if err != nil {
		return err
	}
	srv.registry, err = session.NewRegistry(session.Options{
		Upstreams: factory,
		Policy:    policy,
		Sink:      srv,
		Store:     store,
		AgentType: agentType,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("%s %s ready (agent=%s)", version.AgentName, version.Version(), agentType)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newFactory(cfg *config.Config) (agentengine.Factory, agentengine.AgentType, error) {
	switch agentengine.AgentType(cfg.Agent) {
	case agentengine.AgentClaude, "":
		return claudeengine.NewFactory(claudeengine.Options{
			Path:  cfg.ClaudePath,
			Model: cfg.Model,
			Debug: cfg.Debug,
		}), agentengine.AgentClaude, nil
	case agentengine.AgentFake:
		return &fakeengine.Factory{Setup: fakeengine.Echo}, agentengine.AgentFake, nil
	}
	return nil, "", fmt.Errorf("unknown agent %q", cfg.Agent)
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("delight-acp", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	agent := fs.String("agent", "", "Agent backend (claude|fake)")
	claudePath := fs.String("claude-path", "", "Claude Code executable")
	model := fs.String("model", "", "Model passed to the agent")
	planDir := fs.String("plan-dir", "", "Directory plan-mode writes are confined to")
	policyFile := fs.String("policy", "", "YAML tool policy file")
	decisionTimeout := fs.Duration("decision-timeout", -1, "Timeout for each permission decision (0 waits indefinitely)")
	logLevel := fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *agent != "" {
		if *agent != string(agentengine.AgentClaude) && *agent != string(agentengine.AgentFake) {
			return nil, fmt.Errorf("invalid --agent %q (expected claude or fake)", *agent)
		}
		cfg.Agent = *agent
	}
	if *claudePath != "" {
		cfg.ClaudePath = *claudePath
	}
	if *model != "" {
		cfg.Model = *model
	}
	if *planDir != "" {
		cfg.PlanDir = *planDir
	}
	if *policyFile != "" {
		cfg.PolicyFile = *policyFile
	}
	if *decisionTimeout >= 0 {
		cfg.DecisionTimeout = *decisionTimeout
	} else if *decisionTimeout != -1 {
		return nil, fmt.Errorf("invalid --decision-timeout %s", *decisionTimeout)
	}
	if *logLevel != "" {
		level, err := logger.ParseLevel(*logLevel)
		if err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	if *debug {
		cfg.Debug = true
		if cfg.LogLevel > logger.LevelDebug {
			cfg.LogLevel = logger.LevelDebug
		}
	}

	return fs.Args(), nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `%s - Claude Code agent sessions over newline-delimited JSON-RPC

Usage:
  %s [flags]            Serve sessions on stdin/stdout
  %s version            Print version
  %s help               Show this help

Flags:
  --agent <claude|fake>        Agent backend (default claude)
  --claude-path <path>         Claude Code executable
  --model <name>               Model passed to the agent
  --plan-dir <dir>             Directory plan-mode writes are confined to
  --policy <file>              YAML tool policy file
  --decision-timeout <dur>     Timeout for each permission decision
  --log-level <level>          trace|debug|info|warn|error
  --debug                      Enable debug logging

Environment:
  DELIGHT_HOME_DIR, DELIGHT_CLAUDE_PATH, DELIGHT_MODEL, DELIGHT_PLAN_DIR,
  DELIGHT_POLICY_FILE, DELIGHT_DECISION_TIMEOUT, DELIGHT_LOG_LEVEL,
  DELIGHT_AGENT, DELIGHT_FAKE_AGENT, DEBUG

Logs are written to stderr; stdout carries the protocol.
`, version.AgentName, version.AgentName, version.AgentName, version.AgentName)
}
