package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bhandras/delight-acp/pkg/logger"
)

type Config struct {
	// DelightHome is the directory where local session metadata is stored.
	DelightHome string
	// ClaudePath is the Claude Code executable.
	ClaudePath string
	// Model selects the upstream model (empty means the upstream default).
	Model string
	// PlanDir is the directory plan-mode writes are confined to.
	PlanDir string
	// PolicyFile is an optional YAML file overriding the tool policy data.
	PolicyFile string
	// DecisionTimeout bounds each human decision. Zero waits indefinitely.
	DecisionTimeout time.Duration

	// Debug enables verbose logging.
	Debug bool
	// LogLevel is the minimum level written to stderr.
	LogLevel logger.Level
	// Agent selects the upstream backend (claude|fake).
	Agent string
}

// Load loads configuration from environment and defaults.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	delightHome := os.Getenv("DELIGHT_HOME_DIR")
	if delightHome == "" {
		delightHome = filepath.Join(homeDir, ".delight")
	}

	// Ensure delight home exists
	if err := os.MkdirAll(delightHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create delight home: %w", err)
	}

	claudePath := os.Getenv("DELIGHT_CLAUDE_PATH")
	if claudePath == "" {
		claudePath = "claude"
	}

	planDir := os.Getenv("DELIGHT_PLAN_DIR")
	if planDir == "" {
		claudeHome := os.Getenv("CLAUDE_CONFIG_DIR")
		if claudeHome == "" {
			claudeHome = filepath.Join(homeDir, ".claude")
		}
		planDir = filepath.Join(claudeHome, "plans")
	}

	var timeout time.Duration
	if raw := strings.TrimSpace(os.Getenv("DELIGHT_DECISION_TIMEOUT")); raw != "" {
		timeout, err = time.ParseDuration(raw)
		if err != nil || timeout < 0 {
			return nil, fmt.Errorf("invalid DELIGHT_DECISION_TIMEOUT %q", raw)
		}
	}

	debug := os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"
	if !debug {
		debug = os.Getenv("DELIGHT_DEBUG") == "true" || os.Getenv("DELIGHT_DEBUG") == "1"
	}

	level := logger.LevelInfo
	if debug {
		level = logger.LevelDebug
	}
	if raw := os.Getenv("DELIGHT_LOG_LEVEL"); raw != "" {
		level, err = logger.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid DELIGHT_LOG_LEVEL: %w", err)
		}
	}

	agent := os.Getenv("DELIGHT_AGENT")
	if agent == "" {
		agent = "claude"
	}
	if os.Getenv("DELIGHT_FAKE_AGENT") == "true" || os.Getenv("DELIGHT_FAKE_AGENT") == "1" {
		agent = "fake"
	}
	if agent != "claude" && agent != "fake" {
		return nil, fmt.Errorf("invalid DELIGHT_AGENT %q (expected claude or fake)", agent)
	}

	return &Config{
		DelightHome:     delightHome,
		ClaudePath:      claudePath,
		Model:           os.Getenv("DELIGHT_MODEL"),
		PlanDir:         planDir,
		PolicyFile:      os.Getenv("DELIGHT_POLICY_FILE"),
		DecisionTimeout: timeout,
		Debug:           debug,
		LogLevel:        level,
		Agent:           agent,
	}, nil
}

// Save saves configuration to disk (currently just creates directories)
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DelightHome, 0700); err != nil {
		return err
	}
	return os.MkdirAll(c.PlanDir, 0700)
}
