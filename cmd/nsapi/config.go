package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ryhazerus/nsapi"
)

// duration lets YAML carry values like "45s" or "5m".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// Config holds the CLI configuration file contents.
type Config struct {
	// Agent is the User-Agent identification; the --agent flag overrides it.
	Agent string `yaml:"agent"`

	// Telegram overrides the default telegram pacing intervals.
	Telegram struct {
		APIInterval         duration `yaml:"api_interval"`
		RecruitmentInterval duration `yaml:"recruitment_interval"`
	} `yaml:"telegram"`

	// CredStore is a path to the SQLite credential database. Empty keeps
	// credentials in memory for the lifetime of the process.
	CredStore string `yaml:"credstore"`
}

// loadConfig reads the YAML configuration file at path. An empty path
// returns a zero config.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// setup applies the persistent flags and config file: it configures
// logging, sets the User-Agent, and constructs the limiter.
func setup(cmd *cobra.Command) (*nsapi.Limiter, Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, cfg, err
	}

	levelName, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	agent, _ := cmd.Flags().GetString("agent")
	if agent == "" {
		agent = cfg.Agent
	}
	if agent != "" {
		if err := nsapi.SetAgent(agent); err != nil {
			return nil, cfg, err
		}
	}

	opts := []nsapi.Option{nsapi.WithLogger(logger)}
	if cfg.Telegram.APIInterval > 0 || cfg.Telegram.RecruitmentInterval > 0 {
		opts = append(opts, nsapi.WithTelegramIntervals(
			time.Duration(cfg.Telegram.APIInterval),
			time.Duration(cfg.Telegram.RecruitmentInterval)))
	}
	return nsapi.New(opts...), cfg, nil
}
