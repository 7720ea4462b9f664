package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL       = "https://api.hireloop.io"
	defaultChunkInterval = time.Second
)

// cliConfig is the merged CLI configuration. Precedence, lowest to highest:
// config file, environment, flags.
type cliConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Ticket        string        `yaml:"ticket"`
	Modality      string        `yaml:"modality"`
	ChunkInterval time.Duration `yaml:"chunk_interval"`
	LogLevel      string        `yaml:"log_level"`
}

func parseCLIConfig(args []string, getenv func(string) string) (cliConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	fs := flag.NewFlagSet("interview-cli", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var configPath string
	fs.StringVar(&configPath, "config", strings.TrimSpace(getenv("HIRELOOP_CONFIG")), "optional YAML config file")

	var flagCfg cliConfig
	fs.StringVar(&flagCfg.BaseURL, "base-url", "", "Hireloop API base URL")
	fs.StringVar(&flagCfg.Ticket, "ticket", "", "interview ticket token")
	fs.StringVar(&flagCfg.Modality, "modality", "", "force modality: text or voice")
	fs.DurationVar(&flagCfg.ChunkInterval, "chunk-interval", 0, "audio chunk interval (e.g. 1s)")
	fs.StringVar(&flagCfg.LogLevel, "log-level", "", "log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		BaseURL:       defaultBaseURL,
		ChunkInterval: defaultChunkInterval,
		LogLevel:      "warn",
	}
	if configPath != "" {
		fileCfg, err := loadConfigFile(configPath)
		if err != nil {
			return cliConfig{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}
	cfg = mergeConfig(cfg, cliConfig{
		BaseURL: strings.TrimSpace(getenv("HIRELOOP_BASE_URL")),
		Ticket:  strings.TrimSpace(getenv("HIRELOOP_TICKET")),
	})
	cfg = mergeConfig(cfg, flagCfg)

	if err := validateCLIConfig(cfg); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func loadConfigFile(path string) (cliConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cliConfig{}, fmt.Errorf("read config %q: %w", path, err)
	}
	var cfg cliConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

func mergeConfig(base, override cliConfig) cliConfig {
	if v := strings.TrimSpace(override.BaseURL); v != "" {
		base.BaseURL = v
	}
	if v := strings.TrimSpace(override.Ticket); v != "" {
		base.Ticket = v
	}
	if v := strings.TrimSpace(override.Modality); v != "" {
		base.Modality = v
	}
	if override.ChunkInterval > 0 {
		base.ChunkInterval = override.ChunkInterval
	}
	if v := strings.TrimSpace(override.LogLevel); v != "" {
		base.LogLevel = v
	}
	return base
}

func validateCLIConfig(cfg cliConfig) error {
	if strings.TrimSpace(cfg.Ticket) == "" {
		return errors.New("ticket is required (flag -ticket, env HIRELOOP_TICKET or config file)")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return errors.New("base-url must be a valid absolute URL")
	}
	if parsed.User != nil {
		return errors.New("base-url must not include credentials")
	}
	switch cfg.Modality {
	case "", "text", "voice":
	default:
		return fmt.Errorf("invalid modality %q: expected text or voice", cfg.Modality)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return nil
}
