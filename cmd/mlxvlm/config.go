package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the mlxvlm configuration file
// (~/.config/mlxvlm/config.yaml). Sampling fields are pointers so "not set"
// stays distinguishable from an explicit zero.
type Config struct {
	Vocab string `yaml:"vocab"`

	// Sampling defaults
	Temperature       *float64 `yaml:"temperature"`
	TopP              *float64 `yaml:"top_p"`
	RepetitionPenalty *float64 `yaml:"repetition_penalty"`
	RepetitionContext *int64   `yaml:"repetition_context_size"`
	MaxTokens         *int64   `yaml:"max_tokens"`
	Seed              *int64   `yaml:"seed"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mlxvlm", "config.yaml")
}

// applyGenerateConfig applies config file defaults to generate command
// variables when the corresponding CLI flag was not explicitly set.
func applyGenerateConfig(c *cli.Command, cfg Config,
	temp, topP, repeatPenalty *float64, repeatCtx, maxTokens, seed *int64, streamMode *string,
) {
	if cfg.Vocab != "" && !c.IsSet("vocab") {
		vocabPath = cfg.Vocab
	}
	if cfg.Temperature != nil && !c.IsSet("temp") && !c.IsSet("temperature") {
		*temp = *cfg.Temperature
	}
	if cfg.TopP != nil && !c.IsSet("top-p") && !c.IsSet("top_p") {
		*topP = *cfg.TopP
	}
	if cfg.RepetitionPenalty != nil && !c.IsSet("repetition-penalty") {
		*repeatPenalty = *cfg.RepetitionPenalty
	}
	if cfg.RepetitionContext != nil && !c.IsSet("repetition-context-size") {
		*repeatCtx = *cfg.RepetitionContext
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		*maxTokens = *cfg.MaxTokens
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		*seed = *cfg.Seed
	}
	if cfg.StreamMode != "" && !c.IsSet("stream-mode") {
		*streamMode = cfg.StreamMode
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.Vocab != "" && !c.IsSet("vocab") {
		vocabPath = cfg.Vocab
	}
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
