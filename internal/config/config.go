// Package config loads the configuration documents: server settings,
// visibility tiers, and agent behavior weights. Each concern is its own
// YAML document so the tiers and weights can be edited (and hot-reloaded)
// independently of the server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/murmurfeed/murmur/internal/domain"
)

const (
	ServerFile  = "server.yaml"
	TiersFile   = "tiers.yaml"
	RankingFile = "ranking.yaml"
	AgentFile   = "agent.yaml"
)

// Duration is a time.Duration that unmarshals from YAML strings like "45s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig holds the process-level settings.
type ServerConfig struct {
	// Port is the HTTP server port.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// DataDir is where content documents and the feed document live.
	DataDir string `yaml:"data_dir" validate:"required"`

	// LedgerPath is the agent action ledger database file.
	LedgerPath string `yaml:"ledger_path" validate:"required"`

	// RebuildCadence is the reconciliation tick interval.
	RebuildCadence Duration `yaml:"rebuild_cadence"`

	// BatchSize is the default feed page size for incremental display
	// loading.
	BatchSize int `yaml:"batch_size" validate:"min=1"`
}

// RankingConfig holds the feed ordering parameters.
type RankingConfig struct {
	// Sort is the feed sort order applied at rebuild.
	Sort string `yaml:"sort" validate:"oneof=newest_first most_liked"`
}

// SampleRatios partitions the snapshot target count across the three
// sampling buckets.
type SampleRatios struct {
	Recent  float64 `yaml:"recent" validate:"min=0,max=1"`
	Engaged float64 `yaml:"engaged" validate:"min=0,max=1"`
	Random  float64 `yaml:"random" validate:"min=0,max=1"`
}

// AgentConfig holds the autonomous engagement scheduler's behavior weights.
type AgentConfig struct {
	Enabled               bool           `yaml:"enabled"`
	Persona               string         `yaml:"persona" validate:"required"`
	Model                 string         `yaml:"model"`
	Platform              string         `yaml:"platform"`
	CycleCadence          Duration       `yaml:"cycle_cadence"`
	ActionsPerMinute      int            `yaml:"actions_per_minute" validate:"min=0"`
	ActProbabilityPercent int            `yaml:"act_probability_percent" validate:"min=0,max=100"`
	SampleSize            int            `yaml:"sample_size" validate:"min=1"`
	SampleRatios          SampleRatios   `yaml:"feed_sample_ratios"`
	DeclinePercent        int            `yaml:"decline_percent" validate:"min=0,max=100"`
	MinActionsPerCycle    int            `yaml:"min_actions_per_cycle" validate:"min=0"`
	MaxActionsPerCycle    int            `yaml:"max_actions_per_cycle" validate:"min=1"`
	RateLimitBackoff      Duration       `yaml:"rate_limit_backoff"`
	ActionWeights         map[string]int `yaml:"action_weights"`
}

// tiersDocument is the shape of tiers.yaml.
type tiersDocument struct {
	Tiers []domain.Tier `yaml:"tiers" validate:"min=1,dive"`
}

// Config is the merged view of all four documents.
type Config struct {
	Server  ServerConfig
	Tiers   []domain.Tier
	Ranking RankingConfig
	Agent   AgentConfig
}

// DefaultConfig returns a Config with sensible defaults; a missing
// document simply keeps them.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           3000,
			DataDir:        "data",
			LedgerPath:     "data/ledger.db",
			RebuildCadence: Duration(5 * time.Minute),
			BatchSize:      20,
		},
		Tiers:   domain.DefaultTiers(),
		Ranking: RankingConfig{Sort: domain.SortNewestFirst},
		Agent: AgentConfig{
			Enabled:               true,
			Persona:               "murmur_bot",
			Model:                 "gpt-4o-mini",
			Platform:              "murmur",
			CycleCadence:          Duration(45 * time.Second),
			ActionsPerMinute:      3,
			ActProbabilityPercent: 35,
			SampleSize:            12,
			SampleRatios:          SampleRatios{Recent: 0.5, Engaged: 0.3, Random: 0.2},
			DeclinePercent:        20,
			MinActionsPerCycle:    0,
			MaxActionsPerCycle:    3,
			RateLimitBackoff:      Duration(2 * time.Minute),
			ActionWeights: map[string]int{
				domain.ToolLikePost:       4,
				domain.ToolCommentOnPost:  3,
				domain.ToolReactPost:      2,
				domain.ToolLikeComment:    2,
				domain.ToolReplyToComment: 2,
				domain.ToolCreatePost:     1,
				domain.ToolSharePost:      1,
			},
		},
	}
}

// Load reads the configuration documents under dir, layering them over
// defaults, applies environment overrides, and validates the result. A
// missing document is not an error; a malformed one is.
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig()

	if err := decodeFile(filepath.Join(dir, ServerFile), &cfg.Server); err != nil {
		return nil, err
	}
	tiers, err := LoadTiers(dir)
	if err != nil {
		return nil, err
	}
	if tiers != nil {
		cfg.Tiers = tiers
	}
	if err := decodeFile(filepath.Join(dir, RankingFile), &cfg.Ranking); err != nil {
		return nil, err
	}
	agent, err := LoadAgent(dir)
	if err != nil {
		return nil, err
	}
	if agent != nil {
		cfg.Agent = *agent
	}

	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if d := os.Getenv("MURMUR_DATA_DIR"); d != "" {
		cfg.Server.DataDir = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTiers reads just the tiers document. Returns nil when the document
// is absent.
func LoadTiers(dir string) ([]domain.Tier, error) {
	var doc tiersDocument
	path := filepath.Join(dir, TiersFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	return doc.Tiers, nil
}

// LoadRanking reads just the ranking document over its defaults. Returns
// nil when the document is absent.
func LoadRanking(dir string) (*RankingConfig, error) {
	path := filepath.Join(dir, RankingFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	ranking := DefaultConfig().Ranking
	if err := decodeFile(path, &ranking); err != nil {
		return nil, err
	}
	return &ranking, nil
}

// LoadAgent reads just the agent behavior document over its defaults.
// Returns nil when the document is absent.
func LoadAgent(dir string) (*AgentConfig, error) {
	path := filepath.Join(dir, AgentFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	agent := DefaultConfig().Agent
	if err := decodeFile(path, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// Validate checks ranges and required fields across all documents.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := v.Struct(c.Ranking); err != nil {
		return fmt.Errorf("ranking config: %w", err)
	}
	if err := v.Struct(c.Agent); err != nil {
		return fmt.Errorf("agent config: %w", err)
	}
	if err := v.Struct(tiersDocument{Tiers: c.Tiers}); err != nil {
		return fmt.Errorf("tiers config: %w", err)
	}
	if c.Agent.MinActionsPerCycle > c.Agent.MaxActionsPerCycle {
		return fmt.Errorf("agent config: min_actions_per_cycle %d exceeds max_actions_per_cycle %d",
			c.Agent.MinActionsPerCycle, c.Agent.MaxActionsPerCycle)
	}
	return nil
}

func decodeFile(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}
