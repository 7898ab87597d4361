package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix   = "BANDIT_"
	envFileName = "BANDIT_CONFIG_FILE"
)

type Config struct {
	App        AppConfig        `koanf:"app"`
	Server     ServerConfig     `koanf:"server"`
	Engine     EngineConfig     `koanf:"engine"`
	Evaluation EvaluationConfig `koanf:"evaluation"`
	Storage    StorageConfig    `koanf:"storage"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	JWT        JWTConfig        `koanf:"jwt"`
	Notify     NotifyConfig     `koanf:"notify"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	GRPCPort        string        `koanf:"grpc_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type EngineConfig struct {
	Arms            []string `koanf:"arms"`
	Variant         string   `koanf:"variant"`
	Alpha           float64  `koanf:"alpha"`
	Epsilon         float64  `koanf:"epsilon"`
	PriorScale      float64  `koanf:"prior_scale"`
	Lambda          float64  `koanf:"lambda"`
	Dim             int      `koanf:"dim"`
	Seed            uint64   `koanf:"seed"`
	RewardMin       float64  `koanf:"reward_min"`
	RewardMax       float64  `koanf:"reward_max"`
	MinPropensity   float64  `koanf:"min_propensity"`
	PropensityDraws int      `koanf:"propensity_draws"`
	ReinvertEvery   int      `koanf:"reinvert_every"`
	UnitBall        bool     `koanf:"unit_ball"`
}

type EvaluationConfig struct {
	ClipPercentile      float64 `koanf:"clip_percentile"`
	MinESSRatio         float64 `koanf:"min_ess_ratio"`
	MinSupportRatio     float64 `koanf:"min_support_ratio"`
	ExtremePropensity   float64 `koanf:"extreme_propensity"`
	MaxExtremeMass      float64 `koanf:"max_extreme_mass"`
	MaxWeightRatio      float64 `koanf:"max_weight_ratio"`
	DriftThreshold      float64 `koanf:"drift_threshold"`
	MinBaselineCoverage float64 `koanf:"min_baseline_coverage"`
}

// StorageConfig picks the adapter behind each collaborator.
type StorageConfig struct {
	DecisionLog    string `koanf:"decision_log"` // memory | postgres
	Ledger         string `koanf:"ledger"`       // memory | redis
	Snapshots      string `koanf:"snapshots"`    // memory | sqlite
	Exploration    string `koanf:"exploration"`  // none | postgres
	SQLitePath     string `koanf:"sqlite_path"`
	SnapshotEvery  int    `koanf:"snapshot_every"`
	RestoreOnStart bool   `koanf:"restore_on_start"`
}

type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"ssl_mode"`
}

type RedisConfig struct {
	Host      string        `koanf:"host"`
	Port      string        `koanf:"port"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	LedgerTTL time.Duration `koanf:"ledger_ttl"`
}

type JWTConfig struct {
	Enabled   bool          `koanf:"enabled"`
	SecretKey string        `koanf:"secret_key"`
	Issuer    string        `koanf:"issuer"`
	TTL       time.Duration `koanf:"ttl"`
}

// NotifyConfig points shift alerts at a webhook. An empty URL disables them.
type NotifyConfig struct {
	WebhookURL        string        `koanf:"webhook_url"`
	BasicAuthUsername string        `koanf:"basic_auth_username"`
	BasicAuthPassword string        `koanf:"basic_auth_password"`
	Timeout           time.Duration `koanf:"timeout"`
}

func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "reply-bandit",
			Version:     "1.0.0",
			Environment: "development",
			LogLevel:    "info",
		},
		Server: ServerConfig{
			Port:            "8080",
			GRPCPort:        "",
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: EngineConfig{
			Arms:            []string{"warm", "concise", "curious", "playful"},
			Variant:         "ucb",
			Alpha:           1.0,
			Epsilon:         0.05,
			PriorScale:      1.0,
			Lambda:          1.0,
			Dim:             9,
			Seed:            7,
			RewardMin:       -1,
			RewardMax:       1,
			MinPropensity:   1e-4,
			PropensityDraws: 256,
			ReinvertEvery:   50,
			UnitBall:        true,
		},
		Evaluation: EvaluationConfig{
			ClipPercentile:      0.95,
			MinESSRatio:         0.1,
			MinSupportRatio:     0.1,
			ExtremePropensity:   0.05,
			MaxExtremeMass:      0.5,
			MaxWeightRatio:      20,
			DriftThreshold:      0.25,
			MinBaselineCoverage: 0.5,
		},
		Storage: StorageConfig{
			DecisionLog:    "memory",
			Ledger:         "memory",
			Snapshots:      "memory",
			Exploration:    "none",
			SQLitePath:     "bandit_state.db",
			SnapshotEvery:  100,
			RestoreOnStart: true,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "reply_bandit",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      "6379",
			LedgerTTL: 7 * 24 * time.Hour,
		},
		JWT: JWTConfig{
			Enabled: true,
			Issuer:  "reply-bandit",
			TTL:     24 * time.Hour,
		},
		Notify: NotifyConfig{
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads .env (if present), then the YAML file named by
// BANDIT_CONFIG_FILE, then BANDIT_* environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(os.Getenv(envFileName))
}

// LoadFile is Load without the .env step. An empty path skips the file.
// Nested keys use a double underscore: BANDIT_ENGINE__ALPHA -> engine.alpha.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.Engine.Arms = splitList(cfg.Engine.Arms)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both a YAML list and a single comma separated value.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	if len(c.Engine.Arms) == 0 {
		return errors.New("engine.arms must name at least one arm")
	}
	if c.Engine.Variant != "ucb" && c.Engine.Variant != "posterior-sampling" {
		return fmt.Errorf("invalid engine.variant %q: must be ucb or posterior-sampling", c.Engine.Variant)
	}
	if c.Engine.Dim <= 0 {
		return errors.New("engine.dim must be positive")
	}
	if !(c.Engine.Lambda > 0) {
		return errors.New("engine.lambda must be > 0")
	}
	if !oneOf(c.Storage.DecisionLog, "memory", "postgres") {
		return fmt.Errorf("invalid storage.decision_log %q", c.Storage.DecisionLog)
	}
	if !oneOf(c.Storage.Ledger, "memory", "redis") {
		return fmt.Errorf("invalid storage.ledger %q", c.Storage.Ledger)
	}
	if !oneOf(c.Storage.Snapshots, "memory", "sqlite") {
		return fmt.Errorf("invalid storage.snapshots %q", c.Storage.Snapshots)
	}
	if !oneOf(c.Storage.Exploration, "none", "postgres") {
		return fmt.Errorf("invalid storage.exploration %q", c.Storage.Exploration)
	}
	if c.Storage.Snapshots == "sqlite" && c.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path is required for sqlite snapshots")
	}
	if (c.Storage.DecisionLog == "postgres" || c.Storage.Exploration == "postgres") && c.Database.Password == "" {
		return errors.New("missing database password")
	}
	if c.JWT.Enabled && c.JWT.SecretKey == "" {
		return errors.New("missing jwt secret")
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
