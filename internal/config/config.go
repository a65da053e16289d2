package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dayplan/internal/opt"
)

// Config is the process configuration for the API and the CLI.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseUrl"`
	DBMigrate   bool   `yaml:"dbMigrate"`
	RedisURL    string `yaml:"redisUrl"`
	LogLevel    string `yaml:"logLevel"`
	LogFormat   string `yaml:"logFormat"`

	RateRPS   float64 `yaml:"rateRps"`
	RateBurst int     `yaml:"rateBurst"`

	Solver   Solver   `yaml:"solver"`
	Webhooks Webhooks `yaml:"webhooks"`
	Auth     Auth     `yaml:"auth"`
}

// Solver holds the process-wide solver defaults. Tenants may override them
// through the admin API.
type Solver struct {
	Mode           string        `yaml:"mode"`
	ExactThreshold int           `yaml:"exactThreshold"`
	TimeBudget     time.Duration `yaml:"timeBudget"`
	MaxNodes       int64         `yaml:"maxNodes"`
	Workers        int           `yaml:"workers"`
	TieBreakOrder  []string      `yaml:"tieBreakOrder"`
}

type Webhooks struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	PollInterval time.Duration `yaml:"pollInterval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Auth struct {
	Mode       string `yaml:"mode"` // dev, hmac or none
	HMACSecret string `yaml:"hmacSecret"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:      "8080",
		DBMigrate: true,
		LogLevel:  "info",
		LogFormat: "json",
		RateRPS:   5,
		RateBurst: 10,
		Solver: Solver{
			Mode:           string(opt.ModeAuto),
			ExactThreshold: opt.DefaultExactThreshold,
			TimeBudget:     opt.DefaultTimeBudget,
		},
		Webhooks: Webhooks{MaxAttempts: 8, PollInterval: time.Second, Timeout: 5 * time.Second},
		Auth:     Auth{Mode: "dev"},
	}
}

// Load applies, in order, the defaults, the YAML file named by DAYPLAN_CONFIG
// (if set) and the environment.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("DAYPLAN_CONFIG")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadFile merges a YAML file over cfg. Keys absent from the file keep their
// current values.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	num := func(key string, set func(string) error) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			if err := set(strings.TrimSpace(v)); err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q: %v", key, v, err))
			}
		}
	}

	str("PORT", &c.Port)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("SOLVER_MODE", &c.Solver.Mode)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	if v, ok := lookup("DB_MIGRATE"); ok {
		c.DBMigrate = v != "false"
	}
	if v, ok := lookup("SOLVER_TIE_BREAKS"); ok && strings.TrimSpace(v) != "" {
		c.Solver.TieBreakOrder = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Solver.TieBreakOrder = append(c.Solver.TieBreakOrder, p)
			}
		}
	}
	num("RATE_RPS", func(v string) (err error) { c.RateRPS, err = strconv.ParseFloat(v, 64); return })
	num("RATE_BURST", func(v string) (err error) { c.RateBurst, err = strconv.Atoi(v); return })
	num("SOLVER_EXACT_THRESHOLD", func(v string) (err error) { c.Solver.ExactThreshold, err = strconv.Atoi(v); return })
	num("SOLVER_TIME_BUDGET", func(v string) (err error) { c.Solver.TimeBudget, err = time.ParseDuration(v); return })
	num("SOLVER_MAX_NODES", func(v string) (err error) { c.Solver.MaxNodes, err = strconv.ParseInt(v, 10, 64); return })
	num("SOLVER_WORKERS", func(v string) (err error) { c.Solver.Workers, err = strconv.Atoi(v); return })
	num("WEBHOOK_MAX_ATTEMPTS", func(v string) (err error) { c.Webhooks.MaxAttempts, err = strconv.Atoi(v); return })
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if _, err := c.SolverConfig().Normalize(); err != nil {
		return fmt.Errorf("config: solver: %w", err)
	}
	switch c.Auth.Mode {
	case "dev", "none":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			return fmt.Errorf("config: AUTH_MODE=hmac requires AUTH_HMAC_SECRET")
		}
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.Auth.Mode)
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return fmt.Errorf("config: rate limits must be non-negative")
	}
	if c.Webhooks.MaxAttempts <= 0 {
		return fmt.Errorf("config: webhook max attempts must be positive")
	}
	return nil
}

// SolverConfig converts the solver section into an opt.SolverConfig.
func (c Config) SolverConfig() opt.SolverConfig {
	sc := opt.DefaultSolverConfig()
	sc.Mode = opt.Mode(c.Solver.Mode)
	sc.ExactThreshold = c.Solver.ExactThreshold
	sc.TimeBudget = c.Solver.TimeBudget
	sc.MaxNodes = c.Solver.MaxNodes
	sc.Workers = c.Solver.Workers
	if len(c.Solver.TieBreakOrder) > 0 {
		sc.TieBreakOrder = nil
		for _, tb := range c.Solver.TieBreakOrder {
			sc.TieBreakOrder = append(sc.TieBreakOrder, opt.TieBreak(tb))
		}
	}
	return sc
}
