// README: Config loader; defaults, optional YAML file, then RIDESIM_* env overrides.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"ridesim/internal/modules/agent"
	"ridesim/internal/sim"
)

//go:embed config.schema.json
var schemaJSON []byte

var ErrInvalid = errors.New("invalid config")

type SimConfig struct {
	Width           int           `yaml:"width"`
	Height          int           `yaml:"height"`
	Drivers         int           `yaml:"drivers"`
	POIs            int           `yaml:"pois"`
	RequestProb     float64       `yaml:"request_prob"`
	Strategy        string        `yaml:"strategy"`
	Seed            uint64        `yaml:"seed"`
	TickInterval    time.Duration `yaml:"tick_interval"`
	CheckInvariants bool          `yaml:"check_invariants"`
	// SnapshotEvery samples agent positions into Postgres every N ticks.
	SnapshotEvery int `yaml:"snapshot_every"`
}

type Config struct {
	HTTP struct {
		Addr       string `yaml:"addr"`
		AdminToken string `yaml:"admin_token"`
	} `yaml:"http"`
	// Empty DSN / address / path disable the corresponding sink.
	DB struct {
		DSN string `yaml:"dsn"`
	} `yaml:"db"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Sim SimConfig `yaml:"sim"`
}

func Default() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.Log.Level = "info"
	cfg.Sim = SimConfig{
		Width:        sim.DefaultWidth,
		Height:       sim.DefaultHeight,
		POIs:         sim.DefaultPOIs,
		RequestProb:  sim.DefaultRequestProb,
		Strategy:     string(agent.StrategyRandom),
		TickInterval: 500 * time.Millisecond,
	}
	return cfg
}

// Load builds the config from defaults, the YAML file at path (skipped
// when path is empty) and the environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := applyYAML(&cfg, raw); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyYAML(cfg *Config, raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	if err := validateDocument(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

// validateDocument checks a decoded YAML document against the embedded
// schema. The document is round-tripped through JSON so numbers and maps
// take the shapes the validator expects.
func validateDocument(doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	schema, err := compileSchema()
	if err != nil {
		return err
	}
	return schema.Validate(v)
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("config.schema.json")
}

func applyEnv(cfg *Config) error {
	cfg.HTTP.Addr = envOrDefault("RIDESIM_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.AdminToken = envOrDefault("RIDESIM_ADMIN_TOKEN", cfg.HTTP.AdminToken)
	cfg.DB.DSN = envOrDefault("RIDESIM_DB_DSN", cfg.DB.DSN)
	cfg.Redis.Addr = envOrDefault("RIDESIM_REDIS_ADDR", cfg.Redis.Addr)
	cfg.SQLite.Path = envOrDefault("RIDESIM_SQLITE_PATH", cfg.SQLite.Path)
	cfg.Log.Level = envOrDefault("RIDESIM_LOG_LEVEL", cfg.Log.Level)

	s := &cfg.Sim
	var err error
	if s.Width, err = envOrDefaultInt("RIDESIM_WIDTH", s.Width); err != nil {
		return err
	}
	if s.Height, err = envOrDefaultInt("RIDESIM_HEIGHT", s.Height); err != nil {
		return err
	}
	if s.Drivers, err = envOrDefaultInt("RIDESIM_DRIVERS", s.Drivers); err != nil {
		return err
	}
	if s.POIs, err = envOrDefaultInt("RIDESIM_POIS", s.POIs); err != nil {
		return err
	}
	if s.SnapshotEvery, err = envOrDefaultInt("RIDESIM_SNAPSHOT_EVERY", s.SnapshotEvery); err != nil {
		return err
	}
	if s.RequestProb, err = envOrDefaultFloat("RIDESIM_REQUEST_PROB", s.RequestProb); err != nil {
		return err
	}
	if s.Seed, err = envOrDefaultUint("RIDESIM_SEED", s.Seed); err != nil {
		return err
	}
	if s.TickInterval, err = envOrDefaultDuration("RIDESIM_TICK_INTERVAL", s.TickInterval); err != nil {
		return err
	}
	if s.CheckInvariants, err = envOrDefaultBool("RIDESIM_CHECK_INVARIANTS", s.CheckInvariants); err != nil {
		return err
	}
	s.Strategy = envOrDefault("RIDESIM_STRATEGY", s.Strategy)
	return nil
}

func (c Config) Validate() error {
	s := c.Sim
	switch {
	case s.Width <= 0 || s.Height <= 0:
		return fmt.Errorf("%w: grid must be at least 1x1, got %dx%d", ErrInvalid, s.Width, s.Height)
	case s.Drivers < 0:
		return fmt.Errorf("%w: drivers must not be negative", ErrInvalid)
	case s.POIs < 0:
		return fmt.Errorf("%w: pois must not be negative", ErrInvalid)
	case s.RequestProb < 0 || s.RequestProb > 1:
		return fmt.Errorf("%w: request_prob %v outside [0, 1]", ErrInvalid, s.RequestProb)
	case s.Strategy != string(agent.StrategyRandom) && s.Strategy != string(agent.StrategyPOI):
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalid, s.Strategy)
	case s.TickInterval < 0:
		return fmt.Errorf("%w: tick_interval must not be negative", ErrInvalid)
	case s.SnapshotEvery < 0:
		return fmt.Errorf("%w: snapshot_every must not be negative", ErrInvalid)
	}
	if _, err := c.Logger(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// SimOptions maps the sim section onto engine options. A zero seed is
// replaced by a time-based one.
func (c Config) SimOptions() sim.Options {
	seed := c.Sim.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return sim.Options{
		Width:       c.Sim.Width,
		Height:      c.Sim.Height,
		Drivers:     c.Sim.Drivers,
		POIs:        c.Sim.POIs,
		RequestProb: c.Sim.RequestProb,
		Strategy:    agent.Strategy(c.Sim.Strategy),
		Seed:        seed,
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return n, nil
}

func envOrDefaultUint(key string, def uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return n, nil
}

func envOrDefaultFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return n, nil
}

func envOrDefaultBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return b, nil
}

func envOrDefaultDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}
