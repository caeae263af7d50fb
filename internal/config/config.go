// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kalmanarb-go/internal/backtest"
	"kalmanarb-go/internal/kalman"
	"kalmanarb-go/internal/marketdata"
	"kalmanarb-go/internal/risk"
	"kalmanarb-go/internal/strategy"
)

// ErrInvalid reports a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid config")

// EnvPrefix namespaces the environment overrides.
const EnvPrefix = "KALMANARB_"

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Data locates the input pair file and where artifacts go.
type Data struct {
	InputPath string `yaml:"input_path"`
	OutputDir string `yaml:"output_dir"`
	SymbolY   string `yaml:"symbol_y"`
	SymbolX   string `yaml:"symbol_x"`
}

// Filter holds the hedge-ratio filter noise parameters.
type Filter struct {
	R          float64 `yaml:"r"`
	Delta      float64 `yaml:"delta"`
	JosephForm bool    `yaml:"joseph_form"`
}

// Strategy specifies which strategy is active along with its thresholds.
type Strategy struct {
	Mode     string  `yaml:"mode"`
	EntryStd float64 `yaml:"entry_std"`
	ExitStd  float64 `yaml:"exit_std"`
}

// Backtest holds ledger settings.
type Backtest struct {
	InitialCapital     float64 `yaml:"initial_capital"`
	AllocationFraction float64 `yaml:"allocation_fraction"`
}

// Risk encodes guard-rails for how much size an entry may take on.
type Risk struct {
	MaxGrossLeverage float64 `yaml:"max_gross_leverage"`
}

// Feed configures the live pair feed used by paper mode.
type Feed struct {
	Provider         string `yaml:"provider"`
	SymbolY          string `yaml:"symbol_y"`
	SymbolX          string `yaml:"symbol_x"`
	SampleIntervalMs int    `yaml:"sample_interval_ms"`
}

// Synthetic parameterizes the generated validation pair.
type Synthetic struct {
	Points    int           `yaml:"points"`
	Seed      int64         `yaml:"seed"`
	Start     time.Time     `yaml:"start"`
	Step      time.Duration `yaml:"step"`
	X0        float64       `yaml:"x0"`
	Mu        float64       `yaml:"mu"`
	Sigma     float64       `yaml:"sigma"`
	Alpha     float64       `yaml:"alpha"`
	BetaStart float64       `yaml:"beta_start"`
	BetaEnd   float64       `yaml:"beta_end"`
	BetaNoise float64       `yaml:"beta_noise"`
	Noise     float64       `yaml:"noise"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Data      Data      `yaml:"data"`
	Filter    Filter    `yaml:"filter"`
	Strategy  Strategy  `yaml:"strategy"`
	Backtest  Backtest  `yaml:"backtest"`
	Risk      Risk      `yaml:"risk"`
	Feed      Feed      `yaml:"feed"`
	Synthetic Synthetic `yaml:"synthetic"`
}

// Default returns the settings of the reference backtest.
func Default() *Config {
	fc := kalman.DefaultConfig()
	syn := marketdata.DefaultSynthetic()
	return &Config{
		App:      App{Name: "kalmanarb", Env: "dev", MetricsAddr: ":9090", LogLevel: "info"},
		Data:     Data{InputPath: "data/pair.csv", OutputDir: "out", SymbolY: "asset_y", SymbolX: "asset_x"},
		Filter:   Filter{R: fc.R, Delta: fc.Delta},
		Strategy: Strategy{Mode: strategy.ModeKalmanMeanReversion, EntryStd: 1.0, ExitStd: 0.0},
		Backtest: Backtest{InitialCapital: 100000, AllocationFraction: 0.45},
		Feed:     Feed{Provider: "stub", SymbolY: "ETHUSDT", SymbolX: "BTCUSDT", SampleIntervalMs: 1000},
		Synthetic: Synthetic{
			Points:    syn.Points,
			Seed:      syn.Seed,
			Start:     syn.Start,
			Step:      syn.Step,
			X0:        syn.X0,
			Mu:        syn.Mu,
			Sigma:     syn.Sigma,
			Alpha:     syn.Alpha,
			BetaStart: syn.BetaStart,
			BetaEnd:   syn.BetaEnd,
			BetaNoise: syn.BetaNoise,
			Noise:     syn.Noise,
		},
	}
}

// Load reads a YAML file from disk over the defaults and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadWithEnv loads envFile best-effort, reads path (defaults when empty) and then applies
// KALMANARB_* overrides.
func LoadWithEnv(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	config := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"INPUT_PATH":    &c.Data.InputPath,
		"OUTPUT_DIR":    &c.Data.OutputDir,
		"LOG_LEVEL":     &c.App.LogLevel,
		"METRICS_ADDR":  &c.App.MetricsAddr,
		"ENV":           &c.App.Env,
		"FEED_PROVIDER": &c.Feed.Provider,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate enforces the ranges every run depends on.
func (c *Config) Validate() error {
	if err := c.FilterConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !(c.Strategy.EntryStd > 0) {
		return fmt.Errorf("%w: strategy.entry_std must be positive, got %v", ErrInvalid, c.Strategy.EntryStd)
	}
	if !(c.Strategy.ExitStd < c.Strategy.EntryStd) {
		return fmt.Errorf("%w: strategy.exit_std %v must be below entry_std %v", ErrInvalid, c.Strategy.ExitStd, c.Strategy.EntryStd)
	}
	if !(c.Backtest.InitialCapital > 0) {
		return fmt.Errorf("%w: backtest.initial_capital must be positive, got %v", ErrInvalid, c.Backtest.InitialCapital)
	}
	if !(c.Backtest.AllocationFraction > 0 && c.Backtest.AllocationFraction <= 1) {
		return fmt.Errorf("%w: backtest.allocation_fraction must be in (0,1], got %v", ErrInvalid, c.Backtest.AllocationFraction)
	}
	if c.Risk.MaxGrossLeverage < 0 {
		return fmt.Errorf("%w: risk.max_gross_leverage must not be negative", ErrInvalid)
	}
	if c.Feed.SampleIntervalMs < 0 {
		return fmt.Errorf("%w: feed.sample_interval_ms must not be negative", ErrInvalid)
	}
	return nil
}

// FilterConfig maps the filter section.
func (c *Config) FilterConfig() kalman.Config {
	return kalman.Config{R: c.Filter.R, Delta: c.Filter.Delta, JosephForm: c.Filter.JosephForm}
}

// StrategyParams maps the strategy and filter sections.
func (c *Config) StrategyParams() strategy.Params {
	return strategy.Params{EntryStd: c.Strategy.EntryStd, ExitStd: c.Strategy.ExitStd, Filter: c.FilterConfig()}
}

// BacktestConfig maps the ledger, symbol and risk settings.
func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		InitialCapital:     c.Backtest.InitialCapital,
		AllocationFraction: c.Backtest.AllocationFraction,
		SymbolY:            c.Data.SymbolY,
		SymbolX:            c.Data.SymbolX,
		Risk:               risk.Limits{MaxGrossLeverage: c.Risk.MaxGrossLeverage},
	}
}

// SyntheticParams maps the synthetic section.
func (c *Config) SyntheticParams() marketdata.Synthetic {
	s := c.Synthetic
	return marketdata.Synthetic{
		Points:    s.Points,
		Seed:      s.Seed,
		Start:     s.Start,
		Step:      s.Step,
		X0:        s.X0,
		Mu:        s.Mu,
		Sigma:     s.Sigma,
		Alpha:     s.Alpha,
		BetaStart: s.BetaStart,
		BetaEnd:   s.BetaEnd,
		BetaNoise: s.BetaNoise,
		Noise:     s.Noise,
	}
}

// SampleInterval converts the feed sampling period.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Feed.SampleIntervalMs) * time.Millisecond
}
