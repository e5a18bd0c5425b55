// Package config loads the YAML run configuration and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"rankbacktester/internal/engine"
	"rankbacktester/strategies"
	"rankbacktester/types"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	SourceFiles    = "files"
	SourcePostgres = "postgres"

	JournalNone   = "none"
	JournalCSV    = "csv"
	JournalSQLite = "sqlite"
)

type Config struct {
	Run       RunConfig       `yaml:"run"`
	Data      DataConfig      `yaml:"data"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Fees      FeesConfig      `yaml:"fees"`
	Journal   JournalConfig   `yaml:"journal"`
	WarmStart WarmStartConfig `yaml:"warm_start"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RunConfig bounds the replay. Start and End are YYYYMMDD and may be empty.
type RunConfig struct {
	Name          string  `yaml:"name"`
	InitialCash   float64 `yaml:"initial_cash"`
	Start         string  `yaml:"start,omitempty"`
	End           string  `yaml:"end,omitempty"`
	CandidatePool int     `yaml:"candidate_pool"`
	Progress      bool    `yaml:"progress"`
	RiskFreeRate  float64 `yaml:"risk_free_rate"`
}

type DataConfig struct {
	Source          string `yaml:"source"` // "files" or "postgres"
	BarsFile        string `yaml:"bars_file,omitempty"`
	PredictionsFile string `yaml:"predictions_file,omitempty"`
	NamesFile       string `yaml:"names_file,omitempty"`
	DatabaseURL     string `yaml:"database_url,omitempty"`
}

type StrategyConfig struct {
	Kind                   string             `yaml:"kind"`
	Seed                   uint64             `yaml:"seed"`
	Params                 map[string]float64 `yaml:"params"`
	BannedCodes            []string           `yaml:"banned_codes,omitempty"`
	ExcludedPrefixes       []string           `yaml:"excluded_prefixes,omitempty"`
	FilterSpecialTreatment bool               `yaml:"filter_special_treatment"`
}

type FeesConfig struct {
	CommissionRate float64 `yaml:"commission_rate"`
	MinCommission  float64 `yaml:"min_commission"`
	TransferRate   float64 `yaml:"transfer_rate"`
	StampDutyRate  float64 `yaml:"stamp_duty_rate"`
}

type JournalConfig struct {
	Type   string `yaml:"type"` // "none", "csv" or "sqlite"
	Dir    string `yaml:"dir,omitempty"`
	DBPath string `yaml:"db_path,omitempty"`
}

// WarmStartConfig seeds the ledger from a positions snapshot. A zero Cash keeps run.initial_cash.
type WarmStartConfig struct {
	PositionsFile string  `yaml:"positions_file,omitempty"`
	Cash          float64 `yaml:"cash,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func Default() *Config {
	return &Config{
		Run: RunConfig{
			Name:          "backtest",
			InitialCash:   150000,
			CandidatePool: engine.DefaultCandidatePool,
			Progress:      true,
		},
		Data: DataConfig{
			Source:          SourceFiles,
			BarsFile:        "./data/stock_data.parquet",
			PredictionsFile: "./data/predictions.csv",
		},
		Strategy: StrategyConfig{
			Kind:             strategies.KindRankThreshold.String(),
			Seed:             1,
			Params:           DefaultParams(strategies.KindRankThreshold),
			ExcludedPrefixes: []string{"301"},
		},
		Fees: FeesConfig{
			CommissionRate: 0.0003,
			MinCommission:  5,
			TransferRate:   0.00001,
			StampDutyRate:  0.0005,
		},
		Journal: JournalConfig{
			Type: JournalCSV,
			Dir:  "./out",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultParams returns the stock parameter set of a strategy kind.
func DefaultParams(kind strategies.Kind) map[string]float64 {
	rank := map[string]float64{
		"rebalance_freq": 1,
		"max_holding":    15,
		"sell_count":     4,
		"min_buy_value":  3000,
		"min_sell_rank":  200,
	}
	switch kind {
	case strategies.KindStopLoss:
		rank["stop_loss_ratio"] = 0.85
		rank["take_profit_ratio"] = 1.30
		return rank
	case strategies.KindScreen:
		return map[string]float64{
			"threshold_top": 10,
			"threshold_mid": 200,
		}
	case strategies.KindRandom:
		return map[string]float64{
			"sell_count":    4,
			"max_holding":   15,
			"min_buy_value": 3000,
		}
	}
	return rank
}

// Load reads a YAML file over the defaults, then applies .env and environment overrides and
// validates the result. Strategy params given in the file replace the defaults as a whole.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	cfg.Strategy.Params = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Strategy.Params == nil {
		kind, err := strategies.ParseKind(cfg.Strategy.Kind)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		cfg.Strategy.Params = DefaultParams(kind)
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// ApplyEnv overrides file values with BACKTEST_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("BACKTEST_DATABASE_URL"); v != "" {
		c.Data.DatabaseURL = v
	}
	if v := os.Getenv("BACKTEST_BARS_FILE"); v != "" {
		c.Data.BarsFile = v
	}
	if v := os.Getenv("BACKTEST_PREDICTIONS_FILE"); v != "" {
		c.Data.PredictionsFile = v
	}
	if v := os.Getenv("BACKTEST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BACKTEST_INITIAL_CASH"); v != "" {
		cash, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: BACKTEST_INITIAL_CASH %q: %v", ErrInvalidConfig, v, err)
		}
		c.Run.InitialCash = cash
	}
	return nil
}

// UseStrategy switches the strategy kind. Params are reset to the kind's defaults when the kind
// changes.
func (c *Config) UseStrategy(name string) error {
	kind, err := strategies.ParseKind(name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	current, err := strategies.ParseKind(c.Strategy.Kind)
	if err != nil || current != kind {
		c.Strategy.Params = DefaultParams(kind)
	}
	c.Strategy.Kind = kind.String()
	return nil
}

func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Run.InitialCash <= 0 && c.WarmStart.Cash <= 0 {
		return invalid("run.initial_cash must be positive")
	}
	if c.WarmStart.Cash < 0 {
		return invalid("warm_start.cash must not be negative")
	}
	if c.Run.CandidatePool < 0 {
		return invalid("run.candidate_pool must not be negative")
	}
	if c.Run.RiskFreeRate < 0 {
		return invalid("run.risk_free_rate must not be negative")
	}
	start, end, err := c.Period()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return invalid("run.end is before run.start")
	}

	switch c.Data.Source {
	case SourceFiles:
		if c.Data.BarsFile == "" || c.Data.PredictionsFile == "" {
			return invalid("data.bars_file and data.predictions_file required for files source")
		}
	case SourcePostgres:
		if c.Data.DatabaseURL == "" {
			return invalid("data.database_url required for postgres source")
		}
	default:
		return invalid("data.source must be 'files' or 'postgres'")
	}

	if _, err := c.StrategyConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.FeeSchedule().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.Journal.Type {
	case "", JournalNone:
	case JournalCSV:
		if c.Journal.Dir == "" {
			return invalid("journal.dir required for csv journal")
		}
	case JournalSQLite:
		if c.Journal.DBPath == "" {
			return invalid("journal.db_path required for sqlite journal")
		}
	default:
		return invalid("journal.type must be 'none', 'csv' or 'sqlite'")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level must be debug, info, warn or error")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return invalid("logging.format must be 'text' or 'json'")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

// Period parses run.start and run.end. An empty bound is returned as the zero time.
func (c *Config) Period() (start, end time.Time, err error) {
	if c.Run.Start != "" {
		if start, err = types.ParseDay(c.Run.Start); err != nil {
			return time.Time{}, time.Time{}, invalid("run.start: " + err.Error())
		}
	}
	if c.Run.End != "" {
		if end, err = types.ParseDay(c.Run.End); err != nil {
			return time.Time{}, time.Time{}, invalid("run.end: " + err.Error())
		}
	}
	return start, end, nil
}

// InitialCash is the cash the ledger starts with, taking a warm start into account.
func (c *Config) InitialCash() decimal.Decimal {
	if c.WarmStart.PositionsFile != "" && c.WarmStart.Cash > 0 {
		return decimal.NewFromFloat(c.WarmStart.Cash)
	}
	return decimal.NewFromFloat(c.Run.InitialCash)
}

func (c *Config) FeeSchedule() engine.FeeSchedule {
	return engine.FeeSchedule{
		CommissionRate: decimal.NewFromFloat(c.Fees.CommissionRate),
		MinCommission:  decimal.NewFromFloat(c.Fees.MinCommission),
		TransferRate:   decimal.NewFromFloat(c.Fees.TransferRate),
		StampDutyRate:  decimal.NewFromFloat(c.Fees.StampDutyRate),
	}
}

// StrategyConfig builds the validated strategy value object. Banned codes are normalized.
func (c *Config) StrategyConfig() (*strategies.Config, error) {
	kind, err := strategies.ParseKind(c.Strategy.Kind)
	if err != nil {
		return nil, err
	}
	banned := make([]string, 0, len(c.Strategy.BannedCodes))
	for _, raw := range c.Strategy.BannedCodes {
		code, err := types.NormalizeCode(raw)
		if err != nil {
			return nil, fmt.Errorf("strategy.banned_codes: %w", err)
		}
		banned = append(banned, code)
	}
	return strategies.NewConfig(kind, c.Strategy.Params,
		strategies.WithBannedCodes(banned...),
		strategies.WithExcludedPrefixes(c.Strategy.ExcludedPrefixes...),
		strategies.WithSpecialTreatmentFilter(c.Strategy.FilterSpecialTreatment),
		strategies.WithSeed(c.Strategy.Seed),
	)
}

// RiskFreeRate is the annual rate the Sharpe ratio is measured against.
func (c *Config) RiskFreeRate() decimal.Decimal {
	return decimal.NewFromFloat(c.Run.RiskFreeRate)
}
