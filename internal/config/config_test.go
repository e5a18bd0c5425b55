package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rankbacktester/internal/engine"
	"rankbacktester/strategies"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BACKTEST_DATABASE_URL",
		"BACKTEST_BARS_FILE",
		"BACKTEST_PREDICTIONS_FILE",
		"BACKTEST_LOG_LEVEL",
		"BACKTEST_INITIAL_CASH",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "rank", cfg.Strategy.Kind)
	assert.Equal(t, 150000.0, cfg.Run.InitialCash)
	assert.Equal(t, 15.0, cfg.Strategy.Params["max_holding"])
	assert.True(t, cfg.InitialCash().Equal(decimal.NewFromInt(150000)))

	fees := cfg.FeeSchedule()
	assert.Equal(t, "0.0003", fees.CommissionRate.String())
	assert.Equal(t, "0.00001", fees.TransferRate.String())
	assert.Equal(t, "0.0005", fees.StampDutyRate.String())
}

func TestDefaultParamsBuildEveryKind(t *testing.T) {
	for _, kind := range strategies.Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			_, err := strategies.NewConfig(kind, DefaultParams(kind))
			assert.NoError(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
run:
  name: screen-2023
  initial_cash: 200000
  start: "20230103"
  end: "20231229"
data:
  source: files
  bars_file: bars.parquet
  predictions_file: preds.csv
strategy:
  kind: screen
  seed: 42
  banned_codes: ["1", "600000.SH"]
journal:
  type: sqlite
  db_path: runs.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "screen-2023", cfg.Run.Name)
	assert.Equal(t, 200000.0, cfg.Run.InitialCash)
	assert.Equal(t, engine.DefaultCandidatePool, cfg.Run.CandidatePool)
	assert.Equal(t, "screen", cfg.Strategy.Kind)
	assert.Equal(t, DefaultParams(strategies.KindScreen), cfg.Strategy.Params)
	assert.Equal(t, "info", cfg.Logging.Level)

	start, end, err := cfg.Period()
	require.NoError(t, err)
	assert.Equal(t, "20230103", start.Format("20060102"))
	assert.Equal(t, "20231229", end.Format("20060102"))

	sc, err := cfg.StrategyConfig()
	require.NoError(t, err)
	assert.Equal(t, strategies.KindScreen, sc.Kind())
	assert.Equal(t, uint64(42), sc.Seed())
}

func TestLoadExplicitParamsReplaceDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
strategy:
  kind: stop
  params:
    max_holding: 10
    sell_count: 2
    min_buy_value: 5000
    min_sell_rank: 100
    stop_loss_ratio: 0.9
    take_profit_ratio: 1.2
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Strategy.Params, 6)
	assert.Equal(t, 0.9, cfg.Strategy.Params["stop_loss_ratio"])
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKTEST_DATABASE_URL", "postgres://localhost/market")
	t.Setenv("BACKTEST_BARS_FILE", "/data/bars.parquet")
	t.Setenv("BACKTEST_PREDICTIONS_FILE", "/data/preds.csv")
	t.Setenv("BACKTEST_LOG_LEVEL", "debug")
	t.Setenv("BACKTEST_INITIAL_CASH", "50000")

	cfg, err := Load(writeConfig(t, "data:\n  source: postgres\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/market", cfg.Data.DatabaseURL)
	assert.Equal(t, "/data/bars.parquet", cfg.Data.BarsFile)
	assert.Equal(t, "/data/preds.csv", cfg.Data.PredictionsFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 50000.0, cfg.Run.InitialCash)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "run: [not, a, map]\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "strategy:\n  kind: momentum\n"))
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	t.Setenv("BACKTEST_INITIAL_CASH", "lots")
	_, err = Load(writeConfig(t, "run:\n  name: x\n"))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cash", func(c *Config) { c.Run.InitialCash = 0 }},
		{"negative warm start cash", func(c *Config) { c.WarmStart.Cash = -1 }},
		{"negative pool", func(c *Config) { c.Run.CandidatePool = -1 }},
		{"bad start", func(c *Config) { c.Run.Start = "2023-01-03" }},
		{"end before start", func(c *Config) { c.Run.Start, c.Run.End = "20230201", "20230101" }},
		{"unknown source", func(c *Config) { c.Data.Source = "mysql" }},
		{"files without bars", func(c *Config) { c.Data.BarsFile = "" }},
		{"postgres without url", func(c *Config) { c.Data.Source = SourcePostgres }},
		{"unknown kind", func(c *Config) { c.Strategy.Kind = "momentum" }},
		{"unknown param", func(c *Config) { c.Strategy.Params["lookback"] = 20 }},
		{"missing param", func(c *Config) { delete(c.Strategy.Params, "sell_count") }},
		{"bad banned code", func(c *Config) { c.Strategy.BannedCodes = []string{"ABC"} }},
		{"negative fee", func(c *Config) { c.Fees.CommissionRate = -0.1 }},
		{"unknown journal", func(c *Config) { c.Journal.Type = "kafka" }},
		{"csv journal without dir", func(c *Config) { c.Journal.Dir = "" }},
		{"sqlite journal without path", func(c *Config) { c.Journal.Type = JournalSQLite }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestWarmStartCash(t *testing.T) {
	cfg := Default()
	cfg.WarmStart.Cash = 1234.5
	assert.True(t, cfg.InitialCash().Equal(decimal.NewFromInt(150000)), "cash ignored without positions file")

	cfg.WarmStart.PositionsFile = "positions/2024-01-05.csv"
	assert.True(t, cfg.InitialCash().Equal(decimal.RequireFromString("1234.5")))
}

func TestUseStrategy(t *testing.T) {
	cfg := Default()
	cfg.Strategy.Params["max_holding"] = 20

	require.NoError(t, cfg.UseStrategy("demo"))
	assert.Equal(t, "rank", cfg.Strategy.Kind)
	assert.Equal(t, 20.0, cfg.Strategy.Params["max_holding"], "same kind keeps params")

	require.NoError(t, cfg.UseStrategy("random"))
	assert.Equal(t, "random", cfg.Strategy.Kind)
	assert.Equal(t, DefaultParams(strategies.KindRandom), cfg.Strategy.Params)
	assert.NoError(t, cfg.Validate())

	assert.True(t, errors.Is(cfg.UseStrategy("momentum"), ErrInvalidConfig))
}

func TestSaveToFileRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Run.Name = "saved"
	cfg.Strategy.BannedCodes = []string{"000001"}
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
