// Package strategies holds the built-in rank driven strategies. A strategy turns the day's
// market snapshot into signed orders for the next open; it keeps no state of its own, the
// engine threads types.StrategyState through every call.
package strategies

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"rankbacktester/types"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownKind   = errors.New("unknown strategy kind")
	ErrUnknownParam  = errors.New("unknown strategy parameter")
	ErrMissingParam  = errors.New("missing strategy parameter")
	ErrInvalidParam  = errors.New("invalid strategy parameter")
	ErrNilConfig     = errors.New("nil strategy config")
	errUnhandledKind = errors.New("unhandled strategy kind")
)

type Strategy interface {
	Decide(state types.StrategyState, snapshot types.MarketSnapshot, cash, equity decimal.Decimal) ([]types.Order, types.StrategyState)
}

type Kind int

const (
	KindRankThreshold Kind = iota + 1
	KindStopLoss
	KindScreen
	KindRandom
)

func (k Kind) String() string {
	switch k {
	case KindRankThreshold:
		return "rank"
	case KindStopLoss:
		return "stop"
	case KindScreen:
		return "screen"
	case KindRandom:
		return "random"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds lists every built-in kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindRankThreshold, KindStopLoss, KindScreen, KindRandom}
}

// ParseKind accepts the canonical names and the legacy aliases "demo" and "vx1".
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "rank", "demo":
		return KindRankThreshold, nil
	case "stop", "vx1":
		return KindStopLoss, nil
	case "screen":
		return KindScreen, nil
	case "random":
		return KindRandom, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

type paramSpec struct {
	name     string
	required bool
	def      float64
	integer  bool
	min      float64
	// positive requires a value strictly greater than min
	positive bool
}

var rankParams = []paramSpec{
	{name: "rebalance_freq", def: 1, integer: true, min: 1},
	{name: "max_holding", required: true, integer: true, min: 1},
	{name: "sell_count", required: true, integer: true},
	{name: "min_buy_value", required: true},
	{name: "min_sell_rank", required: true, integer: true},
}

var kindParams = map[Kind][]paramSpec{
	KindRankThreshold: rankParams,
	KindStopLoss: append(append([]paramSpec(nil), rankParams...),
		paramSpec{name: "stop_loss_ratio", required: true, positive: true},
		paramSpec{name: "take_profit_ratio", required: true, positive: true},
	),
	KindScreen: {
		{name: "threshold_top", required: true, integer: true, min: 1},
		{name: "threshold_mid", required: true, integer: true},
		{name: "min_buy_value"},
	},
	KindRandom: {
		{name: "sell_count", required: true, integer: true},
		{name: "max_holding", required: true, integer: true, min: 1},
		{name: "min_buy_value", required: true},
	},
}

// ParamNames returns the parameter keys recognized by kind.
func ParamNames(kind Kind) []string {
	specs := kindParams[kind]
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.name)
	}
	return names
}

// Config is the validated configuration of one strategy instance.
type Config struct {
	kind   Kind
	params map[string]float64

	rebalanceFreq   int
	maxHolding      int
	sellCount       int
	minBuyValue     decimal.Decimal
	minSellRank     int
	thresholdTop    int
	thresholdMid    int
	stopLossRatio   decimal.Decimal
	takeProfitRatio decimal.Decimal

	bannedCodes      map[string]struct{}
	excludedPrefixes []string
	filterST         bool
	seed             uint64
}

type Option func(*Config)

func WithBannedCodes(codes ...string) Option {
	return func(c *Config) {
		for _, code := range codes {
			c.bannedCodes[code] = struct{}{}
		}
	}
}

// WithExcludedPrefixes keeps codes starting with any of the prefixes out of the buy universe.
func WithExcludedPrefixes(prefixes ...string) Option {
	return func(c *Config) {
		c.excludedPrefixes = append(c.excludedPrefixes, prefixes...)
	}
}

func WithSpecialTreatmentFilter(enabled bool) Option {
	return func(c *Config) {
		c.filterST = enabled
	}
}

func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.seed = seed
	}
}

// NewConfig validates params against the keys recognized by kind. Unknown keys are an error.
func NewConfig(kind Kind, params map[string]float64, opts ...Option) (*Config, error) {
	specs, ok := kindParams[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	known := make(map[string]paramSpec, len(specs))
	for _, s := range specs {
		known[s.name] = s
	}
	unknown := make([]string, 0)
	for name := range params {
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w for %s: %s", ErrUnknownParam, kind, strings.Join(unknown, ", "))
	}

	resolved := make(map[string]float64, len(specs))
	for _, s := range specs {
		v, ok := params[s.name]
		if !ok {
			if s.required {
				return nil, fmt.Errorf("%w for %s: %s", ErrMissingParam, kind, s.name)
			}
			v = s.def
		}
		if err := s.validate(v); err != nil {
			return nil, err
		}
		resolved[s.name] = v
	}

	cfg := &Config{
		kind:            kind,
		params:          resolved,
		rebalanceFreq:   1,
		minBuyValue:     decimal.Zero,
		stopLossRatio:   decimal.Zero,
		takeProfitRatio: decimal.Zero,
		bannedCodes:     make(map[string]struct{}),
	}
	for name, v := range resolved {
		switch name {
		case "rebalance_freq":
			cfg.rebalanceFreq = int(v)
		case "max_holding":
			cfg.maxHolding = int(v)
		case "sell_count":
			cfg.sellCount = int(v)
		case "min_buy_value":
			cfg.minBuyValue = decimal.NewFromFloat(v)
		case "min_sell_rank":
			cfg.minSellRank = int(v)
		case "threshold_top":
			cfg.thresholdTop = int(v)
		case "threshold_mid":
			cfg.thresholdMid = int(v)
		case "stop_loss_ratio":
			cfg.stopLossRatio = decimal.NewFromFloat(v)
		case "take_profit_ratio":
			cfg.takeProfitRatio = decimal.NewFromFloat(v)
		}
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

func (s paramSpec) validate(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is %v", ErrInvalidParam, s.name, v)
	}
	if s.integer && v != math.Trunc(v) {
		return fmt.Errorf("%w: %s must be a whole number, got %v", ErrInvalidParam, s.name, v)
	}
	if v < s.min || (s.positive && v <= s.min) {
		return fmt.Errorf("%w: %s is %v", ErrInvalidParam, s.name, v)
	}
	return nil
}

func (c *Config) Kind() Kind {
	return c.kind
}

func (c *Config) Seed() uint64 {
	return c.seed
}

// Params returns the resolved parameters, defaults included.
func (c *Config) Params() map[string]float64 {
	out := make(map[string]float64, len(c.params))
	for k, v := range c.params {
		out[k] = v
	}
	return out
}

// New builds the strategy described by cfg.
func New(cfg *Config) (Strategy, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	switch cfg.kind {
	case KindRankThreshold:
		return &rankRebalancer{cfg: cfg}, nil
	case KindStopLoss:
		return &rankRebalancer{cfg: cfg, stops: true}, nil
	case KindScreen:
		return &screen{cfg: cfg}, nil
	case KindRandom:
		return &random{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("%w: %s", errUnhandledKind, cfg.kind)
}
