// Package config exposes strongly typed engine configuration loaded from YAML.
// Every knob has a documented default so the engine runs with no file present.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings.
type App struct {
	Name        string `yaml:"name"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	// LoopSleepMs paces the engine between ticks.
	LoopSleepMs int `yaml:"loop_sleep_ms"`
	// ErrorBackoffMs is the pause after a failed tick before retrying.
	ErrorBackoffMs int `yaml:"error_backoff_ms"`
}

// Feed describes where market snapshots come from.
type Feed struct {
	Provider string `yaml:"provider"` // "stub" or "websocket"
	URL      string `yaml:"url"`
	// PollIntervalMs bounds how often the stub provider fabricates snapshots.
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

// Market names the instrument pair and the contract economics.
type Market struct {
	// LegA minus LegB defines the spread; LegB is the traded asset.
	LegA          string             `yaml:"leg_a"`
	LegB          string             `yaml:"leg_b"`
	Asset         string             `yaml:"asset"`
	PointValue    float64            `yaml:"point_value"`
	VolumeWeights map[string]float64 `yaml:"volume_weights"`
}

// Statistics tunes the rolling spread tracker.
type Statistics struct {
	HistorySize       int     `yaml:"history_size"`
	LeaderHistorySize int     `yaml:"leader_history_size"`
	MinSamples        int     `yaml:"min_samples_for_signal"`
	LeaderLookback    int     `yaml:"leader_lookback"`
	LeaderRatio       float64 `yaml:"leader_imbalance_ratio"`
}

// Validation holds the opportunity validator gates and sizing tiers.
type Validation struct {
	ThresholdLow     float64 `yaml:"threshold_low"`
	ThresholdMedium  float64 `yaml:"threshold_medium"`
	ThresholdHigh    float64 `yaml:"threshold_high"`
	ThresholdExtreme float64 `yaml:"threshold_extreme"`

	MinStdDev    float64 `yaml:"min_std_dev"`
	MaxSpreadAbs float64 `yaml:"max_spread_abs"`
	MinProfit    float64 `yaml:"min_profit"`

	ContractsLow     int `yaml:"contracts_low"`
	ContractsMedium  int `yaml:"contracts_medium"`
	ContractsHigh    int `yaml:"contracts_high"`
	ContractsExtreme int `yaml:"contracts_extreme"`

	// BehaviorMinStrength and BehaviorBonus control how detector
	// confirmations raise signal confidence.
	BehaviorMinStrength float64 `yaml:"behavior_min_strength"`
	BehaviorBonus       int     `yaml:"behavior_confidence_bonus"`
}

// TimeWindow is a named intraday period with tuning applied inside it.
type TimeWindow struct {
	Name          string  `yaml:"name"`
	Start         string  `yaml:"start"` // "HH:MM"
	End           string  `yaml:"end"`
	Multiplier    float64 `yaml:"multiplier"`
	ConfidenceAdj int     `yaml:"confidence_adj"`
}

// Tape tunes the tape-reading analyzer.
type Tape struct {
	AnalysisWindow   int     `yaml:"analysis_window"`
	MinTrades        int     `yaml:"min_trades_for_signal"`
	MinPressureRatio float64 `yaml:"min_pressure_ratio"`
	CooldownSec      int     `yaml:"signal_cooldown_sec"`
	MaxStoredTrades  int     `yaml:"max_stored_trades"`

	HighRatio        float64 `yaml:"high_ratio_threshold"`
	MediumRatio      float64 `yaml:"medium_ratio_threshold"`
	LowRatio         float64 `yaml:"low_ratio_threshold"`
	HighConfidence   int     `yaml:"high_confidence_level"`
	MediumConfidence int     `yaml:"medium_confidence_level"`
	LowConfidence    int     `yaml:"low_confidence_level"`
	BaseConfidence   int     `yaml:"base_confidence"`

	RiskPercent   float64 `yaml:"risk_percent"`
	TargetPercent float64 `yaml:"target_percent"`

	TimeWindows []TimeWindow `yaml:"time_windows"`
}

// Absorption tunes the absorption detector.
type Absorption struct {
	VolumeRatio      float64 `yaml:"volume_threshold_ratio"`
	PriceImpactTicks float64 `yaml:"price_impact_max_ticks"`
	MinTrades        int     `yaml:"min_trades_for_detection"`
	TickSize         float64 `yaml:"tick_size"`
}

// Exhaustion tunes the exhaustion/pullback detector.
type Exhaustion struct {
	TrendLookback    int     `yaml:"trend_lookback"`
	FastMAPeriod     int     `yaml:"fast_ma_period"`
	SlowMAPeriod     int     `yaml:"slow_ma_period"`
	BuyMultiplier    float64 `yaml:"buy_threshold_multiplier"`
	SellMultiplier   float64 `yaml:"sell_threshold_multiplier"`
	MomentumLookback int     `yaml:"momentum_lookback"`
	RetracementMin   float64 `yaml:"retracement_threshold"`
	RetracementDeep  float64 `yaml:"high_retracement_threshold"`
	PullbackMax      float64 `yaml:"pullback_max_retracement"`
}

// Institutional tunes the large-trade detector.
type Institutional struct {
	SizeFloor          float64 `yaml:"institutional_size"`
	DominanceRatio     float64 `yaml:"dominance_ratio"`
	StrengthMultiplier float64 `yaml:"strength_multiplier"`
}

// PriceDefense tunes the book-level renovation detector.
type PriceDefense struct {
	TrackLevels          int                `yaml:"track_levels"`
	TimeWindowSec        int                `yaml:"time_window_seconds"`
	MinRenovations       int                `yaml:"min_renovations"`
	SignificantSizes     map[string]float64 `yaml:"significant_sizes"`
	QuickReplacementSec  float64            `yaml:"quick_replacement_time_sec"`
	AggressiveRenovation int                `yaml:"aggressive_renovations"`
	AggressiveMaxSec     float64            `yaml:"aggressive_persistence_sec"`
	ActiveRenovations    int                `yaml:"active_renovations"`
	ActiveMaxSec         float64            `yaml:"active_persistence_sec"`
	PassiveMinSec        float64            `yaml:"passive_persistence_sec"`
	RenovationWeight     float64            `yaml:"renovation_weight"`
	PersistenceWeight    float64            `yaml:"persistence_weight"`
	VolumeWeight         float64            `yaml:"volume_weight"`
	RenovationDivisor    float64            `yaml:"renovation_divisor_factor"`
	VolumeDivisor        float64            `yaml:"volume_divisor_factor"`
}

// Behavior groups the detector configurations.
type Behavior struct {
	Absorption    Absorption    `yaml:"absorption"`
	Exhaustion    Exhaustion    `yaml:"exhaustion"`
	Institutional Institutional `yaml:"institutional"`
	PriceDefense  PriceDefense  `yaml:"price_defense"`
	// DisplayMinStrength filters what the display layer shows.
	DisplayMinStrength float64 `yaml:"display_min_strength"`
}

// Position tunes the lifecycle monitor. Single-position mode is the default;
// set allow_multiple_positions to run several concurrent positions.
type Position struct {
	AllowMultiple    bool    `yaml:"allow_multiple_positions"`
	MaxTimeMinutes   int     `yaml:"max_time_minutes"`
	AdverseLimit     float64 `yaml:"adverse_threshold"`
	TapeAdverseLimit float64 `yaml:"tape_adverse_threshold"`
	FavorableFloor   float64 `yaml:"favorable_threshold"`
	SpreadConvergedZ float64 `yaml:"spread_invalidation_z"`
	NoProgressSec    int     `yaml:"no_progress_time_sec"`
}

// RegimeMultipliers scales the adaptive parameters inside one regime.
type RegimeMultipliers struct {
	StdThreshold float64 `yaml:"std_threshold"`
	MinProfit    float64 `yaml:"min_profit"`
	Slippage     float64 `yaml:"slippage"`
}

// Dynamic tunes the adaptive parameter manager.
type Dynamic struct {
	Enabled           bool    `yaml:"enabled"`
	AdjustIntervalSec int     `yaml:"adjustment_interval_sec"`
	MinSamples        int     `yaml:"min_samples"`
	RecentWindow      int     `yaml:"recent_window"`
	HighVolRatio      float64 `yaml:"high_vol_ratio"`
	LowVolRatio       float64 `yaml:"low_vol_ratio"`
	GradualWeight     float64 `yaml:"gradual_adjustment_weight"`

	BaseStdThreshold float64 `yaml:"base_std_threshold"`
	BaseMinProfit    float64 `yaml:"base_min_profit"`
	BaseSlippage     float64 `yaml:"base_slippage"`

	HighVolatility RegimeMultipliers `yaml:"high_volatility"`
	LowVolatility  RegimeMultipliers `yaml:"low_volatility"`

	TimeWindows []TimeWindow `yaml:"time_windows"`
}

// Flow tunes the per-symbol aggression summary.
type Flow struct {
	WindowSize          int     `yaml:"trade_window_size"`
	AbsorptionThreshold float64 `yaml:"absorption_threshold"`
	DivergenceThreshold float64 `yaml:"divergence_threshold"`
}

// Logging configures the signal audit log.
type Logging struct {
	Dir         string   `yaml:"dir"`
	BufferSize  int      `yaml:"buffer_size"`
	Formats     []string `yaml:"formats"`
	HistorySize int      `yaml:"history_size"`
}

// Profile overrides the most commonly tuned validator knobs. Zero values mean
// "keep the base setting".
type Profile struct {
	StdThreshold float64 `yaml:"spread_std_devs"`
	MinSamples   int     `yaml:"min_samples_for_signal"`
	MinProfit    float64 `yaml:"min_profit"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App           App                `yaml:"app"`
	Feed          Feed               `yaml:"feed"`
	Market        Market             `yaml:"market"`
	Statistics    Statistics         `yaml:"statistics"`
	Validation    Validation         `yaml:"validation"`
	Tape          Tape               `yaml:"tape_reading"`
	Behavior      Behavior           `yaml:"behaviors"`
	Position      Position           `yaml:"position_monitor"`
	Dynamic       Dynamic            `yaml:"dynamic_parameters"`
	Flow          Flow               `yaml:"flow_analysis"`
	Logging       Logging            `yaml:"logging"`
	ActiveProfile string             `yaml:"active_profile"`
	Profiles      map[string]Profile `yaml:"trading_profiles"`
}

// ProfileEnvVar overrides the configured active profile when set.
const ProfileEnvVar = "TAPEREADER_PROFILE"

// Load reads a YAML file from disk, hydrates a Config, fills defaults and
// applies the active trading profile.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	cfg.applyActiveProfile()
	return &cfg, nil
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

// Default returns a complete, runnable configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) applyActiveProfile() {
	name := c.ActiveProfile
	if env := os.Getenv(ProfileEnvVar); env != "" {
		name = env
	}
	if name == "" {
		return
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return
	}
	c.ActiveProfile = name
	if profile.StdThreshold > 0 {
		c.Dynamic.BaseStdThreshold = profile.StdThreshold
	}
	if profile.MinSamples > 0 {
		c.Statistics.MinSamples = profile.MinSamples
	}
	if profile.MinProfit > 0 {
		c.Validation.MinProfit = profile.MinProfit
		c.Dynamic.BaseMinProfit = profile.MinProfit
	}
}

// ApplyDefaults fills every zero-valued knob with its documented default.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tapereader"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9109"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.LoopSleepMs <= 0 {
		c.App.LoopSleepMs = 100
	}
	if c.App.ErrorBackoffMs <= 0 {
		c.App.ErrorBackoffMs = 2000
	}

	if c.Feed.Provider == "" {
		c.Feed.Provider = "stub"
	}
	if c.Feed.PollIntervalMs <= 0 {
		c.Feed.PollIntervalMs = 200
	}

	if c.Market.LegA == "" {
		c.Market.LegA = "WDOFUT"
	}
	if c.Market.LegB == "" {
		c.Market.LegB = "DOLFUT"
	}
	if c.Market.Asset == "" {
		c.Market.Asset = "DOLFUT"
	}
	if c.Market.PointValue <= 0 {
		c.Market.PointValue = 10.0
	}
	if len(c.Market.VolumeWeights) == 0 {
		c.Market.VolumeWeights = map[string]float64{"WDOFUT": 0.2, "DOLFUT": 1.0}
	}

	if c.Statistics.HistorySize <= 0 {
		c.Statistics.HistorySize = 100
	}
	if c.Statistics.LeaderHistorySize <= 0 {
		c.Statistics.LeaderHistorySize = 50
	}
	if c.Statistics.MinSamples <= 0 {
		c.Statistics.MinSamples = 20
	}
	if c.Statistics.LeaderLookback <= 0 {
		c.Statistics.LeaderLookback = 5
	}
	if c.Statistics.LeaderRatio <= 0 {
		c.Statistics.LeaderRatio = 1.2
	}

	if c.Validation.ThresholdLow <= 0 {
		c.Validation.ThresholdLow = 1.2
	}
	if c.Validation.ThresholdMedium <= 0 {
		c.Validation.ThresholdMedium = 1.5
	}
	if c.Validation.ThresholdHigh <= 0 {
		c.Validation.ThresholdHigh = 2.0
	}
	if c.Validation.ThresholdExtreme <= 0 {
		c.Validation.ThresholdExtreme = 2.5
	}
	if c.Validation.MinStdDev <= 0 {
		c.Validation.MinStdDev = 0.05
	}
	if c.Validation.MaxSpreadAbs <= 0 {
		c.Validation.MaxSpreadAbs = 5.0
	}
	if c.Validation.MinProfit <= 0 {
		c.Validation.MinProfit = 20.0
	}
	if c.Validation.ContractsLow <= 0 {
		c.Validation.ContractsLow = 1
	}
	if c.Validation.ContractsMedium <= 0 {
		c.Validation.ContractsMedium = 2
	}
	if c.Validation.ContractsHigh <= 0 {
		c.Validation.ContractsHigh = 3
	}
	if c.Validation.ContractsExtreme <= 0 {
		c.Validation.ContractsExtreme = 5
	}
	if c.Validation.BehaviorMinStrength <= 0 {
		c.Validation.BehaviorMinStrength = 50
	}
	if c.Validation.BehaviorBonus <= 0 {
		c.Validation.BehaviorBonus = 5
	}

	if c.Tape.AnalysisWindow <= 0 {
		c.Tape.AnalysisWindow = 200
	}
	if c.Tape.MinTrades <= 0 {
		c.Tape.MinTrades = 50
	}
	if c.Tape.MinPressureRatio <= 0 {
		c.Tape.MinPressureRatio = 1.5
	}
	if c.Tape.CooldownSec <= 0 {
		c.Tape.CooldownSec = 60
	}
	if c.Tape.MaxStoredTrades <= 0 {
		c.Tape.MaxStoredTrades = 5000
	}
	if c.Tape.HighRatio <= 0 {
		c.Tape.HighRatio = 2.5
	}
	if c.Tape.MediumRatio <= 0 {
		c.Tape.MediumRatio = 2.0
	}
	if c.Tape.LowRatio <= 0 {
		c.Tape.LowRatio = 1.5
	}
	if c.Tape.HighConfidence <= 0 {
		c.Tape.HighConfidence = 85
	}
	if c.Tape.MediumConfidence <= 0 {
		c.Tape.MediumConfidence = 75
	}
	if c.Tape.LowConfidence <= 0 {
		c.Tape.LowConfidence = 65
	}
	if c.Tape.BaseConfidence <= 0 {
		c.Tape.BaseConfidence = 60
	}
	if c.Tape.RiskPercent <= 0 {
		c.Tape.RiskPercent = 0.15
	}
	if c.Tape.TargetPercent <= 0 {
		c.Tape.TargetPercent = 0.25
	}

	ab := &c.Behavior.Absorption
	if ab.VolumeRatio <= 0 {
		ab.VolumeRatio = 3.0
	}
	if ab.PriceImpactTicks <= 0 {
		ab.PriceImpactTicks = 2
	}
	if ab.MinTrades <= 0 {
		ab.MinTrades = 15
	}
	if ab.TickSize <= 0 {
		ab.TickSize = 0.5
	}

	ex := &c.Behavior.Exhaustion
	if ex.TrendLookback <= 0 {
		ex.TrendLookback = 20
	}
	if ex.FastMAPeriod <= 0 {
		ex.FastMAPeriod = 5
	}
	if ex.SlowMAPeriod <= 0 {
		ex.SlowMAPeriod = 15
	}
	if ex.BuyMultiplier <= 0 {
		ex.BuyMultiplier = 1.0005
	}
	if ex.SellMultiplier <= 0 {
		ex.SellMultiplier = 0.9995
	}
	if ex.MomentumLookback <= 0 {
		ex.MomentumLookback = 10
	}
	if ex.RetracementMin <= 0 {
		ex.RetracementMin = 0.236
	}
	if ex.RetracementDeep <= 0 {
		ex.RetracementDeep = 0.618
	}
	if ex.PullbackMax <= 0 {
		ex.PullbackMax = 0.382
	}

	in := &c.Behavior.Institutional
	if in.SizeFloor <= 0 {
		in.SizeFloor = 500
	}
	if in.DominanceRatio <= 0 {
		in.DominanceRatio = 1.5
	}
	if in.StrengthMultiplier <= 0 {
		in.StrengthMultiplier = 20
	}

	pd := &c.Behavior.PriceDefense
	if pd.TrackLevels <= 0 {
		pd.TrackLevels = 3
	}
	if pd.TimeWindowSec <= 0 {
		pd.TimeWindowSec = 30
	}
	if pd.MinRenovations <= 0 {
		pd.MinRenovations = 3
	}
	if len(pd.SignificantSizes) == 0 {
		pd.SignificantSizes = map[string]float64{"DOLFUT": 100, "WDOFUT": 400}
	}
	if pd.QuickReplacementSec <= 0 {
		pd.QuickReplacementSec = 5
	}
	if pd.AggressiveRenovation <= 0 {
		pd.AggressiveRenovation = 5
	}
	if pd.AggressiveMaxSec <= 0 {
		pd.AggressiveMaxSec = 20
	}
	if pd.ActiveRenovations <= 0 {
		pd.ActiveRenovations = 3
	}
	if pd.ActiveMaxSec <= 0 {
		pd.ActiveMaxSec = 30
	}
	if pd.PassiveMinSec <= 0 {
		pd.PassiveMinSec = 20
	}
	if pd.RenovationWeight <= 0 {
		pd.RenovationWeight = 40
	}
	if pd.PersistenceWeight <= 0 {
		pd.PersistenceWeight = 30
	}
	if pd.VolumeWeight <= 0 {
		pd.VolumeWeight = 30
	}
	if pd.RenovationDivisor <= 0 {
		pd.RenovationDivisor = 2.0
	}
	if pd.VolumeDivisor <= 0 {
		pd.VolumeDivisor = 2.0
	}
	if c.Behavior.DisplayMinStrength <= 0 {
		c.Behavior.DisplayMinStrength = 60
	}

	if c.Position.MaxTimeMinutes <= 0 {
		c.Position.MaxTimeMinutes = 5
	}
	if c.Position.AdverseLimit <= 0 {
		c.Position.AdverseLimit = 0.5
	}
	if c.Position.TapeAdverseLimit <= 0 {
		c.Position.TapeAdverseLimit = 3.0
	}
	if c.Position.FavorableFloor <= 0 {
		c.Position.FavorableFloor = 0.3
	}
	if c.Position.SpreadConvergedZ <= 0 {
		c.Position.SpreadConvergedZ = 0.5
	}
	if c.Position.NoProgressSec <= 0 {
		c.Position.NoProgressSec = 120
	}

	if c.Dynamic.AdjustIntervalSec <= 0 {
		c.Dynamic.AdjustIntervalSec = 300
	}
	if c.Dynamic.MinSamples <= 0 {
		c.Dynamic.MinSamples = 50
	}
	if c.Dynamic.RecentWindow <= 0 {
		c.Dynamic.RecentWindow = 30
	}
	if c.Dynamic.HighVolRatio <= 0 {
		c.Dynamic.HighVolRatio = 1.5
	}
	if c.Dynamic.LowVolRatio <= 0 {
		c.Dynamic.LowVolRatio = 0.7
	}
	if c.Dynamic.GradualWeight <= 0 {
		c.Dynamic.GradualWeight = 0.3
	}
	if c.Dynamic.BaseStdThreshold <= 0 {
		c.Dynamic.BaseStdThreshold = 1.5
	}
	if c.Dynamic.BaseMinProfit <= 0 {
		c.Dynamic.BaseMinProfit = 20.0
	}
	if c.Dynamic.BaseSlippage <= 0 {
		c.Dynamic.BaseSlippage = 0.5
	}
	if c.Dynamic.HighVolatility == (RegimeMultipliers{}) {
		c.Dynamic.HighVolatility = RegimeMultipliers{StdThreshold: 1.3, MinProfit: 1.2, Slippage: 1.5}
	}
	if c.Dynamic.LowVolatility == (RegimeMultipliers{}) {
		c.Dynamic.LowVolatility = RegimeMultipliers{StdThreshold: 0.8, MinProfit: 0.9, Slippage: 0.8}
	}

	if c.Flow.WindowSize <= 0 {
		c.Flow.WindowSize = 200
	}
	if c.Flow.AbsorptionThreshold <= 0 {
		c.Flow.AbsorptionThreshold = 1000
	}
	if c.Flow.DivergenceThreshold <= 0 {
		c.Flow.DivergenceThreshold = 0.6
	}

	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs/signals"
	}
	if c.Logging.BufferSize <= 0 {
		c.Logging.BufferSize = 10
	}
	if len(c.Logging.Formats) == 0 {
		c.Logging.Formats = []string{"jsonl", "csv"}
	}
	if c.Logging.HistorySize <= 0 {
		c.Logging.HistorySize = 5
	}

	if c.Profiles == nil {
		c.Profiles = map[string]Profile{
			"default":       {},
			"small_spreads": {StdThreshold: 1.2, MinSamples: 15, MinProfit: 10.0},
			"aggressive":    {StdThreshold: 1.0, MinSamples: 10, MinProfit: 5.0},
		}
	}
}
