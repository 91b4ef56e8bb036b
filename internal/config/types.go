package config

import "strings"

// Config is the top-level configuration for the trading engine.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Session  SessionConfig  `yaml:"session"`
	Trading  TradingConfig  `yaml:"trading"`
	Broker   BrokerConfig   `yaml:"broker"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Paths    PathsConfig    `yaml:"paths"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`
}

// SessionConfig carries all intraday clock boundaries as "HH:MM" strings in
// the configured timezone.
type SessionConfig struct {
	Timezone   string `yaml:"timezone"`
	MarketOpen string `yaml:"market_open"`
	EntryStart string `yaml:"entry_start"`
	EntryEnd   string `yaml:"entry_end"`
	ForceExit  string `yaml:"force_exit"`
	// SessionEnd is the last active tick boundary; MarketClose is the later
	// hard boundary past which a fresh start is refused for the day.
	SessionEnd  string `yaml:"session_end"`
	MarketClose string `yaml:"market_close"`

	TickSeconds int `yaml:"tick_seconds"`
	IdleSeconds int `yaml:"idle_seconds"`
	PollSeconds int `yaml:"poll_seconds"`
}

type TradingConfig struct {
	Mode          string  `yaml:"mode"` // "paper" | "live"
	Quantity      int     `yaml:"quantity"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
}

// Live reports whether real orders should be routed to the broker.
func (t TradingConfig) Live() bool {
	return strings.EqualFold(strings.TrimSpace(t.Mode), "live")
}

type BrokerConfig struct {
	ClientID    string `yaml:"client_id"`
	AccessToken string `yaml:"access_token"`
	AccessKey   string `yaml:"access_key"`
}

type FetchConfig struct {
	Retries        int `yaml:"retries"`
	BackoffSeconds int `yaml:"backoff_seconds"`
}

type AnalysisConfig struct {
	WindowBars int `yaml:"window_bars"`
}

type PathsConfig struct {
	TradeLog   string `yaml:"trade_log"`
	SnapshotDB string `yaml:"snapshot_db"`
	SignalDB   string `yaml:"signal_db"`
	ParamTable string `yaml:"param_table"`
	MarketData string `yaml:"market_data"`
	Liveness   string `yaml:"liveness"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
