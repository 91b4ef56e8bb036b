package config

import "strings"

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppLogPath  = "data/logs/ironfly.log"

	defaultSessionTimezone = "Asia/Kolkata"
	defaultMarketOpen      = "09:26"
	defaultEntryStart      = "11:26"
	defaultEntryEnd        = "14:25"
	defaultForceExit       = "15:00"
	defaultSessionEnd      = "15:25"
	defaultMarketClose     = "15:30"
	defaultTickSeconds     = 300
	defaultIdleSeconds     = 60
	defaultPollSeconds     = 60

	defaultTradingMode   = "paper"
	defaultQuantity      = 25
	defaultTakeProfitPct = 13
	defaultStopLossPct   = -6

	defaultFetchRetries = 2
	defaultFetchBackoff = 120

	defaultWindowBars = 18

	defaultTradeLogPath   = "data/trades.csv"
	defaultSnapshotDBPath = "data/db/snapshots.db"
	defaultSignalDBPath   = "data/db/signals.db"
	defaultParamTablePath = "configs/day_params.yaml"
	defaultMarketDataPath = "data/market"
	defaultLivenessPath   = "data/ironfly.alive"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Session.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Fetch.applyDefaults(keys)
	c.Analysis.applyDefaults(keys)
	c.Paths.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (s *SessionConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("session.timezone", &s.Timezone, defaultSessionTimezone),
		stringFieldDefault("session.market_open", &s.MarketOpen, defaultMarketOpen),
		stringFieldDefault("session.entry_start", &s.EntryStart, defaultEntryStart),
		stringFieldDefault("session.entry_end", &s.EntryEnd, defaultEntryEnd),
		stringFieldDefault("session.force_exit", &s.ForceExit, defaultForceExit),
		stringFieldDefault("session.session_end", &s.SessionEnd, defaultSessionEnd),
		stringFieldDefault("session.market_close", &s.MarketClose, defaultMarketClose),
		intFieldDefault("session.tick_seconds", &s.TickSeconds, defaultTickSeconds),
		intFieldDefault("session.idle_seconds", &s.IdleSeconds, defaultIdleSeconds),
		intFieldDefault("session.poll_seconds", &s.PollSeconds, defaultPollSeconds),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("trading.mode", &t.Mode, defaultTradingMode),
		intFieldDefault("trading.quantity", &t.Quantity, defaultQuantity),
		fieldDefault{
			key:   "trading.take_profit_pct",
			need:  func() bool { return t.TakeProfitPct == 0 },
			apply: func() { t.TakeProfitPct = defaultTakeProfitPct },
		},
		fieldDefault{
			key:   "trading.stop_loss_pct",
			need:  func() bool { return t.StopLossPct == 0 },
			apply: func() { t.StopLossPct = defaultStopLossPct },
		},
	)
}

func (f *FetchConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("fetch.retries", &f.Retries, defaultFetchRetries),
		intFieldDefault("fetch.backoff_seconds", &f.BackoffSeconds, defaultFetchBackoff),
	)
}

func (a *AnalysisConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("analysis.window_bars", &a.WindowBars, defaultWindowBars),
	)
}

func (p *PathsConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("paths.trade_log", &p.TradeLog, defaultTradeLogPath),
		stringFieldDefault("paths.snapshot_db", &p.SnapshotDB, defaultSnapshotDBPath),
		stringFieldDefault("paths.signal_db", &p.SignalDB, defaultSignalDBPath),
		stringFieldDefault("paths.param_table", &p.ParamTable, defaultParamTablePath),
		stringFieldDefault("paths.market_data", &p.MarketData, defaultMarketDataPath),
		stringFieldDefault("paths.liveness", &p.Liveness, defaultLivenessPath),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
