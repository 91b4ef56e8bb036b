package config

import (
	"fmt"
	"strings"
	"time"
)

func validate(c *Config) error {
	if err := c.Session.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Fetch.validate(); err != nil {
		return err
	}
	if c.Trading.Live() {
		if err := c.Broker.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionConfig) validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("session.timezone invalid: %w", err)
	}
	clocks := []struct {
		key   string
		value string
	}{
		{"session.market_open", s.MarketOpen},
		{"session.entry_start", s.EntryStart},
		{"session.entry_end", s.EntryEnd},
		{"session.force_exit", s.ForceExit},
		{"session.session_end", s.SessionEnd},
		{"session.market_close", s.MarketClose},
	}
	for _, c := range clocks {
		if _, err := time.Parse("15:04", strings.TrimSpace(c.value)); err != nil {
			return fmt.Errorf("%s must be HH:MM: %w", c.key, err)
		}
	}
	if s.TickSeconds <= 0 {
		return fmt.Errorf("session.tick_seconds must be > 0")
	}
	if s.IdleSeconds <= 0 {
		return fmt.Errorf("session.idle_seconds must be > 0")
	}
	if s.PollSeconds <= 0 {
		return fmt.Errorf("session.poll_seconds must be > 0")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(t.Mode))
	if mode != "paper" && mode != "live" {
		return fmt.Errorf("trading.mode must be paper or live, got %q", t.Mode)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("trading.quantity must be > 0")
	}
	if t.TakeProfitPct <= 0 {
		return fmt.Errorf("trading.take_profit_pct must be > 0")
	}
	if t.StopLossPct >= 0 {
		return fmt.Errorf("trading.stop_loss_pct must be < 0")
	}
	return nil
}

func (f *FetchConfig) validate() error {
	if f.Retries < 0 {
		return fmt.Errorf("fetch.retries must be >= 0")
	}
	if f.BackoffSeconds < 0 {
		return fmt.Errorf("fetch.backoff_seconds must be >= 0")
	}
	return nil
}

// validate requires full credentials when live trading is enabled.
func (b *BrokerConfig) validate() error {
	if strings.TrimSpace(b.ClientID) == "" {
		return fmt.Errorf("broker.client_id required for live trading")
	}
	if strings.TrimSpace(b.AccessToken) == "" {
		return fmt.Errorf("broker.access_token required for live trading")
	}
	if strings.TrimSpace(b.AccessKey) == "" {
		return fmt.Errorf("broker.access_key required for live trading")
	}
	return nil
}
