package market

import "time"

// Bar is one index price bar. Bars are append-only within a trading session.
type Bar struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// LiveQuote is the current intraday snapshot of the underlying index.
type LiveQuote struct {
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Last      float64   `json:"last"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Bar converts the quote into a bar, using the last traded price as close.
func (q LiveQuote) Bar() Bar {
	return Bar{
		Open:      q.Open,
		High:      q.High,
		Low:       q.Low,
		Close:     q.Last,
		Volume:    q.Volume,
		Timestamp: q.Timestamp,
	}
}
