package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/markcheno/go-talib"

	"ironfly/internal/analysis/indicator"
	"ironfly/internal/market"
	"ironfly/internal/strategy/paramtable"
)

// Decision is the per-cycle directional call.
type Decision string

const (
	DecisionCall    Decision = "CALL"
	DecisionPut     Decision = "PUT"
	DecisionNeutral Decision = "NEUTRAL"
)

// Trend labels.
const (
	TrendUp           = "up"
	TrendDown         = "down"
	TrendInsufficient = "insufficient data"
)

// Entry thresholds for the put/call ratio.
const (
	callRatioFloor = 1.25
	putRatioCeil   = 0.75
)

// trendWindow is the tail of the OI-difference series the slope is fit over.
const trendWindow = 5

// DefaultDayLabel is used when the percentile table has no row for the key.
const DefaultDayLabel = "Bullish 50.0"

// OIStats aggregates one option-chain snapshot for signal evaluation.
type OIStats struct {
	CallSum       float64 // sum of call OI change across strikes
	PutSum        float64 // sum of put OI change across strikes
	CallMaxStrike float64 // strike with the highest call OI
	PutMaxStrike  float64 // strike with the highest put OI
	CallMax       float64 // call OI at CallMaxStrike
	PutMax        float64 // put OI at PutMaxStrike
}

// StatsFromChain reduces a chain snapshot to the numbers Evaluate needs.
func StatsFromChain(chain market.ChainSnapshot) OIStats {
	var s OIStats
	s.CallSum = chain.CallChangeSum()
	s.PutSum = chain.PutChangeSum()
	s.CallMaxStrike, s.CallMax = chain.MaxCallOIStrike()
	s.PutMaxStrike, s.PutMax = chain.MaxPutOIStrike()
	return s
}

// Ratio is the put/call OI-change ratio. A zero call sum yields +Inf, which
// satisfies the CALL ratio test only.
func (s OIStats) Ratio() float64 {
	if s.CallSum == 0 {
		return math.Inf(1)
	}
	return s.PutSum / s.CallSum
}

// Diff is the running difference the trend is computed over.
func (s OIStats) Diff() float64 {
	return s.PutSum - s.CallSum
}

// Evaluate turns aggregated OI flow into a directional decision. All three
// conditions of a side must hold; anything else is NEUTRAL.
func Evaluate(s OIStats) Decision {
	ratio := s.Ratio()
	switch {
	case s.PutMax-s.CallMax > 0 && s.Diff() > 0 && ratio > callRatioFloor:
		return DecisionCall
	case s.PutMax-s.CallMax < 0 && s.Diff() < 0 && ratio < putRatioCeil:
		return DecisionPut
	default:
		return DecisionNeutral
	}
}

// Trend fits a least-squares line through the tail of the OI-difference
// series and labels its slope.
func Trend(diffs []float64) string {
	if len(diffs) < 2 {
		return TrendInsufficient
	}
	n := trendWindow
	if len(diffs) < n {
		n = len(diffs)
	}
	tail := diffs[len(diffs)-n:]
	slope := talib.LinearRegSlope(tail, n)
	if slope[len(slope)-1] > 0 {
		return TrendUp
	}
	return TrendDown
}

// DayKey concatenates the five YES/NO comparisons of today's open against
// the last enriched historical bar.
func DayKey(last indicator.EnrichedBar, todayOpen float64) string {
	return yesNo(todayOpen > last.ShortMA) +
		yesNo(todayOpen > last.LongMA) +
		yesNo(todayOpen > last.UpperBand) +
		yesNo(todayOpen < last.LowerBand) +
		yesNo(todayOpen > last.SevenMA)
}

// ClassifyDay looks the pattern key up in the historical percentile table.
// Absent keys and empty tables classify as mildly bullish.
func ClassifyDay(last indicator.EnrichedBar, todayOpen float64, table *paramtable.Registry) string {
	if table == nil || table.Len() == 0 {
		return DefaultDayLabel
	}
	row, ok := table.Lookup(DayKey(last, todayOpen))
	if !ok {
		return DefaultDayLabel
	}
	if row.Bearish > 50 {
		return fmt.Sprintf("Bearish %.2f", row.Bearish)
	}
	return fmt.Sprintf("Bullish %.2f", row.Bullish)
}

// IsBullish reports whether a day label carries a bullish bias.
func IsBullish(label string) bool {
	return strings.HasPrefix(label, "Bullish")
}

// IsBearish reports whether a day label carries a bearish bias.
func IsBearish(label string) bool {
	return strings.HasPrefix(label, "Bearish")
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// SignalRow is one cycle of the running signal history. The latest row gates
// trade entry.
type SignalRow struct {
	TraceID       string    `json:"trace_id"`
	Timestamp     time.Time `json:"timestamp"`
	Underlying    float64   `json:"underlying"`
	PutSum        float64   `json:"put_sum"`
	CallSum       float64   `json:"call_sum"`
	Diff          float64   `json:"diff"`
	PCR           float64   `json:"pcr"`
	CallMaxStrike float64   `json:"call_max_strike"`
	CallMax       float64   `json:"call_max"`
	PutMaxStrike  float64   `json:"put_max_strike"`
	PutMax        float64   `json:"put_max"`
	Decision      Decision  `json:"decision"`
	DayLabel      string    `json:"day_label"`
	Trend         string    `json:"trend"`
}
