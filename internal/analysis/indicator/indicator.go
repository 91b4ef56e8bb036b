package indicator

import (
	"math"

	"ironfly/internal/market"
)

// Window sizes the strategy was tuned with.
const (
	shortWindow = 10
	longWindow  = 20
	sevenWindow = 7
	rsiWindow   = 14

	bandWidth = 2.0
	rsiEps    = 1e-6
)

// EnrichedBar is a price bar plus the rolling statistics derived from the
// bar sequence prefix ending at it.
type EnrichedBar struct {
	market.Bar

	ShortMA   float64 `json:"short_ma"`   // 10-bar mean of close
	LongMA    float64 `json:"long_ma"`    // 20-bar mean of close
	StdDev    float64 `json:"std_dev"`    // 20-bar sample stddev, 0 below 2 samples
	UpperBand float64 `json:"upper_band"` // LongMA + 2*StdDev
	LowerBand float64 `json:"lower_band"` // LongMA - 2*StdDev
	SevenMA   float64 `json:"seven_ma"`   // 7-bar mean of close
	Momentum  int     `json:"momentum"`   // sign of the close delta: -1, 0, +1
	RSI       float64 `json:"rsi"`        // 0..100, 14-bar rolling-mean gains/losses
}

// Enrich computes rolling statistics over bars and returns a same-length
// enriched copy. Windows that are not yet full are computed over the
// available prefix rather than left undefined.
func Enrich(bars []market.Bar) ([]EnrichedBar, error) {
	if len(bars) == 0 {
		return nil, market.ErrInvalidInput
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	shortMA := rollingMean(closes, shortWindow)
	longMA := rollingMean(closes, longWindow)
	std := rollingStd(closes, longWindow)
	sevenMA := rollingMean(closes, sevenWindow)
	rsi := rollingRSI(closes, rsiWindow)

	out := make([]EnrichedBar, len(bars))
	for i, b := range bars {
		mom := 0
		if i > 0 {
			switch {
			case closes[i] > closes[i-1]:
				mom = 1
			case closes[i] < closes[i-1]:
				mom = -1
			}
		}
		out[i] = EnrichedBar{
			Bar:       b,
			ShortMA:   shortMA[i],
			LongMA:    longMA[i],
			StdDev:    std[i],
			UpperBand: longMA[i] + bandWidth*std[i],
			LowerBand: longMA[i] - bandWidth*std[i],
			SevenMA:   sevenMA[i],
			Momentum:  mom,
			RSI:       rsi[i],
		}
	}
	return out, nil
}

// rollingMean is a trailing mean with a minimum period of one: index i
// averages over the last min(i+1, window) values.
func rollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	var sum float64
	for i, v := range vals {
		sum += v
		n := window
		if i+1 < window {
			n = i + 1
		} else if i >= window {
			sum -= vals[i-window]
		}
		out[i] = sum / float64(n)
	}
	return out
}

// rollingStd is the trailing sample standard deviation over the same prefix
// policy as rollingMean. Fewer than two samples yields 0.
func rollingStd(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range vals {
		lo := i + 1 - window
		if lo < 0 {
			lo = 0
		}
		n := i + 1 - lo
		if n < 2 {
			out[i] = 0
			continue
		}
		var mean float64
		for _, v := range vals[lo : i+1] {
			mean += v
		}
		mean /= float64(n)
		var acc float64
		for _, v := range vals[lo : i+1] {
			d := v - mean
			acc += d * d
		}
		out[i] = math.Sqrt(acc / float64(n-1))
	}
	return out
}

// rollingRSI computes the relative strength index from rolling means of the
// positive and negative close deltas. A zero average loss is replaced with a
// small epsilon, driving RSI toward 100 on pure up-moves.
func rollingRSI(closes []float64, window int) []float64 {
	n := len(closes)
	up := make([]float64, n)
	down := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			up[i] = delta
		} else {
			down[i] = -delta
		}
	}
	avgUp := rollingMean(up, window)
	avgDown := rollingMean(down, window)
	out := make([]float64, n)
	for i := range out {
		loss := avgDown[i]
		if loss == 0 {
			loss = rsiEps
		}
		rs := avgUp[i] / loss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
