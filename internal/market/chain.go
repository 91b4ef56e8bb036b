package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// OptionSide distinguishes the two legs of a strike.
type OptionSide string

const (
	SideCall OptionSide = "CALL"
	SidePut  OptionSide = "PUT"
)

// StrikeRow holds both legs of a single strike in an option-chain snapshot.
type StrikeRow struct {
	CallOI       float64 `json:"call_oi"`
	PutOI        float64 `json:"put_oi"`
	CallOIChange float64 `json:"call_oi_change"`
	PutOIChange  float64 `json:"put_oi_change"`
	CallBid      float64 `json:"call_bid"`
	PutBid       float64 `json:"put_bid"`
	CallID       string  `json:"call_id"`
	PutID        string  `json:"put_id"`
}

// ChainSnapshot is one option-chain fetch. It is produced fresh each cycle and
// never mutated, only aggregated and reduced.
type ChainSnapshot struct {
	Strikes    map[float64]StrikeRow `json:"strikes"`
	Timestamp  time.Time             `json:"timestamp"`
	Underlying float64               `json:"underlying"`
}

// Empty reports whether the snapshot carries no strikes.
func (c ChainSnapshot) Empty() bool {
	return len(c.Strikes) == 0
}

// CallChangeSum sums the call OI change across all strikes.
func (c ChainSnapshot) CallChangeSum() float64 {
	var sum float64
	for _, row := range c.Strikes {
		sum += row.CallOIChange
	}
	return sum
}

// PutChangeSum sums the put OI change across all strikes.
func (c ChainSnapshot) PutChangeSum() float64 {
	var sum float64
	for _, row := range c.Strikes {
		sum += row.PutOIChange
	}
	return sum
}

// MaxCallOIStrike returns the strike with the highest call open interest and
// that open interest. A snapshot without strikes reduces to (0, 0), which can
// never pass the entry conditions.
func (c ChainSnapshot) MaxCallOIStrike() (strike, oi float64) {
	first := true
	for s, row := range c.Strikes {
		if first || row.CallOI > oi || (row.CallOI == oi && s < strike) {
			strike, oi = s, row.CallOI
			first = false
		}
	}
	return strike, oi
}

// MaxPutOIStrike mirrors MaxCallOIStrike for the put side.
func (c ChainSnapshot) MaxPutOIStrike() (strike, oi float64) {
	first := true
	for s, row := range c.Strikes {
		if first || row.PutOI > oi || (row.PutOI == oi && s < strike) {
			strike, oi = s, row.PutOI
			first = false
		}
	}
	return strike, oi
}

// Bid returns the bid price for the given strike and side.
func (c ChainSnapshot) Bid(strike float64, side OptionSide) (float64, bool) {
	row, ok := c.Strikes[strike]
	if !ok {
		return 0, false
	}
	if side == SidePut {
		return row.PutBid, true
	}
	return row.CallBid, true
}

// chainSnapshotJSON mirrors ChainSnapshot with string strike keys, since
// encoding/json cannot handle float map keys.
type chainSnapshotJSON struct {
	Strikes    map[string]StrikeRow `json:"strikes"`
	Timestamp  time.Time            `json:"timestamp"`
	Underlying float64              `json:"underlying"`
}

func (c ChainSnapshot) MarshalJSON() ([]byte, error) {
	out := chainSnapshotJSON{
		Strikes:    make(map[string]StrikeRow, len(c.Strikes)),
		Timestamp:  c.Timestamp,
		Underlying: c.Underlying,
	}
	for strike, row := range c.Strikes {
		out.Strikes[strconv.FormatFloat(strike, 'f', -1, 64)] = row
	}
	return json.Marshal(out)
}

func (c *ChainSnapshot) UnmarshalJSON(data []byte) error {
	var in chainSnapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Timestamp = in.Timestamp
	c.Underlying = in.Underlying
	c.Strikes = make(map[float64]StrikeRow, len(in.Strikes))
	for key, row := range in.Strikes {
		strike, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return fmt.Errorf("strike key %q: %w", key, err)
		}
		c.Strikes[strike] = row
	}
	return nil
}

// Identifier returns the instrument id for the given strike and side.
func (c ChainSnapshot) Identifier(strike float64, side OptionSide) (string, bool) {
	row, ok := c.Strikes[strike]
	if !ok {
		return "", false
	}
	if side == SidePut {
		return row.PutID, row.PutID != ""
	}
	return row.CallID, row.CallID != ""
}
