package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MarketStats is the shape of the stats object sent with market overview
// answers and returned by the stats endpoint.
type MarketStats struct {
	Area   string `json:"area" yaml:"area"`
	Counts struct {
		Total  int `json:"total" yaml:"total"`
		Active int `json:"active" yaml:"active"`
	} `json:"counts" yaml:"counts"`
	Prices struct {
		Min        Price `json:"min" yaml:"min"`
		Max        Price `json:"max" yaml:"max"`
		Avg        Price `json:"avg" yaml:"avg"`
		TotalValue Price `json:"total_value" yaml:"total_value"`
	} `json:"prices" yaml:"prices"`
	CityBreakdown []CityStats `json:"city_breakdown,omitempty" yaml:"city_breakdown,omitempty"`
}

type CityStats struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
	Avg   Price  `json:"avg" yaml:"avg"`
	Min   Price  `json:"min" yaml:"min"`
	Max   Price  `json:"max" yaml:"max"`
}

// DecodeMarketStats parses raw stats. ok is false when the payload does not
// look like market stats (no counts and no prices).
func DecodeMarketStats(raw json.RawMessage) (MarketStats, bool, error) {
	var ms MarketStats
	if len(raw) == 0 {
		return ms, false, nil
	}
	if err := json.Unmarshal(raw, &ms); err != nil {
		return ms, false, errors.Wrap(err, "decode market stats")
	}
	ok := ms.Counts.Total > 0 || ms.Prices.Avg.Valid || len(ms.CityBreakdown) > 0
	return ms, ok, nil
}
