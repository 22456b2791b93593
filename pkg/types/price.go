package types

import "time"

// PricePoint is the spot price for a single hour of a day. The price may be
// negative.
type PricePoint struct {
	Hour  int     `json:"hour"`
	Price float64 `json:"price"`
}

// DayPrices is the hourly spot price for one calendar day in currency per MWh.
type DayPrices struct {
	Date    time.Time            `json:"date"`
	Prices  [HoursPerDay]float64 `json:"prices"`
	Samples int                  `json:"samples"`
	// Missing is true when the provider returned nothing usable and Prices is
	// all zero.
	Missing bool `json:"missing"`
}

// Points returns the prices as ordered hour/price pairs.
func (d DayPrices) Points() []PricePoint {
	points := make([]PricePoint, HoursPerDay)
	for h, p := range d.Prices {
		points[h] = PricePoint{Hour: h, Price: p}
	}
	return points
}

// MonthlyPriceSource records where a monthly price came from.
type MonthlyPriceSource string

const (
	MonthlyPriceSourceTable   MonthlyPriceSource = "table"
	MonthlyPriceSourceRemote  MonthlyPriceSource = "remote"
	MonthlyPriceSourceAverage MonthlyPriceSource = "average"
	MonthlyPriceSourceNone    MonthlyPriceSource = "none"
)

// MonthlyPrice is a single scalar price for a whole month. Price is already
// floored at zero.
type MonthlyPrice struct {
	Month   string             `json:"month"`
	Price   float64            `json:"price"`
	Source  MonthlyPriceSource `json:"source"`
	Samples int                `json:"samples,omitempty"`
}
