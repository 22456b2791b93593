package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of decimal places revenue is presented with.
const CurrencyPlaces = 2

// Mode selects which price is applied to generation.
type Mode string

const (
	// ModeHourly multiplies each hour by that hour's spot price.
	ModeHourly Mode = "hourly"
	// ModeMonthly multiplies every hour by the monthly average price.
	ModeMonthly Mode = "monthly"
)

// ParseMode parses a mode name. The market names rce and rcem are accepted as
// aliases and an empty string defaults to hourly.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hourly", "rce":
		return ModeHourly, nil
	case "monthly", "rcem":
		return ModeMonthly, nil
	default:
		return "", fmt.Errorf("unknown mode: %s", s)
	}
}

// RevenueRow is the revenue for a single hour.
type RevenueRow struct {
	Hour      int     `json:"hour"`
	Energy    float64 `json:"energy"`
	Price     float64 `json:"price"`
	PriceUsed float64 `json:"priceUsed"`
	Revenue   float64 `json:"revenue"`
}

// RevenueDay is the revenue for a calendar day. Totals are kept at full
// precision and only rounded when presented.
type RevenueDay struct {
	Date     time.Time               `json:"date"`
	Mode     Mode                    `json:"mode"`
	Rows     [HoursPerDay]RevenueRow `json:"rows"`
	Energy   float64                 `json:"energy"`
	Revenue  float64                 `json:"revenue"`
	Partial  bool                    `json:"partial"`
	Degraded bool                    `json:"degraded,omitempty"`
}

// RangeDay is the per-day entry of a range computation.
type RangeDay struct {
	Date     time.Time `json:"date"`
	Energy   float64   `json:"energy"`
	Revenue  float64   `json:"revenue"`
	Degraded bool      `json:"degraded,omitempty"`
}

// RangeResult is the aggregate over an inclusive span of days. Daily is in
// calendar order.
type RangeResult struct {
	From     time.Time  `json:"from"`
	To       time.Time  `json:"to"`
	Mode     Mode       `json:"mode"`
	Days     int        `json:"days"`
	Degraded int        `json:"degraded"`
	Energy   float64    `json:"energy"`
	Revenue  float64    `json:"revenue"`
	Daily    []RangeDay `json:"daily,omitempty"`
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// RoundCurrency rounds a currency amount for presentation.
func RoundCurrency(v float64) float64 {
	return Round(v, CurrencyPlaces)
}
