// Package revenue applies prices to a canonical generation series.
package revenue

import (
	"github.com/pvledger/pvledger/pkg/types"
)

// UnitScale converts price per MWh times energy in kWh into currency.
const UnitScale = 1000

// EnergyPlaces is the number of decimal places energy is presented with.
const EnergyPlaces = 3

// Pricing is what a day is priced with: 24 hourly prices or one monthly
// price that already had the zero floor applied.
type Pricing struct {
	Mode    types.Mode
	Hourly  [types.HoursPerDay]float64
	Monthly float64
	// Missing is true when the prices behind this pricing were unavailable
	// and zero was substituted.
	Missing bool
}

// Hourly prices a day with its hourly spot prices.
func Hourly(dp types.DayPrices) Pricing {
	return Pricing{
		Mode:    types.ModeHourly,
		Hourly:  dp.Prices,
		Missing: dp.Missing,
	}
}

// Monthly prices a day with a monthly price.
func Monthly(mp types.MonthlyPrice) Pricing {
	return Pricing{
		Mode:    types.ModeMonthly,
		Monthly: mp.Price,
		Missing: mp.Source == types.MonthlyPriceSourceNone,
	}
}

// ComputeDay multiplies each hour of gen by its price. In hourly mode a
// negative price earns nothing for that hour but the hour's energy still
// counts. In monthly mode the monthly price is used as given. Totals are kept
// at full precision.
func ComputeDay(gen types.CanonicalDaySeries, p Pricing) types.RevenueDay {
	day := types.RevenueDay{
		Date:     gen.Date,
		Mode:     p.Mode,
		Partial:  gen.Partial,
		Degraded: p.Missing,
	}
	for h := 0; h < types.HoursPerDay; h++ {
		energy := gen.Hours[h]
		price := p.Monthly
		used := p.Monthly
		if p.Mode != types.ModeMonthly {
			price = p.Hourly[h]
			used = max(price, 0)
		}
		row := types.RevenueRow{
			Hour:      h,
			Energy:    energy,
			Price:     price,
			PriceUsed: used,
			Revenue:   energy * used / UnitScale,
		}
		day.Rows[h] = row
		day.Energy += row.Energy
		day.Revenue += row.Revenue
	}
	return day
}

// Present rounds a day for display. Revenue is rounded to currency places
// and energy to EnergyPlaces, once, after all accumulation.
func Present(d types.RevenueDay) types.RevenueDay {
	for h := range d.Rows {
		d.Rows[h].Energy = types.Round(d.Rows[h].Energy, EnergyPlaces)
		d.Rows[h].Revenue = types.RoundCurrency(d.Rows[h].Revenue)
	}
	d.Energy = types.Round(d.Energy, EnergyPlaces)
	d.Revenue = types.RoundCurrency(d.Revenue)
	return d
}

// PresentRange rounds a range result for display.
func PresentRange(r types.RangeResult) types.RangeResult {
	r.Energy = types.Round(r.Energy, EnergyPlaces)
	r.Revenue = types.RoundCurrency(r.Revenue)
	if r.Daily != nil {
		daily := make([]types.RangeDay, len(r.Daily))
		for i, d := range r.Daily {
			d.Energy = types.Round(d.Energy, EnergyPlaces)
			d.Revenue = types.RoundCurrency(d.Revenue)
			daily[i] = d
		}
		r.Daily = daily
	}
	return r
}
