package normalize

import (
	"strings"

	"github.com/pvledger/pvledger/pkg/metrics"
	"github.com/pvledger/pvledger/pkg/types"
)

// DefaultUnitThreshold is the largest per-sample magnitude accepted for a
// series labelled kWh or kW. Residential inverters never report more per
// hour, so anything above it was sent in Wh or W under the wrong label.
const DefaultUnitThreshold = 100

// UnitClass classifies a declared unit.
type UnitClass int

const (
	UnitUnknown UnitClass = iota
	UnitEnergy
	UnitPower
)

// ClassifyUnit returns whether unit is an energy or a power unit.
func ClassifyUnit(unit string) UnitClass {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "kwh", "wh", "mwh":
		return UnitEnergy
	case "kw", "w", "mw":
		return UnitPower
	default:
		return UnitUnknown
	}
}

// CorrectUnits rescales every series to kWh or kW. Series declared in Wh or
// W are divided by 1000. Series declared in kWh or kW whose largest sample
// exceeds threshold are treated as mislabelled sub-units and divided by 1000
// too. Input series are not modified.
func CorrectUnits(series []types.RawSeries, threshold float64) []types.RawSeries {
	out := make([]types.RawSeries, len(series))
	for i, s := range series {
		out[i] = correctUnit(s, threshold)
	}
	return out
}

func correctUnit(s types.RawSeries, threshold float64) types.RawSeries {
	unit := strings.ToLower(strings.TrimSpace(s.Unit))
	switch unit {
	case "wh":
		return scale(s, 1, 1000, types.EnergyUnit)
	case "w":
		return scale(s, 1, 1000, "kW")
	case "mwh":
		return scale(s, 1000, 1, types.EnergyUnit)
	case "mw":
		return scale(s, 1000, 1, "kW")
	case "kwh", "kw":
		if threshold > 0 && maxAbs(s) > threshold {
			metrics.UnitCorrections.WithLabelValues(s.Variable).Inc()
			label := types.EnergyUnit
			if unit == "kw" {
				label = "kW"
			}
			return scale(s, 1, 1000, label)
		}
	}
	return copySeries(s)
}

func maxAbs(s types.RawSeries) float64 {
	var m float64
	for _, v := range s.Values {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	for _, p := range s.Points {
		v := p.Value
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return m
}

func scale(s types.RawSeries, mul, div float64, unit string) types.RawSeries {
	c := copySeries(s)
	c.Unit = unit
	for i := range c.Values {
		c.Values[i] = c.Values[i] * mul / div
	}
	for i := range c.Points {
		c.Points[i].Value = c.Points[i].Value * mul / div
	}
	return c
}

func copySeries(s types.RawSeries) types.RawSeries {
	c := s
	if s.Values != nil {
		c.Values = append([]float64(nil), s.Values...)
	}
	if s.Points != nil {
		c.Points = append([]types.Point(nil), s.Points...)
	}
	return c
}
