package types

import "time"

// HoursPerDay is the fixed length of every canonical day series, including
// days with a daylight saving transition.
const HoursPerDay = 24

// EnergyUnit is the unit every canonical day series is expressed in.
const EnergyUnit = "kWh"

// Kind identifies which quantity a canonical day series carries.
type Kind string

const (
	KindGeneration Kind = "generation"
	KindExport     Kind = "export"
)

// Point is a single timestamped sample returned by the telemetry provider.
type Point struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// RawSeries is one provider series as it came off the wire. Exactly one of
// Values or Points is populated.
type RawSeries struct {
	Variable string    `json:"variable"`
	Unit     string    `json:"unit"`
	Values   []float64 `json:"values,omitempty"`
	Points   []Point   `json:"points,omitempty"`
}

// HasPoints returns true if the series is a timestamped point stream rather
// than a flat list of values.
func (r RawSeries) HasPoints() bool {
	return len(r.Points) > 0
}

// CanonicalDaySeries is the per-hour energy for one calendar day.
type CanonicalDaySeries struct {
	Date     time.Time `json:"date"`
	Kind     Kind      `json:"kind"`
	Unit     string    `json:"unit"`
	Variable string    `json:"variable"`
	// Matched is false when none of the provider field names for this kind
	// carried data and the series is an all-zero placeholder.
	Matched bool                 `json:"matched"`
	Hours   [HoursPerDay]float64 `json:"hours"`
	Total   float64              `json:"total"`
	// ToNow is the energy up to the cutoff. For a finished day it equals
	// Total, and for the current day Total is itself only up to the cutoff.
	ToNow   float64   `json:"toNow"`
	Partial bool      `json:"partial"`
	Cutoff  time.Time `json:"-"`
}

// ZeroDaySeries returns an unmatched all-zero series for the given day.
func ZeroDaySeries(date time.Time, kind Kind) CanonicalDaySeries {
	return CanonicalDaySeries{
		Date: date,
		Kind: kind,
		Unit: EnergyUnit,
	}
}

// DaySeries holds both canonical series the dashboard shows for a day.
type DaySeries struct {
	Date       time.Time          `json:"date"`
	Generation CanonicalDaySeries `json:"generation"`
	Export     CanonicalDaySeries `json:"export"`
	// Degraded is true when a fallback fetch failed, so an unmatched series
	// may be missing data rather than genuinely empty.
	Degraded bool `json:"degraded,omitempty"`
}

// Device is an inverter registered on the telemetry account.
type Device struct {
	SerialNumber string `json:"deviceSN"`
	Type         string `json:"deviceType"`
	StationName  string `json:"stationName"`
	Status       int    `json:"status"`
}

// RealtimePower is the instantaneous PV output reported by the inverter.
type RealtimePower struct {
	Variable string    `json:"variable"`
	Watts    float64   `json:"watts"`
	Matched  bool      `json:"matched"`
	Fetched  time.Time `json:"fetched"`
}
