// Package align converts raw provider series into the canonical 24 bucket
// per-hour energy grid for a single calendar day.
package align

import (
	"sort"
	"time"

	"github.com/pvledger/pvledger/pkg/normalize"
	"github.com/pvledger/pvledger/pkg/types"
)

// Align builds the canonical series of kind for the day starting at date.
// The day's location is date's location. When cutoff falls inside the day,
// nothing at or after it contributes and the result is marked partial.
//
// Flat values are read as one value per hour starting at midnight. Point
// streams in an energy unit are summed per hour. Point streams in any other
// unit are treated as power and integrated up to the next point, or one hour
// past the last point, splitting across hour boundaries. Points outside the
// day are discarded and negative samples count as zero.
func Align(kind types.Kind, s types.RawSeries, date, cutoff time.Time) types.CanonicalDaySeries {
	dayStart := types.StartOfDay(date)
	dayEnd := dayStart.AddDate(0, 0, 1)

	out := types.ZeroDaySeries(dayStart, kind)
	out.Variable = s.Variable

	end := dayEnd
	if !cutoff.IsZero() && cutoff.Before(dayEnd) {
		end = cutoff
		if end.Before(dayStart) {
			end = dayStart
		}
		out.Partial = true
		out.Cutoff = cutoff
	}

	if s.HasPoints() {
		alignPoints(&out, s, dayStart, end)
	} else {
		alignValues(&out, s.Values, dayStart, end)
	}

	var total float64
	for _, v := range out.Hours {
		total += v
	}
	out.Total = total
	out.ToNow = total
	return out
}

func alignValues(out *types.CanonicalDaySeries, values []float64, dayStart, end time.Time) {
	for h := 0; h < types.HoursPerDay && h < len(values); h++ {
		if !hourStart(dayStart, h).Before(end) {
			break
		}
		out.Hours[h] = nonNegative(values[h])
	}
}

func alignPoints(out *types.CanonicalDaySeries, s types.RawSeries, dayStart, end time.Time) {
	loc := dayStart.Location()
	points := make([]types.Point, 0, len(s.Points))
	for _, p := range s.Points {
		ts := p.TS.In(loc)
		if ts.Before(dayStart) || !ts.Before(end) {
			continue
		}
		points = append(points, types.Point{TS: ts, Value: p.Value})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].TS.Before(points[j].TS)
	})

	if normalize.ClassifyUnit(s.Unit) == normalize.UnitEnergy {
		for _, p := range points {
			out.Hours[p.TS.Hour()] += nonNegative(p.Value)
		}
		return
	}

	for i, p := range points {
		until := p.TS.Add(time.Hour)
		if i+1 < len(points) {
			until = points[i+1].TS
		}
		if until.After(end) {
			until = end
		}
		integrate(out, nonNegative(p.Value), p.TS, until)
	}
}

// integrate adds power × duration over [from, to) into the hour buckets the
// interval covers.
func integrate(out *types.CanonicalDaySeries, power float64, from, to time.Time) {
	if power == 0 {
		return
	}
	loc := from.Location()
	for from.Before(to) {
		boundary := time.Date(from.Year(), from.Month(), from.Day(), from.Hour()+1, 0, 0, 0, loc)
		if !boundary.After(from) {
			// the wall clock repeated this hour, move by absolute time instead
			boundary = from.Truncate(time.Hour).Add(time.Hour)
		}
		segEnd := boundary
		if segEnd.After(to) {
			segEnd = to
		}
		out.Hours[from.Hour()] += power * segEnd.Sub(from).Hours()
		from = segEnd
	}
}

func hourStart(dayStart time.Time, h int) time.Time {
	return time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), h, 0, 0, 0, dayStart.Location())
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
