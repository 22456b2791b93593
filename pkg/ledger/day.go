package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pvledger/pvledger/pkg/align"
	"github.com/pvledger/pvledger/pkg/log"
	"github.com/pvledger/pvledger/pkg/metrics"
	"github.com/pvledger/pvledger/pkg/normalize"
	"github.com/pvledger/pvledger/pkg/revenue"
	"github.com/pvledger/pvledger/pkg/types"
)

var (
	reportVariables  = append(append([]string(nil), normalize.GenerationEnergy...), normalize.ExportEnergy...)
	historyVariables = append(append([]string(nil), normalize.GenerationPower...), normalize.ExportPower...)
)

// GetDaySeries returns the generation and export series for the day
// containing date. Hourly energy counters are preferred and power samples
// are integrated for any quantity the counters did not carry. A day that has
// not started yet is returned as zeros without fetching. A failed report is
// returned as an error. A failed history fallback marks the result degraded
// and keeps it out of the cache.
func (l *Ledger) GetDaySeries(ctx context.Context, date time.Time) (types.DaySeries, error) {
	day := l.day(date)
	key := day.Format(types.DateLayout)
	ctx = log.WithAttrs(ctx, slog.String("date", key))

	if day.After(l.Today()) {
		return types.DaySeries{
			Date:       day,
			Generation: align.Align(types.KindGeneration, types.RawSeries{}, day, l.cfg.Now()),
			Export:     align.Align(types.KindExport, types.RawSeries{}, day, l.cfg.Now()),
		}, nil
	}

	if ds, ok := l.series.Get(key); ok {
		return ds, nil
	}

	var report []types.RawSeries
	err := l.fetch(ctx, func(ctx context.Context) error {
		var err error
		report, err = l.telemetry.DayReport(ctx, day, reportVariables)
		return err
	})
	if err != nil {
		return types.DaySeries{}, fmt.Errorf("failed to fetch report for %s: %w", key, err)
	}

	gen, genOK := normalize.Resolve(report, normalize.GenerationEnergy)
	exp, expOK := normalize.Resolve(report, normalize.ExportEnergy)

	var historyErr error
	if !genOK || !expOK {
		var history []types.RawSeries
		err := l.fetch(ctx, func(ctx context.Context) error {
			var err error
			history, err = l.telemetry.DayHistory(ctx, day, historyVariables)
			return err
		})
		if err != nil {
			historyErr = err
			log.Ctx(ctx).WarnContext(ctx, "failed to fetch power history", slog.Any("error", err))
		} else {
			if !genOK {
				if s, ok := normalize.Resolve(history, normalize.GenerationPower); ok {
					gen, genOK = s, true
				}
			}
			if !expOK {
				if s, ok := normalize.Resolve(history, normalize.ExportPower); ok {
					exp, expOK = s, true
				}
			}
		}
	}

	cutoff := l.cutoff(day)
	ds := types.DaySeries{
		Date:       day,
		Generation: align.Align(types.KindGeneration, gen, day, cutoff),
		Export:     align.Align(types.KindExport, exp, day, cutoff),
	}
	ds.Generation.Matched = genOK
	ds.Export.Matched = expOK
	ds.Degraded = historyErr != nil

	if !genOK {
		metrics.DegradedDays.WithLabelValues("generation_unmatched").Inc()
		log.Ctx(ctx).WarnContext(ctx, "no generation variable matched", slog.Any("variables", normalize.Variables(report)))
	}
	if !expOK {
		log.Ctx(ctx).DebugContext(ctx, "no export variable matched", slog.Any("variables", normalize.Variables(report)))
	}

	if ds.Degraded {
		metrics.DegradedDays.WithLabelValues("history_error").Inc()
		return ds, nil
	}
	l.series.Set(key, ds, l.ttl(day))
	return ds, nil
}

// GetDayRevenue returns the revenue for the day containing date. Telemetry
// failures are returned as errors. Missing or failed prices price the day at
// zero and mark it degraded.
func (l *Ledger) GetDayRevenue(ctx context.Context, date time.Time, mode types.Mode) (types.RevenueDay, error) {
	day := l.day(date)
	ds, err := l.GetDaySeries(ctx, day)
	if err != nil {
		return types.RevenueDay{}, err
	}
	var monthly *types.MonthlyPrice
	if mode == types.ModeMonthly {
		mp := l.monthlyPrice(ctx, day)
		monthly = &mp
	}
	return l.computeDay(ctx, ds, mode, monthly), nil
}

// computeDay prices a series. For monthly mode the monthly price must be
// supplied.
func (l *Ledger) computeDay(ctx context.Context, ds types.DaySeries, mode types.Mode, monthly *types.MonthlyPrice) types.RevenueDay {
	key := ds.Date.Format(types.DateLayout)
	var pricing revenue.Pricing
	switch mode {
	case types.ModeMonthly:
		pricing = revenue.Monthly(*monthly)
	default:
		pricing = revenue.Hourly(l.hourlyPrices(ctx, ds.Date))
	}

	rd := revenue.ComputeDay(ds.Generation, pricing)
	rd.Degraded = rd.Degraded || ds.Degraded
	if pricing.Missing {
		metrics.DegradedDays.WithLabelValues("prices_missing").Inc()
		log.Ctx(ctx).WarnContext(ctx, "pricing day without prices", slog.String("date", key), slog.String("mode", string(mode)))
	}
	return rd
}

func (l *Ledger) hourlyPrices(ctx context.Context, day time.Time) types.DayPrices {
	var dp types.DayPrices
	err := l.fetch(ctx, func(ctx context.Context) error {
		var err error
		dp, err = l.prices.HourlyPrices(ctx, day)
		return err
	})
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to fetch hourly prices", slog.String("date", day.Format(types.DateLayout)), slog.Any("error", err))
		return types.DayPrices{Date: day, Missing: true}
	}
	return dp
}

// monthlyPrice never fails. An unavailable price has source none. It runs
// under MonthTimeout instead of the per-fetch timeout.
func (l *Ledger) monthlyPrice(ctx context.Context, month time.Time) types.MonthlyPrice {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.MonthTimeout)
	defer cancel()
	mp, err := l.prices.MonthlyPrice(ctx, month)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to fetch monthly price", slog.String("month", types.MonthKey(month)), slog.Any("error", err))
		return types.MonthlyPrice{Month: types.MonthKey(month), Source: types.MonthlyPriceSourceNone}
	}
	return mp
}
