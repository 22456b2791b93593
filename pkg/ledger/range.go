package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pvledger/pvledger/pkg/log"
	"github.com/pvledger/pvledger/pkg/metrics"
	"github.com/pvledger/pvledger/pkg/revenue"
	"github.com/pvledger/pvledger/pkg/types"
)

// monthConcurrency bounds the monthly price prefetch.
const monthConcurrency = 2

// SpanDays returns the number of calendar days in the inclusive range from
// the day of from to the day of to. It is negative when to is before from.
func SpanDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a)/(24*time.Hour)) + 1
}

// ValidateRange returns ErrInvalidRange if to is before from or the range is
// longer than the configured maximum.
func (l *Ledger) ValidateRange(from, to time.Time) error {
	from, to = l.day(from), l.day(to)
	if to.Before(from) {
		return fmt.Errorf("%w: %s is before %s", types.ErrInvalidRange, to.Format(types.DateLayout), from.Format(types.DateLayout))
	}
	if n := SpanDays(from, to); n > l.cfg.MaxDays {
		return fmt.Errorf("%w: %d days exceeds the maximum of %d", types.ErrInvalidRange, n, l.cfg.MaxDays)
	}
	return nil
}

// GetRangeRevenue totals revenue over the inclusive range of days. Days whose
// telemetry cannot be fetched contribute zero and are counted as degraded;
// they never fail the range. Daily rows are in calendar order.
func (l *Ledger) GetRangeRevenue(ctx context.Context, from, to time.Time, mode types.Mode) (types.RangeResult, error) {
	if err := l.ValidateRange(from, to); err != nil {
		return types.RangeResult{}, err
	}
	from, to = l.day(from), l.day(to)
	n := SpanDays(from, to)
	days := make([]time.Time, n)
	for i := range days {
		days[i] = from.AddDate(0, 0, i)
	}
	ctx = log.WithAttrs(ctx, slog.String("from", from.Format(types.DateLayout)), slog.String("to", to.Format(types.DateLayout)))
	log.Ctx(ctx).DebugContext(ctx, "computing range", slog.Int("days", n), slog.String("mode", string(mode)))

	var monthly map[string]types.MonthlyPrice
	if mode == types.ModeMonthly {
		monthly = l.prefetchMonths(ctx, days)
	}

	today := l.Today()
	results := make([]types.RevenueDay, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i, day := range days {
		g.Go(func() error {
			if day.After(today) {
				results[i] = types.RevenueDay{Date: day, Mode: mode}
				return nil
			}
			var mp *types.MonthlyPrice
			if mode == types.ModeMonthly {
				v := monthly[types.MonthKey(day)]
				mp = &v
			}
			results[i] = l.rangeDay(gctx, day, mode, mp)
			return nil
		})
	}
	// workers never fail, a failed day degrades instead
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return types.RangeResult{}, err
	}

	res := types.RangeResult{
		From:  from,
		To:    to,
		Mode:  mode,
		Days:  n,
		Daily: make([]types.RangeDay, n),
	}
	for i, rd := range results {
		res.Energy += rd.Energy
		res.Revenue += rd.Revenue
		if rd.Degraded {
			res.Degraded++
		}
		res.Daily[i] = types.RangeDay{
			Date:     days[i],
			Energy:   rd.Energy,
			Revenue:  rd.Revenue,
			Degraded: rd.Degraded,
		}
	}
	log.Ctx(ctx).DebugContext(ctx, "computed range", slog.Int("degraded", res.Degraded))
	return res, nil
}

// rangeDay computes one day of a range. Telemetry failures yield a zero day
// marked degraded.
func (l *Ledger) rangeDay(ctx context.Context, day time.Time, mode types.Mode, monthly *types.MonthlyPrice) types.RevenueDay {
	ds, err := l.GetDaySeries(ctx, day)
	if err != nil {
		metrics.DegradedDays.WithLabelValues("telemetry_error").Inc()
		log.Ctx(ctx).WarnContext(ctx, "zero filling day after telemetry failure", slog.String("date", day.Format(types.DateLayout)), slog.Any("error", err))
		zero := revenue.ComputeDay(types.ZeroDaySeries(day, types.KindGeneration), revenue.Pricing{Mode: mode})
		zero.Degraded = true
		return zero
	}
	return l.computeDay(ctx, ds, mode, monthly)
}

// prefetchMonths fetches the monthly price of every distinct month in days.
func (l *Ledger) prefetchMonths(ctx context.Context, days []time.Time) map[string]types.MonthlyPrice {
	var months []time.Time
	seen := make(map[string]bool)
	for _, d := range days {
		key := types.MonthKey(d)
		if !seen[key] {
			seen[key] = true
			months = append(months, types.StartOfMonth(d))
		}
	}

	prices := make([]types.MonthlyPrice, len(months))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(monthConcurrency)
	for i, m := range months {
		g.Go(func() error {
			prices[i] = l.monthlyPrice(gctx, m)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]types.MonthlyPrice, len(months))
	for i, m := range months {
		out[types.MonthKey(m)] = prices[i]
	}
	return out
}
