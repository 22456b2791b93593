package price

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pvledger/pvledger/pkg/log"
	"github.com/pvledger/pvledger/pkg/metrics"
	"github.com/pvledger/pvledger/pkg/normalize"
	"github.com/pvledger/pvledger/pkg/types"
)

// monthConcurrency bounds the per-day fan-out when a monthly price has to be
// averaged from hourly prices.
const monthConcurrency = 2

// MonthlyPrice returns the monthly price for the month containing month. It
// consults the static table, then the remote RCEm page, then averages the
// hourly prices of every published day of the month with negative prices
// counted as zero. The result is never negative. When no source has data the
// price is zero with source none. An average that could not fetch every day
// is an error rather than a mean over a subset of the month.
func (p *PSE) MonthlyPrice(ctx context.Context, month time.Time) (types.MonthlyPrice, error) {
	start := types.StartOfMonth(month.In(p.Location()))
	key := types.MonthKey(start)
	if p.months != nil {
		if mp, ok := p.months.Get(key); ok {
			return mp, nil
		}
	}

	mp, err := p.monthlyPrice(ctx, start)
	if ctx.Err() != nil {
		err = errors.Join(ctx.Err(), err)
	}
	if err != nil {
		return types.MonthlyPrice{Month: key, Source: types.MonthlyPriceSourceNone}, fmt.Errorf("failed to resolve monthly price for %s: %w", key, err)
	}
	mp.Month = key
	mp.Price = floor(mp.Price)
	metrics.PriceFallbacks.WithLabelValues(string(mp.Source)).Inc()
	log.Ctx(ctx).DebugContext(
		ctx,
		"resolved monthly price",
		slog.String("month", key),
		slog.String("source", string(mp.Source)),
		slog.Float64("price", mp.Price),
	)

	if p.months != nil && mp.Source != types.MonthlyPriceSourceNone {
		p.months.Set(key, mp, p.ttlFor(start, start.AddDate(0, 1, 0)))
	}
	return mp, nil
}

func (p *PSE) monthlyPrice(ctx context.Context, start time.Time) (types.MonthlyPrice, error) {
	key := types.MonthKey(start)
	if v, ok := p.table[key]; ok {
		return types.MonthlyPrice{Price: v, Source: types.MonthlyPriceSourceTable}, nil
	}

	if p.rcemURL != "" {
		v, ok, err := p.remoteMonthly(ctx, key)
		switch {
		case err != nil:
			log.Ctx(ctx).WarnContext(ctx, "failed to fetch remote monthly price", slog.String("month", key), slog.Any("error", err))
		case ok:
			return types.MonthlyPrice{Price: v, Source: types.MonthlyPriceSourceRemote}, nil
		}
	}

	avg, samples, err := p.averageMonthly(ctx, start)
	if err != nil {
		return types.MonthlyPrice{}, err
	}
	if samples == 0 {
		log.Ctx(ctx).WarnContext(ctx, "no monthly price available", slog.String("month", key))
		return types.MonthlyPrice{Source: types.MonthlyPriceSourceNone}, nil
	}
	return types.MonthlyPrice{Price: avg, Source: types.MonthlyPriceSourceAverage, Samples: samples}, nil
}

// averageMonthly averages hourly prices over the days of the month that have
// already started. Days with no published prices are skipped. A day whose
// fetch fails aborts the average. It returns the number of days that
// contributed.
func (p *PSE) averageMonthly(ctx context.Context, start time.Time) (float64, int, error) {
	now := p.clock()
	var days []time.Time
	for d := start; d.Month() == start.Month() && d.Before(now); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}

	var (
		mu    sync.Mutex
		sum   float64
		count int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(monthConcurrency)
	for _, d := range days {
		g.Go(func() error {
			dctx := gctx
			if p.dayTimeout > 0 {
				var cancel context.CancelFunc
				dctx, cancel = context.WithTimeout(gctx, p.dayTimeout)
				defer cancel()
			}
			dp, err := p.HourlyPrices(dctx, d)
			if err != nil {
				return err
			}
			if dp.Missing {
				return nil
			}
			var daySum float64
			for _, v := range dp.Prices {
				daySum += floor(v)
			}
			mu.Lock()
			sum += daySum
			count++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	if count == 0 {
		return 0, 0, nil
	}
	return sum / float64(count*types.HoursPerDay), count, nil
}

func floor(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

var polishMonths = []string{
	"stycze[nń]", "luty", "marzec", "kwiecie[nń]", "maj", "czerwiec",
	"lipiec", "sierpie[nń]", "wrzesie[nń]", "pa[zź]dziernik", "listopad", "grudzie[nń]",
}

// rcemRow matches a year, a Polish month name and a decimal price on one line
// of the published table.
var rcemRow = regexp.MustCompile(`(\d{4}).{0,20}?(` + strings.Join(polishMonths, "|") + `).*?(\d+[.,]\d+)`)

var monthPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(polishMonths))
	for i, m := range polishMonths {
		out[i] = regexp.MustCompile(`^` + m + `$`)
	}
	return out
}()

// remoteMonthly fetches the monthly price for key (YYYY-MM). The endpoint may
// answer with JSON ({"price"}, {"rcem_pln_mwh"} or a list of month rows) or
// with the HTML page PSE publishes.
func (p *PSE) remoteMonthly(ctx context.Context, key string) (float64, bool, error) {
	body, err := p.get(ctx, p.rcemURL)
	if err != nil {
		return 0, false, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		v, ok := parseRemoteJSON(trimmed, key)
		return v, ok, nil
	}
	v, ok := parseRemoteHTML(string(body), key)
	return v, ok, nil
}

type remoteMonthRow struct {
	YM     string          `json:"ym"`
	Month  string          `json:"month"`
	Price  json.RawMessage `json:"price"`
	Value  json.RawMessage `json:"value"`
	PLNMWh json.RawMessage `json:"pln_mwh"`
}

func (r remoteMonthRow) month() string {
	if r.YM != "" {
		return r.YM
	}
	return r.Month
}

func (r remoteMonthRow) price() (float64, bool) {
	for _, raw := range []json.RawMessage{r.Price, r.PLNMWh, r.Value} {
		if v, ok := normalize.Number(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func parseRemoteJSON(body []byte, key string) (float64, bool) {
	var rows []remoteMonthRow
	if body[0] == '{' {
		var obj struct {
			Month      string           `json:"ym"`
			Price      json.RawMessage  `json:"price"`
			RCEmPLNMWh json.RawMessage  `json:"rcem_pln_mwh"`
			Rows       []remoteMonthRow `json:"rows"`
			Items      []remoteMonthRow `json:"items"`
		}
		if err := json.Unmarshal(body, &obj); err != nil {
			return 0, false
		}
		if obj.Month == "" || obj.Month == key {
			for _, raw := range []json.RawMessage{obj.RCEmPLNMWh, obj.Price} {
				if v, ok := normalize.Number(raw); ok {
					return v, true
				}
			}
		}
		rows = append(obj.Rows, obj.Items...)
	} else if err := json.Unmarshal(body, &rows); err != nil {
		return 0, false
	}
	for _, r := range rows {
		if r.month() != key {
			continue
		}
		if v, ok := r.price(); ok {
			return v, true
		}
	}
	return 0, false
}

func parseRemoteHTML(html, key string) (float64, bool) {
	text := strings.ToLower(html)
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "\u00a0", " ")

	for _, m := range rcemRow.FindAllStringSubmatch(text, -1) {
		month := monthIndex(m[2])
		if month == 0 {
			continue
		}
		// the newest entry comes first, keep the first match
		if fmt.Sprintf("%s-%02d", m[1], month) != key {
			continue
		}
		v, ok := normalize.Number(json.RawMessage(`"` + m[3] + `"`))
		return v, ok
	}
	return 0, false
}

func monthIndex(name string) int {
	for i, re := range monthPatterns {
		if re.MatchString(name) {
			return i + 1
		}
	}
	return 0
}
