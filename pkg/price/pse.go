// Package price fetches hourly and monthly electricity spot prices from PSE,
// the Polish transmission system operator.
package price

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/levenlabs/go-lflag"

	"github.com/pvledger/pvledger/pkg/cache"
	"github.com/pvledger/pvledger/pkg/common"
	"github.com/pvledger/pvledger/pkg/log"
	"github.com/pvledger/pvledger/pkg/types"
)

// PSE implements hourly (RCE) and monthly (RCEm) prices in PLN/MWh.
type PSE struct {
	client   *http.Client
	apiURL   string
	rcemURL  string
	table    map[string]float64
	loc      *time.Location
	now      func() time.Time
	cacheTTL time.Duration
	// todayTTL applies to the current day and month, whose prices may still
	// be published
	todayTTL time.Duration

	retryInitial time.Duration
	retryMax     time.Duration
	// dayTimeout bounds each day fetched while averaging a month
	dayTimeout time.Duration

	days   cache.Cache[types.DayPrices]
	months cache.Cache[types.MonthlyPrice]
}

// Configured sets up flags for PSE and returns the instance.
func Configured() *PSE {
	p := &PSE{
		now:          time.Now,
		todayTTL:     time.Minute,
		retryInitial: 250 * time.Millisecond,
	}
	apiURL := lflag.String("pse-api-url", "https://api.raporty.pse.pl/api", "Base URL of the PSE reporting API")
	rcemURL := lflag.String("pse-rcem-url", "https://www.pse.pl/oire/rcem-rynkowa-miesieczna-cena-energii-elektrycznej", "URL publishing monthly RCEm prices (empty disables)")
	table := map[string]float64{}
	lflag.JSON(&table, "pse-rcem-table", table, "JSON map of YYYY-MM to a monthly RCEm price in PLN/MWh, consulted first")
	timezone := lflag.String("pse-timezone", "Europe/Warsaw", "Timezone of PSE business dates")
	timeout := lflag.Duration("pse-timeout", 10*time.Second, "HTTP timeout for a single PSE request")
	retryMax := lflag.Duration("pse-retry-max", 5*time.Second, "Total time spent retrying a throttled or failing PSE request")
	cacheTTL := lflag.Duration("pse-cache-ttl", 10*time.Minute, "How long fetched prices are cached")
	perSecond := 5.0
	lflag.JSON(&perSecond, "pse-rate", perSecond, "Maximum PSE requests per second (0 disables limiting)")
	dayTimeout := lflag.Duration("pse-day-timeout", 15*time.Second, "Timeout for each day fetched while averaging a monthly price")
	cacheSize := 512
	lflag.JSON(&cacheSize, "pse-cache-size", cacheSize, "Number of days and months of prices kept in memory (0 disables caching)")

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Errorf("failed to load pse timezone (%s): %w", *timezone, err))
		}
		var (
			days   cache.Cache[types.DayPrices]    = cache.Nop[types.DayPrices]{}
			months cache.Cache[types.MonthlyPrice] = cache.Nop[types.MonthlyPrice]{}
		)
		if cacheSize > 0 {
			days, err = cache.NewTTL[types.DayPrices]("pse_days", cacheSize)
			if err != nil {
				panic(fmt.Errorf("failed to create pse day cache: %w", err))
			}
			months, err = cache.NewTTL[types.MonthlyPrice]("pse_months", cacheSize)
			if err != nil {
				panic(fmt.Errorf("failed to create pse month cache: %w", err))
			}
		}
		p.apiURL = *apiURL
		p.rcemURL = *rcemURL
		p.table = table
		p.loc = loc
		p.cacheTTL = *cacheTTL
		p.retryMax = *retryMax
		p.dayTimeout = *dayTimeout
		p.days = days
		p.months = months
		p.client = common.RateLimited(common.HTTPClient(*timeout), common.NewLimiter(perSecond))
	})

	return p
}

// Validate ensures the configuration is valid.
func (p *PSE) Validate() error {
	if p.apiURL == "" {
		return fmt.Errorf("pse-api-url is required")
	}
	if _, err := url.Parse(p.apiURL); err != nil {
		return fmt.Errorf("failed to parse pse url (%s): %w", p.apiURL, err)
	}
	if p.rcemURL != "" {
		if _, err := url.Parse(p.rcemURL); err != nil {
			return fmt.Errorf("failed to parse rcem url (%s): %w", p.rcemURL, err)
		}
	}
	for month, v := range p.table {
		if _, err := time.Parse(types.MonthLayout, month); err != nil {
			return fmt.Errorf("invalid month in pse-rcem-table (%s): %w", month, err)
		}
		if v < 0 {
			return fmt.Errorf("negative price in pse-rcem-table for %s", month)
		}
	}
	return nil
}

// Location returns the timezone business dates are expressed in.
func (p *PSE) Location() *time.Location {
	if p.loc == nil {
		return time.Local
	}
	return p.loc
}

func (p *PSE) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

func (p *PSE) ttlFor(start, end time.Time) time.Duration {
	now := p.clock()
	if now.Before(end) && !now.Before(start) {
		return p.todayTTL
	}
	return p.cacheTTL
}

// HourlyPrices returns the 24 hourly prices for date. A response that is
// empty or cannot be interpreted yields zero prices marked missing rather
// than an error. Transport failures that outlast the retries are returned.
func (p *PSE) HourlyPrices(ctx context.Context, date time.Time) (types.DayPrices, error) {
	date = types.StartOfDay(date.In(p.Location()))
	key := date.Format(types.DateLayout)
	if p.days != nil {
		if dp, ok := p.days.Get(key); ok {
			return dp, nil
		}
	}

	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("business_date eq '%s'", key))
	params.Set("$orderby", "business_date asc")
	body, err := p.get(ctx, p.apiURL+"/rce-pln?"+params.Encode())
	if err != nil {
		return types.DayPrices{Date: date}, fmt.Errorf("failed to fetch prices for %s: %w", key, err)
	}

	dp, err := parseDay(body, date)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "unusable pse price response", slog.String("date", key), slog.Any("error", err))
		dp = types.DayPrices{Date: date, Missing: true}
	}
	if dp.Missing {
		log.Ctx(ctx).WarnContext(ctx, "no prices published for day", slog.String("date", key))
		return dp, nil
	}

	log.Ctx(ctx).DebugContext(ctx, "fetched pse prices", slog.String("date", key), slog.Int("samples", dp.Samples))
	if p.days != nil {
		p.days.Set(key, dp, p.ttlFor(date, date.AddDate(0, 0, 1)))
	}
	return dp, nil
}

func parseDay(body []byte, date time.Time) (types.DayPrices, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return types.DayPrices{}, err
	}
	return hourlyFromRows(rows, date)
}

// errRetryable marks a response worth retrying.
var errRetryable = errors.New("retryable status")

// get fetches u, retrying throttling and server errors with exponential
// backoff.
func (p *PSE) get(ctx context.Context, u string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	if p.retryInitial > 0 {
		bo.InitialInterval = p.retryInitial
	}
	bo.MaxElapsedTime = p.retryMax
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 5 * time.Second
	}

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := p.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(b, 200)))
		}
		body = b
		return nil
	}
	notify := func(err error, delay time.Duration) {
		log.Ctx(ctx).DebugContext(ctx, "retrying pse request", slog.Any("error", err), slog.Duration("delay", delay))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(bo, ctx), notify); err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
