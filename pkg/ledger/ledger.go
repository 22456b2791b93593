// Package ledger combines telemetry and prices into per-day series, per-day
// revenue and revenue over ranges of days.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/pvledger/pvledger/pkg/cache"
	"github.com/pvledger/pvledger/pkg/types"
)

// Telemetry is the inverter data source.
type Telemetry interface {
	DayReport(ctx context.Context, date time.Time, variables []string) ([]types.RawSeries, error)
	DayHistory(ctx context.Context, date time.Time, variables []string) ([]types.RawSeries, error)
}

// Prices is the spot price source.
type Prices interface {
	HourlyPrices(ctx context.Context, date time.Time) (types.DayPrices, error)
	MonthlyPrice(ctx context.Context, month time.Time) (types.MonthlyPrice, error)
}

// Config holds the ledger's tunables.
type Config struct {
	Location *time.Location
	// MaxDays is the longest inclusive range accepted.
	MaxDays int
	// Concurrency is the number of days fetched at once within a range.
	Concurrency int
	// FetchTimeout bounds every individual upstream fetch.
	FetchTimeout time.Duration
	// MonthTimeout bounds a monthly price, which may average a whole month
	// of daily fetches.
	MonthTimeout time.Duration
	CacheTTL     time.Duration
	// TodayTTL is used for the current day, whose data keeps changing.
	TodayTTL  time.Duration
	CacheSize int
	// Cache stores day series. When nil an LRU of CacheSize entries is used.
	Cache cache.Cache[types.DaySeries]
	Now   func() time.Time
}

// DefaultConfig returns the defaults used when flags are not set.
func DefaultConfig() Config {
	return Config{
		Location:     time.Local,
		MaxDays:      93,
		Concurrency:  4,
		FetchTimeout: 7500 * time.Millisecond,
		MonthTimeout: time.Minute,
		CacheTTL:     10 * time.Minute,
		TodayTTL:     time.Minute,
		CacheSize:    1024,
		Now:          time.Now,
	}
}

// Ledger is the reconciliation and revenue engine.
type Ledger struct {
	telemetry Telemetry
	prices    Prices
	cfg       Config
	series    cache.Cache[types.DaySeries]
}

// New creates a ledger. Zero fields in cfg take their defaults.
func New(telemetry Telemetry, prices Prices, cfg Config) (*Ledger, error) {
	def := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = def.MaxDays
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}
	if cfg.MonthTimeout <= 0 {
		cfg.MonthTimeout = def.MonthTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.TodayTTL <= 0 {
		cfg.TodayTTL = def.TodayTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	series := cfg.Cache
	if series == nil {
		c, err := cache.NewTTL[types.DaySeries]("day_series", cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create series cache: %w", err)
		}
		series = c.WithClock(cfg.Now)
	}

	return &Ledger{
		telemetry: telemetry,
		prices:    prices,
		cfg:       cfg,
		series:    series,
	}, nil
}

// Configured sets up flags for the ledger and returns the instance.
func Configured(telemetry Telemetry, prices Prices) *Ledger {
	l := &Ledger{}
	def := DefaultConfig()
	timezone := lflag.String("ledger-timezone", "Europe/Warsaw", "Timezone calendar days are computed in")
	maxDays := def.MaxDays
	lflag.JSON(&maxDays, "ledger-max-days", maxDays, "Longest inclusive range of days accepted")
	concurrency := def.Concurrency
	lflag.JSON(&concurrency, "ledger-concurrency", concurrency, "Number of days fetched at once within a range")
	fetchTimeout := lflag.Duration("ledger-fetch-timeout", def.FetchTimeout, "Timeout for each upstream fetch before the day degrades")
	monthTimeout := lflag.Duration("ledger-month-timeout", def.MonthTimeout, "Timeout for resolving a monthly price, which may average a month of days")
	cacheTTL := lflag.Duration("ledger-cache-ttl", def.CacheTTL, "How long a past day's series is cached")
	todayTTL := lflag.Duration("ledger-today-ttl", def.TodayTTL, "How long the current day's series is cached")
	cacheSize := def.CacheSize
	lflag.JSON(&cacheSize, "ledger-cache-size", cacheSize, "Number of day series kept in memory (0 disables caching)")

	lflag.Do(func() {
		loc, err := time.LoadLocation(*timezone)
		if err != nil {
			panic(fmt.Errorf("failed to load ledger timezone (%s): %w", *timezone, err))
		}
		cfg := Config{
			Location:     loc,
			MaxDays:      maxDays,
			Concurrency:  concurrency,
			FetchTimeout: *fetchTimeout,
			MonthTimeout: *monthTimeout,
			CacheTTL:     *cacheTTL,
			TodayTTL:     *todayTTL,
			CacheSize:    cacheSize,
			Now:          time.Now,
		}
		if cacheSize == 0 {
			cfg.Cache = cache.Nop[types.DaySeries]{}
		}
		created, err := New(telemetry, prices, cfg)
		if err != nil {
			panic(err)
		}
		*l = *created
	})

	return l
}

// Location returns the timezone calendar days are computed in.
func (l *Ledger) Location() *time.Location {
	return l.cfg.Location
}

// MaxDays returns the longest accepted range.
func (l *Ledger) MaxDays() int {
	return l.cfg.MaxDays
}

// Today returns midnight of the current day.
func (l *Ledger) Today() time.Time {
	return types.StartOfDay(l.cfg.Now().In(l.cfg.Location))
}

func (l *Ledger) day(t time.Time) time.Time {
	return types.StartOfDay(t.In(l.cfg.Location))
}

// cutoff returns the instant data is available until for day, or zero for a
// finished day.
func (l *Ledger) cutoff(day time.Time) time.Time {
	if day.Before(l.Today()) {
		return time.Time{}
	}
	return l.cfg.Now()
}

func (l *Ledger) ttl(day time.Time) time.Duration {
	if day.Before(l.Today()) {
		return l.cfg.CacheTTL
	}
	return l.cfg.TodayTTL
}

// fetch runs fn with the per-fetch timeout.
func (l *Ledger) fetch(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.FetchTimeout)
	defer cancel()
	return fn(ctx)
}
