package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pvledger/pvledger/pkg/types"
)

// parseDay reads a YYYY-MM-DD query parameter in the ledger's timezone. An
// empty value is today.
func (s *Server) parseDay(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return s.ledger.Today(), nil
	}
	d, err := types.ParseDate(v, s.ledger.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

// parseDayRange reads the inclusive from/to range. Both default to today.
func (s *Server) parseDayRange(r *http.Request) (time.Time, time.Time, error) {
	from, err := s.parseDay(r, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := s.parseDay(r, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// parseMonth reads a YYYY-MM query parameter. An empty value is the current
// month.
func (s *Server) parseMonth(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("month")
	if v == "" {
		return types.StartOfMonth(s.ledger.Today()), nil
	}
	m, err := types.ParseMonth(v, s.ledger.Location())
	if err != nil {
		return time.Time{}, err
	}
	return m, nil
}

func parseMode(r *http.Request) (types.Mode, error) {
	return types.ParseMode(r.URL.Query().Get("mode"))
}

// setCacheControl caches responses about finished days for a day and
// anything touching today or later for a minute.
func (s *Server) setCacheControl(w http.ResponseWriter, last time.Time) {
	if last.Before(s.ledger.Today()) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
}
