package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pvledger/pvledger/pkg/types"
)

type dayPricesResponse struct {
	Date    string             `json:"date"`
	Prices  []types.PricePoint `json:"prices"`
	Samples int                `json:"samples"`
	Missing bool               `json:"missing"`
}

func (s *Server) handleDayPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	day, err := s.parseDay(r, "date")
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	dp, err := s.prices.HourlyPrices(ctx, day)
	if err != nil {
		writeUpstreamError(ctx, w, "failed to get prices", err)
		return
	}

	// day-ahead prices can be republished until the day is over
	s.setCacheControl(w, day)
	writeJSON(w, dayPricesResponse{
		Date:    day.Format(types.DateLayout),
		Prices:  dp.Points(),
		Samples: dp.Samples,
		Missing: dp.Missing,
	})
}

func (s *Server) handleMonthPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	month, err := s.parseMonth(r)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("invalid month: %v", err), http.StatusBadRequest)
		return
	}

	mp, err := s.prices.MonthlyPrice(ctx, month)
	if err != nil {
		writeUpstreamError(ctx, w, "failed to get monthly price", err)
		return
	}

	// the last day of the month decides whether it can still change
	s.setCacheControl(w, month.AddDate(0, 1, 0).Add(-time.Nanosecond))
	writeJSON(w, mp)
}
