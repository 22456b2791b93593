package server

import (
	"fmt"
	"net/http"

	"github.com/pvledger/pvledger/pkg/revenue"
)

func (s *Server) handleDaySeries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	day, err := s.parseDay(r, "date")
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ds, err := s.ledger.GetDaySeries(ctx, day)
	if err != nil {
		writeUpstreamError(ctx, w, "failed to get day series", err)
		return
	}

	s.setCacheControl(w, day)
	writeJSON(w, ds)
}

func (s *Server) handleDayRevenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	day, err := s.parseDay(r, "date")
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := parseMode(r)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("invalid mode: %v", err), http.StatusBadRequest)
		return
	}

	rd, err := s.ledger.GetDayRevenue(ctx, day, mode)
	if err != nil {
		writeUpstreamError(ctx, w, "failed to get day revenue", err)
		return
	}

	s.setCacheControl(w, day)
	writeJSON(w, revenue.Present(rd))
}

func (s *Server) handleRangeRevenue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	from, to, err := s.parseDayRange(r)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("invalid range: %v", err), http.StatusBadRequest)
		return
	}
	mode, err := parseMode(r)
	if err != nil {
		writeJSONError(w, fmt.Sprintf("invalid mode: %v", err), http.StatusBadRequest)
		return
	}

	res, err := s.ledger.GetRangeRevenue(ctx, from, to, mode)
	if err != nil {
		writeUpstreamError(ctx, w, "failed to get range revenue", err)
		return
	}

	s.setCacheControl(w, to)
	writeJSON(w, revenue.PresentRange(res))
}
