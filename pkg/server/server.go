package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pvledger/pvledger/pkg/log"
	"github.com/pvledger/pvledger/pkg/types"
)

// Ledger computes series and revenue for calendar days.
type Ledger interface {
	GetDaySeries(ctx context.Context, date time.Time) (types.DaySeries, error)
	GetDayRevenue(ctx context.Context, date time.Time, mode types.Mode) (types.RevenueDay, error)
	GetRangeRevenue(ctx context.Context, from, to time.Time, mode types.Mode) (types.RangeResult, error)
	Location() *time.Location
	Today() time.Time
}

// Prices is the spot price source.
type Prices interface {
	HourlyPrices(ctx context.Context, date time.Time) (types.DayPrices, error)
	MonthlyPrice(ctx context.Context, month time.Time) (types.MonthlyPrice, error)
}

// Inverter exposes the live inverter data that is not tied to a day.
type Inverter interface {
	Realtime(ctx context.Context) (types.RealtimePower, error)
	ListDevices(ctx context.Context) ([]types.Device, error)
}

// Server is the JSON API in front of the ledger.
type Server struct {
	ledger   Ledger
	prices   Prices
	inverter Inverter

	listenAddr string
	serverName string
	httpServer *http.Server
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(l Ledger, p Prices, inv Inverter) *Server {
	srv := &Server{
		ledger:     l,
		prices:     p,
		inverter:   inv,
		serverName: "pvledger",
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	serverName := lflag.String("http-server-name", srv.serverName, "Value of the Server response header")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.serverName = *serverName
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/day/series", s.handleDaySeries)
	apiMux.HandleFunc("GET /api/day/revenue", s.handleDayRevenue)
	apiMux.HandleFunc("GET /api/range/revenue", s.handleRangeRevenue)
	apiMux.HandleFunc("GET /api/prices/day", s.handleDayPrices)
	apiMux.HandleFunc("GET /api/prices/month", s.handleMonthPrice)
	apiMux.HandleFunc("GET /api/realtime", s.handleRealtime)
	apiMux.HandleFunc("GET /api/devices", s.handleDevices)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.requestLogMiddleware(apiMux))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// writeUpstreamError maps a core error to a status code. Invalid input is the
// caller's fault, missing configuration is ours and anything else is the
// upstream vendor's.
func writeUpstreamError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, types.ErrInvalidRange):
		code = http.StatusBadRequest
	case errors.Is(err, types.ErrConfigurationMissing):
		code = http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusBadRequest {
		log.Ctx(ctx).DebugContext(ctx, msg, slog.Any("error", err))
	} else {
		log.Ctx(ctx).ErrorContext(ctx, msg, slog.Any("error", err))
	}
	writeJSONError(w, fmt.Sprintf("%s: %v", msg, err), code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

// requestLogMiddleware puts a logger carrying the request path into the
// request context.
func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := log.WithAttrs(r.Context(), slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
