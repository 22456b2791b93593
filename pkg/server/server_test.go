package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pvledger/pvledger/pkg/ledger/ledgermock"
	"github.com/pvledger/pvledger/pkg/types"
)

var warsaw, _ = time.LoadLocation("Europe/Warsaw")

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, warsaw)
}

func onDay(day time.Time) any {
	return mock.MatchedBy(func(t time.Time) bool { return t.Equal(day) })
}

type testServer struct {
	ledger   *mockLedger
	prices   *ledgermock.MockPrices
	inverter *ledgermock.MockTelemetry
	handler  http.Handler
}

func newTestServer() *testServer {
	ts := &testServer{
		ledger:   &mockLedger{loc: warsaw, today: date(2025, 6, 15)},
		prices:   &ledgermock.MockPrices{},
		inverter: &ledgermock.MockTelemetry{},
	}
	srv := &Server{
		ledger:     ts.ledger,
		prices:     ts.prices,
		inverter:   ts.inverter,
		listenAddr: ":8080",
		serverName: "pvledger",
	}
	ts.handler = srv.setupHandler()
	return ts
}

func (ts *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestHealthz(t *testing.T) {
	ts := newTestServer()
	rr := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.Equal(t, "pvledger", rr.Header().Get("Server"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestMetrics(t *testing.T) {
	ts := newTestServer()
	rr := ts.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestDaySeries(t *testing.T) {
	t.Run("past day", func(t *testing.T) {
		ts := newTestServer()
		day := date(2025, 6, 10)
		ds := types.DaySeries{Date: day}
		ds.Generation = types.ZeroDaySeries(day, types.KindGeneration)
		ds.Generation.Hours[12] = 3.5
		ds.Generation.Total = 3.5
		ds.Generation.Matched = true
		ts.ledger.On("GetDaySeries", mock.Anything, onDay(day)).Return(ds, nil)

		rr := ts.get(t, "/api/day/series?date=2025-06-10")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		assert.Equal(t, "private, max-age=86400", rr.Header().Get("Cache-Control"))

		var got types.DaySeries
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, 3.5, got.Generation.Total)
		assert.Equal(t, 3.5, got.Generation.Hours[12])
		assert.True(t, got.Generation.Matched)
	})

	t.Run("defaults to today", func(t *testing.T) {
		ts := newTestServer()
		today := date(2025, 6, 15)
		ts.ledger.On("GetDaySeries", mock.Anything, onDay(today)).Return(types.DaySeries{Date: today}, nil)

		rr := ts.get(t, "/api/day/series")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "private, max-age=60", rr.Header().Get("Cache-Control"))
		ts.ledger.AssertExpectations(t)
	})

	t.Run("invalid date", func(t *testing.T) {
		ts := newTestServer()
		rr := ts.get(t, "/api/day/series?date=2025-02-30")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeError(t, rr), "invalid date")
		ts.ledger.AssertNotCalled(t, "GetDaySeries", mock.Anything, mock.Anything)
	})

	t.Run("missing credentials", func(t *testing.T) {
		ts := newTestServer()
		ts.ledger.On("GetDaySeries", mock.Anything, mock.Anything).Return(types.DaySeries{}, types.ErrConfigurationMissing)

		rr := ts.get(t, "/api/day/series?date=2025-06-10")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Contains(t, decodeError(t, rr), "configuration missing")
	})

	t.Run("upstream failure", func(t *testing.T) {
		ts := newTestServer()
		ts.ledger.On("GetDaySeries", mock.Anything, mock.Anything).Return(types.DaySeries{}, &types.APIError{Op: "report", Errno: 41930, Message: "no device"})

		rr := ts.get(t, "/api/day/series?date=2025-06-10")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Contains(t, decodeError(t, rr), "41930")
	})
}

func TestDayRevenue(t *testing.T) {
	t.Run("rounded for display", func(t *testing.T) {
		ts := newTestServer()
		day := date(2025, 6, 10)
		rd := types.RevenueDay{Date: day, Mode: types.ModeMonthly, Energy: 12.34567, Revenue: 2.96199}
		ts.ledger.On("GetDayRevenue", mock.Anything, onDay(day), types.ModeMonthly).Return(rd, nil)

		rr := ts.get(t, "/api/day/revenue?date=2025-06-10&mode=rcem")
		require.Equal(t, http.StatusOK, rr.Code)

		var got types.RevenueDay
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, 2.96, got.Revenue)
		assert.Equal(t, 12.346, got.Energy)
		assert.Equal(t, types.ModeMonthly, got.Mode)
	})

	t.Run("default mode is hourly", func(t *testing.T) {
		ts := newTestServer()
		day := date(2025, 6, 10)
		ts.ledger.On("GetDayRevenue", mock.Anything, onDay(day), types.ModeHourly).Return(types.RevenueDay{Date: day}, nil)

		rr := ts.get(t, "/api/day/revenue?date=2025-06-10")
		assert.Equal(t, http.StatusOK, rr.Code)
		ts.ledger.AssertExpectations(t)
	})

	t.Run("invalid mode", func(t *testing.T) {
		ts := newTestServer()
		rr := ts.get(t, "/api/day/revenue?date=2025-06-10&mode=weekly")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeError(t, rr), "invalid mode")
	})
}

func TestRangeRevenue(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ts := newTestServer()
		from, to := date(2025, 6, 1), date(2025, 6, 2)
		res := types.RangeResult{
			From: from, To: to, Mode: types.ModeHourly, Days: 2, Degraded: 1,
			Energy: 10.00049, Revenue: 5.555,
			Daily: []types.RangeDay{
				{Date: from, Energy: 10.00049, Revenue: 5.555},
				{Date: to, Degraded: true},
			},
		}
		ts.ledger.On("GetRangeRevenue", mock.Anything, onDay(from), onDay(to), types.ModeHourly).Return(res, nil)

		rr := ts.get(t, "/api/range/revenue?from=2025-06-01&to=2025-06-02")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "private, max-age=86400", rr.Header().Get("Cache-Control"))

		var got types.RangeResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, 2, got.Days)
		assert.Equal(t, 1, got.Degraded)
		assert.Equal(t, 5.56, got.Revenue)
		assert.Equal(t, 10.0, got.Energy)
		require.Len(t, got.Daily, 2)
		assert.True(t, got.Daily[1].Degraded)
	})

	t.Run("range including today", func(t *testing.T) {
		ts := newTestServer()
		ts.ledger.On("GetRangeRevenue", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(types.RangeResult{Days: 5}, nil)

		rr := ts.get(t, "/api/range/revenue?from=2025-06-11&to=2025-06-15")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "private, max-age=60", rr.Header().Get("Cache-Control"))
	})

	t.Run("invalid range", func(t *testing.T) {
		ts := newTestServer()
		ts.ledger.On("GetRangeRevenue", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(types.RangeResult{}, errors.Join(errors.New("too long"), types.ErrInvalidRange))

		rr := ts.get(t, "/api/range/revenue?from=2024-01-01&to=2025-06-01")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unparseable", func(t *testing.T) {
		ts := newTestServer()
		rr := ts.get(t, "/api/range/revenue?from=yesterday&to=2025-06-01")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decodeError(t, rr), "invalid from")
	})
}

func TestPrices(t *testing.T) {
	t.Run("day", func(t *testing.T) {
		ts := newTestServer()
		day := date(2025, 6, 10)
		dp := types.DayPrices{Date: day, Samples: 96}
		dp.Prices[0] = 412.5
		dp.Prices[13] = -20
		ts.prices.On("HourlyPrices", mock.Anything, onDay(day)).Return(dp, nil)

		rr := ts.get(t, "/api/prices/day?date=2025-06-10")
		require.Equal(t, http.StatusOK, rr.Code)

		var got dayPricesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, "2025-06-10", got.Date)
		assert.Equal(t, 96, got.Samples)
		require.Len(t, got.Prices, types.HoursPerDay)
		assert.Equal(t, types.PricePoint{Hour: 0, Price: 412.5}, got.Prices[0])
		assert.Equal(t, types.PricePoint{Hour: 13, Price: -20}, got.Prices[13])
	})

	t.Run("month", func(t *testing.T) {
		ts := newTestServer()
		ts.prices.On("MonthlyPrice", mock.Anything, onDay(date(2025, 5, 1))).Return(types.MonthlyPrice{
			Month: "2025-05", Price: 398.4, Source: types.MonthlyPriceSourceRemote,
		}, nil)

		rr := ts.get(t, "/api/prices/month?month=2025-05")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "private, max-age=86400", rr.Header().Get("Cache-Control"))

		var got types.MonthlyPrice
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, 398.4, got.Price)
		assert.Equal(t, types.MonthlyPriceSourceRemote, got.Source)
	})

	t.Run("current month", func(t *testing.T) {
		ts := newTestServer()
		ts.prices.On("MonthlyPrice", mock.Anything, onDay(date(2025, 6, 1))).Return(types.MonthlyPrice{Month: "2025-06"}, nil)

		rr := ts.get(t, "/api/prices/month")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "private, max-age=60", rr.Header().Get("Cache-Control"))
	})

	t.Run("invalid month", func(t *testing.T) {
		ts := newTestServer()
		rr := ts.get(t, "/api/prices/month?month=2025-13")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestInverter(t *testing.T) {
	t.Run("realtime", func(t *testing.T) {
		ts := newTestServer()
		ts.inverter.On("Realtime", mock.Anything).Return(types.RealtimePower{Variable: "pvPower", Watts: 3200, Matched: true}, nil)

		rr := ts.get(t, "/api/realtime")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

		var got types.RealtimePower
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, 3200.0, got.Watts)
	})

	t.Run("devices", func(t *testing.T) {
		ts := newTestServer()
		ts.inverter.On("ListDevices", mock.Anything).Return([]types.Device{{SerialNumber: "60BH1234"}}, nil)

		rr := ts.get(t, "/api/devices")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"devices":[{"deviceSN":"60BH1234","deviceType":"","stationName":"","status":0}]}`, rr.Body.String())
	})

	t.Run("no devices", func(t *testing.T) {
		ts := newTestServer()
		ts.inverter.On("ListDevices", mock.Anything).Return(nil, nil)

		rr := ts.get(t, "/api/devices")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"devices":[]}`, rr.Body.String())
	})

	t.Run("signing rejected", func(t *testing.T) {
		ts := newTestServer()
		ts.inverter.On("Realtime", mock.Anything).Return(types.RealtimePower{}, types.ErrSigningRejected)

		rr := ts.get(t, "/api/realtime")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})
}
