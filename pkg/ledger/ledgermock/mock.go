package ledgermock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pvledger/pvledger/pkg/ledger"
	"github.com/pvledger/pvledger/pkg/types"
)

type MockTelemetry struct {
	mock.Mock
}

var _ ledger.Telemetry = (*MockTelemetry)(nil)

func (m *MockTelemetry) DayReport(ctx context.Context, date time.Time, variables []string) ([]types.RawSeries, error) {
	args := m.Called(ctx, date, variables)
	if s, ok := args.Get(0).([]types.RawSeries); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTelemetry) DayHistory(ctx context.Context, date time.Time, variables []string) ([]types.RawSeries, error) {
	args := m.Called(ctx, date, variables)
	if s, ok := args.Get(0).([]types.RawSeries); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockTelemetry) Realtime(ctx context.Context) (types.RealtimePower, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.RealtimePower), args.Error(1)
	}
	return types.RealtimePower{}, nil
}

func (m *MockTelemetry) ListDevices(ctx context.Context) ([]types.Device, error) {
	args := m.Called(ctx)
	if d, ok := args.Get(0).([]types.Device); ok {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPrices struct {
	mock.Mock
}

var _ ledger.Prices = (*MockPrices)(nil)

func (m *MockPrices) HourlyPrices(ctx context.Context, date time.Time) (types.DayPrices, error) {
	args := m.Called(ctx, date)
	if len(args) > 0 {
		return args.Get(0).(types.DayPrices), args.Error(1)
	}
	return types.DayPrices{Date: date, Missing: true}, nil
}

func (m *MockPrices) MonthlyPrice(ctx context.Context, month time.Time) (types.MonthlyPrice, error) {
	args := m.Called(ctx, month)
	if len(args) > 0 {
		return args.Get(0).(types.MonthlyPrice), args.Error(1)
	}
	return types.MonthlyPrice{Month: types.MonthKey(month), Source: types.MonthlyPriceSourceNone}, nil
}
