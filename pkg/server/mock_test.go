package server

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pvledger/pvledger/pkg/types"
)

type mockLedger struct {
	mock.Mock
	loc   *time.Location
	today time.Time
}

var _ Ledger = (*mockLedger)(nil)

func (m *mockLedger) GetDaySeries(ctx context.Context, date time.Time) (types.DaySeries, error) {
	args := m.Called(ctx, date)
	return args.Get(0).(types.DaySeries), args.Error(1)
}

func (m *mockLedger) GetDayRevenue(ctx context.Context, date time.Time, mode types.Mode) (types.RevenueDay, error) {
	args := m.Called(ctx, date, mode)
	return args.Get(0).(types.RevenueDay), args.Error(1)
}

func (m *mockLedger) GetRangeRevenue(ctx context.Context, from, to time.Time, mode types.Mode) (types.RangeResult, error) {
	args := m.Called(ctx, from, to, mode)
	return args.Get(0).(types.RangeResult), args.Error(1)
}

func (m *mockLedger) Location() *time.Location {
	return m.loc
}

func (m *mockLedger) Today() time.Time {
	return m.today
}
