package foxess

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pvledger/pvledger/pkg/log"
	"github.com/pvledger/pvledger/pkg/normalize"
	"github.com/pvledger/pvledger/pkg/types"
)

const deviceListPageSize = 50

// maxDevicePages bounds paging through the device list.
const maxDevicePages = 20

// DayReport fetches hourly energy counters for date.
func (c *Client) DayReport(ctx context.Context, date time.Time, variables []string) ([]types.RawSeries, error) {
	return c.fetchSeries(ctx, reportOperation, date, variables)
}

// DayHistory fetches sampled values, usually power, for date.
func (c *Client) DayHistory(ctx context.Context, date time.Time, variables []string) ([]types.RawSeries, error) {
	return c.fetchSeries(ctx, historyOperation, date, variables)
}

func (c *Client) fetchSeries(ctx context.Context, op operation, date time.Time, variables []string) ([]types.RawSeries, error) {
	serial, err := c.SerialNumber(ctx)
	if err != nil {
		return nil, err
	}
	result, err := c.query(ctx, op, params{
		serial:    serial,
		date:      date.In(c.location()),
		variables: variables,
	})
	if err != nil {
		return nil, err
	}
	return c.normalize(ctx, op, result, variables)
}

func (c *Client) normalize(ctx context.Context, op operation, result []byte, variables []string) ([]types.RawSeries, error) {
	series, shape, err := normalize.Parse(result, c.location())
	if err != nil {
		return nil, err
	}
	// a single requested variable is sometimes echoed back without a name
	if len(variables) == 1 {
		for i := range series {
			if series[i].Variable == "" {
				series[i].Variable = variables[0]
			}
		}
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"normalized foxess result",
		slog.String("operation", string(op.name)),
		slog.String("shape", shape.String()),
		slog.Any("variables", normalize.Variables(series)),
	)
	return normalize.CorrectUnits(series, c.unitThreshold), nil
}

// Realtime returns the current PV output in watts.
func (c *Client) Realtime(ctx context.Context) (types.RealtimePower, error) {
	serial, err := c.SerialNumber(ctx)
	if err != nil {
		return types.RealtimePower{}, err
	}
	result, err := c.query(ctx, realtimeOperation, params{
		serial:    serial,
		variables: normalize.RealtimePower,
	})
	if err != nil {
		return types.RealtimePower{}, err
	}
	series, err := c.normalize(ctx, realtimeOperation, result, normalize.RealtimePower)
	if err != nil {
		return types.RealtimePower{}, err
	}

	rp := types.RealtimePower{Fetched: c.clock()}
	s, ok := normalize.Resolve(series, normalize.RealtimePower)
	rp.Variable = s.Variable
	rp.Matched = ok
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "no realtime power variable matched", slog.Any("variables", normalize.Variables(series)))
		return rp, nil
	}
	var kw float64
	switch {
	case len(s.Values) > 0:
		kw = s.Values[len(s.Values)-1]
	case len(s.Points) > 0:
		kw = s.Points[len(s.Points)-1].Value
	}
	if normalize.ClassifyUnit(s.Unit) == normalize.UnitUnknown {
		// unlabelled realtime values are already watts
		rp.Watts = kw
	} else {
		rp.Watts = kw * 1000
	}
	return rp, nil
}

// ListDevices returns every inverter on the account.
func (c *Client) ListDevices(ctx context.Context) ([]types.Device, error) {
	var devices []types.Device
	for page := 1; page <= maxDevicePages; page++ {
		result, err := c.query(ctx, deviceListOperation, params{
			page:     page,
			pageSize: deviceListPageSize,
		})
		if err != nil {
			return nil, err
		}
		var res deviceListResult
		if err := json.Unmarshal(result, &res); err != nil {
			return nil, fmt.Errorf("%w: device list: %w", types.ErrUpstreamMalformed, err)
		}
		for _, d := range res.Data {
			sn := d.DeviceSN
			if sn == "" {
				sn = d.SN
			}
			devices = append(devices, types.Device{
				SerialNumber: sn,
				Type:         d.DeviceType,
				StationName:  d.StationName,
				Status:       d.Status,
			})
		}
		if len(res.Data) == 0 || len(devices) >= res.Total {
			break
		}
	}
	return devices, nil
}

// SerialNumber returns the configured inverter serial. When none is
// configured and the account has exactly one device, that device is used and
// remembered.
func (c *Client) SerialNumber(ctx context.Context) (string, error) {
	if c.serial != "" {
		return c.serial, nil
	}
	c.mu.Lock()
	resolved := c.resolvedSerial
	c.mu.Unlock()
	if resolved != "" {
		return resolved, nil
	}

	devices, err := c.ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to discover inverter serial: %w", err)
	}
	if len(devices) != 1 {
		return "", fmt.Errorf("%w: foxess-serial (account has %d devices)", types.ErrConfigurationMissing, len(devices))
	}

	c.mu.Lock()
	c.resolvedSerial = devices[0].SerialNumber
	c.mu.Unlock()
	log.Ctx(ctx).InfoContext(ctx, "automatically selected inverter", slog.String("serial", devices[0].SerialNumber))
	return devices[0].SerialNumber, nil
}

func (c *Client) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Client) location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}
