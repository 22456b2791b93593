package foxess

import (
	"encoding/json"
	"time"

	"github.com/pvledger/pvledger/pkg/normalize"
)

// Operation names a logical telemetry query.
type Operation string

const (
	OpReport     Operation = "report"
	OpHistory    Operation = "history"
	OpRealtime   Operation = "realtime"
	OpDeviceList Operation = "devices"
)

// params are the inputs a RequestShape turns into a body.
type params struct {
	serial    string
	date      time.Time
	variables []string
	page      int
	pageSize  int
}

// RequestShape is one accepted body layout for an operation.
type RequestShape struct {
	Name string
	Body func(p params) map[string]any
}

type operation struct {
	name   Operation
	path   string
	shapes []RequestShape
	// accept reports whether a zero errno result has a layout this
	// operation understands
	accept func(result json.RawMessage) bool
}

const historyDateLayout = "2006-01-02 15:04:05"

func reportBody(dimKey string) func(p params) map[string]any {
	return func(p params) map[string]any {
		return map[string]any{
			"sn":        p.serial,
			"year":      p.date.Year(),
			"month":     int(p.date.Month()),
			"day":       p.date.Day(),
			dimKey:      "day",
			"variables": p.variables,
		}
	}
}

func historyBody(dimKey, dimValue, beginKey string) func(p params) map[string]any {
	return func(p params) map[string]any {
		begin := time.Date(p.date.Year(), p.date.Month(), p.date.Day(), 0, 0, 0, 0, p.date.Location())
		end := time.Date(p.date.Year(), p.date.Month(), p.date.Day(), 23, 59, 59, 0, p.date.Location())
		return map[string]any{
			"sn":        p.serial,
			"variables": p.variables,
			dimKey:      dimValue,
			beginKey:    begin.Format(historyDateLayout),
			"endDate":   end.Format(historyDateLayout),
		}
	}
}

func realtimeBody(snKey string) func(p params) map[string]any {
	return func(p params) map[string]any {
		return map[string]any{
			snKey:       p.serial,
			"variables": p.variables,
		}
	}
}

func deviceListBody(pageKey string) func(p params) map[string]any {
	return func(p params) map[string]any {
		return map[string]any{
			pageKey:    p.page,
			"pageSize": p.pageSize,
		}
	}
}

func acceptSeries(result json.RawMessage) bool {
	return normalize.Detect(result) != normalize.ShapeUnknown
}

func acceptDeviceList(result json.RawMessage) bool {
	var page deviceListResult
	if err := json.Unmarshal(result, &page); err != nil {
		return false
	}
	return page.Data != nil
}

var (
	reportOperation = operation{
		name: OpReport,
		path: "/op/v0/device/report/query",
		shapes: []RequestShape{
			{Name: "dimension-day", Body: reportBody("dimension")},
			{Name: "type-day", Body: reportBody("type")},
		},
		accept: acceptSeries,
	}

	historyOperation = operation{
		name: OpHistory,
		path: "/op/v0/device/history/query",
		shapes: []RequestShape{
			{Name: "dimension-hour-begin", Body: historyBody("dimension", "HOUR", "beginDate")},
			{Name: "type-hour-begin", Body: historyBody("type", "HOUR", "beginDate")},
			{Name: "dimension-hour-start", Body: historyBody("dimension", "HOUR", "startDate")},
			{Name: "type-hour-start", Body: historyBody("type", "HOUR", "startDate")},
			{Name: "dimension-day-begin", Body: historyBody("dimension", "day", "beginDate")},
		},
		accept: acceptSeries,
	}

	realtimeOperation = operation{
		name: OpRealtime,
		path: "/op/v0/device/real/query",
		shapes: []RequestShape{
			{Name: "sn", Body: realtimeBody("sn")},
			{Name: "deviceSN", Body: realtimeBody("deviceSN")},
		},
		accept: acceptSeries,
	}

	deviceListOperation = operation{
		name: OpDeviceList,
		path: "/op/v0/device/list",
		shapes: []RequestShape{
			{Name: "currentPage", Body: deviceListBody("currentPage")},
			{Name: "pageNum", Body: deviceListBody("pageNum")},
		},
		accept: acceptDeviceList,
	}
)

type deviceListResult struct {
	Data        []deviceListEntry `json:"data"`
	Total       int               `json:"total"`
	CurrentPage int               `json:"currentPage"`
	PageSize    int               `json:"pageSize"`
}

type deviceListEntry struct {
	DeviceSN    string `json:"deviceSN"`
	SN          string `json:"sn"`
	DeviceType  string `json:"deviceType"`
	StationName string `json:"stationName"`
	Status      int    `json:"status"`
}
