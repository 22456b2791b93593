package price

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pvledger/pvledger/pkg/normalize"
	"github.com/pvledger/pvledger/pkg/types"
)

var (
	priceKeys = []string{"rce_pln", "rcemw", "rcepln", "rce", "price", "cena_pln_mwh", "cena"}
	timeKeys  = []string{"udtczas", "czas", "godzina", "timestamp", "ts", "datehour", "datetime"}
)

const businessDateKey = "business_date"

var errNoPriceColumn = errors.New("no price column")

// row is one decoded provider row with its keys in document order.
type row struct {
	keys   []string
	values map[string]json.RawMessage
}

// decodeRows accepts either a bare array of rows or an object with the rows
// under "value".
func decodeRows(body []byte) ([]row, error) {
	body = bytes.TrimSpace(body)
	var elems []json.RawMessage
	if len(body) > 0 && body[0] == '{' {
		var env struct {
			Value []json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, err
		}
		elems = env.Value
	} else if err := json.Unmarshal(body, &elems); err != nil {
		return nil, err
	}

	rows := make([]row, 0, len(elems))
	for _, e := range elems {
		r, err := decodeRow(e)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func decodeRow(raw json.RawMessage) (row, error) {
	r := row{values: make(map[string]json.RawMessage)}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return r, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return r, fmt.Errorf("row is not an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return r, err
		}
		key, ok := tok.(string)
		if !ok {
			return r, fmt.Errorf("unexpected token %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return r, err
		}
		if _, dup := r.values[key]; !dup {
			r.keys = append(r.keys, key)
		}
		r.values[key] = v
	}
	return r, nil
}

// pickKey returns the first candidate present in keys, compared
// case-insensitively, as it is spelled in keys.
func pickKey(keys []string, candidates []string) string {
	lower := make(map[string]string, len(keys))
	for _, k := range keys {
		if _, ok := lower[strings.ToLower(k)]; !ok {
			lower[strings.ToLower(k)] = k
		}
	}
	for _, c := range candidates {
		if k, ok := lower[c]; ok {
			return k
		}
	}
	return ""
}

// pickPriceKey falls back to the first column that holds a JSON number in
// the first row.
func pickPriceKey(first row) string {
	if k := pickKey(first.keys, priceKeys); k != "" {
		return k
	}
	for _, k := range first.keys {
		if k == businessDateKey {
			continue
		}
		v := bytes.TrimSpace(first.values[k])
		if len(v) > 0 && (v[0] == '-' || (v[0] >= '0' && v[0] <= '9')) {
			return k
		}
	}
	return ""
}

// hourlyFromRows averages the rows of one day into 24 hourly prices.
//
// Rows with a time column are bucketed by the hour they start in. Providers
// stamp rows with the end of their interval, so when the first row is not at
// midnight every row is moved back by one interval. Rows without a time
// column are spread evenly over the day in document order.
func hourlyFromRows(rows []row, date time.Time) (types.DayPrices, error) {
	dp := types.DayPrices{Date: date}
	if len(rows) == 0 {
		dp.Missing = true
		return dp, nil
	}
	priceKey := pickPriceKey(rows[0])
	if priceKey == "" {
		return dp, errNoPriceColumn
	}
	timeKey := pickKey(rows[0].keys, timeKeys)

	var (
		sums   [types.HoursPerDay]float64
		counts [types.HoursPerDay]int
	)
	add := func(h int, r row) {
		if h < 0 || h >= types.HoursPerDay {
			return
		}
		p, ok := normalize.Number(r.values[priceKey])
		if !ok {
			return
		}
		sums[h] += p
		counts[h]++
	}

	if timeKey != "" {
		hours, ok := rowHours(rows, timeKey, date)
		if !ok {
			timeKey = ""
		} else {
			for i, r := range rows {
				add(hours[i], r)
			}
		}
	}
	if timeKey == "" {
		perHour := (len(rows) + types.HoursPerDay - 1) / types.HoursPerDay
		for i, r := range rows {
			add(i/perHour, r)
		}
	}

	for h := range sums {
		if counts[h] == 0 {
			continue
		}
		dp.Prices[h] = sums[h] / float64(counts[h])
		dp.Samples += counts[h]
	}
	if dp.Samples == 0 {
		dp.Missing = true
	}
	return dp, nil
}

// rowHours maps every row to an hour of date. It returns false if any row
// has an unusable time.
func rowHours(rows []row, timeKey string, date time.Time) ([]int, bool) {
	loc := date.Location()
	dayStart := types.StartOfDay(date)

	// numeric hour labels such as godzina=1..24
	if labels, ok := numericLabels(rows, timeKey); ok {
		shift := 0
		if len(labels) > 0 && labels[0] > 0 {
			shift = 1
		}
		hours := make([]int, len(labels))
		for i, l := range labels {
			hours[i] = l - shift
		}
		return hours, true
	}

	stamps := make([]time.Time, len(rows))
	for i, r := range rows {
		ts, ok := normalize.ParseTime(r.values[timeKey], loc)
		if !ok {
			return nil, false
		}
		stamps[i] = ts
	}

	step := time.Hour
	if len(stamps) > 1 {
		sorted := append([]time.Time(nil), stamps...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
		if d := sorted[1].Sub(sorted[0]); d > 0 {
			step = d
		}
	}
	var shift time.Duration
	if first := stamps[0]; first.Sub(types.StartOfDay(first)) > 0 {
		shift = step
	}

	hours := make([]int, len(stamps))
	for i, ts := range stamps {
		ts = ts.Add(-shift)
		if !types.SameDay(dayStart, ts) {
			hours[i] = -1
			continue
		}
		hours[i] = ts.Hour()
	}
	return hours, true
}

func numericLabels(rows []row, key string) ([]int, bool) {
	labels := make([]int, len(rows))
	for i, r := range rows {
		v := bytes.TrimSpace(r.values[key])
		if len(v) == 0 || v[0] == '"' {
			return nil, false
		}
		n, ok := normalize.Number(v)
		if !ok || n != float64(int(n)) || n < 0 || n > types.HoursPerDay {
			return nil, false
		}
		labels[i] = int(n)
	}
	return labels, true
}
