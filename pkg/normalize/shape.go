// Package normalize turns the telemetry provider's result payloads into
// named raw series, whichever of the known layouts the provider chose.
package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pvledger/pvledger/pkg/types"
)

// Shape identifies which result layout a payload used.
type Shape int

const (
	ShapeUnknown Shape = iota
	// ShapeFlat is an array of {variable, unit, values: [...]}.
	ShapeFlat
	// ShapePoints is an array of {variable, unit, data|points: [{time, value}]}.
	ShapePoints
	// ShapeDatas is an array of blocks each holding a nested datas array.
	ShapeDatas
	// ShapeKeyed is an object keyed by variable name.
	ShapeKeyed
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapePoints:
		return "points"
	case ShapeDatas:
		return "datas"
	case ShapeKeyed:
		return "keyed"
	default:
		return "unknown"
	}
}

// ErrUnrecognizedShape is returned when a payload matches none of the known
// layouts.
var ErrUnrecognizedShape = fmt.Errorf("%w: unrecognized result shape", types.ErrUpstreamMalformed)

type wireSeries struct {
	Variable string          `json:"variable"`
	Name     string          `json:"name"`
	Unit     string          `json:"unit"`
	Values   json.RawMessage `json:"values"`
	Value    json.RawMessage `json:"value"`
	Data     json.RawMessage `json:"data"`
	Points   json.RawMessage `json:"points"`
	Datas    json.RawMessage `json:"datas"`
}

func (w wireSeries) name() string {
	if w.Variable != "" {
		return w.Variable
	}
	return w.Name
}

type wirePoint struct {
	Time      json.RawMessage `json:"time"`
	Timestamp json.RawMessage `json:"timestamp"`
	Value     json.RawMessage `json:"value"`
}

// Detect inspects the structure of a result payload and returns its shape
// without decoding the samples.
func Detect(raw json.RawMessage) Shape {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ShapeUnknown
	}
	switch raw[0] {
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return ShapeUnknown
		}
		return ShapeKeyed
	case '[':
		var blocks []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return ShapeUnknown
		}
		if len(blocks) == 0 {
			// an empty result is a valid day with no data
			return ShapeFlat
		}
		first := blocks[0]
		if has(first, "datas") {
			return ShapeDatas
		}
		if has(first, "data") || has(first, "points") {
			return ShapePoints
		}
		if has(first, "values") || has(first, "variable") {
			return ShapeFlat
		}
	}
	return ShapeUnknown
}

func has(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

// Parse extracts every series from a result payload. Point timestamps without
// an explicit zone are interpreted in loc.
func Parse(raw json.RawMessage, loc *time.Location) ([]types.RawSeries, Shape, error) {
	shape := Detect(raw)
	var (
		series []types.RawSeries
		err    error
	)
	switch shape {
	case ShapeFlat, ShapePoints:
		series, err = parseBlocks(raw, loc)
	case ShapeDatas:
		series, err = parseDatas(raw, loc)
	case ShapeKeyed:
		series, err = parseKeyed(raw, loc)
	default:
		return nil, ShapeUnknown, ErrUnrecognizedShape
	}
	if err != nil {
		return nil, shape, fmt.Errorf("%w: %s shape: %w", types.ErrUpstreamMalformed, shape, err)
	}
	return series, shape, nil
}

func parseBlocks(raw json.RawMessage, loc *time.Location) ([]types.RawSeries, error) {
	var blocks []wireSeries
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, err
	}
	out := make([]types.RawSeries, 0, len(blocks))
	for _, b := range blocks {
		s, err := b.toRaw(loc)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func parseDatas(raw json.RawMessage, loc *time.Location) ([]types.RawSeries, error) {
	var blocks []wireSeries
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, err
	}
	var out []types.RawSeries
	for _, b := range blocks {
		if len(b.Datas) == 0 || isNull(b.Datas) {
			continue
		}
		var datas []wireSeries
		if err := json.Unmarshal(b.Datas, &datas); err != nil {
			return nil, err
		}
		for _, d := range datas {
			s, err := d.toRaw(loc)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func parseKeyed(raw json.RawMessage, loc *time.Location) ([]types.RawSeries, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make([]types.RawSeries, 0, len(m))
	for name, v := range m {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || isNull(v) {
			continue
		}
		switch v[0] {
		case '[':
			values, points, err := decodeSamples(v, loc)
			if err != nil {
				return nil, err
			}
			out = append(out, types.RawSeries{Variable: name, Values: values, Points: points})
		case '{':
			var w wireSeries
			if err := json.Unmarshal(v, &w); err != nil {
				return nil, err
			}
			if w.Variable == "" && w.Name == "" {
				w.Variable = name
			}
			s, err := w.toRaw(loc)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		default:
			// scalar fields such as a page count are not series
			continue
		}
	}
	// map iteration order is random
	sortByVariable(out)
	return out, nil
}

func (w wireSeries) toRaw(loc *time.Location) (types.RawSeries, error) {
	s := types.RawSeries{
		Variable: w.name(),
		Unit:     w.Unit,
	}
	for _, samples := range []json.RawMessage{w.Values, w.Data, w.Points} {
		if len(samples) == 0 || isNull(samples) {
			continue
		}
		values, points, err := decodeSamples(samples, loc)
		if err != nil {
			return s, fmt.Errorf("variable %q: %w", s.Variable, err)
		}
		s.Values, s.Points = values, points
		return s, nil
	}
	if len(w.Value) > 0 && !isNull(w.Value) {
		s.Values = []float64{parseFloat(w.Value)}
	}
	return s, nil
}

// decodeSamples decodes an array that is either plain numbers or
// timestamped points.
func decodeSamples(raw json.RawMessage, loc *time.Location) ([]float64, []types.Point, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, nil, err
	}
	if len(elems) == 0 {
		return nil, nil, nil
	}
	if first := bytes.TrimSpace(elems[0]); len(first) > 0 && first[0] == '{' {
		points := make([]types.Point, 0, len(elems))
		for _, e := range elems {
			var wp wirePoint
			if err := json.Unmarshal(e, &wp); err != nil {
				return nil, nil, err
			}
			stamp := wp.Time
			if len(stamp) == 0 || isNull(stamp) {
				stamp = wp.Timestamp
			}
			ts, ok := parseTime(stamp, loc)
			if !ok {
				continue
			}
			points = append(points, types.Point{TS: ts, Value: parseFloat(wp.Value)})
		}
		return nil, points, nil
	}
	values := make([]float64, len(elems))
	for i, e := range elems {
		values[i] = parseFloat(e)
	}
	return values, nil, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

var errNotNumeric = errors.New("not numeric")
