package normalize

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pvledger/pvledger/pkg/types"
)

var warsaw = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Warsaw")
	if err != nil {
		panic(err)
	}
	return loc
}()

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		shape  Shape
		verify func(t *testing.T, series []types.RawSeries)
	}{
		{
			name:  "Flat values",
			raw:   `[{"variable":"generation","unit":"kWh","values":[1,"2.5","3,5",null]}]`,
			shape: ShapeFlat,
			verify: func(t *testing.T, series []types.RawSeries) {
				require.Len(t, series, 1)
				assert.Equal(t, "generation", series[0].Variable)
				assert.Equal(t, "kWh", series[0].Unit)
				assert.Equal(t, []float64{1, 2.5, 3.5, 0}, series[0].Values)
				assert.False(t, series[0].HasPoints())
			},
		},
		{
			name:  "Points with zone abbreviation",
			raw:   `[{"variable":"pvPower","unit":"kW","data":[{"time":"2025-06-01 13:00:00 CEST+0200","value":2.5},{"time":"2025-06-01 14:00:00 CEST+0200","value":"3"}]}]`,
			shape: ShapePoints,
			verify: func(t *testing.T, series []types.RawSeries) {
				require.Len(t, series, 1)
				require.Len(t, series[0].Points, 2)
				assert.True(t, series[0].Points[0].TS.Equal(time.Date(2025, 6, 1, 13, 0, 0, 0, warsaw)))
				assert.Equal(t, 2.5, series[0].Points[0].Value)
				assert.Equal(t, 3.0, series[0].Points[1].Value)
			},
		},
		{
			name:  "Points with epoch millis and bad times dropped",
			raw:   `[{"variable":"pvPower","unit":"kW","points":[{"timestamp":1748772000000,"value":1},{"time":"garbage","value":2}]}]`,
			shape: ShapePoints,
			verify: func(t *testing.T, series []types.RawSeries) {
				require.Len(t, series, 1)
				require.Len(t, series[0].Points, 1)
				assert.Equal(t, int64(1748772000000), series[0].Points[0].TS.UnixMilli())
			},
		},
		{
			name:  "Nested datas",
			raw:   `[{"deviceSN":"SN1","datas":[{"variable":"pvPower","unit":"kW","value":1.2},{"name":"feedinPower","unit":"kW","data":[{"time":"2025-06-01 10:00:00","value":0.4}]}]}]`,
			shape: ShapeDatas,
			verify: func(t *testing.T, series []types.RawSeries) {
				require.Len(t, series, 2)
				assert.Equal(t, "pvPower", series[0].Variable)
				assert.Equal(t, []float64{1.2}, series[0].Values)
				assert.Equal(t, "feedinPower", series[1].Variable)
				require.Len(t, series[1].Points, 1)
				assert.True(t, series[1].Points[0].TS.Equal(time.Date(2025, 6, 1, 10, 0, 0, 0, warsaw)))
			},
		},
		{
			name:  "Keyed object",
			raw:   `{"generation":[1,2,3],"feedin":{"unit":"kWh","values":[0.5]},"total":3}`,
			shape: ShapeKeyed,
			verify: func(t *testing.T, series []types.RawSeries) {
				require.Len(t, series, 2)
				assert.Equal(t, "feedin", series[0].Variable)
				assert.Equal(t, "kWh", series[0].Unit)
				assert.Equal(t, []float64{0.5}, series[0].Values)
				assert.Equal(t, "generation", series[1].Variable)
				assert.Equal(t, []float64{1, 2, 3}, series[1].Values)
			},
		},
		{
			name:  "Empty array",
			raw:   `[]`,
			shape: ShapeFlat,
			verify: func(t *testing.T, series []types.RawSeries) {
				assert.Empty(t, series)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, shape, err := Parse(json.RawMessage(tt.raw), warsaw)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, shape)
			tt.verify(t, series)
		})
	}

	t.Run("Unknown shapes", func(t *testing.T) {
		for _, raw := range []string{`null`, `42`, `"ok"`, `[{"foo":1}]`, ``} {
			_, shape, err := Parse(json.RawMessage(raw), warsaw)
			assert.Equal(t, ShapeUnknown, shape, raw)
			assert.ErrorIs(t, err, ErrUnrecognizedShape, raw)
			assert.True(t, errors.Is(err, types.ErrUpstreamMalformed), raw)
		}
	})

	t.Run("Malformed samples", func(t *testing.T) {
		_, shape, err := Parse(json.RawMessage(`[{"variable":"generation","values":{"a":1}}]`), warsaw)
		assert.Equal(t, ShapeFlat, shape)
		assert.ErrorIs(t, err, types.ErrUpstreamMalformed)
	})

	t.Run("Deterministic", func(t *testing.T) {
		raw := json.RawMessage(`{"b":[1],"a":[2],"c":{"values":[3]}}`)
		first, _, err := Parse(raw, warsaw)
		require.NoError(t, err)
		second, _, err := Parse(raw, warsaw)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestResolve(t *testing.T) {
	series := []types.RawSeries{
		{Variable: "generation", Unit: "kWh", Values: []float64{0, 0, 0}},
		{Variable: "Yield", Unit: "kWh", Values: []float64{1, 2}},
		{Variable: "eDay", Unit: "kWh", Values: []float64{5}},
	}

	t.Run("Skips degenerate and matches case-insensitively", func(t *testing.T) {
		s, ok := Resolve(series, GenerationEnergy)
		require.True(t, ok)
		assert.Equal(t, "Yield", s.Variable)
	})

	t.Run("Unmatched returns empty series", func(t *testing.T) {
		s, ok := Resolve(series, ExportEnergy)
		assert.False(t, ok)
		assert.Equal(t, "feedin", s.Variable)
		assert.Equal(t, types.EnergyUnit, s.Unit)
		assert.Empty(t, s.Values)
		assert.Empty(t, s.Points)
	})

	t.Run("All candidates degenerate", func(t *testing.T) {
		_, ok := Resolve(series[:1], GenerationEnergy)
		assert.False(t, ok)
	})

	t.Run("Points count as non degenerate", func(t *testing.T) {
		s, ok := Resolve([]types.RawSeries{
			{Variable: "pvPower", Unit: "kW", Points: []types.Point{{TS: time.Now(), Value: 1}}},
		}, GenerationPower)
		require.True(t, ok)
		assert.Equal(t, "pvPower", s.Variable)
	})

	assert.Equal(t, ExportEnergy, EnergyCandidates(types.KindExport))
	assert.Equal(t, GenerationPower, PowerCandidates(types.KindGeneration))
	assert.Equal(t, []string{"generation", "Yield", "eDay"}, Variables(series))
}

func TestCorrectUnits(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, warsaw)
	in := []types.RawSeries{
		{Variable: "generation", Unit: "kWh", Values: []float64{0, 1500, 2500}},
		{Variable: "feedin", Unit: "kWh", Values: []float64{0.5, 1}},
		{Variable: "pvPower", Unit: "kW", Points: []types.Point{{TS: ts, Value: 3200}}},
		{Variable: "acPower", Unit: "W", Values: []float64{1200}},
		{Variable: "yield", Unit: "Wh", Values: []float64{500}},
		{Variable: "other", Unit: "", Values: []float64{9999}},
	}
	out := CorrectUnits(in, DefaultUnitThreshold)
	require.Len(t, out, len(in))

	assert.Equal(t, []float64{0, 1.5, 2.5}, out[0].Values, "kWh above threshold is rescaled")
	assert.Equal(t, "kWh", out[0].Unit)
	assert.Equal(t, []float64{0.5, 1}, out[1].Values, "plausible kWh is untouched")
	assert.InDelta(t, 3.2, out[2].Points[0].Value, 1e-9)
	assert.Equal(t, "kW", out[2].Unit)
	assert.InDelta(t, 1.2, out[3].Values[0], 1e-9)
	assert.Equal(t, "kW", out[3].Unit)
	assert.InDelta(t, 0.5, out[4].Values[0], 1e-9)
	assert.Equal(t, "kWh", out[4].Unit)
	assert.Equal(t, []float64{9999}, out[5].Values, "unknown units are left alone")

	// input must not be mutated
	assert.Equal(t, []float64{0, 1500, 2500}, in[0].Values)
	assert.Equal(t, 3200.0, in[2].Points[0].Value)

	t.Run("Threshold disabled", func(t *testing.T) {
		out := CorrectUnits(in[:1], 0)
		assert.Equal(t, []float64{0, 1500, 2500}, out[0].Values)
	})

	t.Run("Same input gives same output", func(t *testing.T) {
		assert.Equal(t, CorrectUnits(in, DefaultUnitThreshold), CorrectUnits(in, DefaultUnitThreshold))
	})
}

func TestClassifyUnit(t *testing.T) {
	assert.Equal(t, UnitEnergy, ClassifyUnit("kWh"))
	assert.Equal(t, UnitEnergy, ClassifyUnit(" KWH "))
	assert.Equal(t, UnitPower, ClassifyUnit("kW"))
	assert.Equal(t, UnitPower, ClassifyUnit("W"))
	assert.Equal(t, UnitUnknown, ClassifyUnit("%"))
}

func TestParseTimeString(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-06-01T10:00:00Z", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-06-01 12:00:00 CEST+0200", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-06-01 12:00:00+02:00", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-06-01 12:00:00", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-06-01 12:00", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"1748772000000", time.UnixMilli(1748772000000)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimeString(tt.in, warsaw)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, warsaw, got.Location())
		})
	}

	_, ok := ParseTimeString("not a time", warsaw)
	assert.False(t, ok)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{`1.5`, 1.5, true},
		{`"2,75"`, 2.75, true},
		{`" 1 234,5 "`, 1234.5, true},
		{`-10`, -10, true},
		{`null`, 0, false},
		{`"abc"`, 0, false},
		{`"NaN"`, 0, false},
		{`true`, 0, false},
	}
	for _, tt := range tests {
		got, ok := Number(json.RawMessage(tt.raw))
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.InDelta(t, tt.want, got, 1e-9, tt.raw)
	}
}
