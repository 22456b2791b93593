package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pvledger/pvledger/pkg/types"
)

// Number decodes a JSON number or numeric string. Decimal commas are
// accepted. The second return is false for null, non-numeric or non-finite
// values.
func Number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return 0, false
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	} else {
		s = string(raw)
	}
	f, err := parseNumeric(s)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseNumeric(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, errNotNumeric
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumeric
	}
	return f, nil
}

// parseFloat is Number with unusable values read as zero.
func parseFloat(raw json.RawMessage) float64 {
	f, _ := Number(raw)
	return f
}

// zoneAbbrev matches a trailing "CEST+0200" style zone where the provider
// sends both an abbreviation and an offset.
var zoneAbbrev = regexp.MustCompile(`\s*[A-Za-z]{3,5}([+-]\d{2}:?\d{2})$`)

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-0700",
	"2006-01-02T15:04:05-0700",
}

var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// ParseTime decodes a point timestamp: epoch milliseconds (or seconds), an
// RFC 3339 string, a string with a zone abbreviation and offset, or a local
// wall-clock string interpreted in loc.
func ParseTime(raw json.RawMessage, loc *time.Location) (time.Time, bool) {
	return parseTime(raw, loc)
}

func parseTime(raw json.RawMessage, loc *time.Location) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return time.Time{}, false
	}
	if raw[0] != '"' {
		n, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return time.Time{}, false
		}
		return epoch(int64(n)).In(loc), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	return ParseTimeString(s, loc)
}

// ParseTimeString is ParseTime for an already decoded string.
func ParseTimeString(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epoch(n).In(loc), true
	}
	s = zoneAbbrev.ReplaceAllString(s, "$1")
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// epoch reads n as milliseconds unless it is too small to be a millisecond
// timestamp after 1973.
func epoch(n int64) time.Time {
	if n < 100_000_000_000 {
		return time.Unix(n, 0)
	}
	return time.UnixMilli(n)
}

func sortByVariable(series []types.RawSeries) {
	sort.SliceStable(series, func(i, j int) bool {
		return series[i].Variable < series[j].Variable
	})
}
