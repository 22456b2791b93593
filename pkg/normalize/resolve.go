package normalize

import (
	"strings"

	"github.com/pvledger/pvledger/pkg/types"
)

// Accepted provider field names for each logical quantity, in priority order.
var (
	GenerationEnergy = []string{
		"generation", "pvGeneration", "production", "yield", "gen", "eDay", "dayEnergy",
	}
	GenerationPower = []string{
		"generationPower", "pvPower", "pvPowerW", "ppvTotal", "ppv", "inverterPower", "outputPower",
	}
	ExportEnergy = []string{
		"feedin", "feedIn", "gridExportEnergy", "gridExport", "export", "exportEnergy",
		"gridOutEnergy", "gridOut", "sell", "sellEnergy", "toGrid", "toGridEnergy", "eOut",
	}
	ExportPower = []string{
		"feedinPower", "gridExportPower",
	}
	RealtimePower = []string{
		"pvPower", "pv1Power", "pv2Power", "pvPowerW", "generationPower", "inverterPower",
		"outputPower", "ppv", "ppvTotal", "gridExportPower", "feedinPower", "acPower",
	}
)

// EnergyCandidates returns the energy field names for a kind.
func EnergyCandidates(kind types.Kind) []string {
	if kind == types.KindExport {
		return ExportEnergy
	}
	return GenerationEnergy
}

// PowerCandidates returns the power field names for a kind.
func PowerCandidates(kind types.Kind) []string {
	if kind == types.KindExport {
		return ExportPower
	}
	return GenerationPower
}

// Resolve picks the series for a logical quantity. Candidates are tried in
// order and the first one present with a non-zero sample wins. When no
// candidate qualifies the returned series carries no samples and matched is
// false. Names are compared case-insensitively.
func Resolve(series []types.RawSeries, candidates []string) (types.RawSeries, bool) {
	byName := make(map[string]types.RawSeries, len(series))
	for _, s := range series {
		key := strings.ToLower(s.Variable)
		if _, ok := byName[key]; !ok {
			byName[key] = s
		}
	}
	for _, name := range candidates {
		s, ok := byName[strings.ToLower(name)]
		if !ok || degenerate(s) {
			continue
		}
		return s, true
	}
	unmatched := types.RawSeries{Unit: types.EnergyUnit}
	if len(candidates) > 0 {
		unmatched.Variable = candidates[0]
	}
	return unmatched, false
}

// degenerate is true for a series with no samples or only zero samples.
func degenerate(s types.RawSeries) bool {
	for _, v := range s.Values {
		if v != 0 {
			return false
		}
	}
	for _, p := range s.Points {
		if p.Value != 0 {
			return false
		}
	}
	return true
}

// Variables returns the names of every series, useful for debug logging.
func Variables(series []types.RawSeries) []string {
	names := make([]string, len(series))
	for i, s := range series {
		names[i] = s.Variable
	}
	return names
}
