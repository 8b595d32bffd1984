package classifier

import (
	"math"

	"github.com/lvonguyen/stagezero/internal/ioc"
)

// tacticWeights is the fixed kill-chain weighting table. Unknown tactics
// weigh 0.
var tacticWeights = map[string]float64{
	"reconnaissance":       2,
	"resource-development": 2,
	"initial-access":       4,
	"execution":            4,
	"persistence":          3,
	"privilege-escalation": 4,
	"defense-evasion":      4,
	"credential-access":    5,
	"discovery":            2,
	"lateral-movement":     5,
	"collection":           3,
	"command-and-control":  5,
	"exfiltration":         5,
	"impact":               5,
}

// iocWeights assigns a per-unique-value weight to indicator kinds.
// Kinds absent here (filepath, timestamp) contribute nothing.
var iocWeights = map[ioc.Kind]float64{
	ioc.KindURL:         2.0,
	ioc.KindHash:        2.0,
	ioc.KindIPv4:        1.5,
	ioc.KindIPv6:        1.5,
	ioc.KindDomain:      1.0,
	ioc.KindRegistryKey: 1.0,
	ioc.KindEmail:       0.5,
}

// Severity thresholds for the aggregate risk score, inclusive lower bound.
const (
	severityCritical = 40
	severityHigh     = 25
	severityMedium   = 12
)

// TechniqueScore scores a single technique match: a base of 2.0 for a
// full-name hit or 1.0 for a keyword hit, plus a tenth of the summed
// tactic weights.
func TechniqueScore(tactics []string, matchType MatchType) float64 {
	base := 1.0
	if matchType == MatchFull {
		base = 2.0
	}
	for _, t := range tactics {
		base += tacticWeights[t] * 0.1
	}
	return base
}

// IOCWeightedScore scores an indicator set by kind weight times the
// number of unique values of that kind.
func IOCWeightedScore(indicators ioc.IndicatorSet) float64 {
	score := 0.0
	for kind, weight := range iocWeights {
		score += weight * float64(indicators.Count(kind))
	}
	return score
}

// SeverityBucket maps an aggregate risk score to a categorical label.
func SeverityBucket(total float64) string {
	switch {
	case total >= severityCritical:
		return "critical"
	case total >= severityHigh:
		return "high"
	case total >= severityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Round3 rounds to 3 decimal places, applied at every score output point
// so results are reproducible across float formatting differences.
func Round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
