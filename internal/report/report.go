// Package report aggregates classified logs into a deduplicated, ranked
// incident report with a generated narrative.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/classifier"
	"github.com/lvonguyen/stagezero/internal/ioc"
)

// Presentation bounds, matching the deep-report document shape.
const (
	topTechniqueLimit = 15
	perFileTechniques = 5
	iocSummaryLimit   = 500
	fileLimit         = 200
)

// Fallback narrative when the batch carries no matches at all.
const emptyNarrative = "No significant malicious patterns detected."

// TacticCount is one entry of the tactics breakdown.
type TacticCount struct {
	Tactic string `json:"tactic"`
	Count  int    `json:"count"`
}

// TechniqueCount is one entry of the ranked technique list.
type TechniqueCount struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TechniqueHit is a per-file top technique.
type TechniqueHit struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	MatchType classifier.MatchType `json:"match_type"`
	Score     float64              `json:"score"`
}

// FileSummary ranks one classified log inside the report.
type FileSummary struct {
	Filename      string           `json:"filename"`
	RiskScore     float64          `json:"risk_score"`
	TopTechniques []TechniqueHit   `json:"top_techniques"`
	IOCCounts     map[ioc.Kind]int `json:"ioc_counts"`
}

// Summary is the report headline block.
type Summary struct {
	TotalLogs          int    `json:"total_logs"`
	DistinctTechniques int    `json:"distinct_techniques"`
	TacticsObserved    int    `json:"tactics_observed"`
	OverallSeverity    string `json:"overall_severity"`
	RiskPercent        int    `json:"risk_percent"`
}

// Report is the aggregate over one classification run. It is regenerated
// fully on each run and carries no state across runs.
type Report struct {
	ReportID         string                `json:"report_id"`
	Summary          Summary               `json:"summary"`
	TacticsBreakdown []TacticCount         `json:"tactics_breakdown"`
	TopTechniques    []TechniqueCount      `json:"top_techniques"`
	IOCSummary       map[ioc.Kind][]string `json:"ioc_summary"`
	Files            []FileSummary         `json:"files"`
	Narrative        string                `json:"narrative"`
	GeneratedAt      string                `json:"generated_at"`
}

// Builder aggregates classified logs into reports. The clock and id
// generator are injectable so tests can assert byte-equal output.
type Builder struct {
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewBuilder creates a report builder with the real clock and uuid ids.
func NewBuilder(logger *zap.Logger) *Builder {
	return &Builder{
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// NewBuilderAt creates a builder with a fixed clock and id generator.
func NewBuilderAt(logger *zap.Logger, now func() time.Time, newID func() string) *Builder {
	return &Builder{logger: logger, now: now, newID: newID}
}

// Build aggregates a batch of classified logs. Ranking ties are always
// broken by first-seen order, never by map iteration order, so the same
// batch yields the same report. An empty batch is valid and produces a
// zero-count report with the fallback narrative.
func (b *Builder) Build(batch []classifier.ClassifiedLog) Report {
	type techKey struct{ id, name string }

	techCounts := make(map[techKey]int)
	var techOrder []techKey
	tacticCounts := make(map[string]int)
	var tacticOrder []string
	allIOCs := make(map[ioc.Kind]map[string]struct{})

	files := make([]FileSummary, 0, len(batch))
	total := 0.0

	for _, entry := range batch {
		total += entry.RiskScore

		for kind, vals := range entry.Indicators {
			set := allIOCs[kind]
			if set == nil {
				set = make(map[string]struct{})
				allIOCs[kind] = set
			}
			for _, v := range vals {
				set[v] = struct{}{}
			}
		}

		for _, m := range entry.Matches {
			key := techKey{m.TechniqueID, m.TechniqueName}
			if _, seen := techCounts[key]; !seen {
				techOrder = append(techOrder, key)
			}
			techCounts[key]++
			for _, t := range m.Tactics {
				if _, seen := tacticCounts[t]; !seen {
					tacticOrder = append(tacticOrder, t)
				}
				tacticCounts[t]++
			}
		}

		files = append(files, fileSummary(entry))
	}

	tactics := make([]TacticCount, 0, len(tacticOrder))
	for _, t := range tacticOrder {
		tactics = append(tactics, TacticCount{Tactic: t, Count: tacticCounts[t]})
	}
	sort.SliceStable(tactics, func(i, j int) bool {
		return tactics[i].Count > tactics[j].Count
	})

	techniques := make([]TechniqueCount, 0, len(techOrder))
	for _, key := range techOrder {
		techniques = append(techniques, TechniqueCount{
			ID:    key.id,
			Name:  key.name,
			Count: techCounts[key],
		})
	}
	sort.SliceStable(techniques, func(i, j int) bool {
		return techniques[i].Count > techniques[j].Count
	})
	topTechniques := techniques
	if len(topTechniques) > topTechniqueLimit {
		topTechniques = topTechniques[:topTechniqueLimit]
	}

	iocSummary := make(map[ioc.Kind][]string, len(allIOCs))
	for kind, set := range allIOCs {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		if len(vals) > iocSummaryLimit {
			vals = vals[:iocSummaryLimit]
		}
		iocSummary[kind] = vals
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].RiskScore > files[j].RiskScore
	})
	if len(files) > fileLimit {
		files = files[:fileLimit]
	}

	total = classifier.Round3(total)
	riskPercent := int(math.Round(total / (total + 100) * 100))
	if riskPercent > 100 {
		riskPercent = 100
	}

	rep := Report{
		ReportID: b.newID(),
		Summary: Summary{
			TotalLogs:          len(batch),
			DistinctTechniques: len(techniques),
			TacticsObserved:    len(tactics),
			OverallSeverity:    classifier.SeverityBucket(total),
			RiskPercent:        riskPercent,
		},
		TacticsBreakdown: tactics,
		TopTechniques:    topTechniques,
		IOCSummary:       iocSummary,
		Files:            files,
		Narrative:        narrative(tactics, topTechniques, iocSummary),
		GeneratedAt:      b.now().UTC().Format(time.RFC3339),
	}

	b.logger.Info("report built",
		zap.String("report_id", rep.ReportID),
		zap.Int("total_logs", rep.Summary.TotalLogs),
		zap.String("severity", rep.Summary.OverallSeverity),
		zap.Int("risk_percent", rep.Summary.RiskPercent),
	)
	return rep
}

func fileSummary(entry classifier.ClassifiedLog) FileSummary {
	hits := make([]TechniqueHit, 0, len(entry.Matches))
	for _, m := range entry.Matches {
		hits = append(hits, TechniqueHit{
			ID:        m.TechniqueID,
			Name:      m.TechniqueName,
			MatchType: m.MatchType,
			Score:     m.Score,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > perFileTechniques {
		hits = hits[:perFileTechniques]
	}

	counts := make(map[ioc.Kind]int, len(ioc.Kinds))
	for _, kind := range ioc.Kinds {
		counts[kind] = entry.Indicators.Count(kind)
	}

	return FileSummary{
		Filename:      entry.SourceID,
		RiskScore:     entry.RiskScore,
		TopTechniques: hits,
		IOCCounts:     counts,
	}
}

// narrative renders the deterministic template: lead tactic, most
// frequent technique, then conditional network and hash sentences.
func narrative(tactics []TacticCount, techniques []TechniqueCount, iocSummary map[ioc.Kind][]string) string {
	var sentences []string
	if len(tactics) > 0 {
		sentences = append(sentences, fmt.Sprintf(
			"Activity is dominated by %s with additional evidence across %d ATT&CK stages.",
			dehyphenate(tactics[0].Tactic), len(tactics),
		))
	}
	if len(techniques) > 0 {
		sentences = append(sentences, fmt.Sprintf(
			"Most frequent technique observed: %s — %s.",
			techniques[0].ID, techniques[0].Name,
		))
	}
	if len(iocSummary[ioc.KindURL]) > 0 || len(iocSummary[ioc.KindDomain]) > 0 {
		sentences = append(sentences, "Network indicators (domains/URLs) were identified; review egress/DNS logs.")
	}
	if len(iocSummary[ioc.KindHash]) > 0 {
		sentences = append(sentences, "File hashes were found; consider retro-hunting in EDR/AV.")
	}
	if len(sentences) == 0 {
		return emptyNarrative
	}
	return strings.Join(sentences, "\n")
}
