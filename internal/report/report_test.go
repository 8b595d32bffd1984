package report

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/classifier"
	"github.com/lvonguyen/stagezero/internal/ioc"
)

func fixedBuilder() *Builder {
	return NewBuilderAt(zap.NewNop(),
		func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) },
		func() string { return "report-fixed" },
	)
}

func sampleBatch() []classifier.ClassifiedLog {
	return []classifier.ClassifiedLog{
		{
			SourceID:   "a.log",
			Indicators: ioc.IndicatorSet{ioc.KindIPv4: {"10.0.0.5"}},
			Matches: []classifier.MatchResult{
				{TechniqueID: "T1110", TechniqueName: "Brute Force",
					Tactics: []string{"credential-access"}, MatchType: classifier.MatchPartial, Score: 1.5},
			},
			RiskScore: 3.0,
		},
		{
			SourceID: "b.log",
			Indicators: ioc.IndicatorSet{
				ioc.KindIPv4:   {"10.0.0.5", "10.0.0.9"},
				ioc.KindDomain: {"evil.example"},
				ioc.KindHash:   {"d41d8cd98f00b204e9800998ecf8427e"},
			},
			Matches: []classifier.MatchResult{
				{TechniqueID: "T1110", TechniqueName: "Brute Force",
					Tactics: []string{"credential-access"}, MatchType: classifier.MatchFull, Score: 2.5},
				{TechniqueID: "T1059", TechniqueName: "Command and Scripting Interpreter",
					Tactics: []string{"execution"}, MatchType: classifier.MatchFull, Score: 2.4},
			},
			RiskScore: 9.9,
		},
	}
}

func TestBuild_Aggregation(t *testing.T) {
	rep := fixedBuilder().Build(sampleBatch())

	if rep.ReportID != "report-fixed" {
		t.Errorf("report id = %q", rep.ReportID)
	}
	if rep.GeneratedAt != "2026-08-30T12:00:00Z" {
		t.Errorf("generated at = %q", rep.GeneratedAt)
	}

	want := Summary{
		TotalLogs:          2,
		DistinctTechniques: 2,
		TacticsObserved:    2,
		OverallSeverity:    "medium",
		RiskPercent:        11, // 12.9 / 112.9
	}
	if rep.Summary != want {
		t.Errorf("summary = %+v, want %+v", rep.Summary, want)
	}

	wantTactics := []TacticCount{
		{Tactic: "credential-access", Count: 2},
		{Tactic: "execution", Count: 1},
	}
	if !reflect.DeepEqual(rep.TacticsBreakdown, wantTactics) {
		t.Errorf("tactics = %+v, want %+v", rep.TacticsBreakdown, wantTactics)
	}

	wantTechniques := []TechniqueCount{
		{ID: "T1110", Name: "Brute Force", Count: 2},
		{ID: "T1059", Name: "Command and Scripting Interpreter", Count: 1},
	}
	if !reflect.DeepEqual(rep.TopTechniques, wantTechniques) {
		t.Errorf("techniques = %+v, want %+v", rep.TopTechniques, wantTechniques)
	}

	// IOC values are the deduplicated, sorted union across files.
	if got := rep.IOCSummary[ioc.KindIPv4]; !reflect.DeepEqual(got, []string{"10.0.0.5", "10.0.0.9"}) {
		t.Errorf("ipv4 summary = %v", got)
	}

	// Files rank by risk score, highest first.
	if rep.Files[0].Filename != "b.log" || rep.Files[1].Filename != "a.log" {
		t.Errorf("file order = [%s %s], want [b.log a.log]", rep.Files[0].Filename, rep.Files[1].Filename)
	}
	if rep.Files[0].IOCCounts[ioc.KindIPv4] != 2 {
		t.Errorf("b.log ipv4 count = %d, want 2", rep.Files[0].IOCCounts[ioc.KindIPv4])
	}
}

func TestBuild_Narrative(t *testing.T) {
	rep := fixedBuilder().Build(sampleBatch())

	want := strings.Join([]string{
		"Activity is dominated by credential access with additional evidence across 2 ATT&CK stages.",
		"Most frequent technique observed: T1110 — Brute Force.",
		"Network indicators (domains/URLs) were identified; review egress/DNS logs.",
		"File hashes were found; consider retro-hunting in EDR/AV.",
	}, "\n")
	if rep.Narrative != want {
		t.Errorf("narrative =\n%s\nwant\n%s", rep.Narrative, want)
	}
}

func TestBuild_EmptyBatch(t *testing.T) {
	rep := fixedBuilder().Build(nil)

	want := Summary{TotalLogs: 0, DistinctTechniques: 0, TacticsObserved: 0,
		OverallSeverity: "low", RiskPercent: 0}
	if rep.Summary != want {
		t.Errorf("summary = %+v, want %+v", rep.Summary, want)
	}
	if rep.Narrative != emptyNarrative {
		t.Errorf("narrative = %q, want fallback", rep.Narrative)
	}
	if len(rep.TacticsBreakdown) != 0 || len(rep.TopTechniques) != 0 || len(rep.Files) != 0 {
		t.Errorf("empty batch produced non-empty breakdowns: %+v", rep)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	b := fixedBuilder()

	first, err := json.Marshal(b.Build(sampleBatch()))
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(b.Build(sampleBatch()))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("reports differ across identical builds:\n%s\n%s", first, second)
	}
}

func TestBuild_TieBreakFirstSeen(t *testing.T) {
	batch := []classifier.ClassifiedLog{
		{SourceID: "x.log", Matches: []classifier.MatchResult{
			{TechniqueID: "T1566", TechniqueName: "Phishing",
				Tactics: []string{"initial-access"}, MatchType: classifier.MatchPartial, Score: 1.4},
			{TechniqueID: "T1003", TechniqueName: "OS Credential Dumping",
				Tactics: []string{"credential-access"}, MatchType: classifier.MatchPartial, Score: 1.5},
		}},
	}
	rep := fixedBuilder().Build(batch)

	// Equal counts keep discovery order.
	if rep.TopTechniques[0].ID != "T1566" || rep.TopTechniques[1].ID != "T1003" {
		t.Errorf("tie order = [%s %s], want first-seen [T1566 T1003]",
			rep.TopTechniques[0].ID, rep.TopTechniques[1].ID)
	}
	if rep.TacticsBreakdown[0].Tactic != "initial-access" {
		t.Errorf("tactic tie order = %+v, want initial-access first", rep.TacticsBreakdown)
	}
}

func TestBuild_Truncation(t *testing.T) {
	var matches []classifier.MatchResult
	for i := 0; i < 20; i++ {
		matches = append(matches, classifier.MatchResult{
			TechniqueID:   fmt.Sprintf("T%04d", 1000+i),
			TechniqueName: fmt.Sprintf("Technique %d", i),
			MatchType:     classifier.MatchPartial,
			Score:         1.0,
		})
	}
	rep := fixedBuilder().Build([]classifier.ClassifiedLog{
		{SourceID: "big.log", Matches: matches, RiskScore: 20},
	})

	if rep.Summary.DistinctTechniques != 20 {
		t.Errorf("distinct techniques = %d, want 20", rep.Summary.DistinctTechniques)
	}
	if len(rep.TopTechniques) != topTechniqueLimit {
		t.Errorf("top techniques = %d, want %d", len(rep.TopTechniques), topTechniqueLimit)
	}
	if len(rep.Files[0].TopTechniques) != perFileTechniques {
		t.Errorf("per-file techniques = %d, want %d", len(rep.Files[0].TopTechniques), perFileTechniques)
	}
}

func TestMarkdown(t *testing.T) {
	md := fixedBuilder().Build(sampleBatch()).Markdown()

	if !strings.HasPrefix(md, "# Deep Incident Report\n") {
		t.Errorf("markdown missing title:\n%s", md)
	}
	for _, want := range []string{
		"- Generated: 2026-08-30T12:00:00Z\n",
		"- Overall Risk: medium (11%)\n",
		"\n## Narrative\n",
		"\n## Tactics Breakdown\n",
		"- **Credential Access**: 2 hits\n",
		"\n## Top Techniques\n",
		"- **T1110** — Brute Force: 2 hits\n",
		"\n## IOC Summary\n",
		"- **IPV4** (2): 10.0.0.5, 10.0.0.9\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestTitleWords(t *testing.T) {
	tests := []struct{ in, want string }{
		{"credential-access", "Credential Access"},
		{"impact", "Impact"},
		{"command-and-control", "Command And Control"},
	}
	for _, tt := range tests {
		if got := titleWords(tt.in); got != tt.want {
			t.Errorf("titleWords(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
