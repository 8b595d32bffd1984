// Package classifier matches log records against the technique index and
// assigns per-log risk scores.
package classifier

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/ioc"
	"github.com/lvonguyen/stagezero/internal/mitre"
)

// MatchType distinguishes full-name matches from keyword matches.
type MatchType string

const (
	MatchFull    MatchType = "full"
	MatchPartial MatchType = "partial"
)

// partialThreshold is the minimum whole-word keyword hits for a partial
// match.
const partialThreshold = 2

// LogRecord is one unit of classification input: a source identifier and
// the raw text the ingestion layer normalized for it.
type LogRecord struct {
	SourceID string `json:"filename"`
	Text     string `json:"text"`
}

// MatchResult records one technique that matched a log. A technique
// matches a given log at most once; a full-name hit wins over keywords.
type MatchResult struct {
	TechniqueID   string    `json:"id"`
	TechniqueName string    `json:"name"`
	Tactics       []string  `json:"tactics"`
	MatchType     MatchType `json:"match_type"`
	Score         float64   `json:"score"`
}

// ClassifiedLog is the per-record classification output.
type ClassifiedLog struct {
	SourceID   string           `json:"filename"`
	Text       string           `json:"text"`
	Indicators ioc.IndicatorSet `json:"iocs"`
	Matches    []MatchResult    `json:"matched"`
	RiskScore  float64          `json:"file_risk_score"`
}

// Classifier classifies log records against a read-only technique index.
// It holds no per-record state, so one instance serves concurrent callers.
type Classifier struct {
	index   *mitre.Index
	logger  *zap.Logger
	workers int
}

// New creates a classifier. workers bounds batch parallelism; zero or
// negative means one worker per CPU.
func New(index *mitre.Index, logger *zap.Logger, workers int) *Classifier {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Classifier{
		index:   index,
		logger:  logger,
		workers: workers,
	}
}

// Classify classifies a single record. It never fails: empty or
// unparseable text yields an empty indicator set and no matches.
func (c *Classifier) Classify(record LogRecord) ClassifiedLog {
	surface := strings.ToLower(record.Text)
	indicators := ioc.Extract(record.Text)

	tokens := mitre.TokenSet(surface)
	candidates := c.index.Candidates(tokens)

	var matches []MatchResult
	total := 0.0
	for _, tech := range c.index.Ordered() {
		name := strings.ToLower(tech.Name)
		matchType := MatchType("")
		switch {
		case name != "" && strings.Contains(surface, name):
			matchType = MatchFull
		default:
			if _, ok := candidates[tech.ID]; !ok {
				continue
			}
			hits := 0
			for tok := range tokens {
				if tech.HasKeyword(tok) {
					hits++
					if hits >= partialThreshold {
						break
					}
				}
			}
			if hits < partialThreshold {
				continue
			}
			matchType = MatchPartial
		}

		score := Round3(TechniqueScore(tech.Tactics, matchType))
		total += score
		matches = append(matches, MatchResult{
			TechniqueID:   tech.ID,
			TechniqueName: tech.Name,
			Tactics:       tech.Tactics,
			MatchType:     matchType,
			Score:         score,
		})
	}

	return ClassifiedLog{
		SourceID:   record.SourceID,
		Text:       record.Text,
		Indicators: indicators,
		Matches:    matches,
		RiskScore:  Round3(total + IOCWeightedScore(indicators)),
	}
}

// ClassifyBatch classifies records on a bounded worker pool and returns
// results in input order. Records share no mutable state, so workers run
// without locks; the unbuffered job channel provides backpressure.
// Cancelling ctx abandons the run; no partial result is returned.
func (c *Classifier) ClassifyBatch(ctx context.Context, records []LogRecord) ([]ClassifiedLog, error) {
	start := time.Now()
	results := make([]ClassifiedLog, len(records))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.Classify(records[i])
			}
		}()
	}

	var cancelled bool
	for i := range records {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			cancelled = true
		}
		if cancelled {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled {
		return nil, ctx.Err()
	}

	matched := 0
	for i := range results {
		if len(results[i].Matches) > 0 {
			matched++
		}
	}
	c.logger.Info("classified batch",
		zap.Int("records", len(records)),
		zap.Int("with_matches", matched),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results, nil
}
