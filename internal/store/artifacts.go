// Package store persists the handoff artifacts of a classification run:
// the classified-logs document and the report in its structured and
// Markdown renditions. Artifacts are terminal outputs of one run, not a
// database; each run overwrites the previous one.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/classifier"
	"github.com/lvonguyen/stagezero/internal/report"
)

const (
	classifiedLogsFile = "classified_logs.json"
	reportJSONFile     = "report.json"
	reportMarkdownFile = "report.md"
)

// ArtifactStore writes and reads run artifacts under a base directory.
type ArtifactStore struct {
	dir          string
	excerptBytes int
	logger       *zap.Logger
}

// NewArtifactStore creates the artifact directory if needed. excerptBytes
// bounds the raw text kept per record in the classified-logs document;
// zero or negative keeps full text.
func NewArtifactStore(dir string, excerptBytes int, logger *zap.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &ArtifactStore{dir: dir, excerptBytes: excerptBytes, logger: logger}, nil
}

// WriteClassified persists the classified-logs document, truncating each
// record's raw text to the configured excerpt length.
func (s *ArtifactStore) WriteClassified(batch []classifier.ClassifiedLog) error {
	doc := make([]classifier.ClassifiedLog, len(batch))
	copy(doc, batch)
	for i := range doc {
		doc[i].Text = truncateUTF8(doc[i].Text, s.excerptBytes)
	}
	return s.writeJSON(classifiedLogsFile, doc)
}

// ReadClassified loads the last classified-logs document.
func (s *ArtifactStore) ReadClassified() ([]classifier.ClassifiedLog, error) {
	var doc []classifier.ClassifiedLog
	if err := s.readJSON(classifiedLogsFile, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// WriteReport persists the report JSON and its Markdown rendition.
func (s *ArtifactStore) WriteReport(rep report.Report) error {
	if err := s.writeJSON(reportJSONFile, rep); err != nil {
		return err
	}
	path := filepath.Join(s.dir, reportMarkdownFile)
	if err := os.WriteFile(path, []byte(rep.Markdown()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", reportMarkdownFile, err)
	}
	s.logger.Info("report artifacts written",
		zap.String("dir", s.dir),
		zap.String("report_id", rep.ReportID),
	)
	return nil
}

// ReadReport loads the last report document.
func (s *ArtifactStore) ReadReport() (report.Report, error) {
	var rep report.Report
	if err := s.readJSON(reportJSONFile, &rep); err != nil {
		return report.Report{}, err
	}
	return rep, nil
}

func (s *ArtifactStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (s *ArtifactStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
