// Package ingestion normalizes heterogeneous log artifacts into the
// uniform LogRecord shape the classification core consumes. Plain text
// and structured files are flattened here so the core never branches on
// original file type. Archive extraction and exotic encodings are out of
// scope; unrecognized files are skipped, never fatal.
package ingestion

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/classifier"
)

// Stats summarizes one load pass.
type Stats struct {
	FilesScanned    int `json:"files_scanned"`
	FilesLoaded     int `json:"files_loaded"`
	FilesSkipped    int `json:"files_skipped"`
	RecordsProduced int `json:"records_produced"`
}

// Loader walks a directory tree and produces log records.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadDir loads every recognized log file under root. Per-file problems
// are contained: an unreadable or malformed file is skipped with a
// warning and the walk continues.
func (l *Loader) LoadDir(root string) ([]classifier.LogRecord, Stats, error) {
	var records []classifier.LogRecord
	var stats Stats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		stats.FilesScanned++

		ext := strings.ToLower(filepath.Ext(path))
		var recs []classifier.LogRecord
		var loadErr error
		switch ext {
		case ".txt", ".log":
			recs, loadErr = l.loadText(path)
		case ".csv":
			recs, loadErr = l.loadCSV(path)
		case ".json":
			recs, loadErr = l.loadJSON(path)
		default:
			stats.FilesSkipped++
			return nil
		}
		if loadErr != nil {
			l.logger.Warn("skipping unreadable log file",
				zap.String("path", path),
				zap.Error(loadErr),
			)
			stats.FilesSkipped++
			return nil
		}
		if len(recs) == 0 {
			stats.FilesSkipped++
			return nil
		}
		stats.FilesLoaded++
		stats.RecordsProduced += len(recs)
		records = append(records, recs...)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	l.logger.Info("loaded log files",
		zap.String("root", root),
		zap.Int("scanned", stats.FilesScanned),
		zap.Int("loaded", stats.FilesLoaded),
		zap.Int("records", stats.RecordsProduced),
	)
	return records, stats, nil
}

func (l *Loader) loadText(path string) ([]classifier.LogRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	return []classifier.LogRecord{{SourceID: path, Text: string(data)}}, nil
}

// loadCSV produces one record per row of the "text" column when present,
// otherwise the whole table joined into a single record.
func (l *Loader) loadCSV(path string) ([]classifier.LogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	textCol := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "text" {
			textCol = i
			break
		}
	}

	var records []classifier.LogRecord
	var joined []string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// bad row, keep going
			continue
		}
		if textCol >= 0 {
			text := ""
			if textCol < len(row) {
				text = row[textCol]
			}
			records = append(records, classifier.LogRecord{SourceID: path, Text: text})
			continue
		}
		joined = append(joined, strings.Join(row, " "))
	}

	if textCol < 0 {
		blob := strings.Join(joined, "\n")
		if strings.TrimSpace(blob) == "" {
			return nil, nil
		}
		return []classifier.LogRecord{{SourceID: path, Text: blob}}, nil
	}
	return records, nil
}

// loadJSON produces one record per element for a top-level array and a
// single record otherwise. Files that are not valid JSON fall back to raw
// text, which accommodates newline-delimited JSON.
func (l *Loader) loadJSON(path string) ([]classifier.LogRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		records := make([]classifier.LogRecord, 0, len(arr))
		for _, entry := range arr {
			records = append(records, classifier.LogRecord{SourceID: path, Text: string(entry)})
		}
		return records, nil
	}

	var obj json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		return []classifier.LogRecord{{SourceID: path, Text: string(obj)}}, nil
	}

	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	return []classifier.LogRecord{{SourceID: path, Text: string(data)}}, nil
}
