// Package api exposes the StageZero HTTP surface: upload, classify,
// report and delivery endpoints around the classification core.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lvonguyen/stagezero/internal/classifier"
	"github.com/lvonguyen/stagezero/internal/config"
	"github.com/lvonguyen/stagezero/internal/delivery"
	"github.com/lvonguyen/stagezero/internal/ingestion"
	"github.com/lvonguyen/stagezero/internal/ioc"
	"github.com/lvonguyen/stagezero/internal/observability"
	"github.com/lvonguyen/stagezero/internal/report"
	"github.com/lvonguyen/stagezero/internal/store"
)

// quickTechniqueLimit caps the techniques listed by the quick report.
const quickTechniqueLimit = 200

// Server wires the pipeline behind a chi router.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	clf       *classifier.Classifier
	builder   *report.Builder
	loader    *ingestion.Loader
	artifacts *store.ArtifactStore
	cache     *store.ReportCache
	deliverer *delivery.Client
	limiter   func(http.Handler) http.Handler

	router chi.Router
}

// Options carries the optional collaborators.
type Options struct {
	Cache   *store.ReportCache
	Limiter func(http.Handler) http.Handler
	Metrics *observability.Metrics
}

// NewServer builds the server and its routes.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	clf *classifier.Classifier,
	builder *report.Builder,
	loader *ingestion.Loader,
	artifacts *store.ArtifactStore,
	deliverer *delivery.Client,
	opts Options,
) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		metrics:   opts.Metrics,
		clf:       clf,
		builder:   builder,
		loader:    loader,
		artifacts: artifacts,
		cache:     opts.Cache,
		deliverer: deliverer,
		limiter:   opts.Limiter,
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(s.countRequests)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter)
		}
		r.Post("/upload", s.handleUpload)
		r.Post("/classify", s.handleClassify)
		r.Get("/report", s.handleReport)
		r.Get("/report/markdown", s.handleReportMarkdown)
		r.Get("/report/quick", s.handleQuickReport)
		r.Post("/deliver", s.handleDeliver)
	})

	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.metrics.RequestsTotal.
			WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(ww.Status())).
			Inc()
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleUpload stores one uploaded log artifact under the upload dir.
// Archives are stored as-is; only recognized log extensions are ingested
// later by the loader.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	if err := os.MkdirAll(s.cfg.Artifacts.UploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "upload dir unavailable")
		return
	}

	dst := filepath.Join(s.cfg.Artifacts.UploadDir, name)
	out, err := os.Create(dst)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "saving upload failed")
		return
	}
	defer out.Close()
	written, err := io.Copy(out, file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "saving upload failed")
		return
	}

	s.logger.Info("upload stored",
		zap.String("filename", name),
		zap.Int64("bytes", written),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"upload_id": uuid.NewString(),
		"filename":  name,
		"bytes":     written,
	})
}

type classifyRequest struct {
	Records []classifier.LogRecord `json:"records"`
}

type classifyResponse struct {
	ReportID       string          `json:"report_id"`
	Records        int             `json:"records"`
	WithMatches    int             `json:"with_matches"`
	Summary        report.Summary  `json:"summary"`
	IngestionStats ingestion.Stats `json:"ingestion_stats"`
}

// handleClassify runs one classification pass: records from the request
// body when provided, otherwise everything under the upload dir.
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if r.Body != nil {
		// an empty or absent body just means "classify the upload dir"
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	records := req.Records
	var stats ingestion.Stats
	if len(records) == 0 {
		var err error
		records, stats, err = s.loader.LoadDir(s.cfg.Artifacts.UploadDir)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("loading logs: %v", err))
			return
		}
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "no log records to classify")
		return
	}

	start := time.Now()
	batch, err := s.clf.ClassifyBatch(r.Context(), records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("classification aborted: %v", err))
		return
	}
	s.recordBatchMetrics(batch, time.Since(start))

	rep := s.builder.Build(batch)
	if s.metrics != nil {
		s.metrics.ReportsBuilt.WithLabelValues(rep.Summary.OverallSeverity).Inc()
	}

	if err := s.artifacts.WriteClassified(batch); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("persisting classified logs: %v", err))
		return
	}
	if err := s.artifacts.WriteReport(rep); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("persisting report: %v", err))
		return
	}
	if s.cache != nil {
		s.cache.Put(r.Context(), rep)
	}

	withMatches := 0
	for i := range batch {
		if len(batch[i].Matches) > 0 {
			withMatches++
		}
	}
	writeJSON(w, http.StatusOK, classifyResponse{
		ReportID:       rep.ReportID,
		Records:        len(batch),
		WithMatches:    withMatches,
		Summary:        rep.Summary,
		IngestionStats: stats,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.latestReport(r)
	if !ok {
		writeError(w, http.StatusNotFound, "No classified logs found. Upload and analyze first.")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.latestReport(r)
	if !ok {
		writeError(w, http.StatusNotFound, "No classified logs found. Upload and analyze first.")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rep.Markdown()))
}

type quickReport struct {
	TotalLogs          int                   `json:"total_logs"`
	TechniquesDetected []string              `json:"techniques_detected"`
	IOCSummary         map[ioc.Kind][]string `json:"ioc_summary"`
}

// handleQuickReport serves the compact summary over the classified-logs
// document.
func (s *Server) handleQuickReport(w http.ResponseWriter, r *http.Request) {
	batch, err := s.artifacts.ReadClassified()
	if err != nil {
		writeError(w, http.StatusNotFound, "No classified logs found. Upload and analyze first.")
		return
	}

	techniques := make(map[string]struct{})
	iocs := make(map[ioc.Kind]map[string]struct{})
	for _, entry := range batch {
		for _, m := range entry.Matches {
			techniques[m.TechniqueID+" - "+m.TechniqueName] = struct{}{}
		}
		for kind, vals := range entry.Indicators {
			set := iocs[kind]
			if set == nil {
				set = make(map[string]struct{})
				iocs[kind] = set
			}
			for _, v := range vals {
				set[v] = struct{}{}
			}
		}
	}

	techList := make([]string, 0, len(techniques))
	for t := range techniques {
		techList = append(techList, t)
	}
	sort.Strings(techList)
	if len(techList) > quickTechniqueLimit {
		techList = techList[:quickTechniqueLimit]
	}

	summary := make(map[ioc.Kind][]string, len(iocs))
	for kind, set := range iocs {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		summary[kind] = vals
	}

	writeJSON(w, http.StatusOK, quickReport{
		TotalLogs:          len(batch),
		TechniquesDetected: techList,
		IOCSummary:         summary,
	})
}

// handleDeliver posts the classified-logs document to Watsonx.
func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	if !s.deliverer.Configured() {
		writeError(w, http.StatusBadRequest, "watsonx delivery is not configured")
		return
	}
	batch, err := s.artifacts.ReadClassified()
	if err != nil {
		writeError(w, http.StatusNotFound, "No classified logs found. Upload and analyze first.")
		return
	}
	if err := s.deliverer.Deliver(r.Context(), batch); err != nil {
		if s.metrics != nil {
			s.metrics.DeliveryAttempts.WithLabelValues("error").Inc()
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.DeliveryAttempts.WithLabelValues("success").Inc()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

func (s *Server) latestReport(r *http.Request) (report.Report, bool) {
	if s.cache != nil {
		if rep, ok := s.cache.Latest(r.Context()); ok {
			return rep, true
		}
	}
	rep, err := s.artifacts.ReadReport()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("reading report artifact failed", zap.Error(err))
		}
		return report.Report{}, false
	}
	return rep, true
}

func (s *Server) recordBatchMetrics(batch []classifier.ClassifiedLog, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ClassifyDuration.Observe(elapsed.Seconds())
	s.metrics.LogsClassified.Add(float64(len(batch)))
	for i := range batch {
		if len(batch[i].Matches) > 0 {
			s.metrics.LogsWithMatches.Inc()
		}
		for _, m := range batch[i].Matches {
			s.metrics.TechniqueMatches.WithLabelValues(string(m.MatchType)).Inc()
		}
		for kind, vals := range batch[i].Indicators {
			s.metrics.IOCsExtracted.WithLabelValues(string(kind)).Add(float64(len(vals)))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
