// Package httpapi serves the read-only results API for the dashboard.
// The batch orchestrator stays the sole writer; every handler here only
// queries the store.
package httpapi

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "os"
    "strconv"
    "strings"
    "time"

    "github.com/rs/zerolog"

    "discharge_pipeline/config"
    "discharge_pipeline/internal/store"
    "discharge_pipeline/metrics"
)

type Server struct {
    store *store.Store
    cfg   config.Config
    met   *metrics.Metrics
    log   zerolog.Logger
}

func New(st *store.Store, cfg config.Config, met *metrics.Metrics, logger zerolog.Logger) *Server {
    if met == nil {
        met = metrics.New()
    }
    return &Server{store: st, cfg: cfg, met: met, log: logger}
}

type summaryListResponse struct {
    Summaries []store.Summary `json:"summaries"`
}

type summaryDetailResponse struct {
    Summary  store.Summary   `json:"summary"`
    Sections []store.Section `json:"sections"`
}

type failureListResponse struct {
    Failures []store.UnitFailure `json:"failures"`
}

// Handler builds the route table. Exposed separately so tests can mount
// it on httptest servers.
func (s *Server) Handler() http.Handler {
    mux := http.NewServeMux()
    mux.HandleFunc("/api/health", s.handleHealth)
    mux.HandleFunc("/api/status", s.handleStatus)
    mux.HandleFunc("/api/summaries", s.handleSummaries)
    mux.HandleFunc("/api/summaries/", s.handleSummaryDetail)
    mux.HandleFunc("/api/failures", s.handleFailures)
    return mux
}

// ListenAndServe blocks until the context ends or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
    srv := &http.Server{
        Addr:    s.cfg.HTTPPort,
        Handler: s.Handler(),
    }
    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = srv.Shutdown(shutdownCtx)
    }()
    s.log.Info().Str("addr", srv.Addr).Msg("read api listening")
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        return err
    }
    return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    if err := s.store.Health(r.Context()); err != nil {
        w.Header().Set("Content-Type", "application/json")
        w.WriteHeader(http.StatusServiceUnavailable)
        _ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
        return
    }
    respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    version := strings.TrimSpace(os.Getenv("GIT_SHA"))
    if version == "" {
        version = "dev"
    }

    dbStatus := map[string]interface{}{"db_ok": true, "db_path": s.cfg.DBPath}
    counts, err := s.store.TableCounts(r.Context())
    if err != nil {
        dbStatus["db_ok"] = false
        dbStatus["last_db_error"] = err.Error()
    }
    var lastRun interface{}
    if run, err := s.store.LatestRun(r.Context()); err == nil && run != nil {
        lastRun = run
    }

    models := make([]map[string]string, 0, len(s.cfg.Models))
    for _, m := range s.cfg.Models {
        models = append(models, map[string]string{"id": m.ID, "family": m.Family})
    }

    summary := map[string]interface{}{
        "version": version,
        "config": map[string]interface{}{
            "COHORT_PATH":  s.cfg.CohortPath,
            "RECORDS_DIR":  s.cfg.RecordsDir,
            "WORK_DIR":     s.cfg.WorkDir,
            "DB_PATH":      s.cfg.DBPath,
            "WORKER_COUNT": s.cfg.WorkerCount,
            "BATCH_SIZE":   s.cfg.BatchSize,
        },
        "models":   models,
        "pipeline": s.met.Snapshot(),
        "store":    counts,
        "last_run": lastRun,
        "db":       dbStatus,
    }
    respondJSON(w, summary)
}

func (s *Server) handleSummaries(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    limit := parseIntDefault(r.URL.Query().Get("limit"), 100)
    if limit <= 0 {
        limit = 100
    }
    sums, err := s.store.ListSummaries(r.Context(), limit)
    if err != nil {
        s.log.Error().Err(err).Msg("list summaries")
        http.Error(w, "db error", http.StatusInternalServerError)
        return
    }
    if sums == nil {
        sums = []store.Summary{}
    }
    respondJSON(w, summaryListResponse{Summaries: sums})
}

func (s *Server) handleSummaryDetail(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/summaries/"), "/")
    parts := strings.Split(path, "/")
    if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
        http.NotFound(w, r)
        return
    }
    sum, secs, err := s.store.GetSummary(r.Context(), parts[0], parts[1])
    if err != nil {
        s.log.Error().Err(err).Str("admission_id", parts[0]).Str("model_id", parts[1]).Msg("load summary")
        http.Error(w, "db error", http.StatusInternalServerError)
        return
    }
    if sum == nil {
        http.NotFound(w, r)
        return
    }
    if secs == nil {
        secs = []store.Section{}
    }
    respondJSON(w, summaryDetailResponse{Summary: *sum, Sections: secs})
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet {
        http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
        return
    }
    limit := parseIntDefault(r.URL.Query().Get("limit"), 200)
    if limit <= 0 {
        limit = 200
    }
    fails, err := s.store.ListFailures(r.Context(), limit)
    if err != nil {
        s.log.Error().Err(err).Msg("list failures")
        http.Error(w, "db error", http.StatusInternalServerError)
        return
    }
    if fails == nil {
        fails = []store.UnitFailure{}
    }
    respondJSON(w, failureListResponse{Failures: fails})
}

func respondJSON(w http.ResponseWriter, v interface{}) {
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(v)
}

func parseIntDefault(value string, fallback int) int {
    value = strings.TrimSpace(value)
    if value == "" {
        return fallback
    }
    parsed, err := strconv.Atoi(value)
    if err != nil {
        return fallback
    }
    return parsed
}
