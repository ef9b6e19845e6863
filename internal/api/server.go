// Package api exposes the analysis pipeline over HTTP: multipart upload and
// analyze, stored run lookup, and CSV/GeoJSON download.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/site-density/internal/analysis"
	"github.com/sells-group/site-density/internal/export"
	"github.com/sells-group/site-density/internal/ingest"
	"github.com/sells-group/site-density/internal/model"
	"github.com/sells-group/site-density/internal/store"
)

// previewLimit caps the number of enriched rows returned inline by the
// analyze endpoint; full results go through the download endpoint.
const previewLimit = 50

// Server wires the pipeline and run store into HTTP handlers.
type Server struct {
	pipeline  *analysis.Pipeline
	store     store.Store
	defaults  model.AnalysisParams
	maxUpload int64
}

// NewServer creates a Server. maxUploadMB bounds the multipart form size.
func NewServer(p *analysis.Pipeline, st store.Store, defaults model.AnalysisParams, maxUploadMB int) *Server {
	if maxUploadMB <= 0 {
		maxUploadMB = 64
	}
	return &Server{
		pipeline:  p,
		store:     st,
		defaults:  defaults,
		maxUpload: int64(maxUploadMB) << 20,
	}
}

// Router builds the chi router with CORS enabled for browser front ends.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/download", s.handleDownload)
		r.Get("/runs/{id}/geojson", s.handleGeoJSON)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// analyzeResponse mirrors what the upload-and-visualize front end consumes.
type analyzeResponse struct {
	RunID       string                 `json:"run_id,omitempty"`
	Summary     model.AnalysisSummary  `json:"summary"`
	Preview     []model.ClassifiedSite `json:"preview"`
	TotalRows   int                    `json:"total_rows"`
	Messages    []string               `json:"messages"`
	DownloadURL string                 `json:"download_url,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	params, err := s.paramsFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close() //nolint:errcheck

	sites, messages, err := readUpload(r, file, header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.pipeline.Run(ctx, sites, params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "analysis failed")
		zap.L().Error("api: analysis failed", zap.String("file", header.Filename), zap.Error(err))
		return
	}
	result.Messages = append(messages, result.Messages...)

	resp := analyzeResponse{
		Summary:   result.Summary,
		Preview:   result.Sites,
		TotalRows: len(result.Sites),
		Messages:  result.Messages,
	}
	if len(resp.Preview) > previewLimit {
		resp.Preview = resp.Preview[:previewLimit]
	}

	if s.store != nil {
		run, storeErr := s.store.CreateRun(ctx, header.Filename, params)
		if storeErr == nil {
			storeErr = s.store.SaveRunResult(ctx, run.ID, result)
		}
		if storeErr != nil {
			zap.L().Warn("api: failed to persist run", zap.Error(storeErr))
		} else {
			resp.RunID = run.ID
			resp.DownloadURL = fmt.Sprintf("/api/runs/%s/download", run.ID)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// paramsFromForm overlays form values onto the configured defaults.
func (s *Server) paramsFromForm(r *http.Request) (model.AnalysisParams, error) {
	p := s.defaults

	for name, dst := range map[string]*float64{
		"radius_km":               &p.RadiusKM,
		"co_location_threshold_m": &p.CoLocationThresholdM,
		"rural_threshold":         &p.RuralThreshold,
		"suburban_threshold":      &p.SuburbanThreshold,
		"urban_threshold":         &p.UrbanThreshold,
	} {
		raw := r.FormValue(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return p, fmt.Errorf("invalid %s: %q", name, raw)
		}
		*dst = v
	}
	if mode := r.FormValue("classification_mode"); mode != "" {
		p.Mode = mode
	}
	return p, nil
}

// readUpload parses the uploaded table by file extension. XLSX uploads spill
// to a temp file because the workbook reader needs a path.
func readUpload(r *http.Request, file io.Reader, filename string) ([]model.Site, []string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".xlsx":
		tmp, err := os.CreateTemp("", "upload-*.xlsx")
		if err != nil {
			return nil, nil, err
		}
		defer os.Remove(tmp.Name()) //nolint:errcheck
		if _, err := io.Copy(tmp, file); err != nil {
			tmp.Close()
			return nil, nil, err
		}
		if err := tmp.Close(); err != nil {
			return nil, nil, err
		}
		return ingest.ReadXLSX(r.Context(), tmp.Name())
	default:
		return ingest.ReadCSV(r.Context(), file)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run store not configured")
		return
	}

	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Offset = n
		}
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}

	// Strip full row payloads from the listing.
	for i := range runs {
		if runs[i].Result != nil {
			runs[i].Result = &model.AnalysisResult{
				Summary:  runs[i].Result.Summary,
				Messages: runs[i].Result.Messages,
			}
		}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run := s.loadRun(w, r)
	if run == nil {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	run := s.loadRun(w, r)
	if run == nil {
		return
	}
	if run.Result == nil {
		writeError(w, http.StatusConflict, "run has no result yet")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sites-"+run.ID+".csv"))
	if err := export.WriteCSV(w, run.Result.Sites); err != nil {
		zap.L().Error("api: write csv download", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	run := s.loadRun(w, r)
	if run == nil {
		return
	}
	if run.Result == nil {
		writeError(w, http.StatusConflict, "run has no result yet")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if err := export.WriteGeoJSON(w, run.Result.Sites); err != nil {
		zap.L().Error("api: write geojson", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// loadRun resolves the {id} path parameter, writing the error response
// itself and returning nil when the run cannot be served.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) *model.Run {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run store not configured")
		return nil
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return nil
	}
	return run
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
