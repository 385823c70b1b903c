// Package httpapi is the thin HTTP adapter over a CollectionRegistry: JSON
// framing, routing, request logging, and the Prometheus scrape endpoint.
// Every response is wrapped in a {data|error, status, time} envelope where
// time is elapsed wall time in seconds.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/altaidevorg/letsearch"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server serves the wire API for one CollectionRegistry.
type Server struct {
	registry *letsearch.CollectionRegistry
	logger   *letsearch.Logger
	mux      *http.ServeMux
}

// New builds a Server over registry. A nil logger disables request
// logging.
func New(registry *letsearch.CollectionRegistry, logger *letsearch.Logger) *Server {
	if logger == nil {
		logger = letsearch.NewNopLogger()
	}
	s := &Server{registry: registry, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /{$}", s.handleHealth)
	s.mux.HandleFunc("GET /collections", s.handleListCollections)
	s.mux.HandleFunc("GET /collections/{name}", s.handleGetCollection)
	s.mux.HandleFunc("POST /collections/{name}/search", s.handleSearch)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.DebugContext(r.Context(), "request served",
		"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
}

type envelope struct {
	Data   any     `json:"data,omitempty"`
	Error  string  `json:"error,omitempty"`
	Status int     `json:"status"`
	Time   float64 `json:"time"`
}

func writeData(w http.ResponseWriter, start time.Time, data any) {
	writeEnvelope(w, envelope{Data: data, Status: http.StatusOK, Time: time.Since(start).Seconds()})
}

func writeError(w http.ResponseWriter, start time.Time, err error) {
	status := http.StatusInternalServerError
	switch {
	case letsearch.Is404(err):
		status = http.StatusNotFound
	case letsearch.Is400(err):
		status = http.StatusBadRequest
	}
	writeEnvelope(w, envelope{Error: err.Error(), Status: status, Time: time.Since(start).Seconds()})
}

func writeEnvelope(w http.ResponseWriter, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.Status)
	json.NewEncoder(w).Encode(env)
}

type healthResponse struct {
	Version string `json:"version"`
	Status  string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeData(w, start, healthResponse{Version: Version, Status: "ok"})
}

type collectionsResponse struct {
	Collections []letsearch.CollectionInfo `json:"collections"`
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	infos := s.registry.Collections()
	if infos == nil {
		infos = []letsearch.CollectionInfo{}
	}
	writeData(w, start, collectionsResponse{Collections: infos})
}

type collectionResponse struct {
	Name         string          `json:"name"`
	ModelName    string          `json:"model_name"`
	ModelVariant string          `json:"model_variant"`
	IndexColumns []string        `json:"index_columns"`
	Indexed      map[string]bool `json:"indexed"`
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	c, err := s.registry.Get(r.PathValue("name"))
	if err != nil {
		writeError(w, start, err)
		return
	}
	cfg := c.Config()
	writeData(w, start, collectionResponse{
		Name:         cfg.Name,
		ModelName:    cfg.ModelName,
		ModelVariant: cfg.ModelVariant,
		IndexColumns: cfg.IndexColumns,
		Indexed:      c.IndexedColumns(),
	})
}

type searchRequest struct {
	ColumnName string `json:"column_name"`
	Query      string `json:"query"`
	Limit      *int   `json:"limit,omitempty"`
}

type searchResponse struct {
	Results []letsearch.SearchResult `json:"results"`
}

const defaultLimit = 10

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, start, badRequest("invalid JSON body"))
		return
	}
	if req.ColumnName == "" {
		writeError(w, start, badRequest("column_name is required"))
		return
	}
	limit := defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 1 || limit > letsearch.MaxSearchK {
		writeError(w, start, badRequest("limit must be in [1, 100]"))
		return
	}

	results, err := s.registry.Search(r.Context(), r.PathValue("name"), req.ColumnName, req.Query, limit)
	if err != nil {
		writeError(w, start, err)
		return
	}
	if results == nil {
		results = []letsearch.SearchResult{}
	}
	writeData(w, start, searchResponse{Results: results})
}

// badRequest wraps a message so writeError maps it to 400.
func badRequest(msg string) error {
	return &letsearch.Error{Kind: letsearch.KindBadRequest, Op: "httpapi", Err: errors.New(msg)}
}
