// Package httpapi exposes the query and ingestion surface over chi.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/calyx-labs/ragline/internal/domain"
	"github.com/calyx-labs/ragline/internal/ingest"
	"github.com/calyx-labs/ragline/internal/rag"
)

const maxQueryBytes = 64 << 10

// ingester is the consumer interface for the ingestion pipeline.
type ingester interface {
	IngestFromSource(ctx context.Context, src ingest.Source, collection string, isolation bool) (ingest.Stats, error)
}

// collections is the consumer interface for collection lifecycle.
type collections interface {
	DeleteCollection(ctx context.Context, name string) error
}

// pinger reports backend liveness.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server handles the HTTP API.
type Server struct {
	factory      *rag.Factory
	ingester     ingester
	collections  collections
	pinger       pinger
	newSource    func() (ingest.Source, error)
	streamBuffer int
	logger       *zap.Logger
}

// Config wires the server dependencies.
type Config struct {
	Factory     *rag.Factory
	Ingester    ingester
	Collections collections
	Pinger      pinger
	// NewSource builds a row source from the configured ingest path.
	NewSource    func() (ingest.Source, error)
	StreamBuffer int
	Logger       *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(cfg Config) *Server {
	streamBuffer := cfg.StreamBuffer
	if streamBuffer <= 0 {
		streamBuffer = 16
	}
	return &Server{
		factory:      cfg.Factory,
		ingester:     cfg.Ingester,
		collections:  cfg.Collections,
		pinger:       cfg.Pinger,
		newSource:    cfg.NewSource,
		streamBuffer: streamBuffer,
		logger:       cfg.Logger,
	}
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/query", s.handleQuery)
	r.Post("/upload", s.handleUpload)
	r.Delete("/collections/{name}", s.handleDeleteCollection)
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

// handleQuery runs one RAG pipeline for the raw query text in the body
// and streams generated tokens back as a plain-text body. The producer
// blocks on a bounded channel when the client cannot keep up; a dropped
// client cancels the request context, which aborts generation.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxQueryBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	query := string(body)
	if query == "" {
		writeError(w, http.StatusBadRequest, "empty query")
		return
	}

	pipeline := s.factory.NewPipeline()
	group, hasGroup, err := groupParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if hasGroup {
		pipeline = pipeline.WithGroup(group)
	}

	ctx := r.Context()
	tokens := make(chan string, s.streamBuffer)
	errc := make(chan error, 1)

	go func() {
		defer close(tokens)
		_, err := pipeline.Run(ctx, query, func(token string) domain.Feedback {
			select {
			case tokens <- token:
				return domain.Continue
			case <-ctx.Done():
				return domain.Stop
			}
		})
		errc <- err
	}()

	flusher, _ := w.(http.Flusher)
	wrote := false
	for token := range tokens {
		if !wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if _, err := io.WriteString(w, token); err != nil {
			// client went away; context cancellation stops the producer
			break
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := <-errc; err != nil {
		if wrote {
			// status line already sent; nothing to do but log
			s.logger.Warn("Generation failed mid-stream", zap.Error(err))
			return
		}
		s.writeDomainError(w, err)
	}
}

// uploadRequest names the ingestion target.
type uploadRequest struct {
	Collection string `json:"collection"`
	Isolation  bool   `json:"isolation"`
}

// uploadResponse reports batch totals.
type uploadResponse struct {
	Collection string `json:"collection"`
	Rows       int    `json:"rows"`
	Skipped    int    `json:"skipped"`
	Points     int    `json:"points"`
	DurationMS int64  `json:"duration_ms"`
}

// handleUpload triggers ingestion from the configured source path into
// the named collection.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Collection == "" {
		writeError(w, http.StatusBadRequest, "collection is required")
		return
	}

	src, err := s.newSource()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "open source: "+err.Error())
		return
	}

	stats, err := s.ingester.IngestFromSource(r.Context(), src, req.Collection, req.Isolation)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Collection: req.Collection,
		Rows:       stats.Rows,
		Skipped:    stats.Skipped,
		Points:     stats.Points,
		DurationMS: stats.Duration.Milliseconds(),
	})
}

// handleDeleteCollection handles DELETE /collections/{name}.
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "collection name is required")
		return
	}
	if err := s.collections.DeleteCollection(r.Context(), name); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth reports backend liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK
	checks := map[string]string{"store": "ok"}

	if err := s.pinger.Ping(r.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		checks["store"] = "unreachable"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

func groupParam(r *http.Request) (uint64, bool, error) {
	raw := r.URL.Query().Get("group_id")
	if raw == "" {
		return 0, false, nil
	}
	group, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid group_id %q", raw)
	}
	return group, true, nil
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("request failed", zap.Error(err))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrVectorDimMismatch):
		writeError(w, http.StatusBadRequest, domain.ErrVectorDimMismatch.Error())
	case errors.Is(err, domain.ErrEmbeddingProvider):
		writeError(w, http.StatusBadGateway, domain.ErrEmbeddingProvider.Error())
	case errors.Is(err, domain.ErrInference):
		writeError(w, http.StatusBadGateway, domain.ErrInference.Error())
	case errors.Is(err, domain.ErrExternalService):
		writeError(w, http.StatusBadGateway, domain.ErrExternalService.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		s.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
