package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/YL-Cheng/Text2SQL-Agent/internal/agent"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/database"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/metrics"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/provider"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/schema"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/sqlgen"
	"github.com/YL-Cheng/Text2SQL-Agent/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Asker runs the agent loop.
type Asker interface {
	Run(ctx context.Context, question string) (*agent.Result, error)
}

// Database is the read side of the database collaborator.
type Database interface {
	TableNames(ctx context.Context) ([]string, error)
	TableInfo(ctx context.Context, names ...string) (string, error)
	Dialect() string
	Ping(ctx context.Context) error
}

// Searcher looks up schema definitions.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]schema.Document, error)
	K() int
}

// SQLRunner runs the SQL generation loop directly.
type SQLRunner interface {
	Run(ctx context.Context, question string) *sqlgen.Outcome
}

// History lists persisted runs.
type History interface {
	ListRuns(ctx context.Context, limit int) ([]store.RunSummary, error)
	GetRun(ctx context.Context, id string) (*agent.Result, error)
}

// Providers reports LLM backend health.
type Providers interface {
	ListProviders() []provider.Provider
	HealthCheck(ctx context.Context) map[string]error
}

// Deps are the collaborators behind the HTTP API. History and Providers
// may be nil.
type Deps struct {
	Agent     Asker
	Database  Database
	Searcher  Searcher
	SQL       SQLRunner
	Tools     *agent.ToolRegistry
	History   History
	Providers Providers
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps    Deps
	timeout time.Duration
	logger  *zap.Logger
}

// NewHandler creates a new API handler. A positive timeout bounds each ask
// request.
func NewHandler(deps Deps, timeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{deps: deps, timeout: timeout, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Post("/ask", h.ask)
		r.Post("/sql", h.runSQL)

		r.Get("/tables", h.listTables)
		r.Get("/tables/{name}", h.describeTable)
		r.Get("/schema/search", h.searchSchema)
		r.Get("/tools", h.listTools)
		r.Get("/providers", h.listProviders)

		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Database.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "dialect": h.deps.Database.Dialect()})
}

type askRequest struct {
	Question string `json:"question"`
}

func (r *askRequest) decode(req *http.Request) error {
	if err := json.NewDecoder(req.Body).Decode(r); err != nil {
		return err
	}
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return errors.New("question is required")
	}
	return nil
}

func (h *Handler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := req.decode(r); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.deps.Agent.Run(ctx, req.Question)
	if err != nil {
		h.logger.Error("ask failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type attemptView struct {
	Index     int    `json:"index"`
	Statement string `json:"statement"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) runSQL(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := req.decode(r); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	out := h.deps.SQL.Run(r.Context(), req.Question)
	attempts := make([]attemptView, len(out.Attempts))
	for i, a := range out.Attempts {
		attempts[i] = attemptView{Index: a.Index, Statement: a.Statement, Result: a.Result}
		if a.Err != nil {
			attempts[i].Error = a.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  out.Message,
		"success":  out.Success,
		"attempts": attempts,
	})
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	names, err := h.deps.Database.TableNames(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tables": names})
}

func (h *Handler) describeTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, err := h.deps.Database.TableInfo(r.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, database.ErrTableNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"table": name, "info": info})
}

func (h *Handler) searchSchema(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q is required"})
		return
	}
	k := h.deps.Searcher.K()
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be a positive integer"})
			return
		}
		k = n
	}
	docs, err := h.deps.Searcher.Search(r.Context(), q, k)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	type toolView struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	var out []toolView
	for _, t := range h.deps.Tools.Tools() {
		out = append(out, toolView{Name: t.Name(), Description: t.Description()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	if h.deps.Providers == nil {
		writeJSON(w, http.StatusOK, []interface{}{})
		return
	}
	type providerView struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}
	failures := h.deps.Providers.HealthCheck(r.Context())
	out := []providerView{}
	for _, p := range h.deps.Providers.ListProviders() {
		v := providerView{ID: p.ID(), Name: p.Name(), Healthy: true}
		if err, ok := failures[p.ID()]; ok {
			v.Healthy = false
			v.Error = err.Error()
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history not configured"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.deps.History.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.deps.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history not configured"})
		return
	}
	run, err := h.deps.History.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
