// Package chi exposes the voice agent's tools, search and event feed over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/homefinder/internal/domain/listing"
	"github.com/kailas-cloud/homefinder/internal/domain/session"
	logpkg "github.com/kailas-cloud/homefinder/internal/logger"
	"github.com/kailas-cloud/homefinder/internal/metrics"
	"github.com/kailas-cloud/homefinder/internal/usecase/agent"
	healthuc "github.com/kailas-cloud/homefinder/internal/usecase/health"
	"github.com/kailas-cloud/homefinder/internal/version"
)

const maxBodyBytes = 64 << 10

// Agent runs conversation sessions and their tools.
type Agent interface {
	Start(ctx context.Context, lang string) (session.State, error)
	Session(ctx context.Context, id string) (session.State, error)
	SetLanguage(ctx context.Context, id, code string) (session.Language, string, error)
	Dispatch(ctx context.Context, sessionID, name string, args json.RawMessage) (agent.ToolResult, error)
}

// Searcher runs a listing search outside of a conversation.
type Searcher interface {
	Search(ctx context.Context, c listing.Criteria, topK int) ([]listing.Hit, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// EventFeed streams session events over a websocket.
type EventFeed interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sessionID string)
}

// Options configures the router.
type Options struct {
	APIKeys []string
}

// Server holds the HTTP handlers.
type Server struct {
	agent  Agent
	search Searcher
	health HealthChecker
	events EventFeed
	logger *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(a Agent, search Searcher, health HealthChecker, events EventFeed, logger *zap.Logger) *Server {
	return &Server{agent: a, search: search, health: health, events: events, logger: logger}
}

// Router builds the chi router with the middleware chain and every route.
func (s *Server) Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(opts.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/tools", s.Tools)
	r.Get("/search", s.Search)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.StartSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetSession)
			r.Put("/language", s.SetLanguage)
			r.Post("/tools/{name}", s.CallTool)
			r.Get("/events", s.Events)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

type startSessionRequest struct {
	Language string `json:"language"`
}

type startSessionResponse struct {
	ID       string           `json:"id"`
	Language session.Language `json:"language"`
	Greeting string           `json:"greeting"`
}

// StartSession handles POST /sessions.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}

	st, err := s.agent.Start(r.Context(), req.Language)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, startSessionResponse{
		ID:       st.ID,
		Language: st.Language,
		Greeting: agent.OpeningLine,
	})
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.agent.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type setLanguageRequest struct {
	Language string `json:"language"`
}

type setLanguageResponse struct {
	Language session.Language `json:"language"`
	Say      string           `json:"say"`
}

// SetLanguage handles PUT /sessions/{id}/language.
func (s *Server) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var req setLanguageRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}

	lang, line, err := s.agent.SetLanguage(r.Context(), chi.URLParam(r, "id"), req.Language)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setLanguageResponse{Language: lang, Say: line})
}

type toolsResponse struct {
	Instructions string `json:"instructions"`
	Tools        any    `json:"tools"`
}

// Tools handles GET /tools?language=.
func (s *Server) Tools(w http.ResponseWriter, r *http.Request) {
	var code *string
	if err := runtime.BindQueryParameter("form", true, false, "language", r.URL.Query(), &code); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid language parameter")
		return
	}
	lang := session.English
	if code != nil && *code != "" {
		var err error
		if lang, err = session.ParseLanguage(*code); err != nil {
			s.handleDomainError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toolsResponse{
		Instructions: agent.Instructions(lang),
		Tools:        agent.Definitions(),
	})
}

// CallTool handles POST /sessions/{id}/tools/{name}. The body is the tool's argument object.
func (s *Server) CallTool(w http.ResponseWriter, r *http.Request) {
	args, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}

	res, err := s.agent.Dispatch(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"), args)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type searchParams struct {
	Location *string
	Price    *string
	Bedrooms *string
	TopK     *int
}

type searchResponse struct {
	Results []listing.Hit `json:"results"`
}

// Search handles GET /search?location=&price=&bedrooms=&top_k=.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var p searchParams
	q := r.URL.Query()
	for name, dest := range map[string]any{
		"location": &p.Location,
		"price":    &p.Price,
		"bedrooms": &p.Bedrooms,
		"top_k":    &p.TopK,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid query parameter "+name)
			return
		}
	}

	topK := 0
	if p.TopK != nil {
		topK = *p.TopK
	}
	hits, err := s.search.Search(r.Context(), listing.Criteria{
		Location: deref(p.Location),
		Price:    deref(p.Price),
		Bedrooms: deref(p.Bedrooms),
	}, topK)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if hits == nil {
		hits = []listing.Hit{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: hits})
}

// Events handles GET /sessions/{id}/events by upgrading to a websocket.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.agent.Session(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.events.ServeWS(w, r, id)
}

type healthResponse struct {
	healthuc.Report
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Report: report, Version: version.Version, Commit: version.Commit})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	msg := safeDomainMessage(err)
	for _, h := range errorHandlers {
		if h(w, err, msg) {
			log.Warn("Domain error", zap.Error(err))
			return
		}
	}
	log.Error("Internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}

// decodeBody decodes a JSON request body. With allowEmpty an empty body leaves v untouched.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err //nolint:wrapcheck // mapped to 400 by the caller
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
