package twin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Server serves a Store over HTTP.
type Server struct {
	store  *Store
	token  string
	prefix string
	log    *zap.Logger
	router *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on API routes.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithPrefix mounts the API routes under prefix, e.g. "/api".
func WithPrefix(prefix string) Option {
	return func(s *Server) { s.prefix = "/" + strings.Trim(prefix, "/") }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates a Server for store.
func NewServer(store *Store, opts ...Option) *Server {
	s := &Server{store: store, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLog)

	api := func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/{collection}/search", s.search)
		r.Put("/{collection}", s.update)
		r.Get("/{collection}/{id}", s.get)
		r.Delete("/{collection}/{id}", s.delete)
	}
	if s.prefix == "" || s.prefix == "/" {
		r.Group(api)
	} else {
		r.Route(s.prefix, api)
	}

	r.Get("/admin/state", s.state)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler so the Server can be used directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting twin", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down twin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type searchRequest struct {
	Pager struct {
		PageNumber int `json:"pageNumber"`
		PageSize   int `json:"pageSize"`
	} `json:"pager"`
	Filters []struct {
		Key          string `json:"key"`
		Value        any    `json:"value"`
		OperatorType string `json:"operatorType"`
	} `json:"filters"`
}

type updateRequest struct {
	Data []Record `json:"data"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var req searchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid search request: "+err.Error())
		return
	}

	conds := make([]Condition, 0, len(req.Filters))
	for _, f := range req.Filters {
		if f.OperatorType != "" && f.OperatorType != "EQUALS" {
			writeError(w, http.StatusBadRequest, "unsupported operator: "+f.OperatorType)
			return
		}
		conds = append(conds, Condition{Key: f.Key, Value: f.Value})
	}

	content, total := s.store.Search(collection, conds, req.Pager.PageNumber, req.Pager.PageSize)
	writeJSON(w, http.StatusOK, map[string]any{
		"totalElements": total,
		"content":       content,
	})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid update request: "+err.Error())
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "data must contain at least one record")
		return
	}

	updated := make([]Record, 0, len(req.Data))
	for _, patch := range req.Data {
		rec, err := s.store.Update(collection, patch)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		updated = append(updated, rec)
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": updated})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	rec, ok := s.store.Get(collection, pathID(r))
	if !ok {
		writeError(w, http.StatusNotFound, collection+" record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if !s.store.Delete(collection, pathID(r)) {
		writeError(w, http.StatusNotFound, collection+" record not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("twin request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

func pathID(r *http.Request) any {
	raw := chi.URLParam(r, "id")
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}

func decodeBody(r *http.Request, v any) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return err
	}
	dec := json.NewDecoder(&buf)
	dec.UseNumber()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes an error body whose message the client extracts.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    http.StatusText(status),
			"code":    status,
		},
	})
}
