package rest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/edgeflare/pgrepo/pkg/httputil"
	mw "github.com/edgeflare/pgrepo/pkg/httputil/middleware"
	"github.com/edgeflare/pgrepo/pkg/metrics"
	"github.com/edgeflare/pgrepo/pkg/model"
	"github.com/edgeflare/pgrepo/pkg/query"
	"github.com/edgeflare/pgrepo/pkg/repository"
	"go.uber.org/zap"
)

// RelationsKey is the body key holding relations to link on write.
const RelationsKey = "relations"

type Server struct {
	router  *httputil.Router
	repos   map[string]*repository.Repository
	logger  *zap.Logger
	baseURL string
	mws     []httputil.Middleware
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBaseURL mounts every route below prefix, e.g. "/api".
func WithBaseURL(prefix string) Option {
	return func(s *Server) {
		s.baseURL = prefix
	}
}

// WithMiddleware wraps every route, first one outermost.
func WithMiddleware(mws ...httputil.Middleware) Option {
	return func(s *Server) {
		s.mws = append(s.mws, mws...)
	}
}

// NewServer mounts repos, keyed by their entity name.
func NewServer(repos []*repository.Repository, opts ...Option) *Server {
	s := &Server{
		repos:  make(map[string]*repository.Repository, len(repos)),
		logger: zap.NewNop(),
	}
	for _, repo := range repos {
		s.repos[repo.Type().Name] = repo
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = httputil.NewRouter(httputil.WithLogger(s.logger), httputil.WithServerOptions(func(srv *http.Server) {
		srv.ReadHeaderTimeout = 5 * time.Second
	}))
	if len(s.mws) > 0 {
		s.router.Use(s.mws[0], s.mws[1:]...)
	}
	s.registerHandlers(s.router.Group(s.baseURL))
	return s
}

func (s *Server) registerHandlers(r *httputil.Router) {
	r.HandleFunc("GET /{$}", s.handleEntities)
	r.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.Text(w, http.StatusOK, "ok")
	})
	r.HandleFunc("GET /{entity}", s.handle("index", false, false, indexOp))
	r.HandleFunc("POST /{entity}", s.handle("store", false, true, storeOp))
	r.HandleFunc("GET /{entity}/{id}", s.handle("show", true, false, (*repository.Repository).Show))
	r.HandleFunc("PATCH /{entity}/{id}", s.handle("update", true, true, (*repository.Repository).Update))
	r.HandleFunc("PUT /{entity}/{id}", s.handle("update", true, true, (*repository.Repository).Update))
	r.HandleFunc("DELETE /{entity}/{id}", s.handle("destroy", true, false, (*repository.Repository).Destroy))

	// preflight requests are answered by the CORS middleware
	r.HandleFunc("OPTIONS /{entity}", noContent)
	r.HandleFunc("OPTIONS /{entity}/{id}", noContent)
}

// ServeHTTP serves the mounted routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	return s.router.ListenAndServe(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}

func (s *Server) handleEntities(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]any{"entities": slices.Sorted(maps.Keys(s.repos))})
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type operation func(repo *repository.Repository, ctx context.Context, req *repository.Request, id any) (*repository.Response, error)

func indexOp(repo *repository.Repository, ctx context.Context, req *repository.Request, _ any) (*repository.Response, error) {
	return repo.Index(ctx, req)
}

func storeOp(repo *repository.Repository, ctx context.Context, req *repository.Request, _ any) (*repository.Response, error) {
	return repo.Store(ctx, req)
}

func (s *Server) handle(action string, withID, withBody bool, call operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("entity")
		repo, ok := s.repos[name]
		if !ok {
			httputil.Error(w, http.StatusNotFound, fmt.Sprintf("entity %s not found", name))
			return
		}

		start := time.Now()
		code := http.StatusOK
		defer func() {
			metrics.Requests.WithLabelValues(name, action, strconv.Itoa(code)).Inc()
			metrics.RequestDuration.WithLabelValues(name, action).Observe(time.Since(start).Seconds())
		}()

		req := &repository.Request{Params: query.ParamsFromValues(r.URL.Query())}
		if withBody {
			if err := decodeBody(r, req); err != nil {
				code = http.StatusBadRequest
				httputil.Error(w, code, err.Error())
				return
			}
		}
		var id any
		if withID {
			id = model.NormalizeID(r.PathValue("id"))
		}

		resp, err := call(repo, r.Context(), req, id)
		if err != nil {
			mw.Logger(r.Context()).Error("request failed",
				zap.String("entity", name), zap.String("action", action), zap.Error(err))
			metrics.StoreErrors.WithLabelValues(name, action).Inc()
			code = http.StatusInternalServerError
			httputil.Error(w, code, "datastore failure")
			return
		}

		for _, category := range resp.Errors.Categories() {
			metrics.RejectedClauses.WithLabelValues(name, category).Inc()
		}
		code = resp.Status
		httputil.JSON(w, code, resp)
	}
}

// decodeBody splits a JSON object body into attributes and relations. An
// empty body is an empty object.
func decodeBody(r *http.Request, req *repository.Request) error {
	body := map[string]any{}
	if err := httputil.DecodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}

	if raw, ok := body[RelationsKey]; ok {
		relations, ok := raw.(map[string]any)
		if !ok && raw != nil {
			return fmt.Errorf("%q must be an object of relation name to id", RelationsKey)
		}
		req.Relations = relations
		delete(body, RelationsKey)
	}
	req.Attributes = body
	return nil
}
