package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/product-scraper/internal/config"
	"github.com/JakeFAU/product-scraper/internal/metrics"
	"github.com/JakeFAU/product-scraper/internal/product"
	"github.com/JakeFAU/product-scraper/internal/scraper"
	"github.com/JakeFAU/product-scraper/internal/site"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Submitter admits a job onto the work queue.
type Submitter interface {
	Submit(ctx context.Context, job scraper.Job) error
}

// Discoverer finds product links on a category page.
type Discoverer interface {
	Discover(ctx context.Context, categoryURL string, max int) ([]string, error)
}

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps groups the collaborators the handlers call into. Listings and DB
// may be nil; the matching routes then report unavailability.
type Deps struct {
	Submitter Submitter
	Listings  Discoverer
	DB        Pinger
	IDs       scraper.IDGenerator
}

// Server wires HTTP handlers to the dispatcher and listing crawler.
type Server struct {
	router   chi.Router
	deps     Deps
	cfg      config.Config
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:     deps,
		cfg:      cfg,
		validate: newValidator(),
		logger:   logger.Named("api"),
	}

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(timeout))
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/scrape", s.submitScrape)
		r.Post("/v1/listings", s.discoverListings)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.DB.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			s.writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	URL     string           `json:"url" validate:"required,url"`
	Catalog *product.Catalog `json:"catalog_payload" validate:"required"`
}

type scrapeResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	target, ok := site.FromURL(req.URL)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unsupported site")
		return
	}

	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate job id", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to generate job id")
		return
	}
	job := scraper.Job{
		ID:      jobID,
		URL:     req.URL,
		Site:    target,
		Catalog: *req.Catalog,
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.deps.Submitter.Submit(queueCtx, job); err != nil {
		if scraper.IsPermanent(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("enqueue job", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "failed to schedule task")
		return
	}

	s.logger.Info("task scheduled",
		zap.String("job_id", jobID),
		zap.String("site", target.String()),
		zap.String("url", req.URL),
	)
	s.writeJSON(w, http.StatusAccepted, scrapeResponse{JobID: jobID, Message: "Task scheduled"})
}

type listingRequest struct {
	CategoryURL string `json:"category_url" validate:"required,url"`
	Max         int    `json:"max" validate:"omitempty,min=1,max=1000"`
}

type listingResponse struct {
	Site  string   `json:"site"`
	URLs  []string `json:"urls"`
	Count int      `json:"count"`
}

func (s *Server) discoverListings(w http.ResponseWriter, r *http.Request) {
	if s.deps.Listings == nil {
		s.writeError(w, http.StatusServiceUnavailable, "listing discovery disabled")
		return
	}
	var req listingRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	target, ok := site.FromURL(req.CategoryURL)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unsupported site")
		return
	}

	urls, err := s.deps.Listings.Discover(r.Context(), req.CategoryURL, req.Max)
	if err != nil {
		if scraper.IsPermanent(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Warn("listing discovery failed", zap.String("url", req.CategoryURL), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "listing discovery failed")
		return
	}
	if urls == nil {
		urls = []string{}
	}
	s.writeJSON(w, http.StatusOK, listingResponse{Site: target.String(), URLs: urls, Count: len(urls)})
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage flattens validator errors into "field: rule" pairs keyed
// by JSON path, e.g. "catalog_payload.id: required".
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		parts = append(parts, fmt.Sprintf("%s: %s", field, fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID(r.Context())),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.Stack("stack"))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// decodeJSON reads a bounded request body into dst, writing the error
// response itself when it fails.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	s.writeError(w, http.StatusBadRequest, "invalid JSON")
	return false
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), want) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"}, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, status, payload, s.logger)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && logger != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
