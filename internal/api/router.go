// Package api exposes the loan club lifecycle over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"loan-club/internal/common/errors"
	"loan-club/internal/common/logger"
	"loan-club/internal/lifecycle"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	MaxBodyBytes      int64
	RequestsPerSecond int
	Burst             int
}

type Dependencies struct {
	Service *lifecycle.Service
	Logger  logger.Logger
	// Ready reports whether the backing store is reachable.
	Ready func(ctx context.Context) error
}

type Server struct {
	svc     *lifecycle.Service
	logger  logger.Logger
	errors  *errors.ErrorHandler
	limiter *RateLimiter
	ready   func(ctx context.Context) error
	maxBody int64
	now     func() time.Time
}

func NewServer(deps Dependencies, cfg Config) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}

	errHandler := errors.NewErrorHandler(log)
	return &Server{
		svc:     deps.Service,
		logger:  log,
		errors:  errHandler,
		limiter: NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, errHandler),
		ready:   deps.Ready,
		maxBody: cfg.MaxBodyBytes,
		now:     time.Now,
	}
}

// Router builds the HTTP routes. Unknown methods answer 405 with a JSON body.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware(), LoggingMiddleware(s.logger))

	r.HandleFunc("/api/load", s.handleLoad).Methods(http.MethodGet)
	r.HandleFunc("/api/submit", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/api/save", s.handleSave).Methods(http.MethodPost)
	r.HandleFunc("/api/admin", s.handleAdmin).Methods(http.MethodPost)
	r.HandleFunc("/api/signup", s.limiter.Wrap(s.handleSignup)).Methods(http.MethodPost)
	r.HandleFunc("/api/login", s.limiter.Wrap(s.handleLogin)).Methods(http.MethodPost)
	r.HandleFunc("/api/applications", s.handleApplications).Methods(http.MethodGet)
	r.HandleFunc("/api/withdrawal", s.handleWithdrawal).Methods(http.MethodPost)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteJSON(w, http.StatusMethodNotAllowed, errors.ErrorResponse{
			Error: "Method not allowed",
			Code:  "METHOD_NOT_ALLOWED",
		})
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteJSON(w, http.StatusNotFound, errors.ErrorResponse{
			Error: "Route not found",
			Code:  string(errors.ErrCodeNotFound),
		})
	})
	return r
}
