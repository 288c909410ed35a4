package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
)

const (
	requestIDHeader  = "X-Request-Id"
	readinessTimeout = 3 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type successEnvelope struct {
	Data any `json:"data"`
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Params configure the ops listener every worker exposes.
type Params struct {
	Addr     string
	Service  string
	Env      string
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Checks   map[string]Check
}

// Server serves /healthz, /readyz and /metrics.
type Server struct {
	srv  *http.Server
	logg *logger.Logger
}

// NewServer builds the ops server. A nil gatherer falls back to the default
// Prometheus registry.
func NewServer(params Params) (*Server, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Addr == "" {
		return nil, errors.New("ops listen address required")
	}
	return &Server{
		srv: &http.Server{
			Addr:              params.Addr,
			Handler:           NewHandler(params),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logg: params.Logger,
	}, nil
}

// NewHandler returns the chi router behind the ops server.
func NewHandler(params Params) http.Handler {
	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r := chi.NewRouter()
	r.Use(recoverer(params.Logger), requestID(params.Logger))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-CreatorVault-Env", params.Env)
		writeJSON(w, http.StatusOK, successEnvelope{Data: map[string]string{"status": "live", "service": params.Service}})
	})
	r.Get("/readyz", readyHandler(params))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func readyHandler(params Params) http.HandlerFunc {
	names := make([]string, 0, len(params.Checks))
	for name := range params.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		result := readiness{Status: "ready", Checks: map[string]string{}}
		status := http.StatusOK
		for _, name := range names {
			if err := params.Checks[name](ctx); err != nil {
				result.Checks[name] = err.Error()
				result.Status = "unavailable"
				status = http.StatusServiceUnavailable
				if params.Logger != nil {
					params.Logger.Warn(params.Logger.WithField(ctx, "dependency", name), "readiness check failed")
				}
				continue
			}
			result.Checks[name] = "ok"
		}
		w.Header().Set("X-CreatorVault-Env", params.Env)
		writeJSON(w, status, successEnvelope{Data: result})
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logg.Info(s.logg.WithField(ctx, "addr", s.srv.Addr), "ops server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}
	return nil
}

func recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logg != nil {
						ctx := logg.WithField(r.Context(), "panic", rec)
						logg.Error(ctx, "panic.recovered", fmt.Errorf("panic: %v", rec))
					}
					writeJSON(w, http.StatusInternalServerError, map[string]any{
						"error": map[string]string{"code": "INTERNAL", "message": "internal error"},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)
			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
