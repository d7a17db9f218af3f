package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/kvpool/pkg/cache"
	"github.com/Sternrassler/kvpool/pkg/config"
	"github.com/Sternrassler/kvpool/pkg/direct"
	"github.com/Sternrassler/kvpool/pkg/kverr"
	"github.com/Sternrassler/kvpool/pkg/pool"
	"github.com/Sternrassler/kvpool/pkg/transport"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const demoTTL = 60

// app holds the providers built once at startup. Handlers only read it.
type app struct {
	redisAddr string

	direct   *cache.Manager
	async    *cache.Manager
	blocking *cache.Manager

	asyncPool    *pool.Pool
	blockingPool *pool.Pool

	logger zerolog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	dialer, err := transport.NewRedisDialer(cfg.Redis.URL, transport.Options{DialTimeout: cfg.Redis.DialTimeout})
	if err != nil {
		return nil, err
	}

	d, err := direct.New(dialer, logger)
	if err != nil {
		return nil, err
	}

	asyncPool, err := pool.NewAsync(cfg.Async, dialer, logger)
	if err != nil {
		return nil, fmt.Errorf("async pool: %w", err)
	}

	blockingPool, err := pool.NewBlocking(cfg.Blocking, dialer, logger)
	if err != nil {
		_ = asyncPool.Close()
		return nil, fmt.Errorf("blocking pool: %w", err)
	}

	// The blocking pool opens its warm floor eagerly; the async pool fills
	// on demand.
	if err := blockingPool.Warm(ctx); err != nil {
		_ = asyncPool.Close()
		_ = blockingPool.Close()
		return nil, fmt.Errorf("blocking pool: %w", err)
	}

	return &app{
		redisAddr:    dialer.Addr(),
		direct:       cache.NewManager("direct", d, logger),
		async:        cache.NewManager(asyncPool.Name(), asyncPool, logger),
		blocking:     cache.NewManager(blockingPool.Name(), blockingPool, logger),
		asyncPool:    asyncPool,
		blockingPool: blockingPool,
		logger:       logger.With().Str("component", "server").Logger(),
	}, nil
}

func (a *app) close() error {
	return errors.Join(a.asyncPool.Close(), a.blockingPool.Close())
}

// manager returns the facade registered under name.
func (a *app) manager(name string) (*cache.Manager, bool) {
	switch name {
	case "direct":
		return a.direct, true
	case "mobc", a.asyncPool.Name():
		return a.async, true
	case "r2d2", a.blockingPool.Name():
		return a.blocking, true
	}
	return nil, false
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /direct", a.demoHandler(a.direct, "hello", "direct_world"))
	mux.HandleFunc("GET /mobc", a.demoHandler(a.async, "mobc_hello", "mobc_world"))
	mux.HandleFunc("GET /r2d2", a.demoHandler(a.blocking, "r2d2_hello", "r2d2_world"))
	mux.HandleFunc("GET /stats", a.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	return a.requestLogger(mux)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// demoHandler stores value under key, reads it back and returns it.
func (a *app) demoHandler(kv *cache.Manager, key, value string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := kv.SetStr(ctx, key, value, demoTTL); err != nil {
			a.writeError(w, r, err)
			return
		}

		got, err := kv.GetStr(ctx, key)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprint(w, got)
	}
}

func (a *app) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]pool.Stats{
		a.asyncPool.Name():    a.asyncPool.Stats(),
		a.blockingPool.Name(): a.blockingPool.Stats(),
	}); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to write stats")
	}
}

func (a *app) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	a.logger.Warn().
		Err(err).
		Str("request_id", requestID(r.Context())).
		Int("status", status).
		Msg("Request failed")
	http.Error(w, err.Error(), status)
}

// statusFor maps an error stage to an HTTP status.
func statusFor(err error) int {
	stage, _ := kverr.StageOf(err)
	switch stage {
	case kverr.StageClientConstruction, kverr.StageAcquisition:
		return http.StatusServiceUnavailable
	case kverr.StageCommand:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type ctxKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags each request with an id and logs its outcome.
func (a *app) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))

		a.logger.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}
