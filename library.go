package library

// library.go puts the service together: store, hub, authentication, resolvers and HTTP routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/andrewwphillips/library/internal/auth"
	"github.com/andrewwphillips/library/internal/catalog"
	"github.com/andrewwphillips/library/internal/handler"
	"github.com/andrewwphillips/library/internal/pubsub"
	"github.com/andrewwphillips/library/internal/store"
)

// Server is the assembled service
type Server struct {
	store  store.Store
	hub    *pubsub.Hub[catalog.Book]
	router chi.Router
}

// New creates the service.  Everything is kept in memory unless the Database option is used.
func New(ctx context.Context, options ...func(*options)) (*Server, error) {
	opt := defaultOptions()
	for _, o := range options {
		o(&opt)
	}
	if len(opt.secret) == 0 {
		return nil, errors.New("a token secret is required")
	}

	var (
		s   store.Store
		err error
	)
	if opt.databaseURL != "" {
		if s, err = store.OpenPostgres(ctx, opt.databaseURL, opt.maxConns); err != nil {
			return nil, err
		}
	} else {
		log.Info().Msg("using in-memory store")
		s = store.NewMemory()
	}

	if opt.seed {
		if _, err = catalog.Seed(ctx, s); err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	r, err := assemble(s, opt)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return r, nil
}

func assemble(s store.Store, opt options) (*Server, error) {
	tokens := auth.NewTokens(opt.secret, opt.issuer, opt.tokenTTL)
	svc, err := auth.NewService(s, tokens, opt.sharedSecret, opt.loginRate, opt.loginBurst)
	if err != nil {
		return nil, err
	}
	guard := auth.NewGuard(tokens, s)

	gqlSchema, err := catalog.LoadSchema()
	if err != nil {
		return nil, err
	}
	hub := pubsub.New[catalog.Book]()
	resolver := catalog.New(s, hub, svc)

	handlerOptions := []func(*handler.Handler){
		handler.NoConcurrency(opt.noConcurrency),
		handler.ConnectionInit(guard.ConnectionInit),
	}
	if opt.initialTimeout > 0 {
		handlerOptions = append(handlerOptions, handler.InitialTimeout(opt.initialTimeout))
	}
	if opt.pingFrequency > 0 {
		handlerOptions = append(handlerOptions, handler.PingFrequency(opt.pingFrequency))
	}
	if opt.pongTimeout > 0 {
		handlerOptions = append(handlerOptions, handler.PongTimeout(opt.pongTimeout))
	}
	h, err := handler.New(gqlSchema, resolver.Query(), resolver.Mutation(), resolver.Subscription(), handlerOptions...)
	if err != nil {
		hub.Close()
		return nil, fmt.Errorf("creating GraphQL handler: %w", err)
	}

	srv := &Server{store: s, hub: hub, router: chi.NewRouter()}
	srv.router.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	srv.router.Get("/health", srv.health)
	srv.router.Handle("/metrics", promhttp.Handler())
	srv.router.With(guard.Middleware).Handle(opt.path, h)
	return srv, nil
}

// Handler returns the HTTP handler of all the routes of the service
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close ends all subscriptions and closes the store
func (s *Server) Close() error {
	s.hub.Close()
	return s.store.Close()
}

// health reports whether the store can be reached
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, body := http.StatusOK, map[string]string{"status": "ok"}
	if err := s.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("health check failed")
		status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger logs each request once it has been handled
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("requestID", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
