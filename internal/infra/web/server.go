package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"iap-sync-engine/internal/bus"
	"iap-sync-engine/internal/usecase"
)

// Server is the operational surface of the engine: the projector snapshot,
// intent endpoints that publish on the bus, health, and metrics. It stands in
// for the UI dispatch boundary of a client app.
type Server struct {
	stateUC usecase.PurchaseStateUseCase
	actions *bus.Bus
	apiKey  string
	log     *zerolog.Logger

	srv *http.Server
}

func NewServer(stateUC usecase.PurchaseStateUseCase, actions *bus.Bus, apiKey string, logger *zerolog.Logger) *Server {
	return &Server{
		stateUC: stateUC,
		actions: actions,
		apiKey:  apiKey,
		log:     logger,
	}
}

// Router builds the chi mux. Exposed separately from Start for tests.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(Recover(s.log))
	r.Use(TraceID(s.log))
	r.Use(RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/purchases/state", s.handlePurchaseState)
		r.Post("/purchases/request", s.handleRequestPurchase)
		r.Post("/purchases/restore", s.handleRestorePurchases)
		r.Get("/products", s.handleGetProducts)
	})
	return r
}

func (s *Server) Start(port int) error {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}
	s.log.Info().Int("port", port).Msg("web server listening")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// authMiddleware provides bearer API-key authentication for the intent API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

const productLookupTimeout = 10 * time.Second
