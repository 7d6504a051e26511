package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjannette/dolarbot/internal/broadcast"
	"github.com/kjannette/dolarbot/internal/cache"
	"github.com/kjannette/dolarbot/internal/models"
)

var isoRegexp = regexp.MustCompile(`^[A-Za-z]{3}$`)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Sessions interface {
	Tracks(iso string) bool
	OpenSessions() int
	ResetSessions() int
}

type Scheduler interface {
	Trigger(ctx context.Context, interval models.Interval) (*broadcast.Report, error)
	NextRuns() map[models.Interval]time.Time
	Running() bool
}

type SubscriberCounter interface {
	Count(ctx context.Context) (int64, error)
}

// Deps wires the ops API. Metrics may be nil.
type Deps struct {
	DB          Pinger
	Sessions    Sessions
	Snapshots   cache.Store
	Scheduler   Scheduler
	Subscribers SubscriberCounter
	Metrics     http.Handler
	Log         zerolog.Logger
}

type Server struct {
	db          Pinger
	sessions    Sessions
	snapshots   cache.Store
	scheduler   Scheduler
	subscribers SubscriberCounter
	log         zerolog.Logger
	httpServer  *http.Server
	apiKey      string

	// lifetime of batches started through the API
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(d Deps, port int, apiKey, corsOrigin string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		db:          d.DB,
		sessions:    d.Sessions,
		snapshots:   d.Snapshots,
		scheduler:   d.Scheduler,
		subscribers: d.Subscribers,
		log:         d.Log,
		apiKey:      apiKey,
		ctx:         ctx,
		cancel:      cancel,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.routes(d.Metrics, corsOrigin),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) routes(metrics http.Handler, corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	// Price routes
	mux.HandleFunc("GET /v1/prices/latest", s.handleLatestPrices)
	mux.HandleFunc("GET /v1/prices/{iso}", s.handlePrice)

	// Broadcast routes
	mux.HandleFunc("POST /v1/broadcasts/{interval}", s.handleTriggerBroadcast)

	// Session routes
	mux.HandleFunc("POST /v1/sessions/reset", s.handleResetSessions)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.authMiddleware(corsMiddleware(mux, corsOrigin))
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Bool("auth", s.apiKey != "").Msg("ops API listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the listener, cancels batches started through the API and
// waits for them.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	s.wg.Wait()
	return err
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateISO(iso string) bool {
	return isoRegexp.MatchString(iso)
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
