package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"SerpLedger/internal/event"
	"SerpLedger/internal/ingestion"
	"SerpLedger/internal/observability"
	"SerpLedger/internal/persistence"
	"SerpLedger/internal/projection"
	"SerpLedger/internal/query"
)

// Server exposes the query and admin surface over HTTP/JSON. Query
// endpoints read projections; admin commands are converted into events
// and travel the same ingestion path as NATS traffic, so they get the
// same idempotency and ordering treatment.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	queries    *query.Service
	snapshots  *persistence.SnapshotManager
	events     chan<- event.Event
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

type Deps struct {
	DB        *sql.DB
	Queries   *query.Service
	Snapshots *persistence.SnapshotManager
	Events    chan<- event.Event
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
}

func New(addr string, deps Deps) *Server {
	s := &Server{
		db:        deps.DB,
		queries:   deps.Queries,
		snapshots: deps.Snapshots,
		events:    deps.Events,
		health:    deps.Health,
		metrics:   deps.Metrics,
		logger:    observability.NewLogger("http"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/accounts/{account}/balances", s.handleBalances)
		r.Get("/accounts/{account}/positions", s.handlePositions)
		r.Get("/accounts/{account}/positions/{currency}", s.handlePosition)
		r.Get("/accounts/{account}/journals", s.handleJournals)
		r.Get("/positions/totals", s.handlePositionTotals)
		r.Get("/treasury/pools", s.handlePools)
		r.Get("/serp/history", s.handleSerpHistory)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/integrity", s.handleIntegrity)
			r.Get("/eventlog", s.handleEventLogInfo)
			r.Post("/projections/rebuild", s.handleRebuildProjections)
			r.Post("/auctions/serplus", s.injectHandler("SerplusAuctionRequest"))
			r.Post("/auctions/standard", s.injectHandler("StandardAuctionRequest"))
			r.Post("/lotsize", s.injectHandler("LotSizeUpdate"))
			r.Post("/positions/adjust", s.injectHandler("PositionAdjust"))
			r.Post("/positions/update", s.injectHandler("PositionUpdate"))
			r.Post("/positions/transfer", s.injectHandler("PositionTransfer"))
		})
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains with a bounded
// shutdown window.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// instrument records request counts and latency per route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.QueryRequests.WithLabelValues(pattern, strconv.Itoa(ww.Status())).Inc()
		s.metrics.QueryDuration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

// --- query handlers ---

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	entries, err := s.queries.GetBalances(r.Context(), account)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"balances": entries})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	positions, err := s.queries.GetPositions(r.Context(), account)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	currency := chi.URLParam(r, "currency")
	position, err := s.queries.GetPosition(r.Context(), account, currency)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if position == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]any{"error": "no position"})
		return
	}
	s.writeJSON(w, http.StatusOK, position)
}

func (s *Server) handleJournals(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	limit := queryInt(r, "limit", 100, 500)
	before := queryCursor(r, "before")

	entries, err := s.queries.GetJournalHistory(r.Context(), account, limit, before)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"journals": entries})
}

func (s *Server) handlePositionTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := s.queries.GetPositionTotals(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"totals": totals})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.queries.GetPools(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pools)
}

func (s *Server) handleSerpHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 200)
	before := queryCursor(r, "before")

	var currency *string
	if c := r.URL.Query().Get("currency"); c != "" {
		currency = &c
	}

	history, err := s.queries.GetSerpHistory(r.Context(), currency, limit, before)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// --- admin handlers ---

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	status := http.StatusOK
	if !report.IsHealthy {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, report)
}

func (s *Server) handleEventLogInfo(w http.ResponseWriter, r *http.Request) {
	latest, err := s.snapshots.GetLatestSequence(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"last_sequence": latest})
}

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := projection.Rebuild(r.Context(), s.db); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rebuilt": true})
}

// injectHandler builds an admin command handler for one event type.
// The body uses the same wire format as the NATS subjects, so the
// caller supplies request_id and request_seq and replays are deduped.
func (s *Server) injectHandler(eventType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, 1<<16)
		defer body.Close()

		buf, err := io.ReadAll(body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}

		raw := ingestion.RawEvent{
			Subject:   "admin",
			Data:      buf,
			EventType: eventType,
			Timestamp: time.Now(),
		}

		evt, err := ingestion.ParseRawEvent(raw, eventType)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}

		select {
		case s.events <- evt:
			s.writeJSON(w, http.StatusAccepted, map[string]any{
				"accepted":        true,
				"idempotency_key": evt.IdempotencyKey(),
			})
		case <-r.Context().Done():
			s.writeError(w, http.StatusServiceUnavailable, r.Context().Err())
		}
	}
}

// --- helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func queryInt(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

func queryCursor(r *http.Request, name string) *int64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}
