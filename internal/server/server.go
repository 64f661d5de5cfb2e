// Package server exposes the polled market list over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"losslessMarket/internal/model"
	"losslessMarket/internal/view"
)

// MarketSource is the read side of service.MarketsPage.
type MarketSource interface {
	Markets() []model.Market
	Market(address string) (model.Market, bool)
	Status() (time.Time, error)
}

// HealthFunc checks an external dependency such as redis.
type HealthFunc func(ctx context.Context) error

// MarketView is a market with the values the list UI derives from it.
type MarketView struct {
	model.Market
	Status          string `json:"status"`
	TimeLeft        int64  `json:"time_left"`
	TimeLeftText    string `json:"time_left_text"`
	TargetPriceText string `json:"target_price_text"`
	QuestionPrice   string `json:"question_price,omitempty"`
	TotalStaked     string `json:"total_staked"`
	YesShare        string `json:"yes_share,omitempty"`
	WinningSideText string `json:"winning_side_text,omitempty"`
}

// ListResponse is the GET /markets body.
type ListResponse struct {
	Counts    view.Counts  `json:"counts"`
	Markets   []MarketView `json:"markets"`
	UpdatedAt int64        `json:"updated_at"`
}

// Config configures the HTTP service.
type Config struct {
	Addr        string
	AllowOrigin func(r *http.Request) bool
}

// Server serves the REST API, the websocket hub, /metrics and /healthz.
type Server struct {
	cfg     Config
	source  MarketSource
	hub     *Hub
	metrics *Metrics
	health  []HealthFunc
	logger  *zap.Logger
	now     func() time.Time
}

func New(cfg Config, source MarketSource, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AllowOrigin == nil {
		cfg.AllowOrigin = func(r *http.Request) bool { return true }
	}
	return &Server{
		cfg:     cfg,
		source:  source,
		hub:     NewHub(cfg.AllowOrigin, metrics, logger),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// AddHealthCheck adds a dependency check to /healthz.
func (s *Server) AddHealthCheck(fn HealthFunc) {
	s.health = append(s.health, fn)
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// PublishMarkets records a fresh snapshot and pushes it to websocket clients.
func (s *Server) PublishMarkets(markets []model.Market) {
	counts := view.CountByState(markets)
	s.metrics.snapshot(counts.All, counts.Active, counts.Resolved, counts.Cancelled)
	s.metrics.refresh(true)
	s.hub.Broadcast(TopicMarkets, s.list(markets, "", ""))
}

// RefreshFailed counts a failed snapshot refresh.
func (s *Server) RefreshFailed() {
	s.metrics.refresh(false)
}

// PublishNotification pushes a transaction notice to websocket clients.
func (s *Server) PublishNotification(note model.TxNotification) {
	s.metrics.notification(note.Status)
	s.hub.Broadcast(TopicNotifications, note)
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/markets", s.listMarkets)
	r.Get("/markets/{address}", s.getMarket)
	r.Get("/ws", s.hub.HandleWS)
	r.Get("/healthz", s.healthz)
	if reg := s.metrics.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortName := q.Get("sort")
	if sortName != "" {
		if _, ok := view.ParseSortOrder(sortName); !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown sort order: " + sortName})
			return
		}
	}
	state := q.Get("state")
	if !view.ValidStateFilter(state) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown market state: " + state})
		return
	}
	writeJSON(w, http.StatusOK, s.list(s.source.Markets(), state, sortName))
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	m, ok := s.source.Market(address)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "market not found"})
		return
	}
	writeJSON(w, http.StatusOK, s.marketView(m))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	loadedAt, lastErr := s.source.Status()
	if loadedAt.IsZero() {
		http.Error(w, "markets not loaded yet", http.StatusServiceUnavailable)
		return
	}
	if lastErr != nil {
		http.Error(w, "last refresh failed: "+lastErr.Error(), http.StatusServiceUnavailable)
		return
	}
	for _, check := range s.health {
		if err := check(ctx); err != nil {
			http.Error(w, "unhealthy: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) list(markets []model.Market, state, sortName string) ListResponse {
	counts := view.CountByState(markets)
	filtered := view.FilterByState(markets, state)
	if order, ok := view.ParseSortOrder(sortName); ok {
		filtered = view.Sort(filtered, order)
	}
	views := make([]MarketView, 0, len(filtered))
	for _, m := range filtered {
		views = append(views, s.marketView(m))
	}
	return ListResponse{Counts: counts, Markets: views, UpdatedAt: s.now().Unix()}
}

func (s *Server) marketView(m model.Market) MarketView {
	deadline := m.BettingDeadline
	if deadline == 0 {
		deadline = m.ResolveDate
	}
	left := view.TimeLeft(deadline, s.now())
	return MarketView{
		Market:          m,
		Status:          view.StatusText(m, left),
		TimeLeft:        left,
		TimeLeftText:    view.FormatTimeLeft(left),
		TargetPriceText: view.FormatTargetPrice(m.TargetPrice),
		QuestionPrice:   view.ExtractPrice(m.Question),
		TotalStaked:     view.FormatUSDC(view.TotalStaked(m).String()),
		YesShare:        view.YesShare(m.TotalYes, m.TotalNo),
		WinningSideText: view.WinningSideText(m),
	}
}
