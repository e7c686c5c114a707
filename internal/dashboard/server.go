// Package dashboard serves the JSON API that presentation collaborators
// consume: portfolio and position CRUD, cash updates, risk reports and
// market-data refresh triggers.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/optionfolio/optionfolio/internal/marketdata"
	"github.com/optionfolio/optionfolio/internal/metrics"
	"github.com/optionfolio/optionfolio/internal/models"
	"github.com/optionfolio/optionfolio/internal/montecarlo"
	"github.com/optionfolio/optionfolio/internal/refresh"
	"github.com/optionfolio/optionfolio/internal/risk"
	"github.com/optionfolio/optionfolio/internal/storage"
)

const expirationLayout = "2006-01-02"

// Server hosts the dashboard API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	quoter    marketdata.Quoter
	refresher *refresh.Refresher
	logger    *logrus.Logger
	port      int
	authToken string
}

// Config holds server settings.
type Config struct {
	Port      int
	AuthToken string
}

// NewServer wires the API server and its routes.
func NewServer(cfg Config, store storage.Interface, quoter marketdata.Quoter,
	refresher *refresh.Refresher, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		quoter:    quoter,
		refresher: refresher,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(func(next http.Handler) http.Handler { return metrics.Middleware(next) })

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router.Route("/api/portfolios", func(r chi.Router) {
		r.Get("/", s.handleListPortfolios)
		r.Post("/", s.handleCreatePortfolio)
		r.Route("/{name}", func(r chi.Router) {
			r.Delete("/", s.handleDeletePortfolio)
			r.Put("/cash", s.handleUpdateCash)
			r.Get("/risk", s.handleRiskReport)
			r.Get("/distribution", s.handleDistribution)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/positions", s.handleListPositions)
			r.Post("/positions", s.handleCreatePosition)
			r.Put("/positions/{id}", s.handleUpdatePosition)
			r.Delete("/positions/{id}", s.handleDeletePosition)
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown or failure.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("Starting dashboard API on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleListPortfolios(w http.ResponseWriter, _ *http.Request) {
	names := s.storage.ListPortfolios()
	out := make([]portfolioView, 0, len(names))
	for _, name := range names {
		pf, err := s.storage.GetPortfolio(name)
		if err != nil {
			continue // deleted between list and get
		}
		out = append(out, portfolioView{
			Name:       pf.Name,
			Cash:       pf.Cash,
			Positions:  len(pf.Positions),
			TotalValue: risk.TotalValue(pf.Cash, pf.Positions),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.storage.CreatePortfolio(req.Name); err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, portfolioView{Name: req.Name})
}

func (s *Server) handleDeletePortfolio(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.storage.DeletePortfolio(name); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateCash(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req updateCashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Cash < 0 {
		s.writeError(w, http.StatusBadRequest, "cash must be non-negative")
		return
	}
	if err := s.storage.UpdateCash(name, req.Cash); err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]float64{"cash": req.Cash})
}

func (s *Server) handleRiskReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	pf, err := s.storage.GetPortfolio(name)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	report := risk.Aggregate(pf.Cash, pf.Positions)
	s.writeJSON(w, http.StatusOK, newRiskReportView(report))
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	positions, err := s.storage.GetPositions(name)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, risk.CombinedDistribution(positions))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.refresher.RefreshPortfolio(r.Context(), name); err != nil {
		if errors.Is(err, storage.ErrPortfolioNotFound) {
			s.writeStorageError(w, err)
			return
		}
		s.logger.WithError(err).Error("portfolio refresh failed")
		s.writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	positions, err := s.storage.GetPositions(name)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}
	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, newPositionView(p))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req createPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expiration, err := time.Parse(expirationLayout, req.Expiration)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expiration must be YYYY-MM-DD")
		return
	}

	variant := models.InstrumentVariant(req.Variant)
	pos := models.NewPosition(variant, req.Ticker, req.Quantity, req.Strike,
		req.Premium, expiration, req.UnderlyingPrice, req.ImpliedVol)

	// Snapshot market data for anything the caller left out.
	if pos.UnderlyingPrice <= 0 {
		price, err := s.quoter.GetPrice(r.Context(), pos.Ticker)
		if err != nil || price <= 0 {
			s.logger.WithError(err).Error("price snapshot failed")
			s.writeError(w, http.StatusBadGateway, "could not fetch spot price for "+pos.Ticker)
			return
		}
		pos.UnderlyingPrice = price
	}
	if variant == models.Shares {
		// Shares project from realized volatility, not a quoted IV.
		vol, err := s.quoter.GetHistoricalVolatility(r.Context(), pos.Ticker)
		if err != nil {
			s.logger.WithError(err).Error("historical volatility snapshot failed")
			s.writeError(w, http.StatusBadGateway, "could not fetch historical volatility for "+pos.Ticker)
			return
		}
		pos.ImpliedVol = vol
	}

	if err := s.refresher.Resimulate(pos); err != nil {
		s.writeSimulationError(w, err)
		return
	}
	if err := s.storage.StorePosition(name, pos); err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newPositionView(pos))
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	pos, err := s.storage.GetPositionByID(name, id)
	if err != nil {
		s.writeStorageError(w, err)
		return
	}

	var req updatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Quantity != nil {
		pos.Quantity = *req.Quantity
	}
	if req.Premium != nil {
		pos.Premium = *req.Premium
	}
	if req.ImpliedVol != nil {
		pos.ImpliedVol = *req.ImpliedVol
	}
	if req.Strike != nil {
		if *req.Strike > 0 {
			pos.Strike = req.Strike
		} else {
			pos.Strike = nil
		}
	}

	// Samples are stale the moment an input changes; regenerate before the
	// position is persisted or any derived scalar is served.
	if err := s.refresher.Resimulate(pos); err != nil {
		s.writeSimulationError(w, err)
		return
	}
	if err := s.storage.StorePosition(name, pos); err != nil {
		s.writeStorageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newPositionView(pos))
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")
	if err := s.storage.DeletePosition(name, id); err != nil {
		s.writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrPortfolioNotFound), errors.Is(err, storage.ErrPositionNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrPortfolioExists):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.WithError(err).Error("storage operation failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeSimulationError(w http.ResponseWriter, err error) {
	var unsupported *montecarlo.UnsupportedInstrumentError
	var invalid *montecarlo.InvalidTermsError
	if errors.As(err, &unsupported) || errors.As(err, &invalid) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.WithError(err).Error("simulation failed")
	s.writeError(w, http.StatusInternalServerError, "simulation failed")
}
