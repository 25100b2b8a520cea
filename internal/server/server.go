// Package server exposes the ledger intents and reads over HTTP and streams
// committed events over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/portfolioledger/internal/domain"
	"github.com/alanyoungcy/portfolioledger/internal/server/handler"
	"github.com/alanyoungcy/portfolioledger/internal/server/middleware"
	"github.com/alanyoungcy/portfolioledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// Auth protects every state-changing route. Reads stay open.
	Auth       middleware.AuthConfig
	RateLimit  int // requests per RateWindow per client IP; 0 disables
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Prices may be nil when the price feed is disabled.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Listings *handler.ListingHandler
	Auctions *handler.AuctionHandler
	Stakes   *handler.StakeHandler
	Custody  *handler.CustodyHandler
	Events   *handler.EventHandler
	Prices   *handler.PriceHandler
}

// Options carries the optional collaborators of the server.
type Options struct {
	Hub      *ws.Hub
	Limiter  domain.RateLimiter
	Gatherer prometheus.Gatherer
	Recorder middleware.RequestRecorder
}

// Server is the HTTP + WebSocket API of the ledger.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
func NewServer(cfg Config, handlers Handlers, opts Options, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	auth := middleware.Auth(cfg.Auth)

	read := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, h) }
	write := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, auth(h)) }

	// Ops.
	read("GET /api/health", handlers.Health.HealthCheck)
	read("GET /api/status", handlers.Status.GetStatus)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	// Listings.
	read("GET /api/listings", handlers.Listings.ListListings)
	read("GET /api/listings/next-id", handlers.Listings.NextListingID)
	read("GET /api/listings/{id}", handlers.Listings.GetListing)
	write("POST /api/listings", handlers.Listings.ListItem)
	write("POST /api/listings/{id}/buy", handlers.Listings.BuyItem)
	write("POST /api/listings/{id}/cancel", handlers.Listings.CancelListing)

	// Auctions.
	read("GET /api/auctions", handlers.Auctions.ListAuctions)
	read("GET /api/auctions/{tokenId}", handlers.Auctions.GetAuction)
	write("POST /api/auctions", handlers.Auctions.CreateAuction)
	write("POST /api/auctions/mint", handlers.Auctions.MintWithAuction)
	write("POST /api/auctions/{tokenId}/bids", handlers.Auctions.PlaceBid)
	write("POST /api/auctions/{tokenId}/settle", handlers.Auctions.Settle)

	// Stakes.
	read("GET /api/stakes/{holder}", handlers.Stakes.GetStake)
	write("POST /api/stakes", handlers.Stakes.Stake)
	write("POST /api/stakes/{holder}/unstake", handlers.Stakes.Unstake)

	// Custody.
	read("GET /api/balances/{holder}", handlers.Custody.GetBalance)
	read("GET /api/allowances/{owner}", handlers.Custody.GetAllowance)
	read("GET /api/nfts", handlers.Custody.ListTokens)
	read("GET /api/nfts/{tokenId}", handlers.Custody.GetToken)
	write("POST /api/nfts", handlers.Custody.MintNFT)
	write("POST /api/custody/approvals", handlers.Custody.Approve)
	write("POST /api/custody/credits", handlers.Custody.Credit)

	// Event log.
	read("GET /api/events", handlers.Events.ListEvents)
	if opts.Hub != nil {
		read("GET /ws", opts.Hub.HandleWS)
	}

	if handlers.Prices != nil {
		read("GET /api/price", handlers.Prices.GetQuote)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	if opts.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(opts.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	if opts.Recorder != nil {
		h = middleware.Metrics(opts.Recorder)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
