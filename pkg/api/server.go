package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/deeppool/pkg/app/core/account"
	"github.com/uhyunpark/deeppool/pkg/app/core/pool"
	"github.com/uhyunpark/deeppool/pkg/app/core/transaction"
	"github.com/uhyunpark/deeppool/pkg/app/dex"
	"github.com/uhyunpark/deeppool/pkg/storage"
)

const (
	defaultDepth      = 20
	defaultEventLimit = 100
	maxEventLimit     = 1000
	maxBodyBytes      = 1 << 20
)

type Options struct {
	AllowedOrigins []string
	// Faucet enables POST /api/v1/faucet, which credits any address without
	// a signature.
	Faucet bool
}

// Server handles REST API and WebSocket connections
type Server struct {
	app     *dex.App
	router  *mux.Router
	hub     *Hub // WebSocket hub
	metrics *Metrics
	log     *zap.SugaredLogger
	opts    Options
	http    *http.Server
}

// NewServer creates the API server, subscribes it to the app's event and
// epoch streams and starts the WebSocket hub.
func NewServer(app *dex.App, logger *zap.Logger, opts Options) *Server {
	log := logger.Sugar().Named("api")
	metrics := NewMetrics()
	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		hub:     NewHub(log, metrics),
		metrics: metrics,
		log:     log,
		opts:    opts,
	}

	s.setupRoutes()
	app.OnEvents(s.onEvents)
	app.OnEpoch(s.onEpoch)
	metrics.epoch.Set(float64(app.Epoch()))
	app.ViewAll(func(pools []*pool.Pool) {
		for _, p := range pools {
			bids, asks := p.OrderCount()
			metrics.setBook(p.Key(), bids, asks)
		}
	})

	go s.hub.Run()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.metrics.middleware)

	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Node
	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")

	// Pool endpoints
	api.HandleFunc("/pools", s.handleGetPools).Methods("GET")
	api.HandleFunc("/pools/{pool}", s.handleGetPool).Methods("GET")
	api.HandleFunc("/pools/{pool}/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/pools/{pool}/levels/{side:bid|ask}/{price:[0-9]+}", s.handleGetLevel).Methods("GET")
	api.HandleFunc("/pools/{pool}/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/pools/{pool}/users/{address}", s.handleGetUser).Methods("GET")
	api.HandleFunc("/pools/{pool}/epochs/{epoch:[0-9]+}", s.handleGetEpoch).Methods("GET")
	api.HandleFunc("/pools/{pool}/events", s.handleGetEvents).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")

	// Signed request submission
	api.HandleFunc("/requests", s.handleSubmitRequest).Methods("POST")

	if s.opts.Faucet {
		api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")
	}

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check and metrics
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Infow("server_starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and disconnects WebSocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.hub.Stop()
	return err
}

// Hub exposes the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// ==============================
// Event Fan-out (called from the app after each commit)
// ==============================

func (s *Server) onEvents(records []storage.EventRecord) {
	s.metrics.observeEvents(records)

	touched := make(map[string]bool)
	for _, rec := range records {
		s.hub.BroadcastToChannel(EventsChannel(rec.Pool), "event", rec)
		touched[rec.Pool] = true
	}
	for key := range touched {
		s.broadcastOrderbook(key)
	}
}

func (s *Server) onEpoch(e uint64) {
	s.metrics.epoch.Set(float64(e))
	s.hub.BroadcastToChannel(ChannelEpoch, "epoch", EpochUpdate{
		Epoch:     e,
		Timestamp: time.Now().UnixMilli(),
	})
}

// broadcastOrderbook pushes the pool's depth to its orderbook channel and
// refreshes the book gauges.
func (s *Server) broadcastOrderbook(key string) {
	var snap OrderbookSnapshot
	err := s.app.View(key, func(p *pool.Pool) error {
		bids, asks := p.OrderCount()
		s.metrics.setBook(p.Key(), bids, asks)
		snap = orderbookOf(p, defaultDepth)
		return nil
	})
	if err != nil {
		s.log.Warnw("orderbook_broadcast_failed", "pool", key, "err", err)
		return
	}
	s.hub.BroadcastToChannel(OrderbookChannel(snap.Pool), "orderbook", snap)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status := NodeStatus{
		Epoch:    s.app.Epoch(),
		Pools:    s.app.Registry().Count(),
		Accounts: s.app.Ledger().Count(),
	}
	if op := s.app.Operator(); op != (common.Address{}) {
		status.Operator = op.Hex()
	}
	respondJSON(w, status)
}

func (s *Server) handleGetPools(w http.ResponseWriter, r *http.Request) {
	var response []PoolInfo
	s.app.ViewAll(func(pools []*pool.Pool) {
		response = make([]PoolInfo, len(pools))
		for i, p := range pools {
			response[i] = poolInfoOf(p)
		}
	})
	respondJSON(w, response)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	var response PoolInfo
	err := s.app.View(mux.Vars(r)["pool"], func(p *pool.Pool) error {
		response = poolInfoOf(p)
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth", defaultDepth)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid depth", err.Error())
		return
	}

	var response OrderbookSnapshot
	err = s.app.View(mux.Vars(r)["pool"], func(p *pool.Pool) error {
		response = orderbookOf(p, depth)
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, response)
}

func (s *Server) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	price, err := strconv.ParseUint(vars["price"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}

	var response LevelDetail
	err = s.app.View(vars["pool"], func(p *pool.Pool) error {
		info, orders, ok := p.Level(vars["side"] == "bid", price)
		if !ok {
			return fmt.Errorf("%w: no %s level at %d", pool.ErrNotFound, vars["side"], price)
		}
		response = LevelDetail{LevelInfo: info, Orders: orders}
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}

	var response any
	err = s.app.View(vars["pool"], func(p *pool.Pool) error {
		o, ok := p.Order(id)
		if !ok {
			return fmt.Errorf("%w: order %d", pool.ErrNotFound, id)
		}
		response = o
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, response)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	addr, ok := parseAddress(w, vars["address"])
	if !ok {
		return
	}

	var response UserInfo
	err := s.app.View(vars["pool"], func(p *pool.Pool) error {
		u := p.User(addr)
		u.Owner = addr
		response = UserInfo{Pool: p.Key(), User: u, Orders: p.OrdersOf(addr)}
		return nil
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, response)
}

func (s *Server) handleGetEpoch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	e, err := strconv.ParseUint(vars["epoch"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid epoch", err.Error())
		return
	}

	var response any
	err = s.app.View(vars["pool"], func(p *pool.Pool) error {
		d, err := p.EpochData(e)
		response = d
		return err
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, response)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryInt(r, "after", 0)
	if err != nil || after < 0 {
		respondError(w, http.StatusBadRequest, "invalid after", "")
		return
	}
	limit, err := queryInt(r, "limit", defaultEventLimit)
	if err != nil || limit <= 0 {
		respondError(w, http.StatusBadRequest, "invalid limit", "")
		return
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	events, err := s.app.Events(mux.Vars(r)["pool"], uint64(after), limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	if events == nil {
		events = []storage.EventRecord{}
	}
	respondJSON(w, events)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}

	acc := s.app.Ledger().GetAccount(addr)
	respondJSON(w, AccountInfo{
		Address:  addr.Hex(),
		Nonce:    acc.Nonce,
		Balances: acc.Balances,
	})
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req transaction.SignedRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON request", err.Error())
		return
	}

	result, err := s.app.Execute(&req)
	s.metrics.observeRequest(string(req.Type), err)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, result)
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(w, req.Address)
	if !ok {
		return
	}
	if err := s.app.Deposit(addr, req.Asset, req.Amount); err != nil {
		respondErr(w, err)
		return
	}

	acc := s.app.Ledger().GetAccount(addr)
	respondJSON(w, AccountInfo{Address: addr.Hex(), Nonce: acc.Nonce, Balances: acc.Balances})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func poolInfoOf(p *pool.Pool) PoolInfo {
	info := PoolInfo{
		Key:       p.Key(),
		Base:      p.BaseAsset(),
		Quote:     p.QuoteAsset(),
		FeeAsset:  p.FeeAsset(),
		TickSize:  p.TickSize(),
		LotSize:   p.LotSize(),
		CreatedAt: p.CreatedAt(),
		Epoch:     p.CurrentEpoch(),
		Balances:  p.Balances(),
	}
	info.BestBid, _ = p.BestBid()
	info.BestAsk, _ = p.BestAsk()
	info.BidOrders, info.AskOrders = p.OrderCount()
	if next, ok := p.NextEpoch(); ok {
		info.NextEpoch = &next
	}
	if perBase, perQuote, err := p.OracleRates(); err == nil {
		info.DeepPerBase, info.DeepPerQuote = perBase, perQuote
	}
	return info
}

func orderbookOf(p *pool.Pool, depth int) OrderbookSnapshot {
	return OrderbookSnapshot{
		Pool:      p.Key(),
		Bids:      p.Levels(true, depth),
		Asks:      p.Levels(false, depth),
		Timestamp: time.Now().UnixMilli(),
	}
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, pool.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, transaction.ErrBadSignature),
		errors.Is(err, transaction.ErrSignerMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, pool.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, transaction.ErrReplayed):
		return http.StatusConflict
	case errors.Is(err, pool.ErrInsufficientFunds),
		errors.Is(err, account.ErrInsufficientFunds),
		errors.Is(err, pool.ErrInsufficientStake),
		errors.Is(err, pool.ErrPricingUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pool.ErrCustodyViolation):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondErr(w http.ResponseWriter, err error) {
	code := statusOf(err)
	respondError(w, code, http.StatusText(code), err.Error())
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
