package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperswap/pkg/app/market"
	"github.com/uhyunpark/hyperswap/pkg/crypto"
)

const maxBodyBytes = 64 << 10

// TradeHistory serves past trades for an order
type TradeHistory interface {
	ListTrades(ctx context.Context, order crypto.Pubkey) ([]market.Event, error)
}

// Options configures optional server features
type Options struct {
	Logger      *zap.SugaredLogger
	History     TradeHistory // nil disables the trades endpoint
	Faucet      bool
	CORSOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	app     *market.App
	router  *mux.Router
	hub     *Hub
	history TradeHistory
	faucet  bool
	origins []string
	logger  *zap.SugaredLogger

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a server and registers its WebSocket hub as an event sink
func NewServer(app *market.App, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}

	s := &Server{
		app:     app,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		history: opts.History,
		faucet:  opts.Faucet,
		origins: origins,
		logger:  logger,
	}
	app.AddSink(s.hub)

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Transactions
	api.HandleFunc("/transactions", s.handleSubmitTransaction).Methods("POST")

	// Records
	api.HandleFunc("/marketplace/{handle}", s.handleGetMarketplace).Methods("GET")
	api.HandleFunc("/orders/{handle}", s.handleGetOrder).Methods("GET")
	if s.history != nil {
		api.HandleFunc("/orders/{handle}/trades", s.handleGetTrades).Methods("GET")
	}
	api.HandleFunc("/token-accounts/{handle}", s.handleGetTokenAccount).Methods("GET")

	// Identities
	api.HandleFunc("/accounts/{address}/orders", s.handleGetSellerOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/balance", s.handleGetBalance).Methods("GET")

	api.HandleFunc("/authority", s.handleGetAuthority).Methods("GET")
	if s.faucet {
		api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves until Shutdown is called
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "failed to read body")
		return
	}

	receipt, err := s.app.Submit(r.Context(), body)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, SubmitResponse{Status: "committed", Receipt: receipt})
}

func (s *Server) handleGetMarketplace(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathKey(w, r, "handle")
	if !ok {
		return
	}

	m, err := s.app.Marketplace(handle)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, MarketplaceInfo{Handle: handle.String(), Marketplace: *m})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathKey(w, r, "handle")
	if !ok {
		return
	}

	o, err := s.app.Order(handle)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, OrderInfo{Handle: handle.String(), SellOrder: *o})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathKey(w, r, "handle")
	if !ok {
		return
	}

	trades, err := s.history.ListTrades(r.Context(), handle)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if trades == nil {
		trades = []market.Event{}
	}

	respondJSON(w, trades)
}

func (s *Server) handleGetTokenAccount(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathKey(w, r, "handle")
	if !ok {
		return
	}

	acc, err := s.app.TokenAccount(handle)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, newTokenAccountInfo(handle, acc))
}

func (s *Server) handleGetSellerOrders(w http.ResponseWriter, r *http.Request) {
	seller, ok := pathKey(w, r, "address")
	if !ok {
		return
	}

	handles, err := s.app.OrdersBySeller(seller)
	if err != nil {
		s.respondError(w, err)
		return
	}

	response := SellerOrders{Seller: seller.String(), Orders: make([]OrderInfo, 0, len(handles))}
	for _, h := range handles {
		o, err := s.app.Order(h)
		if err != nil {
			s.respondError(w, err)
			return
		}
		response.Orders = append(response.Orders, OrderInfo{Handle: h.String(), SellOrder: *o})
	}

	respondJSON(w, response)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathKey(w, r, "address")
	if !ok {
		return
	}

	lamports, err := s.app.Balance(id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	nonce, err := s.app.Nonce(id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, BalanceInfo{Address: id.String(), Lamports: lamports, Nonce: nonce})
}

func (s *Server) handleGetAuthority(w http.ResponseWriter, r *http.Request) {
	domain := s.app.Domain()
	respondJSON(w, AuthorityInfo{
		Authority: s.app.Authority().String(),
		ProgramID: domain.ProgramID.String(),
		Domain:    domain,
	})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := crypto.ParsePubkey(req.Address)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid address")
		return
	}

	credited, balance, err := s.app.Airdrop(r.Context(), id, req.Lamports)
	if err != nil {
		s.respondError(w, err)
		return
	}

	respondJSON(w, FaucetResponse{Address: id.String(), Credited: credited, Balance: balance})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func pathKey(w http.ResponseWriter, r *http.Request, name string) (crypto.Pubkey, bool) {
	k, err := crypto.ParsePubkey(mux.Vars(r)[name])
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid "+name)
		return crypto.Pubkey{}, false
	}
	return k, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondMessage(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// respondError maps err to a status and returns only its kind and code
// Missing records are 404, other rejections 400, anything else 500
func (s *Server) respondError(w http.ResponseWriter, err error) {
	kind := market.KindOf(err)
	if kind == nil {
		if errors.Is(err, market.ErrFaucetDisabled) {
			respondMessage(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Errorw("request_failed", "error", err)
		respondMessage(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusBadRequest
	if kind == market.ErrNotInitialized {
		status = http.StatusNotFound
	}
	code, _ := market.Code(kind)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: kind.Error(), Code: &code})
}
