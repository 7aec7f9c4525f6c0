package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"powledger/cache"
	"powledger/core"
	"powledger/logger"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
)

type Config struct {
	Host          string
	Port          int
	CacheTTL      time.Duration
	Difficulty    uint256.Int
	SubmitTimeout time.Duration
}

type Server struct {
	config    *Config
	miner     *core.Miner
	hashIndex *cache.Cache[string, uint64]
	server    *http.Server
	router    *mux.Router
	ledgerAPI *LedgerAPI
	miningAPI *MiningAPI
}

type JSONRPCRequest struct {
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Version string        `json:"jsonrpc"`
}

type JSONRPCResponse struct {
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	Version string        `json:"jsonrpc"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

var errMethodNotFound = errors.New("method not found")

func NewServer(config *Config, miner *core.Miner) *Server {
	ttl := config.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	hashIndex := cache.New[string, uint64]()

	s := &Server{
		config:    config,
		miner:     miner,
		hashIndex: hashIndex,
		ledgerAPI: NewLedgerAPI(miner, hashIndex, ttl),
		miningAPI: NewMiningAPI(miner, config.Difficulty, config.SubmitTimeout),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/", s.handleRPC).Methods("POST", "OPTIONS") // OPTIONS untuk CORS preflight
	router.HandleFunc("/health", s.handleHealth).Methods("GET", "OPTIONS")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/blocks", s.ledgerAPI.BlocksHandler).Methods("GET", "OPTIONS")
	api.HandleFunc("/blocks", s.miningAPI.SubmitHandler).Methods("POST")
	api.HandleFunc("/blocks/hash/{hash}", s.ledgerAPI.BlockByHashHandler).Methods("GET", "OPTIONS")
	api.HandleFunc("/blocks/{index:[0-9]+}", s.ledgerAPI.BlockByIndexHandler).Methods("GET", "OPTIONS")
	api.HandleFunc("/verify", s.ledgerAPI.VerifyHandler).Methods("GET", "OPTIONS")
	api.HandleFunc("/metrics", s.miningAPI.MetricsHandler).Methods("GET", "OPTIONS")

	return router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *Server) Start() error {
	addr := s.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("RPC server error: %v", err)
		}
	}()

	logger.Infof("JSON-RPC server with REST API started on %s", addr)
	return nil
}

func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			logger.Warningf("RPC server shutdown: %v", err)
		}
		logger.Info("JSON-RPC server stopped")
	}
	s.hashIndex.Close()
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warningf("RPC: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"miner":  s.miner.IsRunning(),
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, codeParseError, "Parse error")
		return
	}

	result, err := s.handleMethod(req.Method, req.Params)
	if err != nil {
		code := codeInternalError
		switch {
		case errors.Is(err, errMethodNotFound):
			code = codeMethodNotFound
		case errors.Is(err, errInvalidParams):
			code = codeInvalidParams
		}
		s.sendError(w, req.ID, code, err.Error())
		return
	}

	response := JSONRPCResponse{
		ID:      req.ID,
		Result:  result,
		Version: "2.0",
	}
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleMethod(method string, params []interface{}) (interface{}, error) {
	switch method {
	case "ledger_blockNumber":
		return s.ledgerAPI.blockNumber()
	case "ledger_getBlockByNumber":
		return s.ledgerAPI.getBlockByNumber(params)
	case "ledger_getBlockByHash":
		return s.ledgerAPI.getBlockByHash(params)
	case "ledger_verify":
		return s.ledgerAPI.verify(), nil
	default:
		return nil, fmt.Errorf("%w: %s", errMethodNotFound, method)
	}
}

func (s *Server) sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	response := JSONRPCResponse{
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
		Version: "2.0",
	}
	json.NewEncoder(w).Encode(response)
}
