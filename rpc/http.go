package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftmarket/core"
	"nftmarket/indexer"
	"nftmarket/observability"
)

const (
	jsonRPCVersion      = "2.0"
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	moduleName          = "market"
)

const (
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
	codeServerError       = -32000
	codeUnauthorized      = -32001
	codeRateLimited       = -32020
	codeInvalidBidAmount  = -32030
	codeNotOwner          = -32031
	codeNotFound          = -32032
	codeClaimed           = -32033
	codeExpired           = -32034
	codeInsufficientFunds = -32035
)

// HistorySource serves market_sales and market_events. The indexer
// satisfies it.
type HistorySource interface {
	Sales(ctx context.Context, assetID string, limit int) ([]indexer.Sale, error)
	Events(ctx context.Context, eventType, assetID string, limit int) ([]indexer.EventRecord, error)
}

// ServerConfig carries the listener-independent server settings.
type ServerConfig struct {
	JWTSecret         string
	JWTIssuer         string
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

type Server struct {
	node    *core.Node
	history HistorySource
	cfg     ServerConfig
	auth    *authenticator
	limiter *rateLimiter
	logger  *slog.Logger
	metrics interface {
		Observe(module, method string, code int, duration time.Duration)
		RecordThrottle(module, reason string)
	}
}

// NewServer wires the JSON-RPC surface over node. history may be nil when
// the indexer is disabled.
func NewServer(node *core.Node, history HistorySource, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := newAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		node:    node,
		history: history,
		cfg:     cfg,
		auth:    auth,
		limiter: newRateLimiter(cfg.RequestsPerSecond, cfg.Burst),
		logger:  logger,
		metrics: observability.ModuleMetrics(),
	}, nil
}

// Handler returns the instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "marketd")
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("json-rpc server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	if rec, ok := w.(*statusRecorder); ok {
		rec.code = code
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// statusRecorder captures the HTTP status and JSON-RPC error code written by
// a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	code   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type route struct {
	handler handlerFunc
	// mutating routes require a bearer token and draw from the rate limit.
	mutating bool
}

func (s *Server) routes() map[string]route {
	return map[string]route{
		"market_mint":        {s.handleMint, true},
		"market_publishAsk":  {s.handlePublishAsk, true},
		"market_withdrawAsk": {s.handleWithdrawAsk, true},
		"market_placeBid":    {s.handlePlaceBid, true},
		"market_acceptBid":   {s.handleAcceptBid, true},
		"market_withdrawBid": {s.handleWithdrawBid, true},
		"market_approve":     {s.handleApprove, true},
		"market_lock":        {s.handleLock, true},
		"market_unlock":      {s.handleUnlock, true},
		"market_currentAsk":  {s.handleCurrentAsk, false},
		"market_bid":         {s.handleBid, false},
		"market_bids":        {s.handleBids, false},
		"market_ownerOf":     {s.handleOwnerOf, false},
		"market_token":       {s.handleToken, false},
		"market_sales":       {s.handleSales, false},
		"market_events":      {s.handleEvents, false},
		"bank_balance":       {s.handleBalance, false},
		"node_status":        {s.handleStatus, false},
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	rt, ok := s.routes()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	start := time.Now()
	requestID := uuid.NewString()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		s.metrics.Observe(moduleName, req.Method, recorder.code, time.Since(start))
		s.logger.Debug("rpc request",
			slog.String("request_id", requestID),
			slog.String("method", req.Method),
			slog.Int("status", recorder.status),
			slog.Int("code", recorder.code),
			slog.Duration("duration", time.Since(start)))
	}()

	if rt.mutating {
		if !s.limiter.Allow(clientID(r)) {
			s.metrics.RecordThrottle(moduleName, "rate_limit")
			writeError(recorder, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		caller, authErr := s.auth.caller(r)
		if authErr != nil {
			writeError(recorder, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		r = r.WithContext(withCaller(r.Context(), caller))
	}
	rt.handler(recorder, r, req)
}
