package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketnet/core"
	"marketnet/native/common"
	"marketnet/native/market"
	"marketnet/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the marketplace over JSON-RPC. Write methods build the
// atomic call group for the operation and submit it to the node; query
// methods read committed state. Write methods require the bearer token named
// by the configured environment variable.
type Server struct {
	node      *core.Node
	authToken string
	logger    *slog.Logger
}

// NewServer wires a JSON-RPC server to the node. tokenEnv names the
// environment variable holding the bearer token for write methods; an unset
// variable leaves write methods disabled.
func NewServer(node *core.Node, tokenEnv string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	token := ""
	if tokenEnv != "" {
		token = strings.TrimSpace(os.Getenv(tokenEnv))
	}
	return &Server{node: node, authToken: token, logger: logger}
}

// Handler returns the HTTP handler serving the RPC endpoint at / and the
// Prometheus metrics endpoint at /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start blocks serving the RPC endpoint on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", "component", "rpc", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
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

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// writeSubmitError maps marketplace rejections onto JSON-RPC error codes.
func writeSubmitError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, market.ErrMalformedRequest):
		writeError(w, http.StatusOK, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, market.ErrUnauthorized):
		writeError(w, http.StatusOK, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, common.ErrModuleHalted):
		writeError(w, http.StatusServiceUnavailable, id, codeServerError, err.Error(), nil)
	default:
		writeError(w, http.StatusOK, id, codeServerError, err.Error(), nil)
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
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
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
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

	switch req.Method {
	case "market_initialize":
		s.withAuth(w, r, req, s.handleInitialize)
	case "market_setupSale":
		s.withAuth(w, r, req, s.handleSetupSale)
	case "market_buy":
		s.withAuth(w, r, req, s.handleBuy)
	case "market_executeTransfer":
		s.withAuth(w, r, req, s.handleExecuteTransfer)
	case "market_refund":
		s.withAuth(w, r, req, s.handleRefund)
	case "market_claimFees":
		s.withAuth(w, r, req, s.handleClaimFees)
	case "market_optInAsset":
		s.withAuth(w, r, req, s.handleOptInAsset)
	case "market_getConfig":
		s.handleGetConfig(w, req)
	case "market_getListing":
		s.handleGetListing(w, req)
	case "market_listListings":
		s.handleListListings(w, req)
	case "market_getAccount":
		s.handleGetAccount(w, req)
	case "market_getRound":
		writeResult(w, req.ID, map[string]uint64{"round": s.node.Round()})
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (s *Server) withAuth(w http.ResponseWriter, r *http.Request, req *RPCRequest, next func(http.ResponseWriter, *RPCRequest)) {
	if authErr := s.requireAuth(r); authErr != nil {
		s.logger.Warn("rejected RPC call",
			"component", "rpc",
			"method", req.Method,
			"reason", authErr.Message,
			logging.MaskField("token", r.Header.Get("Authorization")),
		)
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, req)
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
