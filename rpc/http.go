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
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tokensale/core/identity"
	"tokensale/native/registry"
	"tokensale/native/sale"
	"tokensale/observability"
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

	codeSaleClosed         = -32030
	codeInsufficientFunds  = -32031
	codeSupplyCapExceeded  = -32032
	codeRefundSourceAbsent = -32033
	codeExternalCallFailed = -32034
	codeMetadataNotSet     = -32035

	codeNonExistingTokenID = -32040
	codeInvalidRecipient   = -32041
)

// ServerConfig carries the server's collaborators. AuthToken guards mutating
// methods; Persist, when set, runs after every successful mutation.
type ServerConfig struct {
	AuthToken string
	Log       *slog.Logger
	Metrics   *observability.Metrics
	Persist   func() error
}

type Server struct {
	engine    *sale.Engine
	authToken string
	log       *slog.Logger
	metrics   *observability.Metrics
	persist   func() error
}

func NewServer(engine *sale.Engine, cfg ServerConfig) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:    engine,
		authToken: strings.TrimSpace(cfg.AuthToken),
		log:       log,
		metrics:   cfg.Metrics,
		persist:   cfg.Persist,
	}
}

// Router mounts the JSON-RPC endpoint next to health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(s.metrics.Middleware("rpc"))
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/rpc", s.handle)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
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
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	requestID := uuid.NewString()
	log := s.log.With("requestId", requestID)

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

	log.Debug("rpc request", "method", req.Method)

	if mutatingMethods[req.Method] {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	switch req.Method {
	case "sale_book":
		s.handleBook(w, r, req)
	case "sale_accept":
		s.handleAccept(w, r, req)
	case "sale_reject":
		s.handleReject(w, r, req)
	case "sale_resumeSettlement":
		s.handleResumeSettlement(w, r, req)
	case "sale_resumeRefunds":
		s.handleResumeRefunds(w, r, req)
	case "sale_refundInvestor":
		s.handleRefundInvestor(w, r, req)
	case "sale_updateMetadata":
		s.handleUpdateMetadata(w, r, req)
	case "sale_changeOwnership":
		s.handleChangeOwnership(w, r, req)
	case "sale_getStatus":
		s.handleGetStatus(w, r, req)
	case "sale_getBooked":
		s.handleGetBooked(w, r, req)
	case "sale_getTotalBooked":
		s.handleGetTotalBooked(w, r, req)
	case "sale_getParticipants":
		s.handleGetParticipants(w, r, req)
	case "sale_getEscrowAccount":
		s.handleGetEscrowAccount(w, r, req)
	case "sale_getMetadata":
		s.handleGetMetadata(w, r, req)
	case "registry_transfer":
		s.handleRegistryTransfer(w, r, req)
	case "registry_tokens":
		s.handleRegistryTokens(w, r, req)
	case "registry_tokensOf":
		s.handleRegistryTokensOf(w, r, req)
	case "registry_ownerOf":
		s.handleRegistryOwnerOf(w, r, req)
	case "registry_getCounter":
		s.handleRegistryCounter(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

// mutatingMethods gates the state-changing surface behind the bearer token.
var mutatingMethods = map[string]bool{
	"sale_book":             true,
	"sale_accept":           true,
	"sale_reject":           true,
	"sale_resumeSettlement": true,
	"sale_resumeRefunds":    true,
	"sale_refundInvestor":   true,
	"sale_updateMetadata":   true,
	"sale_changeOwnership":  true,
	"registry_transfer":     true,
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

// persistState flushes the snapshot after a successful mutation. Failures are
// logged, not surfaced: the in-memory state already committed.
func (s *Server) persistState() {
	if s.persist == nil {
		return
	}
	if err := s.persist(); err != nil {
		s.log.Error("state snapshot failed", "error", err)
	}
}

// errStatus maps a domain error onto the JSON-RPC code plus HTTP status.
func errStatus(err error) (int, int) {
	switch {
	case errors.Is(err, sale.ErrInvalidArgument):
		return codeInvalidParams, http.StatusBadRequest
	case errors.Is(err, sale.ErrUnauthorized), errors.Is(err, registry.ErrUnauthorized):
		return codeUnauthorized, http.StatusForbidden
	case errors.Is(err, sale.ErrSaleClosed):
		return codeSaleClosed, http.StatusConflict
	case errors.Is(err, sale.ErrInsufficientEscrowFunds):
		return codeInsufficientFunds, http.StatusUnprocessableEntity
	case errors.Is(err, sale.ErrSupplyCapExceeded):
		return codeSupplyCapExceeded, http.StatusUnprocessableEntity
	case errors.Is(err, sale.ErrRefundSourceNotFound):
		return codeRefundSourceAbsent, http.StatusUnprocessableEntity
	case errors.Is(err, sale.ErrExternalCallFailed):
		return codeExternalCallFailed, http.StatusBadGateway
	case errors.Is(err, sale.ErrMetadataNotSet):
		return codeMetadataNotSet, http.StatusConflict
	case errors.Is(err, registry.ErrNonExistingTokenID):
		return codeNonExistingTokenID, http.StatusNotFound
	case errors.Is(err, registry.ErrInvalidRecipient):
		return codeInvalidRecipient, http.StatusBadRequest
	default:
		return codeServerError, http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, id interface{}, err error) {
	if s.metrics != nil && errors.Is(err, sale.ErrExternalCallFailed) {
		s.metrics.ExternalFailures.Inc()
	}
	code, status := errStatus(err)
	writeError(w, status, id, code, err.Error(), nil)
}

// singleParam decodes the one positional parameter object the sale methods
// accept.
func singleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func decodeHandle(s string) (identity.Handle, error) {
	return identity.Decode(strings.TrimSpace(s))
}
