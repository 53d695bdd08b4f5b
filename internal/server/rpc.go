package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/copyleftdev/anneal/internal/config"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type runIDParams struct {
	RunID string `json:"run_id"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	s.requestLogger(r).Debug("RPC call", map[string]interface{}{"method": request.Method})

	var (
		result interface{}
		rerr   *rpcError
	)
	switch request.Method {
	case "annealing.start":
		result, rerr = s.rpcStart(request.Params)
	case "annealing.status":
		result, rerr = s.rpcStatus(request.Params)
	case "annealing.cancel":
		result, rerr = s.rpcCancel(request.Params)
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if rerr != nil {
		s.respondWithError(w, rerr.Code, rerr.Message, request.ID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParams accepts params either as an object or as a one-element array
// holding the object.
func decodeParams(raw json.RawMessage, v interface{}) *rpcError {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return &rpcError{Code: codeInvalidParams, Message: "missing required parameters"}
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) != 1 {
			return &rpcError{Code: codeInvalidParams, Message: "invalid parameter format, expected object"}
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "invalid parameter format: " + err.Error()}
	}
	return nil
}

func (s *Server) rpcStart(raw json.RawMessage) (interface{}, *rpcError) {
	var rc config.RunConfig
	if rerr := decodeParams(raw, &rc); rerr != nil {
		return nil, rerr
	}
	state, err := s.StartRun(rc)
	if err != nil {
		if startErrorStatus(err) == http.StatusBadRequest {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
		return nil, &rpcError{Code: codeServerError, Message: err.Error()}
	}
	return map[string]string{"run_id": state.ID, "status": StatusPending}, nil
}

func (s *Server) rpcStatus(raw json.RawMessage) (interface{}, *rpcError) {
	var p runIDParams
	if rerr := decodeParams(raw, &p); rerr != nil {
		return nil, rerr
	}
	if p.RunID == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "run_id is required"}
	}
	status, err := s.Status(p.RunID)
	if err != nil {
		return nil, &rpcError{Code: codeServerError, Message: err.Error()}
	}
	return status, nil
}

func (s *Server) rpcCancel(raw json.RawMessage) (interface{}, *rpcError) {
	var p runIDParams
	if rerr := decodeParams(raw, &p); rerr != nil {
		return nil, rerr
	}
	if p.RunID == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "run_id is required"}
	}
	if err := s.CancelRun(p.RunID); err != nil {
		return nil, &rpcError{Code: codeServerError, Message: err.Error()}
	}
	return map[string]string{"run_id": p.RunID, "status": StatusCancelled}, nil
}

// respondWithError sends a JSON-RPC 2.0 error response.
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcError{Code: code, Message: message},
		"id":      id,
	})
}
