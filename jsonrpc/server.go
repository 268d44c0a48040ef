// Package jsonrpc implements a JSONRPC2.0 compliant server as described in https://www.jsonrpc.org/specification
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/NethermindEth/katana/utils"
	"github.com/sourcegraph/conc/pool"
)

const (
	InvalidJSON    = -32700 // Invalid JSON was received by the server.
	InvalidRequest = -32600 // The JSON sent is not a valid Request object.
	MethodNotFound = -32601 // The method does not exist / is not available.
	InvalidParams  = -32602 // Invalid method parameter(s).
	InternalError  = -32603 // Internal JSON-RPC error.
)

const (
	DefaultMaxGoroutines = 32

	version = "2.0"
)

var ErrInvalidID = errors.New("id should be a string or an integer")

// Both id and params are kept raw until the request is routed: params decode straight into the
// handler's argument types.
type request struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type response struct {
	Version string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

func failure(id json.RawMessage, err *Error) *response {
	return &response{Version: version, Error: err, ID: id}
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// CloneWithData returns a copy of e carrying data. Predefined errors are shared, so they must
// never be mutated.
func (e *Error) CloneWithData(data any) *Error {
	clone := *e
	clone.Data = data
	return &clone
}

var messages = map[int]string{
	InvalidJSON:    "Parse error",
	InvalidRequest: "Invalid Request",
	MethodNotFound: "Method Not Found",
	InvalidParams:  "Invalid Params",
}

// Err builds one of the standard errors. Unknown codes become an InternalError.
func Err(code int, data any) *Error {
	msg, ok := messages[code]
	if !ok {
		return &Error{Code: InternalError, Message: "Internal Error", Data: data}
	}
	return &Error{Code: code, Message: msg, Data: data}
}

// null reports whether a raw member is absent or an explicit null.
func null(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func (r *request) notification() bool {
	return null(r.ID)
}

func (r *request) check() error {
	if r.Version != version {
		return errors.New("unsupported RPC request version")
	}
	if r.Method == "" {
		return errors.New("no method specified")
	}
	if !null(r.Params) && r.Params[0] != '[' && r.Params[0] != '{' {
		return errors.New("params should be an array or an object")
	}

	if r.notification() {
		return nil
	}
	switch id := r.ID; {
	case id[0] == '"':
		return nil
	case id[0] == '-' || (id[0] >= '0' && id[0] <= '9'):
		if !bytes.ContainsAny(id, ".eE") {
			return nil
		}
	}
	return ErrInvalidID
}

type Validator interface {
	Struct(any) error
}

type Server struct {
	methods   map[string]*Method
	validator Validator
	listener  EventListener
	log       utils.SimpleLogger
	pool      *pool.Pool
}

// NewServer instantiates a JSONRPC server. Requests of a batch run on at most poolMaxGoroutines
// goroutines.
func NewServer(poolMaxGoroutines int, log utils.SimpleLogger) *Server {
	return &Server{
		methods:  make(map[string]*Method),
		listener: &SelectiveListener{},
		log:      log,
		pool:     pool.New().WithMaxGoroutines(poolMaxGoroutines),
	}
}

// WithValidator registers a validator to validate handler struct arguments
func (s *Server) WithValidator(validator Validator) *Server {
	s.validator = validator
	return s
}

func (s *Server) WithListener(listener EventListener) *Server {
	s.listener = listener
	return s
}

// RegisterMethods verifies and creates endpoints that the server recognises.
//
// A handler is a function returning (any, *jsonrpc.Error). It may take a context.Context first,
// followed by one argument per entry of Params, in order.
func (s *Server) RegisterMethods(methods ...Method) error {
	for _, method := range methods {
		if err := method.bind(); err != nil {
			return err
		}
		s.methods[method.Name] = &method
	}
	return nil
}

// HandleReader processes the request read from reader and returns the response. A nil response
// means the request was a notification.
func (s *Server) HandleReader(ctx context.Context, reader io.Reader) ([]byte, error) {
	return s.handle(ctx, reader)
}

// handle only fails when the reader is exhausted or the response can not be encoded.
func (s *Server) handle(ctx context.Context, reader io.Reader) ([]byte, error) {
	var msg json.RawMessage
	if err := json.NewDecoder(reader).Decode(&msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		return json.Marshal(failure(nil, Err(InvalidJSON, err.Error())))
	}

	if msg[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(msg, &batch); err != nil {
			return json.Marshal(failure(nil, Err(InvalidJSON, err.Error())))
		}
		if len(batch) == 0 {
			return json.Marshal(failure(nil, Err(InvalidRequest, "empty batch")))
		}
		return s.handleBatch(ctx, batch)
	}

	req := new(request)
	if err := json.Unmarshal(msg, req); err != nil {
		return json.Marshal(failure(nil, Err(InvalidJSON, err.Error())))
	}
	if res := s.serve(ctx, req); res != nil {
		return json.Marshal(res)
	}
	return nil, nil
}

// handleBatch answers in request order. Notifications leave no gap, and a batch made only of
// notifications gets no answer at all.
func (s *Server) handleBatch(ctx context.Context, batch []json.RawMessage) ([]byte, error) {
	results := make([]*response, len(batch))

	var wg sync.WaitGroup
	for i, raw := range batch {
		req := new(request)
		if err := json.Unmarshal(raw, req); err != nil {
			results[i] = failure(nil, Err(InvalidRequest, err.Error()))
			continue
		}

		wg.Add(1)
		s.pool.Go(func() {
			defer wg.Done()
			results[i] = s.serve(ctx, req)
		})
	}
	wg.Wait()

	encoded := make([]json.RawMessage, 0, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		b, err := json.Marshal(res)
		if err != nil {
			s.log.Errorw("Failed to marshal response", "err", err)
			continue
		}
		encoded = append(encoded, b)
	}
	if len(encoded) == 0 {
		return nil, nil
	}
	return json.Marshal(encoded)
}

// serve runs a single request. Malformed requests and unknown methods are answered even when
// they are notifications.
func (s *Server) serve(ctx context.Context, req *request) *response {
	s.log.Debugw("Serving RPC request", "method", req.Method, "id", string(req.ID))
	if err := req.check(); err != nil {
		id := req.ID
		if errors.Is(err, ErrInvalidID) {
			id = nil
		}
		return failure(id, Err(InvalidRequest, err.Error()))
	}

	method, found := s.methods[req.Method]
	if !found {
		rpcErr := Err(MethodNotFound, nil)
		s.listener.OnRequestFailed(req.Method, rpcErr)
		return failure(req.ID, rpcErr)
	}

	s.listener.OnNewRequest(req.Method)
	start := time.Now()
	args, err := s.arguments(ctx, method, req.Params)
	if err != nil {
		rpcErr := Err(InvalidParams, err.Error())
		s.listener.OnRequestFailed(req.Method, rpcErr)
		return failure(req.ID, rpcErr)
	}

	result, rpcErr := method.call(args)
	took := time.Since(start)
	s.log.Debugw("Responding to RPC request", "method", req.Method, "id", string(req.ID), "took", took)
	if rpcErr != nil {
		s.listener.OnRequestFailed(req.Method, rpcErr)
	} else {
		s.listener.OnRequestHandled(req.Method, took)
	}

	if req.notification() {
		return nil
	}
	if rpcErr != nil {
		return failure(req.ID, rpcErr)
	}
	return &response{Version: version, Result: result, ID: req.ID}
}
