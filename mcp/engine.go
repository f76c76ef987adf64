// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpkit/mcp-go/mcp/jsonrpc"
	"github.com/mcpkit/mcp-go/mcp/transport"
	"github.com/mcpkit/mcp-go/toolbox"
)

// DefaultRequestTimeout is applied to Engine.Call when RequestOptions.Timeout
// is zero (section 4.H step 6).
const DefaultRequestTimeout = 60 * time.Second

// RequestHandler answers one inbound request. Returning an error causes the
// engine to reply InternalError with the error's message as data (section
// 4.H); handlers that want a specific JSON-RPC error code should return
// *jsonrpc.Error directly.
type RequestHandler func(ctx context.Context, req *jsonrpc.Request) (any, error)

// NotificationHandler processes one inbound notification; it returns nothing
// because notifications never receive a reply.
type NotificationHandler func(ctx context.Context, n *jsonrpc.Notification)

// CapabilityAsserter is implemented by each role (client, server) to gate
// sends against the capabilities negotiated at initialize (section 4.H).
type CapabilityAsserter interface {
	// AssertCapabilityForMethod checks the REMOTE capability needed to send
	// a request/notification of this method.
	AssertCapabilityForMethod(method string) error
	// AssertNotificationCapability checks the LOCAL capability needed to
	// send a notification of this method.
	AssertNotificationCapability(method string) error
	// AssertRequestHandlerCapability checks the LOCAL capability needed to
	// answer requests of this method.
	AssertRequestHandlerCapability(method string) error
}

// RequestOptions configures a single outgoing request.
type RequestOptions struct {
	// Timeout overrides DefaultRequestTimeout.
	Timeout time.Duration
	// OnProgress, if set, opts this request into progress notifications: its
	// id is injected as params._meta.progressToken (invariant I4).
	OnProgress func(Progress)
}

type pendingRequest struct {
	reply    chan *jsonrpc.Response
	progress func(Progress)
}

// inflightHandler tracks a locally-dispatched request handler invocation so
// an inbound notifications/cancelled can abort it (section 4.H).
type inflightHandler struct {
	cancel context.CancelFunc
}

// Engine is the protocol correlator shared by the client and server roles
// (section 4.H): request/response correlation, notification dispatch,
// progress routing, timeouts, cancellation, and the capability gate. It
// exclusively owns the transport once attached (section 3.5).
type Engine struct {
	logger toolbox.Logger
	caps   CapabilityAsserter

	// StrictCapabilities gates outgoing requests/notifications against the
	// capability the remote peer advertised at initialize (invariant I5).
	// Locally-handled requests are always gated, regardless of this flag.
	StrictCapabilities bool

	transport transport.Transport
	nextId    atomic.Int64

	handlersMu           sync.RWMutex
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler
	fallbackRequest      RequestHandler
	fallbackNotification NotificationHandler

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	inflightMu sync.Mutex
	inflight   map[string]*inflightHandler

	onErrorMu sync.Mutex
	onError   []func(error)

	closeOnce sync.Once
}

// NewEngine constructs an Engine for one session. caps supplies the
// role-specific capability assertions; logger may be nil.
func NewEngine(caps CapabilityAsserter, logger toolbox.Logger) *Engine {
	return &Engine{
		caps:                 caps,
		logger:               logger,
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		pending:              make(map[string]*pendingRequest),
		inflight:             make(map[string]*inflightHandler),
	}
}

// Attach binds the engine to t and starts the transport; from this point the
// engine exclusively owns t (section 3.5). Attach registers the engine's
// OnMessage/OnClose hooks additively, so other callers may still chain their
// own hooks on t before or after Attach.
func (e *Engine) Attach(ctx context.Context, t transport.Transport) error {
	e.transport = t
	t.OnMessage(e.handleMessage)
	t.OnClose(e.handleTransportClose)
	t.OnError(e.fireError)
	return t.Start(ctx)
}

// HandleRequest registers the handler for inbound requests of method.
func (e *Engine) HandleRequest(method string, h RequestHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.requestHandlers[method] = h
}

// HandleNotification registers the handler for inbound notifications of
// method.
func (e *Engine) HandleNotification(method string, h NotificationHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.notificationHandlers[method] = h
}

// SetFallbackRequestHandler answers any request with no specific handler.
func (e *Engine) SetFallbackRequestHandler(h RequestHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.fallbackRequest = h
}

// SetFallbackNotificationHandler handles any notification with no specific
// handler.
func (e *Engine) SetFallbackNotificationHandler(h NotificationHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.fallbackNotification = h
}

// OnError chains an additional error observer (design note: callback chains
// never overwrite).
func (e *Engine) OnError(h func(error)) {
	e.onErrorMu.Lock()
	defer e.onErrorMu.Unlock()
	e.onError = append(e.onError, h)
}

func (e *Engine) fireError(err error) {
	e.onErrorMu.Lock()
	handlers := append([]func(error){}, e.onError...)
	e.onErrorMu.Unlock()
	for _, h := range handlers {
		h(err)
	}
	if e.logger != nil {
		e.logger.Error("mcp: protocol error", "error", err)
	}
}

func (e *Engine) nextRequestId() jsonrpc.RequestId {
	return jsonrpc.NewNumberId(e.nextId.Add(1))
}

// Call sends a request and blocks until it completes, fails, is cancelled,
// or times out (section 4.H / request lifecycle in 3.4). The raw result
// bytes are returned for the caller to decode into a concrete type.
func (e *Engine) Call(ctx context.Context, method string, params any, opts RequestOptions) (json.RawMessage, error) {
	if e.StrictCapabilities {
		if err := e.caps.AssertCapabilityForMethod(method); err != nil {
			return nil, err
		}
	}

	id := e.nextRequestId()
	idKey := id.String()

	if opts.OnProgress != nil {
		merged, err := jsonrpc.WithProgressToken(params, id)
		if err != nil {
			return nil, err
		}
		params = merged
	}

	pr := &pendingRequest{reply: make(chan *jsonrpc.Response, 1), progress: opts.OnProgress}
	e.pendingMu.Lock()
	e.pending[idKey] = pr
	e.pendingMu.Unlock()

	req := jsonrpc.NewRequest(id, method, params)
	raw, err := json.Marshal(req)
	if err != nil {
		e.removePending(idKey)
		return nil, fmt.Errorf("mcp: marshal request: %w", err)
	}

	if err := e.transport.Send(ctx, raw, nil); err != nil {
		e.removePending(idKey)
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-pr.reply:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		e.removePending(idKey)
		e.sendCancelled(id, "context cancelled")
		return nil, ctx.Err()
	case <-timer.C:
		e.removePending(idKey)
		e.sendCancelled(id, "request timed out")
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeRequestTimeout, Message: fmt.Sprintf("request %q timed out after %s", method, timeout)}
	}
}

// sendCancelled sends notifications/cancelled best-effort; send errors are
// ignored (section 4.H step 6).
func (e *Engine) sendCancelled(id jsonrpc.RequestId, reason string) {
	n := jsonrpc.NewNotification(MethodCancelled, CancelledParams{RequestId: id, Reason: reason})
	raw, err := json.Marshal(n)
	if err != nil {
		return
	}
	_ = e.transport.Send(context.Background(), raw, nil)
}

func (e *Engine) removePending(idKey string) (*pendingRequest, bool) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	pr, ok := e.pending[idKey]
	if ok {
		delete(e.pending, idKey)
	}
	return pr, ok
}

// Notify sends a one-way notification; the local capability to send method
// is asserted first.
func (e *Engine) Notify(ctx context.Context, method string, params any) error {
	if err := e.caps.AssertNotificationCapability(method); err != nil {
		return err
	}
	n := jsonrpc.NewNotification(method, params)
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("mcp: marshal notification: %w", err)
	}
	return e.transport.Send(ctx, raw, nil)
}

// Respond sends a reply to an inbound request, optionally scoped to the SSE
// stream opened for it via RelatedRequestId (Streamable HTTP).
func (e *Engine) Respond(ctx context.Context, resp *jsonrpc.Response, relatedId string) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("mcp: marshal response: %w", err)
	}
	var opts *transport.SendOptions
	if relatedId != "" {
		opts = &transport.SendOptions{RelatedRequestId: relatedId}
	}
	return e.transport.Send(ctx, raw, opts)
}

// handleMessage is the single serialized inbound path (section 4.H):
// classify, then route to response correlation, request dispatch, or
// notification dispatch.
func (e *Engine) handleMessage(ctx context.Context, raw json.RawMessage) {
	kind, err := jsonrpc.Classify(raw)
	if err != nil {
		e.fireError(err)
		return
	}
	switch kind {
	case jsonrpc.KindResponse, jsonrpc.KindError:
		e.handleResponse(raw)
	case jsonrpc.KindRequest:
		go e.handleRequest(ctx, raw)
	case jsonrpc.KindNotification:
		e.handleNotification(ctx, raw)
	default:
		e.fireError(fmt.Errorf("mcp: unclassifiable message"))
	}
}

func (e *Engine) handleResponse(raw json.RawMessage) {
	resp, err := jsonrpc.DecodeResponse(raw)
	if err != nil {
		e.fireError(err)
		return
	}
	idKey := resp.Id.String()
	pr, ok := e.removePending(idKey)
	if !ok {
		e.fireError(fmt.Errorf("mcp: response for unknown message id %s", idKey))
		return
	}
	pr.reply <- resp
}

func (e *Engine) handleRequest(ctx context.Context, raw json.RawMessage) {
	req, err := jsonrpc.DecodeRequest(raw)
	if err != nil {
		e.fireError(err)
		return
	}

	relatedId := req.Id.String()
	ctx, cancel := context.WithCancel(ctx)
	e.inflightMu.Lock()
	e.inflight[relatedId] = &inflightHandler{cancel: cancel}
	e.inflightMu.Unlock()
	defer func() {
		cancel()
		e.inflightMu.Lock()
		delete(e.inflight, relatedId)
		e.inflightMu.Unlock()
	}()

	if err := e.caps.AssertRequestHandlerCapability(req.Method); err != nil {
		_ = e.Respond(ctx, jsonrpc.NewError(req.Id, jsonrpc.CodeMethodNotFound, err.Error(), nil), relatedId)
		return
	}

	handler := e.lookupRequestHandler(req.Method)
	if handler == nil {
		_ = e.Respond(ctx, jsonrpc.NewError(req.Id, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil), relatedId)
		return
	}

	result, err := e.invokeRequestHandler(ctx, handler, req)
	if ctx.Err() != nil {
		// Cancelled mid-flight: no response is sent for the cancelled id.
		return
	}
	if err != nil {
		if rpcErr, ok := err.(*jsonrpc.Error); ok {
			_ = e.Respond(ctx, jsonrpc.NewError(req.Id, rpcErr.Code, rpcErr.Message, rpcErr.Data), relatedId)
			return
		}
		_ = e.Respond(ctx, jsonrpc.NewError(req.Id, jsonrpc.CodeInternalError, err.Error(), map[string]any{"message": err.Error()}), relatedId)
		return
	}
	resp, merr := jsonrpc.NewResponse(req.Id, result)
	if merr != nil {
		_ = e.Respond(ctx, jsonrpc.NewError(req.Id, jsonrpc.CodeInternalError, merr.Error(), nil), relatedId)
		return
	}
	_ = e.Respond(ctx, resp, relatedId)
}

// invokeRequestHandler recovers a panicking handler into InternalError
// rather than letting it escape and kill the session.
func (e *Engine) invokeRequestHandler(ctx context.Context, h RequestHandler, req *jsonrpc.Request) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, req)
}

func (e *Engine) lookupRequestHandler(method string) RequestHandler {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	if h, ok := e.requestHandlers[method]; ok {
		return h
	}
	return e.fallbackRequest
}

func (e *Engine) handleNotification(ctx context.Context, raw json.RawMessage) {
	n, err := jsonrpc.DecodeNotification(raw)
	if err != nil {
		e.fireError(err)
		return
	}

	if n.Method == MethodCancelled {
		e.handleCancelled(raw)
		return
	}
	if n.Method == MethodProgress {
		e.handleProgress(raw)
		return
	}

	e.handlersMu.RLock()
	h, ok := e.notificationHandlers[n.Method]
	fallback := e.fallbackNotification
	e.handlersMu.RUnlock()

	if !ok {
		h = fallback
	}
	if h == nil {
		return
	}
	e.invokeNotificationHandler(ctx, h, n)
}

func (e *Engine) invokeNotificationHandler(ctx context.Context, h NotificationHandler, n *jsonrpc.Notification) {
	defer func() {
		if r := recover(); r != nil {
			e.fireError(fmt.Errorf("notification handler panic for %s: %v", n.Method, r))
		}
	}()
	h(ctx, n)
}

func (e *Engine) handleCancelled(raw json.RawMessage) {
	var n struct {
		Params CancelledParams `json:"params"`
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		e.fireError(err)
		return
	}
	key := n.Params.RequestId.String()
	e.inflightMu.Lock()
	inf, ok := e.inflight[key]
	e.inflightMu.Unlock()
	if ok {
		inf.cancel()
	}
}

func (e *Engine) handleProgress(raw json.RawMessage) {
	var n struct {
		Params Progress `json:"params"`
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		e.fireError(err)
		return
	}
	key := n.Params.ProgressToken.String()
	e.pendingMu.Lock()
	pr, ok := e.pending[key]
	e.pendingMu.Unlock()
	if !ok || pr.progress == nil {
		e.fireError(fmt.Errorf("mcp: progress notification for unknown token %s", key))
		return
	}
	pr.progress(n.Params)
}

// handleTransportClose is the close cascade of section 4.H: snapshot and
// clear the pending table, fail every pending request with
// ConnectionClosed, then let role-level close hooks run exactly once.
func (e *Engine) handleTransportClose() {
	e.closeOnce.Do(func() {
		e.pendingMu.Lock()
		pending := e.pending
		e.pending = make(map[string]*pendingRequest)
		e.pendingMu.Unlock()

		closedErr := &jsonrpc.Error{Code: jsonrpc.CodeConnectionClosed, Message: "connection closed"}
		for _, pr := range pending {
			pr.reply <- &jsonrpc.Response{Error: closedErr}
		}

		e.inflightMu.Lock()
		inflight := e.inflight
		e.inflight = make(map[string]*inflightHandler)
		e.inflightMu.Unlock()
		for _, inf := range inflight {
			inf.cancel()
		}
	})
}

// Close cancels all in-flight requests with ConnectionClosed and closes the
// transport; it is safe to call multiple times.
func (e *Engine) Close() error {
	if e.transport == nil {
		return nil
	}
	return e.transport.Close()
}
