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

package streamablehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcpkit/mcp-go/mcp/jsonrpc"
	"github.com/mcpkit/mcp-go/mcp/transport"
)

// postWait is how long a POST handler waits for the engine to produce a
// reply carrying this request's related id before giving up.
const postWait = 60 * time.Second

// replayBufferSize bounds how many pushed events a session remembers for
// Last-Event-ID replay on GET reconnect (section 6, "Last-Event-ID reopens").
const replayBufferSize = 256

// sseEvent is one buffered, already-formatted server push, keyed by the
// monotonic id embedded in its own `id:` line.
type sseEvent struct {
	id   uint64
	data string
}

// ServerTransport is the server side of one Streamable HTTP session: the
// /mcp POST/GET/DELETE triad sharing one Mcp-Session-Id, generalized from
// the Toolbox server's httpHandler (the former internal/server/mcp.go) into a Transport
// any protocol engine can attach to.
type ServerTransport struct {
	transport.Lifecycle

	SessionId string

	mu      sync.Mutex
	pending map[string]chan json.RawMessage
	pushSSE chan sseEvent
	closed  chan struct{}

	eventMu     sync.Mutex
	nextEventId uint64
	replay      []sseEvent
}

func newServerTransport(sessionId string) *ServerTransport {
	return &ServerTransport{
		SessionId: sessionId,
		pending:   make(map[string]chan json.RawMessage),
		pushSSE:   make(chan sseEvent, 64),
		closed:    make(chan struct{}),
	}
}

func (t *ServerTransport) Start(_ context.Context) error { return t.BeginStart() }

// Send routes a reply onto the POST it answers (by RelatedRequestId) when
// one is waiting, or onto the long-lived push stream otherwise.
func (t *ServerTransport) Send(_ context.Context, message json.RawMessage, opts *transport.SendOptions) error {
	if err := t.CheckSendable(); err != nil {
		return err
	}
	if opts != nil && opts.RelatedRequestId != "" {
		t.mu.Lock()
		ch, ok := t.pending[opts.RelatedRequestId]
		t.mu.Unlock()
		if ok {
			select {
			case ch <- message:
				return nil
			case <-t.closed:
				return transport.ErrClosed
			}
		}
	}
	select {
	case t.pushSSE <- t.recordPushEvent(message):
		return nil
	case <-t.closed:
		return transport.ErrClosed
	default:
		return &transport.SendFailedError{Err: fmt.Errorf("streamablehttp: push queue full for session %s", t.SessionId)}
	}
}

// recordPushEvent assigns the next monotonic event id, formats the SSE
// frame with an `id:` line so a disconnecting client can resume from it,
// and appends it to the bounded replay buffer for a later Last-Event-ID GET.
func (t *ServerTransport) recordPushEvent(message json.RawMessage) sseEvent {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()
	t.nextEventId++
	event := sseEvent{id: t.nextEventId, data: fmt.Sprintf("id: %d\nevent: message\ndata: %s\n\n", t.nextEventId, message)}
	t.replay = append(t.replay, event)
	if len(t.replay) > replayBufferSize {
		t.replay = t.replay[len(t.replay)-replayBufferSize:]
	}
	return event
}

// eventsAfter returns buffered events with an id greater than lastId, in
// order, for replay on GET reconnect.
func (t *ServerTransport) eventsAfter(lastId uint64) []sseEvent {
	t.eventMu.Lock()
	defer t.eventMu.Unlock()
	var out []sseEvent
	for _, ev := range t.replay {
		if ev.id > lastId {
			out = append(out, ev)
		}
	}
	return out
}

func (t *ServerTransport) Close() error {
	if !t.BeginClose() {
		return nil
	}
	close(t.closed)
	t.FireClose()
	return nil
}

func (t *ServerTransport) registerPending(relatedId string) chan json.RawMessage {
	ch := make(chan json.RawMessage, 8)
	t.mu.Lock()
	t.pending[relatedId] = ch
	t.mu.Unlock()
	return ch
}

func (t *ServerTransport) unregisterPending(relatedId string) {
	t.mu.Lock()
	delete(t.pending, relatedId)
	t.mu.Unlock()
}

// Handler implements the three Streamable HTTP endpoints of section 6: POST
// carries one client message and waits for its reply, GET opens the
// server-push SSE stream, DELETE terminates the session.
type Handler struct {
	// OnSession is invoked once per new session (first POST with no
	// Mcp-Session-Id, or an out-of-band GET), before any message is
	// delivered, so the caller can attach the protocol engine.
	OnSession func(ctx context.Context, t *ServerTransport)

	// RequireSessionHeader governs whether requests after the first must
	// carry Mcp-Session-Id; the Toolbox-era SSE/2024-11-05 clients never
	// sent one. Default false accepts either.
	RequireSessionHeader bool

	mu       sync.Mutex
	sessions map[string]*ServerTransport
}

func (h *Handler) session(id string) (*ServerTransport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Handler) newSession(ctx context.Context) *ServerTransport {
	id := uuid.New().String()
	s := newServerTransport(id)
	_ = s.Start(ctx)
	h.mu.Lock()
	if h.sessions == nil {
		h.sessions = make(map[string]*ServerTransport)
	}
	h.sessions[id] = s
	h.mu.Unlock()
	if h.OnSession != nil {
		h.OnSession(ctx, s)
	}
	return s
}

// ServeHTTP dispatches by method to ServePost/ServeGet/ServeDelete.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.ServePost(w, r)
	case http.MethodGet:
		h.ServeGet(w, r)
	case http.MethodDelete:
		h.ServeDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ServePost implements the client->server leg. A known Mcp-Session-Id
// attaches to that session; otherwise a fresh session is created (the
// Open Question in section 9 on an unknown resumption Last-Event-ID
// applies only to GET, answered there as InvalidRequest/400).
func (h *Handler) ServePost(w http.ResponseWriter, r *http.Request) {
	sessionId := r.Header.Get(headerSessionId)
	var session *ServerTransport
	if sessionId != "" {
		var ok bool
		session, ok = h.session(sessionId)
		if !ok {
			writeInvalidRequest(w, fmt.Sprintf("unknown session %q", sessionId))
			return
		}
	}

	body, err := readAll(r)
	if err != nil {
		id := uuid.New().String()
		writeJSONRPCError(w, jsonrpc.NewError(jsonrpc.NewStringId(id), jsonrpc.CodeParseError, err.Error(), nil))
		return
	}

	kind, err := jsonrpc.Classify(body)
	if err != nil {
		id := uuid.New().String()
		writeJSONRPCError(w, jsonrpc.NewError(jsonrpc.NewStringId(id), jsonrpc.CodeParseError, err.Error(), nil))
		return
	}

	if h.RequireSessionHeader && sessionId == "" {
		var probe struct {
			Method string `json:"method"`
		}
		_ = json.Unmarshal(body, &probe)
		if kind != jsonrpc.KindRequest || probe.Method != "initialize" {
			writeInvalidRequest(w, "missing Mcp-Session-Id header")
			return
		}
	}

	isFreshSession := session == nil
	if isFreshSession {
		session = h.newSession(r.Context())
		w.Header().Set(headerSessionId, session.SessionId)
	}

	if kind == jsonrpc.KindNotification {
		session.deliver(r.Context(), body)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// Request: correlate the reply by the request's own id.
	req, err := jsonrpc.DecodeRequest(body)
	if err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}
	relatedId := req.Id.String()
	replyCh := session.registerPending(relatedId)
	defer session.unregisterPending(relatedId)

	session.deliver(r.Context(), body)

	select {
	case reply := <-replyCh:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(reply)
	case <-r.Context().Done():
	case <-time.After(postWait):
		writeInvalidRequest(w, "timed out waiting for a reply")
	}
}

// ServeGet implements the server-push SSE stream; requires a known session.
func (h *Handler) ServeGet(w http.ResponseWriter, r *http.Request) {
	sessionId := r.Header.Get(headerSessionId)
	session, ok := h.session(sessionId)
	if !ok {
		writeInvalidRequest(w, fmt.Sprintf("unknown session %q", sessionId))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// lastSent tracks the highest event id written to this stream so a
	// backlog queued in pushSSE while no GET was attached isn't replayed a
	// second time once the live loop below drains it.
	var lastSent uint64
	if lastEventId, err := strconv.ParseUint(r.Header.Get(headerLastEventId), 10, 64); err == nil {
		lastSent = lastEventId
		for _, ev := range session.eventsAfter(lastEventId) {
			fmt.Fprint(w, ev.data)
			lastSent = ev.id
		}
		flusher.Flush()
	}

	for {
		select {
		case event := <-session.pushSSE:
			if event.id <= lastSent {
				continue
			}
			fmt.Fprint(w, event.data)
			lastSent = event.id
			flusher.Flush()
		case <-session.closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// ServeDelete terminates a session; 405 is a possible success code for
// transports that don't support termination (section 4.E).
func (h *Handler) ServeDelete(w http.ResponseWriter, r *http.Request) {
	sessionId := r.Header.Get(headerSessionId)
	session, ok := h.session(sessionId)
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}
	_ = session.Close()
	h.mu.Lock()
	delete(h.sessions, sessionId)
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (t *ServerTransport) deliver(ctx context.Context, body json.RawMessage) {
	t.FireMessage(ctx, body)
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

func writeInvalidRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	resp := jsonrpc.NewError(jsonrpc.NewStringId(uuid.New().String()), jsonrpc.CodeInvalidRequest, msg, nil)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSONRPCError(w http.ResponseWriter, resp *jsonrpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(resp)
}
