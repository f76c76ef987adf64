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

package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/mcpkit/mcp-go/mcp/transport"
)

// ServerTransport is one SSE session's server-side half: the open GET
// stream that pushes messages to the client, paired with a POST endpoint
// keyed by session id that receives messages from it. Grounded on the
// Toolbox server's sseSession/sseManager pair (the former internal/server/mcp.go).
type ServerTransport struct {
	transport.Lifecycle

	SessionId string

	mu         sync.Mutex
	eventQueue chan string
	done       chan struct{}
}

func newServerTransport(sessionId string) *ServerTransport {
	return &ServerTransport{
		SessionId:  sessionId,
		eventQueue: make(chan string, 100),
		done:       make(chan struct{}),
	}
}

func (t *ServerTransport) Start(_ context.Context) error {
	return t.BeginStart()
}

func (t *ServerTransport) Send(_ context.Context, message json.RawMessage, _ *transport.SendOptions) error {
	if err := t.CheckSendable(); err != nil {
		return err
	}
	event := fmt.Sprintf("event: message\ndata: %s\n\n", message)
	select {
	case t.eventQueue <- event:
		return nil
	case <-t.done:
		return transport.ErrClosed
	default:
		return &transport.SendFailedError{Err: fmt.Errorf("sse: event queue full for session %s", t.SessionId)}
	}
}

func (t *ServerTransport) Close() error {
	if !t.BeginClose() {
		return nil
	}
	close(t.done)
	t.FireClose()
	return nil
}

// deliver feeds one inbound POST body to this session's message handlers.
func (t *ServerTransport) deliver(ctx context.Context, body json.RawMessage) {
	t.FireMessage(ctx, body)
}

// Handler is the server-side SSE endpoint pair: GET opens the push stream,
// POST (keyed by ?sessionId=) is the client's back-channel. Construct one
// per mount point and register OnSession to attach the protocol engine to
// each newly opened stream.
type Handler struct {
	// BasePath is the URL path the GET stream is mounted at; the endpoint
	// event advertises PostPath (or BasePath when PostPath is empty) with
	// ?sessionId=<id>.
	BasePath string
	// PostPath is the path POST bodies arrive on; defaults to BasePath.
	PostPath string

	// OnSession is invoked synchronously for every new GET connection,
	// before the endpoint event is sent, so the caller can wire the
	// protocol engine's Start to this transport.
	OnSession func(ctx context.Context, t *ServerTransport)

	mu       sync.Mutex
	sessions map[string]*ServerTransport
}

func (h *Handler) session(id string) (*ServerTransport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

func (h *Handler) addSession(id string, s *ServerTransport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions == nil {
		h.sessions = make(map[string]*ServerTransport)
	}
	h.sessions[id] = s
}

func (h *Handler) removeSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}

// ServeSSE handles the GET request that opens the push stream.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sessionId := uuid.New().String()
	session := newServerTransport(sessionId)
	if err := session.Start(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.addSession(sessionId, session)
	defer h.removeSession(sessionId)

	if h.OnSession != nil {
		h.OnSession(r.Context(), session)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	postPath := h.PostPath
	if postPath == "" {
		postPath = h.BasePath
	}
	fmt.Fprintf(w, "event: endpoint\ndata: %s?sessionId=%s\n\n", postPath, sessionId)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case event := <-session.eventQueue:
			fmt.Fprint(w, event)
			flusher.Flush()
		case <-session.done:
			return
		case <-ctx.Done():
			_ = session.Close()
			return
		}
	}
}

// ServePost handles the POST back-channel; the session id is read from the
// sessionId query parameter.
func (h *Handler) ServePost(w http.ResponseWriter, r *http.Request) {
	sessionId := r.URL.Query().Get("sessionId")
	session, ok := h.session(sessionId)
	if !ok {
		http.Error(w, "unknown session", http.StatusBadRequest)
		return
	}

	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	session.deliver(r.Context(), body)
	w.WriteHeader(http.StatusAccepted)
}
