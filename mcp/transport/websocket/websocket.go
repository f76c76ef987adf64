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

// Package websocket implements the WebSocket transport (section 4.G): one
// text frame carries one JSON-RPC envelope over the "mcp" subprotocol. It is
// built on gorilla/websocket, already part of the dependency graph pulled
// in transitively by the Toolbox server's HTTP stack.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcpkit/mcp-go/mcp/transport"
)

// Subprotocol is negotiated via the Sec-WebSocket-Protocol header.
const Subprotocol = "mcp"

// MaxMessageBytes rejects frames larger than 4 MiB with MessageTooLargeError
// (section 4.G).
const MaxMessageBytes = 4 * 1024 * 1024

// MessageTooLargeError is returned/observed when a frame exceeds
// MaxMessageBytes.
type MessageTooLargeError struct{ Size int }

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("websocket: message of %d bytes exceeds the %d byte limit", e.Size, MaxMessageBytes)
}

// Upgrader is shared by server-side Accept calls; CheckOrigin is
// permissive by default and should be overridden by callers that terminate
// TLS and need origin enforcement.
var Upgrader = websocket.Upgrader{
	Subprotocols:    []string{Subprotocol},
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Transport wraps a single *websocket.Conn (client- or server-side) as an
// mcp Transport. One text frame = one envelope.
type Transport struct {
	transport.Lifecycle

	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
}

// New wraps an already-established connection (e.g. from Dial or Accept).
func New(conn *websocket.Conn) *Transport {
	conn.SetReadLimit(MaxMessageBytes)
	return &Transport{conn: conn}
}

// Dial opens a client-side WebSocket connection to url with the "mcp"
// subprotocol and wraps it.
func Dial(ctx context.Context, url string, header http.Header) (*Transport, error) {
	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("websocket: dial: %w", err)
	}
	return New(conn), nil
}

// Accept upgrades an inbound HTTP request to a server-side WebSocket
// connection and wraps it.
func Accept(w http.ResponseWriter, r *http.Request, header http.Header) (*Transport, error) {
	conn, err := Upgrader.Upgrade(w, r, header)
	if err != nil {
		return nil, fmt.Errorf("websocket: accept: %w", err)
	}
	return New(conn), nil
}

func (t *Transport) Start(ctx context.Context) error {
	if err := t.BeginStart(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.readLoop(ctx)
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	defer func() { _ = t.Close() }()
	for {
		if ctx.Err() != nil {
			return
		}
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.FireError(fmt.Errorf("websocket: read: %w", err))
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if len(data) > MaxMessageBytes {
			t.FireError(&MessageTooLargeError{Size: len(data)})
			continue
		}
		t.FireMessage(ctx, json.RawMessage(data))
	}
}

func (t *Transport) Send(ctx context.Context, message json.RawMessage, _ *transport.SendOptions) error {
	if err := t.CheckSendable(); err != nil {
		return err
	}
	if len(message) > MaxMessageBytes {
		return &MessageTooLargeError{Size: len(message)}
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := t.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		return &transport.SendFailedError{Err: err}
	}
	return nil
}

func (t *Transport) Close() error {
	if !t.BeginClose() {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.writeMu.Lock()
	deadline := time.Now().Add(2 * time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	t.writeMu.Unlock()
	err := t.conn.Close()
	t.FireClose()
	return err
}
