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

// Package streamablehttp implements the Streamable HTTP transport of MCP
// 2025-03-26 (section 4.E): POST requests carrying one JSON-RPC message,
// whose response is either a single JSON object or a short-lived SSE
// stream, plus an optional long-lived SSE GET as a server push channel, all
// keyed by an Mcp-Session-Id. It generalizes the POST/SSE branch the
// Toolbox server's httpHandler implemented (the former internal/server/mcp.go)
// into a transport either side of the protocol can drive.
package streamablehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/mcpkit/mcp-go/mcp/transport"
)

const (
	headerSessionId      = "Mcp-Session-Id"
	headerProtocolVersion = "Mcp-Protocol-Version"
	headerLastEventId    = "Last-Event-ID"
)

// HttpError is a transport fault for any POST/DELETE response with status
// >= 400 other than 405-on-DELETE (section 4.E failure model).
type HttpError struct {
	Status int
	Body   []byte
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("streamablehttp: status %d: %s", e.Status, e.Body)
}

// StreamError wraps an `event: error` SSE event (section 4.E step 4).
type StreamError struct {
	Data string
}

func (e *StreamError) Error() string { return "streamablehttp: stream error: " + e.Data }

// ClientTransport is the client side of Streamable HTTP.
type ClientTransport struct {
	transport.Lifecycle

	Url             string
	HTTPClient      *http.Client
	ProtocolVersion string
	Header          http.Header

	mu        sync.Mutex
	sessionId string
	cancel    context.CancelFunc
}

// NewClient builds a ClientTransport targeting url.
func NewClient(url string) *ClientTransport {
	return &ClientTransport{Url: url, HTTPClient: http.DefaultClient}
}

func (t *ClientTransport) Start(ctx context.Context) error {
	if err := t.BeginStart(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	// The long-lived server-push GET is optional (section 4.E step 5); it
	// is not fatal if the peer doesn't support it.
	go t.openPushStream(ctx)
	return nil
}

// openPushStream holds one long-lived SSE GET as a server-push channel.
// Loss of this stream is logged via OnError but never closes the transport.
func (t *ClientTransport) openPushStream(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Url, nil)
	if err != nil {
		return
	}
	t.applyHeaders(req, nil)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return // server push GET is optional; silently skip
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return
	}
	t.captureSessionId(resp)
	t.consumeSSE(ctx, resp.Body, nil)
	if ctx.Err() == nil {
		t.FireError(fmt.Errorf("streamablehttp: server push stream lost"))
	}
}

func (t *ClientTransport) applyHeaders(req *http.Request, opts *transport.SendOptions) {
	for k, vs := range t.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	t.mu.Lock()
	sessionId := t.sessionId
	t.mu.Unlock()
	if sessionId != "" {
		req.Header.Set(headerSessionId, sessionId)
	}
	if t.ProtocolVersion != "" {
		req.Header.Set(headerProtocolVersion, t.ProtocolVersion)
	}
	if opts != nil && opts.ResumptionToken != "" {
		req.Header.Set(headerLastEventId, opts.ResumptionToken)
	}
}

func (t *ClientTransport) captureSessionId(resp *http.Response) {
	id := resp.Header.Get(headerSessionId)
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionId == "" {
		t.sessionId = id
	}
}

// Send implements the POST algorithm of section 4.E.
func (t *ClientTransport) Send(ctx context.Context, message json.RawMessage, opts *transport.SendOptions) error {
	if err := t.CheckSendable(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Url, bytes.NewReader(message))
	if err != nil {
		return &transport.SendFailedError{Err: err}
	}
	t.applyHeaders(req, opts)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return &transport.SendFailedError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return &HttpError{Status: resp.StatusCode, Body: body}
	}
	t.captureSessionId(resp)

	contentType := resp.Header.Get("Content-Type")
	switch {
	case hasMediaType(contentType, "application/json"):
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transport.SendFailedError{Err: err}
		}
		t.FireMessage(ctx, json.RawMessage(raw))
	case hasMediaType(contentType, "text/event-stream"):
		t.consumeSSE(ctx, resp.Body, opts)
	default:
		// e.g. 202 Accepted with an empty body (notifications): no-op.
	}
	return nil
}

func (t *ClientTransport) consumeSSE(ctx context.Context, body io.Reader, opts *transport.SendOptions) {
	var framer transport.SSEFramer
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range framer.Feed(buf[:n]) {
				if ev.Event == "error" {
					t.FireError(&StreamError{Data: ev.Data})
					continue
				}
				t.FireMessage(ctx, json.RawMessage(ev.Data))
				if ev.Id != "" && opts != nil && opts.OnResumptionToken != nil {
					opts.OnResumptionToken(ev.Id)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func hasMediaType(contentType, want string) bool {
	for i := 0; i < len(contentType); i++ {
		if contentType[i] == ';' {
			contentType = contentType[:i]
			break
		}
	}
	return trimSpace(contentType) == want
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

// TerminateSession issues the DELETE per section 4.E; a 405 is treated as
// success. SessionId is cleared either way.
func (t *ClientTransport) TerminateSession(ctx context.Context) error {
	t.mu.Lock()
	sessionId := t.sessionId
	t.mu.Unlock()
	if sessionId == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.Url, nil)
	if err != nil {
		return err
	}
	t.applyHeaders(req, nil)

	resp, err := t.HTTPClient.Do(req)
	t.mu.Lock()
	t.sessionId = ""
	t.mu.Unlock()
	if err != nil {
		return &transport.SendFailedError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode/100 == 2 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	return &HttpError{Status: resp.StatusCode, Body: body}
}

func (t *ClientTransport) Close() error {
	if !t.BeginClose() {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.FireClose()
	return nil
}
