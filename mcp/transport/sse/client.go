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

// Package sse implements the legacy SSE transport (section 4.F): a GET
// event stream plus a separate POST back-channel keyed by a server-chosen
// endpoint URL. It is grounded on the Toolbox server's sseHandler (the
// endpoint-event handshake and event-queue pump), mirrored here into a
// client that consumes that handshake, and a server that produces it.
package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/mcpkit/mcp-go/mcp/transport"
)

const defaultRetry = 1 * time.Second

// ClientTransport opens GET SSEUrl, learns the POST-back endpoint from the
// server's "event: endpoint" event, and reconnects on disconnect using
// Last-Event-ID (section 4.F).
type ClientTransport struct {
	transport.Lifecycle

	SSEUrl     string
	HTTPClient *http.Client
	Header     http.Header

	mu          sync.Mutex
	endpointURL string
	framer      transport.SSEFramer
	retry       time.Duration
	cancel      context.CancelFunc
	endpointRdy chan struct{}
}

// NewClient builds a ClientTransport targeting sseURL.
func NewClient(sseURL string) *ClientTransport {
	return &ClientTransport{
		SSEUrl:      sseURL,
		HTTPClient:  http.DefaultClient,
		retry:       defaultRetry,
		endpointRdy: make(chan struct{}),
	}
}

func (t *ClientTransport) Start(ctx context.Context) error {
	if err := t.BeginStart(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.connectLoop(ctx)

	select {
	case <-t.endpointRdy:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("sse: timed out waiting for endpoint event")
	}
}

func (t *ClientTransport) connectLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := t.connectOnce(ctx); err != nil {
			t.FireError(fmt.Errorf("sse: stream error: %w", err))
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.retryDelay()):
		}
	}
}

func (t *ClientTransport) retryDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retry <= 0 {
		return defaultRetry
	}
	return t.retry
}

func (t *ClientTransport) connectOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.SSEUrl, nil)
	if err != nil {
		return err
	}
	req.Header = t.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Accept", "text/event-stream")
	t.mu.Lock()
	lastId := t.framer.LastEventId
	t.mu.Unlock()
	if lastId != "" {
		req.Header.Set("Last-Event-ID", lastId)
	}

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sse: GET %s: status %d: %s", t.SSEUrl, resp.StatusCode, body)
	}

	buf := make([]byte, 4096)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			t.mu.Lock()
			events := t.framer.Feed(buf[:n])
			retry := t.framer.LastEventId
			_ = retry
			t.mu.Unlock()
			for _, ev := range events {
				if ev.Retry > 0 {
					t.mu.Lock()
					t.retry = ev.Retry
					t.mu.Unlock()
				}
				t.handleEvent(ctx, ev)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return nil
			}
			return rerr
		}
	}
}

func (t *ClientTransport) handleEvent(ctx context.Context, ev transport.SSEEvent) {
	switch ev.Event {
	case "endpoint":
		resolved, err := resolveEndpoint(t.SSEUrl, ev.Data)
		if err != nil {
			t.FireError(fmt.Errorf("sse: resolving endpoint event: %w", err))
			return
		}
		t.mu.Lock()
		first := t.endpointURL == ""
		t.endpointURL = resolved
		t.mu.Unlock()
		if first {
			close(t.endpointRdy)
		}
	default:
		t.FireMessage(ctx, json.RawMessage(ev.Data))
	}
}

// resolveEndpoint rebases an endpoint event's data against the SSE stream's
// base URL (section 4.F / S5): an absolute path is origin-relative, a
// relative path is base-relative.
func resolveEndpoint(baseURL, data string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(data)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func (t *ClientTransport) Send(ctx context.Context, message json.RawMessage, _ *transport.SendOptions) error {
	if err := t.CheckSendable(); err != nil {
		return err
	}
	t.mu.Lock()
	endpoint := t.endpointURL
	t.mu.Unlock()
	if endpoint == "" {
		return fmt.Errorf("sse: no endpoint resolved yet")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(message))
	if err != nil {
		return &transport.SendFailedError{Err: err}
	}
	req.Header = t.Header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return &transport.SendFailedError{Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return &transport.SendFailedError{Err: fmt.Errorf("sse: POST %s: status %d", endpoint, resp.StatusCode)}
	}
	return nil
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
