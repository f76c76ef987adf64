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
	"testing"
	"time"

	"github.com/mcpkit/mcp-go/mcp/jsonrpc"
	"github.com/mcpkit/mcp-go/mcp/transport"
)

// pipeTransport is an in-memory Transport: Send loops the message straight
// back to the peer pipeTransport was wired to, so two engines can exchange
// requests without a real socket.
type pipeTransport struct {
	transport.Lifecycle
	peer *pipeTransport
}

func newPipePair() (*pipeTransport, *pipeTransport) {
	a := &pipeTransport{}
	b := &pipeTransport{}
	a.peer, b.peer = b, a
	return a, b
}

func (p *pipeTransport) Start(ctx context.Context) error { return p.BeginStart() }

func (p *pipeTransport) Send(ctx context.Context, message json.RawMessage, opts *transport.SendOptions) error {
	if err := p.CheckSendable(); err != nil {
		return err
	}
	go p.peer.FireMessage(context.Background(), message)
	return nil
}

func (p *pipeTransport) Close() error {
	if !p.BeginClose() {
		return nil
	}
	p.FireClose()
	return nil
}

type alwaysAllowed struct{}

func (alwaysAllowed) AssertCapabilityForMethod(method string) error        { return nil }
func (alwaysAllowed) AssertNotificationCapability(method string) error     { return nil }
func (alwaysAllowed) AssertRequestHandlerCapability(method string) error   { return nil }

func newConnectedPair(t *testing.T) (*Engine, *Engine) {
	t.Helper()
	ta, tb := newPipePair()
	ea := NewEngine(alwaysAllowed{}, nil)
	eb := NewEngine(alwaysAllowed{}, nil)
	if err := ea.Attach(context.Background(), ta); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := eb.Attach(context.Background(), tb); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return ea, eb
}

func TestEngineCallRoundTrip(t *testing.T) {
	client, server := newConnectedPair(t)
	defer client.Close()
	defer server.Close()

	server.HandleRequest("echo", func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		return map[string]string{"method": req.Method}, nil
	})

	raw, err := client.Call(context.Background(), "echo", nil, RequestOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if got["method"] != "echo" {
		t.Fatalf("incorrect result: got %v", got)
	}
}

func TestEngineCallMethodNotFound(t *testing.T) {
	client, server := newConnectedPair(t)
	defer client.Close()
	defer server.Close()

	_, err := client.Call(context.Background(), "nope", nil, RequestOptions{Timeout: 2 * time.Second})
	if err == nil {
		t.Fatalf("expected error for unregistered method")
	}
	rpcErr, ok := err.(*jsonrpc.Error)
	if !ok {
		t.Fatalf("expected a *jsonrpc.Error, got %T: %v", err, err)
	}
	if rpcErr.Code != jsonrpc.CodeMethodNotFound {
		t.Fatalf("incorrect error code: got %d", rpcErr.Code)
	}
}

func TestEngineCallTimeout(t *testing.T) {
	client, server := newConnectedPair(t)
	defer client.Close()
	defer server.Close()

	block := make(chan struct{})
	server.HandleRequest("slow", func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	_, err := client.Call(context.Background(), "slow", nil, RequestOptions{Timeout: 20 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	rpcErr, ok := err.(*jsonrpc.Error)
	if !ok {
		t.Fatalf("expected a *jsonrpc.Error, got %T: %v", err, err)
	}
	if rpcErr.Code != jsonrpc.CodeRequestTimeout {
		t.Fatalf("incorrect error code: got %d", rpcErr.Code)
	}
}

func TestEngineNotify(t *testing.T) {
	client, server := newConnectedPair(t)
	defer client.Close()
	defer server.Close()

	received := make(chan string, 1)
	server.HandleNotification("ping", func(ctx context.Context, n *jsonrpc.Notification) {
		received <- n.Method
	})

	if err := client.Notify(context.Background(), "ping", nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	select {
	case method := <-received:
		if method != "ping" {
			t.Fatalf("incorrect method: got %q", method)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification")
	}
}

func TestEngineCloseFailsPendingCalls(t *testing.T) {
	client, server := newConnectedPair(t)
	defer server.Close()

	block := make(chan struct{})
	server.HandleRequest("slow", func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "slow", nil, RequestOptions{Timeout: 5 * time.Second})
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := client.Close(); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected a connection-closed error")
		}
		rpcErr, ok := err.(*jsonrpc.Error)
		if !ok || rpcErr.Code != jsonrpc.CodeConnectionClosed {
			t.Fatalf("expected CodeConnectionClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for pending call to fail")
	}
}
