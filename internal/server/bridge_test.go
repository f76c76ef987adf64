// Copyright 2025 Google LLC
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

package server

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/mcpkit/mcp-go/internal/log"
	mcpcore "github.com/mcpkit/mcp-go/mcp"
	mcpclient "github.com/mcpkit/mcp-go/mcp/client"
	"github.com/mcpkit/mcp-go/mcp/transport"
)

// pipeTransport connects a client.Client directly to an mcp/server.Session
// without a real socket, the same shape used across the mcp/* test suites.
type pipeTransport struct {
	transport.Lifecycle
	peer *pipeTransport
}

func newBridgePipePair() (*pipeTransport, *pipeTransport) {
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

func TestNewMCPServerUnknownToolsetFails(t *testing.T) {
	toolsMap, toolsets := setUpResources(t, []MockTool{tool1})
	resourceMgr := NewResourceManager(nil, nil, toolsMap, toolsets)
	testLogger, err := log.NewStdLogger(os.Stdout, os.Stderr, "info")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if _, err := NewMCPServer(fakeVersionString, resourceMgr, "does-not-exist", testLogger); err == nil {
		t.Fatalf("expected an error for an unknown toolset")
	}
}

func TestNewMCPServerRegistersToolsReachableOverTheProtocol(t *testing.T) {
	toolsMap, toolsets := setUpResources(t, []MockTool{tool1, tool2})
	resourceMgr := NewResourceManager(nil, nil, toolsMap, toolsets)
	testLogger, err := log.NewStdLogger(os.Stdout, os.Stderr, "info")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	srv, err := NewMCPServer(fakeVersionString, resourceMgr, "", testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	clientSide, serverSide := newBridgePipePair()
	if _, err := srv.CreateSession(context.Background(), serverSide); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	c := mcpclient.New(mcpclient.Options{Info: mcpcore.Implementation{Name: "test-client", Version: "0.0.0"}})
	if err := c.Connect(context.Background(), clientSide); err != nil {
		t.Fatalf("unexpected error connecting: %s", err)
	}
	defer c.Close()

	toolList, err := c.ListTools(context.Background(), mcpclient.CallOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(toolList) != 2 {
		t.Fatalf("expected 2 tools registered from the toolset, got %d: %+v", len(toolList), toolList)
	}

	result, err := c.CallTool(context.Background(), "no_params", map[string]any{}, nil, mcpclient.CallOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error calling tool: %s", err)
	}
	if result.IsError {
		t.Fatalf("expected a successful invocation, got an error result: %+v", result)
	}
	if len(result.Content) != 1 {
		t.Fatalf("expected one content item, got %+v", result.Content)
	}
}

func TestNewMCPServerToolInvocationErrorSurfacesAsToolError(t *testing.T) {
	toolsMap, toolsets := setUpResources(t, []MockTool{tool2})
	resourceMgr := NewResourceManager(nil, nil, toolsMap, toolsets)
	testLogger, err := log.NewStdLogger(os.Stdout, os.Stderr, "info")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	srv, err := NewMCPServer(fakeVersionString, resourceMgr, "", testLogger)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	clientSide, serverSide := newBridgePipePair()
	if _, err := srv.CreateSession(context.Background(), serverSide); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	c := mcpclient.New(mcpclient.Options{Info: mcpcore.Implementation{Name: "test-client", Version: "0.0.0"}})
	if err := c.Connect(context.Background(), clientSide); err != nil {
		t.Fatalf("unexpected error connecting: %s", err)
	}
	defer c.Close()

	// some_params requires param1/param2; omitting them should fail parameter
	// parsing and come back as an IsError tool result, not an RPC error.
	result, err := c.CallTool(context.Background(), "some_params", map[string]any{}, nil, mcpclient.CallOptions{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error calling tool: %s", err)
	}
	if !result.IsError {
		t.Fatalf("expected an error result for missing parameters, got %+v", result)
	}
}
