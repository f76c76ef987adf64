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

// Package client implements the client (agent host) role of section 4.I: the
// initialize handshake, the typed RPC surface gated by server capabilities,
// and the built-in handlers a client answers for its peer (ping, sampling,
// roots, logging/progress notifications).
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcpkit/mcp-go/mcp"
	"github.com/mcpkit/mcp-go/mcp/jsonrpc"
	"github.com/mcpkit/mcp-go/mcp/transport"
	"github.com/mcpkit/mcp-go/toolbox"
)

// State is the protocol session lifecycle of section 3.4.
type State int

const (
	StateUnconnected State = iota
	StateInitializing
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// RootsHandler answers inbound roots/list requests; set via Options.Roots to
// opt into the roots capability.
type RootsHandler func(ctx context.Context) ([]mcp.Root, error)

// SamplingHandler answers inbound sampling/createMessage requests; set via
// Options.Sampling to opt into the sampling capability.
type SamplingHandler func(ctx context.Context, params mcp.CreateMessageParams) (mcp.CreateMessageResult, error)

// Options configures a Client before Connect.
type Options struct {
	Info    mcp.Implementation
	Timeout time.Duration // handshake timeout; default 60s
	Logger  toolbox.Logger

	Roots     RootsHandler // presence advertises the roots capability
	Sampling  SamplingHandler // presence advertises the sampling capability
	StrictCapabilities bool

	OnToolsListChanged     func()
	OnPromptsListChanged   func()
	OnResourcesListChanged func()
	OnResourceUpdated      func(uri string)
	OnLoggingMessage       func(mcp.LoggingMessageParams)
}

// Client is one MCP client session: one Engine bound to one transport, plus
// the handshake result and the role's capability gate.
type Client struct {
	opts   Options
	engine *mcp.Engine

	mu                  sync.RWMutex
	state               State
	serverCapabilities  mcp.ServerCapabilities
	serverInfo          mcp.Implementation
	serverInstructions  string
	negotiatedProtocol  string
}

// New constructs a Client; call Connect to attach a transport and perform
// the handshake.
func New(opts Options) *Client {
	if opts.Info.Name == "" {
		opts.Info.Name = "mcp-go"
	}
	c := &Client{opts: opts, state: StateUnconnected}
	c.engine = mcp.NewEngine(c, opts.Logger)
	c.engine.StrictCapabilities = opts.StrictCapabilities
	c.registerHandlers()
	return c
}

func (c *Client) registerHandlers() {
	c.engine.HandleRequest(mcp.MethodPing, func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		return struct{}{}, nil
	})
	c.engine.HandleRequest(mcp.MethodRootsList, func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		if c.opts.Roots == nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "roots capability not configured"}
		}
		roots, err := c.opts.Roots(ctx)
		if err != nil {
			return nil, err
		}
		return mcp.ListRootsResult{Roots: roots}, nil
	})
	c.engine.HandleRequest(mcp.MethodSamplingCreate, func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		if c.opts.Sampling == nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "sampling capability not configured"}
		}
		var params mcp.CreateMessageParams
		if err := decodeParams(req, &params); err != nil {
			return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
		}
		return c.opts.Sampling(ctx, params)
	})

	c.engine.HandleNotification(mcp.MethodToolsListChanged, func(ctx context.Context, n *jsonrpc.Notification) {
		if c.opts.OnToolsListChanged != nil {
			c.opts.OnToolsListChanged()
		}
	})
	c.engine.HandleNotification(mcp.MethodPromptsListChanged, func(ctx context.Context, n *jsonrpc.Notification) {
		if c.opts.OnPromptsListChanged != nil {
			c.opts.OnPromptsListChanged()
		}
	})
	c.engine.HandleNotification(mcp.MethodResourcesListChanged, func(ctx context.Context, n *jsonrpc.Notification) {
		if c.opts.OnResourcesListChanged != nil {
			c.opts.OnResourcesListChanged()
		}
	})
	c.engine.HandleNotification(mcp.MethodResourcesUpdated, func(ctx context.Context, n *jsonrpc.Notification) {
		if c.opts.OnResourceUpdated == nil {
			return
		}
		var params mcp.ResourceSubscribeParams
		if err := decodeNotificationParams(n, &params); err == nil {
			c.opts.OnResourceUpdated(params.Uri)
		}
	})
	c.engine.HandleNotification(mcp.MethodLoggingMessage, func(ctx context.Context, n *jsonrpc.Notification) {
		if c.opts.OnLoggingMessage == nil {
			return
		}
		var params mcp.LoggingMessageParams
		if err := decodeNotificationParams(n, &params); err == nil {
			c.opts.OnLoggingMessage(params)
		}
	})
}

// Connect performs the handshake of section 4.I: start the transport, send
// initialize with a 60s (default) timeout, store the server's negotiated
// state, then send notifications/initialized before returning — preserving
// the ordering decided in section 9's open question.
func (c *Client) Connect(ctx context.Context, t transport.Transport) error {
	c.setState(StateInitializing)

	if err := c.engine.Attach(ctx, t); err != nil {
		c.setState(StateUnconnected)
		return err
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	params := mcp.InitializeParams{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    c.clientCapabilities(),
		ClientInfo:      c.opts.Info,
	}

	raw, err := c.engine.Call(ctx, mcp.MethodInitialize, params, mcp.RequestOptions{Timeout: timeout})
	if err != nil {
		c.setState(StateClosing)
		_ = c.engine.Close()
		return &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: fmt.Sprintf("initialize failed: %v", err)}
	}

	var result mcp.InitializeResult
	if err := unmarshalResult(raw, &result); err != nil {
		c.setState(StateClosing)
		_ = c.engine.Close()
		return &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: err.Error()}
	}
	if !mcp.IsSupportedProtocolVersion(result.ProtocolVersion) {
		c.setState(StateClosing)
		_ = c.engine.Close()
		return &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: fmt.Sprintf("unsupported protocol version %q", result.ProtocolVersion)}
	}

	c.mu.Lock()
	c.serverCapabilities = result.Capabilities
	c.serverInfo = result.ServerInfo
	c.serverInstructions = result.Instructions
	c.negotiatedProtocol = result.ProtocolVersion
	c.mu.Unlock()

	if err := c.engine.Notify(ctx, mcp.MethodInitialized, struct{}{}); err != nil {
		c.setState(StateClosing)
		_ = c.engine.Close()
		return err
	}

	c.setState(StateReady)
	return nil
}

func (c *Client) clientCapabilities() mcp.ClientCapabilities {
	caps := mcp.ClientCapabilities{}
	if c.opts.Roots != nil {
		caps.Roots = &mcp.ListChanged{ListChanged: true}
	}
	if c.opts.Sampling != nil {
		caps.Sampling = map[string]any{}
	}
	return caps
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State reports the current session lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ServerInfo returns the peer's advertised Implementation, valid once Ready.
func (c *Client) ServerInfo() mcp.Implementation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// ServerInstructions returns the free-text instructions the server sent with
// its initialize reply, if any.
func (c *Client) ServerInstructions() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInstructions
}

// Close cancels all in-flight requests and closes the transport (section
// 3.4 / 5 — explicit close cancels in-flight work with ConnectionClosed).
func (c *Client) Close() error {
	c.setState(StateClosing)
	err := c.engine.Close()
	c.setState(StateClosed)
	return err
}

// --- CapabilityAsserter (section 4.H) -------------------------------------

// AssertCapabilityForMethod checks the remote (server) capability needed to
// send a request/notification of method, per invariant I5.
func (c *Client) AssertCapabilityForMethod(method string) error {
	c.mu.RLock()
	caps := c.serverCapabilities
	c.mu.RUnlock()

	need := func(ok bool, name string) error {
		if !ok {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: name}
		}
		return nil
	}

	switch method {
	case mcp.MethodToolsList, mcp.MethodToolsCall:
		return need(caps.Tools != nil, "tools")
	case mcp.MethodPromptsList, mcp.MethodPromptsGet:
		return need(caps.Prompts != nil, "prompts")
	case mcp.MethodResourcesList, mcp.MethodResourcesTemplatesList, mcp.MethodResourcesRead:
		return need(caps.Resources != nil, "resources")
	case mcp.MethodResourcesSubscribe, mcp.MethodResourcesUnsubscribe:
		return need(caps.Resources != nil && caps.Resources.Subscribe, "resources.subscribe")
	case mcp.MethodCompletionComplete:
		return need(caps.Completions != nil, "completions")
	case mcp.MethodSetLevel:
		return need(caps.Logging != nil, "logging")
	default:
		return nil // initialize, ping, notifications/* are always permitted
	}
}

// AssertNotificationCapability checks the local capability needed to send a
// notification. The client only ever sends initialized/cancelled/progress
// and roots list-changed notifications, none of which are capability-gated
// locally.
func (c *Client) AssertNotificationCapability(method string) error { return nil }

// AssertRequestHandlerCapability checks the local capability needed to
// answer an inbound request of method.
func (c *Client) AssertRequestHandlerCapability(method string) error {
	switch method {
	case mcp.MethodRootsList:
		if c.opts.Roots == nil {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "roots"}
		}
	case mcp.MethodSamplingCreate:
		if c.opts.Sampling == nil {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "sampling"}
		}
	}
	return nil
}
