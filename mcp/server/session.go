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

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcpkit/mcp-go/mcp"
	"github.com/mcpkit/mcp-go/mcp/jsonrpc"
	"github.com/mcpkit/mcp-go/mcp/transport"
)

// Session is one client connection multiplexed over the Server's shared
// registries (section 4.J createSession). Each transport (one Stdio pair,
// one Streamable HTTP Mcp-Session-Id, one SSE connection, one WebSocket)
// gets its own Session and its own protocol Engine; all Sessions of a
// Server share its tool/prompt/resource registries.
type Session struct {
	owner  *Server
	engine *mcp.Engine

	mu                 sync.RWMutex
	clientCapabilities mcp.ClientCapabilities
	clientInfo         mcp.Implementation
	negotiatedProtocol string
	ready              bool
	minLogLevel        mcp.LoggingLevel

	subscribedMu sync.Mutex
	subscribed   map[string]bool
}

// CreateSession attaches a fresh Session to t and starts it: one server
// instance backs as many concurrent transports as CreateSession is called
// for (section 4.J).
func (s *Server) CreateSession(ctx context.Context, t transport.Transport) (*Session, error) {
	sess := &Session{
		owner:       s,
		minLogLevel: mcp.LogInfo,
		subscribed:  make(map[string]bool),
	}
	sess.engine = mcp.NewEngine(sess, s.opts.Logger)
	sess.engine.StrictCapabilities = s.opts.StrictCapabilities
	sess.registerHandlers()

	if err := sess.engine.Attach(ctx, t); err != nil {
		return nil, err
	}
	s.addSession(sess)
	t.OnClose(func() { s.removeSession(sess) })
	return sess, nil
}

func (sess *Session) registerHandlers() {
	e := sess.engine
	s := sess.owner

	e.HandleRequest(mcp.MethodInitialize, sess.handleInitialize)
	e.HandleRequest(mcp.MethodPing, func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		return struct{}{}, nil
	})
	e.HandleNotification(mcp.MethodInitialized, func(ctx context.Context, n *jsonrpc.Notification) {
		sess.mu.Lock()
		sess.ready = true
		sess.mu.Unlock()
	})

	e.HandleRequest(mcp.MethodToolsList, func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		return mcp.ListToolsResult{Tools: s.listTools()}, nil
	})
	e.HandleRequest(mcp.MethodToolsCall, sess.handleToolsCall)

	e.HandleRequest(mcp.MethodPromptsList, func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		return mcp.ListPromptsResult{Prompts: s.listPrompts()}, nil
	})
	e.HandleRequest(mcp.MethodPromptsGet, sess.handlePromptsGet)

	e.HandleRequest(mcp.MethodResourcesList, func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		return mcp.ListResourcesResult{Resources: s.listResources()}, nil
	})
	e.HandleRequest(mcp.MethodResourcesTemplatesList, func(ctx context.Context, req *jsonrpc.Request) (any, error) {
		return mcp.ListResourceTemplatesResult{ResourceTemplates: nil}, nil
	})
	e.HandleRequest(mcp.MethodResourcesRead, sess.handleResourcesRead)
	e.HandleRequest(mcp.MethodResourcesSubscribe, sess.handleSubscribe)
	e.HandleRequest(mcp.MethodResourcesUnsubscribe, sess.handleUnsubscribe)

	e.HandleRequest(mcp.MethodCompletionComplete, sess.handleComplete)
	e.HandleRequest(mcp.MethodSetLevel, sess.handleSetLevel)
}

func (sess *Session) handleInitialize(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.InitializeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	if !mcp.IsSupportedProtocolVersion(params.ProtocolVersion) {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidRequest, Message: fmt.Sprintf("unsupported protocol version %q", params.ProtocolVersion)}
	}
	sess.mu.Lock()
	sess.clientCapabilities = params.Capabilities
	sess.clientInfo = params.ClientInfo
	sess.negotiatedProtocol = params.ProtocolVersion
	sess.mu.Unlock()

	return mcp.InitializeResult{
		ProtocolVersion: params.ProtocolVersion,
		Capabilities:    sess.owner.capabilities(),
		ServerInfo:      sess.owner.opts.Info,
		Instructions:    sess.owner.opts.Instructions,
	}, nil
}

func (sess *Session) handleToolsCall(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.CallToolParams
	if err := decodeParams(req, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, ok := sess.owner.tools.get(params.Name)
	if !ok {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("unknown tool %q", params.Name)}
	}
	extra := &Extra{session: sess}
	return entry.handler(ctx, CallToolRequest{Name: params.Name, Arguments: params.Arguments, Meta: params.Meta}, extra)
}

func (sess *Session) handlePromptsGet(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.GetPromptParams
	if err := decodeParams(req, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, ok := sess.owner.prompts.get(params.Name)
	if !ok {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("unknown prompt %q", params.Name)}
	}
	extra := &Extra{session: sess}
	return entry.handler(ctx, params.Arguments, extra)
}

func (sess *Session) handleResourcesRead(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.ReadResourceParams
	if err := decodeParams(req, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	entry, ok := sess.owner.resources.get(params.Uri)
	if !ok {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: fmt.Sprintf("unknown resource %q", params.Uri)}
	}
	extra := &Extra{session: sess}
	contents, err := entry.handler(ctx, params.Uri, extra)
	if err != nil {
		return nil, err
	}
	return mcp.ReadResourceResult{Contents: contents}, nil
}

func (sess *Session) handleSubscribe(ctx context.Context, req *jsonrpc.Request) (any, error) {
	if !sess.owner.opts.ResourcesSubscribe {
		return nil, &mcp.CapabilityUnsupportedError{Method: mcp.MethodResourcesSubscribe, Capability: "resources.subscribe"}
	}
	var params mcp.ResourceSubscribeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	sess.owner.subscribe(params.Uri, sess)
	sess.subscribedMu.Lock()
	sess.subscribed[params.Uri] = true
	sess.subscribedMu.Unlock()
	return struct{}{}, nil
}

func (sess *Session) handleUnsubscribe(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.ResourceSubscribeParams
	if err := decodeParams(req, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	sess.owner.unsubscribe(params.Uri, sess)
	sess.subscribedMu.Lock()
	delete(sess.subscribed, params.Uri)
	sess.subscribedMu.Unlock()
	return struct{}{}, nil
}

func (sess *Session) handleComplete(ctx context.Context, req *jsonrpc.Request) (any, error) {
	if sess.owner.opts.OnComplete == nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: "completion not supported"}
	}
	var params mcp.CompleteParams
	if err := decodeParams(req, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	values, err := sess.owner.opts.OnComplete(ctx, params.Ref, params.Argument)
	if err != nil {
		return nil, err
	}
	return mcp.CompleteResult{Completion: values}, nil
}

func (sess *Session) handleSetLevel(ctx context.Context, req *jsonrpc.Request) (any, error) {
	var params mcp.SetLevelParams
	if err := decodeParams(req, &params); err != nil {
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeInvalidParams, Message: err.Error()}
	}
	sess.mu.Lock()
	sess.minLogLevel = params.Level
	sess.mu.Unlock()
	return struct{}{}, nil
}

// notify sends a fire-and-forget notification to this session's client,
// ignoring send errors (used for broadcast list_changed/updated pushes; a
// dead session will be reaped by its transport's OnClose).
func (sess *Session) notify(method string, params any) {
	_ = sess.engine.Notify(context.Background(), method, params)
}

func (sess *Session) sendLoggingMessage(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	if !sess.owner.opts.Logging {
		return &mcp.CapabilityUnsupportedError{Method: mcp.MethodLoggingMessage, Capability: "logging"}
	}
	sess.mu.RLock()
	min := sess.minLogLevel
	sess.mu.RUnlock()
	if !level.AtLeast(min) {
		return nil
	}
	return sess.engine.Notify(ctx, mcp.MethodLoggingMessage, mcp.LoggingMessageParams{Level: level, Logger: logger, Data: data})
}

// ClientInfo returns the peer's advertised Implementation, valid once
// initialize has been handled.
func (sess *Session) ClientInfo() mcp.Implementation {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.clientInfo
}

// ClientCapabilities returns the capabilities the client advertised at
// initialize.
func (sess *Session) ClientCapabilities() mcp.ClientCapabilities {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.clientCapabilities
}

// Close cancels all in-flight requests on this session and closes its
// transport.
func (sess *Session) Close() error {
	return sess.engine.Close()
}

// --- CapabilityAsserter (section 4.H) ---------------------------------------

// AssertCapabilityForMethod checks the remote (client) capability needed to
// send a request to the client: sampling/roots/elicitation.
func (sess *Session) AssertCapabilityForMethod(method string) error {
	sess.mu.RLock()
	caps := sess.clientCapabilities
	sess.mu.RUnlock()

	switch method {
	case mcp.MethodSamplingCreate:
		if caps.Sampling == nil {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "sampling"}
		}
	case mcp.MethodRootsList:
		if caps.Roots == nil {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "roots"}
		}
	case mcp.MethodElicitationCreate:
		if caps.Elicitation == nil {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "elicitation"}
		}
	}
	return nil
}

// AssertNotificationCapability checks the local (server) capability needed
// to send a notification.
func (sess *Session) AssertNotificationCapability(method string) error {
	o := sess.owner.opts
	switch method {
	case mcp.MethodToolsListChanged:
		if !o.ToolsListChanged {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "tools.listChanged"}
		}
	case mcp.MethodPromptsListChanged:
		if !o.PromptsListChanged {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "prompts.listChanged"}
		}
	case mcp.MethodResourcesListChanged:
		if !o.ResourcesListChanged {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "resources.listChanged"}
		}
	case mcp.MethodResourcesUpdated:
		if !o.ResourcesSubscribe {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "resources.subscribe"}
		}
	case mcp.MethodLoggingMessage:
		if !o.Logging {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "logging"}
		}
	}
	return nil
}

// AssertRequestHandlerCapability checks the local capability needed to
// answer an inbound request of method.
func (sess *Session) AssertRequestHandlerCapability(method string) error {
	o := sess.owner.opts
	switch method {
	case mcp.MethodToolsList, mcp.MethodToolsCall:
		if !o.Tools {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "tools"}
		}
	case mcp.MethodPromptsList, mcp.MethodPromptsGet:
		if !o.Prompts {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "prompts"}
		}
	case mcp.MethodResourcesList, mcp.MethodResourcesTemplatesList, mcp.MethodResourcesRead:
		if !o.Resources {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "resources"}
		}
	case mcp.MethodResourcesSubscribe, mcp.MethodResourcesUnsubscribe:
		if !o.ResourcesSubscribe {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "resources.subscribe"}
		}
	case mcp.MethodCompletionComplete:
		if !o.Completions {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "completions"}
		}
	case mcp.MethodSetLevel:
		if !o.Logging {
			return &mcp.CapabilityUnsupportedError{Method: method, Capability: "logging"}
		}
	}
	return nil
}

func decodeParams(req *jsonrpc.Request, out any) error {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
