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

// Package server implements the server (tool/resource provider) role of
// section 4.J: the tool/prompt/resource registries shared across sessions,
// the initialize handler, and createSession for multiplexing one server
// instance over many concurrent transports.
package server

import (
	"context"
	"sort"
	"sync"

	"github.com/mcpkit/mcp-go/mcp"
	"github.com/mcpkit/mcp-go/toolbox"
)

// ToolHandler answers one tools/call invocation.
type ToolHandler func(ctx context.Context, req CallToolRequest, extra *Extra) (mcp.CallToolResult, error)

// CallToolRequest is the decoded params of a tools/call invocation.
type CallToolRequest struct {
	Name      string
	Arguments map[string]any
	Meta      map[string]any
}

// PromptHandler resolves one prompts/get invocation.
type PromptHandler func(ctx context.Context, arguments map[string]string, extra *Extra) (mcp.GetPromptResult, error)

// ResourceHandler answers one resources/read invocation for the resource it
// was registered under.
type ResourceHandler func(ctx context.Context, uri string, extra *Extra) ([]mcp.EmbeddedResource, error)

// CompletionHandler answers completion/complete.
type CompletionHandler func(ctx context.Context, ref mcp.CompleteReference, argument mcp.CompleteArgument) (mcp.CompletionValues, error)

type toolEntry struct {
	def     mcp.Tool
	handler ToolHandler
}

type promptEntry struct {
	def     mcp.Prompt
	handler PromptHandler
}

type resourceEntry struct {
	def     mcp.Resource
	handler ResourceHandler
}

// Options configures a Server. Each *ListChanged/Subscribe flag both enables
// the corresponding capability advertisement in initialize and gates
// whether the matching notification is ever sent (invariant I5).
type Options struct {
	Info         mcp.Implementation
	Instructions string
	Logger       toolbox.Logger

	StrictCapabilities bool

	Tools               bool
	ToolsListChanged    bool
	Prompts             bool
	PromptsListChanged  bool
	Resources           bool
	ResourcesListChanged bool
	ResourcesSubscribe  bool
	Logging             bool
	Completions         bool

	OnComplete CompletionHandler
}

// Server holds the registries and configuration shared by every Session
// created via CreateSession, so one process can back many concurrent
// transports (section 4.J).
type Server struct {
	opts Options

	tools     *registry[toolEntry]
	prompts   *registry[promptEntry]
	resources *registry[resourceEntry]

	sessionsMu sync.Mutex
	sessions   map[*Session]struct{}

	subsMu sync.Mutex
	subs   map[string]map[*Session]struct{} // uri -> subscribed sessions
}

// New constructs a Server with empty registries.
func New(opts Options) *Server {
	if opts.Info.Name == "" {
		opts.Info.Name = "mcp-go"
	}
	return &Server{
		opts:      opts,
		tools:     newRegistry[toolEntry](),
		prompts:   newRegistry[promptEntry](),
		resources: newRegistry[resourceEntry](),
		sessions:  make(map[*Session]struct{}),
		subs:      make(map[string]map[*Session]struct{}),
	}
}

func (s *Server) capabilities() mcp.ServerCapabilities {
	caps := mcp.ServerCapabilities{}
	if s.opts.Tools {
		caps.Tools = &mcp.ListChanged{ListChanged: s.opts.ToolsListChanged}
	}
	if s.opts.Prompts {
		caps.Prompts = &mcp.ListChanged{ListChanged: s.opts.PromptsListChanged}
	}
	if s.opts.Resources {
		caps.Resources = &mcp.ResourcesCapability{
			Subscribe:   s.opts.ResourcesSubscribe,
			ListChanged: s.opts.ResourcesListChanged,
		}
	}
	if s.opts.Logging {
		caps.Logging = map[string]any{}
	}
	if s.opts.Completions {
		caps.Completions = map[string]any{}
	}
	return caps
}

// --- Tools -----------------------------------------------------------------

// AddTool registers or replaces a tool, then broadcasts
// notifications/tools/list_changed to every session iff ToolsListChanged was
// advertised (section 4.J registry table).
func (s *Server) AddTool(def mcp.Tool, handler ToolHandler) {
	s.tools.set(def.Name, toolEntry{def: def, handler: handler})
	s.broadcast(s.opts.ToolsListChanged, mcp.MethodToolsListChanged)
}

// RemoveTool removes a tool by name; a no-op on an absent name returns false
// and suppresses the notification.
func (s *Server) RemoveTool(name string) bool {
	existed := s.tools.remove(name)
	if existed {
		s.broadcast(s.opts.ToolsListChanged, mcp.MethodToolsListChanged)
	}
	return existed
}

// RemoveTools removes several tools, emitting at most one list_changed
// notification for the whole batch.
func (s *Server) RemoveTools(names []string) int {
	removed := 0
	for _, name := range names {
		if s.tools.remove(name) {
			removed++
		}
	}
	if removed > 0 {
		s.broadcast(s.opts.ToolsListChanged, mcp.MethodToolsListChanged)
	}
	return removed
}

func (s *Server) listTools() []mcp.Tool {
	snap := s.tools.snapshot()
	out := make([]mcp.Tool, 0, len(snap))
	for _, e := range snap {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// --- Prompts -----------------------------------------------------------------

// AddPrompt registers or replaces a prompt.
func (s *Server) AddPrompt(def mcp.Prompt, handler PromptHandler) {
	s.prompts.set(def.Name, promptEntry{def: def, handler: handler})
	s.broadcast(s.opts.PromptsListChanged, mcp.MethodPromptsListChanged)
}

// RemovePrompt removes a prompt by name.
func (s *Server) RemovePrompt(name string) bool {
	existed := s.prompts.remove(name)
	if existed {
		s.broadcast(s.opts.PromptsListChanged, mcp.MethodPromptsListChanged)
	}
	return existed
}

func (s *Server) listPrompts() []mcp.Prompt {
	snap := s.prompts.snapshot()
	out := make([]mcp.Prompt, 0, len(snap))
	for _, e := range snap {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// --- Resources ---------------------------------------------------------------

// AddResource registers or replaces a resource.
func (s *Server) AddResource(def mcp.Resource, handler ResourceHandler) {
	s.resources.set(def.Uri, resourceEntry{def: def, handler: handler})
	s.broadcast(s.opts.ResourcesListChanged, mcp.MethodResourcesListChanged)
}

// RemoveResource removes a resource by uri and, if it had subscribers,
// notifies them (resources/updated) in addition to list_changed.
func (s *Server) RemoveResource(uri string) bool {
	existed := s.resources.remove(uri)
	if !existed {
		return false
	}
	s.broadcast(s.opts.ResourcesListChanged, mcp.MethodResourcesListChanged)
	s.notifyResourceUpdated(uri)
	return true
}

// NotifyResourceUpdated sends notifications/resources/updated to every
// session currently subscribed to uri; call this after a resource's
// underlying content changes.
func (s *Server) NotifyResourceUpdated(uri string) {
	s.notifyResourceUpdated(uri)
}

func (s *Server) notifyResourceUpdated(uri string) {
	if !s.opts.ResourcesSubscribe {
		return
	}
	s.subsMu.Lock()
	subscribers := make([]*Session, 0, len(s.subs[uri]))
	for sess := range s.subs[uri] {
		subscribers = append(subscribers, sess)
	}
	s.subsMu.Unlock()
	params := mcp.ResourceSubscribeParams{Uri: uri}
	for _, sess := range subscribers {
		sess.notify(mcp.MethodResourcesUpdated, params)
	}
}

func (s *Server) listResources() []mcp.Resource {
	snap := s.resources.snapshot()
	out := make([]mcp.Resource, 0, len(snap))
	for _, e := range snap {
		out = append(out, e.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Uri < out[j].Uri })
	return out
}

func (s *Server) subscribe(uri string, sess *Session) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.subs[uri] == nil {
		s.subs[uri] = make(map[*Session]struct{})
	}
	s.subs[uri][sess] = struct{}{}
}

func (s *Server) unsubscribe(uri string, sess *Session) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	delete(s.subs[uri], sess)
}

func (s *Server) unsubscribeAll(sess *Session) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for uri, sessions := range s.subs {
		delete(sessions, sess)
		if len(sessions) == 0 {
			delete(s.subs, uri)
		}
	}
}

// --- Session bookkeeping & broadcast ----------------------------------------

func (s *Server) addSession(sess *Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[sess] = struct{}{}
}

func (s *Server) removeSession(sess *Session) {
	s.sessionsMu.Lock()
	delete(s.sessions, sess)
	s.sessionsMu.Unlock()
	s.unsubscribeAll(sess)
}

// broadcast sends a parameterless notification to every active session iff
// enabled is true (the matching *ListChanged capability was advertised).
func (s *Server) broadcast(enabled bool, method string) {
	if !enabled {
		return
	}
	s.sessionsMu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessionsMu.Unlock()
	for _, sess := range sessions {
		sess.notify(method, struct{}{})
	}
}

// Extra is passed to every tool/prompt/resource handler invocation,
// carrying the capability to emit log messages on the enclosing session
// (section 4.J handler invocation contract).
type Extra struct {
	session *Session
}

// SendLoggingMessage emits notifications/message on the session that
// invoked this handler, subject to the session's current minimum level
// (logging/setLevel) and the server having advertised the logging
// capability.
func (e *Extra) SendLoggingMessage(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	return e.session.sendLoggingMessage(ctx, level, logger, data)
}

// Session returns the underlying session, e.g. to read negotiated
// client capabilities.
func (e *Extra) Session() *Session { return e.session }
