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

// Package mcp is the root of the Model Context Protocol software development
// kit: the domain model (section 3), the protocol engine (section 4.H), and
// the client and server roles built on top of it (sections 4.I, 4.J). The
// wire-level JSON-RPC envelopes live in the sibling jsonrpc package; the
// pluggable transports live under mcp/transport.
package mcp

import "github.com/mcpkit/mcp-go/mcp/jsonrpc"

// LatestProtocolVersion is negotiated first; SupportedProtocolVersions lists
// every version this SDK understands (section 6).
const (
	LatestProtocolVersion = "2025-03-26"
	protocolVersion20241105 = "2024-11-05"
)

// SupportedProtocolVersions is the set of protocolVersion strings this SDK
// accepts during initialize.
var SupportedProtocolVersions = []string{LatestProtocolVersion, protocolVersion20241105}

// IsSupportedProtocolVersion reports whether v is a version this SDK speaks.
func IsSupportedProtocolVersion(v string) bool {
	for _, s := range SupportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Implementation identifies a client or server name/version pair, exchanged
// during initialize.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ListChanged is the shape of a capability sub-object that only advertises
// whether list-changed notifications are sent.
type ListChanged struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability additionally advertises subscribe support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities is asserted by the client in initialize (section 3.2).
type ClientCapabilities struct {
	Roots        *ListChanged   `json:"roots,omitempty"`
	Sampling     map[string]any `json:"sampling,omitempty"`
	Elicitation  map[string]any `json:"elicitation,omitempty"`
	Experimental map[string]any `json:"experimental,omitempty"`
}

// ServerCapabilities is asserted by the server in initialize (section 3.2).
type ServerCapabilities struct {
	Tools        *ListChanged         `json:"tools,omitempty"`
	Prompts      *ListChanged         `json:"prompts,omitempty"`
	Resources    *ResourcesCapability `json:"resources,omitempty"`
	Logging      map[string]any       `json:"logging,omitempty"`
	Completions  map[string]any       `json:"completions,omitempty"`
	Experimental map[string]any       `json:"experimental,omitempty"`
}

// Tool describes a capability callable via tools/call; identified by Name,
// unique per server.
type Tool struct {
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	InputSchema  map[string]any `json:"inputSchema"`
	OutputSchema map[string]any `json:"outputSchema,omitempty"`
	Annotations  map[string]any `json:"annotations,omitempty"`
}

// PromptArgument is one entry of a Prompt's ordered parameter list.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// Prompt describes a reusable prompt template exposed by a server.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// Resource describes a readable, URI-addressed piece of server-held context.
// Uri is unique per server.
type Resource struct {
	Uri         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ResourceTemplate describes a parameterized family of resource URIs.
type ResourceTemplate struct {
	UriTemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ContentType tags the variant carried by a Content value.
type ContentType string

const (
	ContentTypeText             ContentType = "text"
	ContentTypeImage            ContentType = "image"
	ContentTypeAudio            ContentType = "audio"
	ContentTypeResource         ContentType = "resource"
	ContentTypeResourceLink     ContentType = "resource_link"
	ContentTypeUnknown          ContentType = "unknown"
)

// Content is a tagged union over the content variants a tool result, prompt
// message, or resource read may carry. Forward-compatible: an unrecognized
// "type" decodes into ContentTypeUnknown with Raw preserving the original
// tag and payload (design note on polymorphic content variants).
type Content struct {
	Type ContentType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image / audio: base64-encoded bytes plus an explicit mime type
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	// embedded-resource
	Resource *EmbeddedResource `json:"resource,omitempty"`

	// resource-link
	Uri         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// Raw preserves the original "type" tag and fields for Unknown content so
	// it survives a decode/encode round trip unchanged.
	Raw map[string]any `json:"-"`
}

// EmbeddedResource is the payload of an embedded-resource Content value.
type EmbeddedResource struct {
	Uri      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// TextContent is sugar for constructing a text Content value.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// LoggingLevel is the severity enumeration of notifications/message
// (section 3.3), ordered from least to most severe.
type LoggingLevel string

const (
	LogDebug     LoggingLevel = "debug"
	LogInfo      LoggingLevel = "info"
	LogNotice    LoggingLevel = "notice"
	LogWarning   LoggingLevel = "warning"
	LogError     LoggingLevel = "error"
	LogCritical  LoggingLevel = "critical"
	LogAlert     LoggingLevel = "alert"
	LogEmergency LoggingLevel = "emergency"
)

var loggingLevelRank = map[LoggingLevel]int{
	LogDebug: 0, LogInfo: 1, LogNotice: 2, LogWarning: 3,
	LogError: 4, LogCritical: 5, LogAlert: 6, LogEmergency: 7,
}

// AtLeast reports whether l is at least as severe as min.
func (l LoggingLevel) AtLeast(min LoggingLevel) bool {
	return loggingLevelRank[l] >= loggingLevelRank[min]
}

// Progress is the payload of notifications/progress (section 3.3). Progress
// is monotonically non-decreasing per token; callers are expected, not
// enforced by this type, to uphold that.
type Progress struct {
	ProgressToken jsonrpc.RequestId `json:"progressToken"`
	Progress      float64           `json:"progress"`
	Total         *float64          `json:"total,omitempty"`
	Message       string            `json:"message,omitempty"`
}

// CancelledParams is the payload of notifications/cancelled.
type CancelledParams struct {
	RequestId jsonrpc.RequestId `json:"requestId"`
	Reason    string            `json:"reason,omitempty"`
}

// Well-known method names used by the built-in handlers (sections 4.I, 4.J).
const (
	MethodInitialize     = "initialize"
	MethodInitialized    = "notifications/initialized"
	MethodPing           = "ping"
	MethodCancelled      = "notifications/cancelled"
	MethodProgress       = "notifications/progress"
	MethodLoggingMessage = "notifications/message"
	MethodSetLevel       = "logging/setLevel"

	MethodToolsList         = "tools/list"
	MethodToolsCall         = "tools/call"
	MethodToolsListChanged  = "notifications/tools/list_changed"
	MethodPromptsList       = "prompts/list"
	MethodPromptsGet        = "prompts/get"
	MethodPromptsListChanged = "notifications/prompts/list_changed"

	MethodResourcesList          = "resources/list"
	MethodResourcesTemplatesList = "resources/templates/list"
	MethodResourcesRead          = "resources/read"
	MethodResourcesSubscribe     = "resources/subscribe"
	MethodResourcesUnsubscribe   = "resources/unsubscribe"
	MethodResourcesListChanged   = "notifications/resources/list_changed"
	MethodResourcesUpdated       = "notifications/resources/updated"

	MethodCompletionComplete = "completion/complete"
	MethodSamplingCreate     = "sampling/createMessage"
	MethodRootsList          = "roots/list"
	MethodRootsListChanged   = "notifications/roots/list_changed"
	MethodElicitationCreate  = "elicitation/create"
)

// InitializeParams is sent by the client as the first request of a session.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the server's reply to initialize.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// CallToolParams is the params of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Meta      jsonrpc.Meta   `json:"_meta,omitempty"`
}

// CallToolResult is the result of tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// ListToolsResult is the result of tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// ListPromptsResult is the result of prompts/list.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptParams is the params of prompts/get.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptMessage is one turn of a resolved prompt.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// GetPromptResult is the result of prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// ListResourcesResult is the result of resources/list.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ListResourceTemplatesResult is the result of resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// ReadResourceParams is the params of resources/read.
type ReadResourceParams struct {
	Uri string `json:"uri"`
}

// ReadResourceResult is the result of resources/read.
type ReadResourceResult struct {
	Contents []EmbeddedResource `json:"contents"`
}

// ResourceSubscribeParams is shared by resources/subscribe and
// resources/unsubscribe.
type ResourceSubscribeParams struct {
	Uri string `json:"uri"`
}

// LoggingMessageParams is the payload of notifications/message.
type LoggingMessageParams struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitempty"`
	Data   any          `json:"data"`
}

// SetLevelParams is the params of logging/setLevel.
type SetLevelParams struct {
	Level LoggingLevel `json:"level"`
}

// CompleteReference identifies what is being completed: a prompt name or a
// resource template URI.
type CompleteReference struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Uri  string `json:"uri,omitempty"`
}

// CompleteArgument is the argument being completed.
type CompleteArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompleteParams is the params of completion/complete.
type CompleteParams struct {
	Ref      CompleteReference `json:"ref"`
	Argument CompleteArgument  `json:"argument"`
}

// CompletionValues is the result payload of completion/complete.
type CompletionValues struct {
	Values  []string `json:"values"`
	Total   *int     `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// CompleteResult is the result of completion/complete.
type CompleteResult struct {
	Completion CompletionValues `json:"completion"`
}

// Root is one filesystem or URI root the client exposes to the server via
// roots/list, answered by the client's own RootsHandler.
type Root struct {
	Uri  string `json:"uri"`
	Name string `json:"name,omitempty"`
}

// ListRootsResult is the result of roots/list.
type ListRootsResult struct {
	Roots []Root `json:"roots"`
}

// ModelHint is one entry of ModelPreferences.Hints.
type ModelHint struct {
	Name string `json:"name,omitempty"`
}

// ModelPreferences steers the server's model choice for sampling/createMessage.
type ModelPreferences struct {
	Hints                []ModelHint `json:"hints,omitempty"`
	CostPriority         *float64    `json:"costPriority,omitempty"`
	SpeedPriority        *float64    `json:"speedPriority,omitempty"`
	IntelligencePriority *float64    `json:"intelligencePriority,omitempty"`
}

// SamplingMessage is one turn of a sampling/createMessage conversation.
type SamplingMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// CreateMessageParams is the params of sampling/createMessage, answered by
// the client's own SamplingHandler.
type CreateMessageParams struct {
	Messages         []SamplingMessage `json:"messages"`
	ModelPreferences *ModelPreferences `json:"modelPreferences,omitempty"`
	SystemPrompt     string            `json:"systemPrompt,omitempty"`
	MaxTokens        int               `json:"maxTokens,omitempty"`
}

// CreateMessageResult is the result of sampling/createMessage.
type CreateMessageResult struct {
	Role       string  `json:"role"`
	Content    Content `json:"content"`
	Model      string  `json:"model"`
	StopReason string  `json:"stopReason,omitempty"`
}
