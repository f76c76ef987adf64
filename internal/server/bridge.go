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
	"fmt"
	"io"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcpkit/mcp-go/internal/tools"
	mcpcore "github.com/mcpkit/mcp-go/mcp"
	mcpserver "github.com/mcpkit/mcp-go/mcp/server"
	"github.com/mcpkit/mcp-go/mcp/transport"
	"github.com/mcpkit/mcp-go/mcp/transport/sse"
	"github.com/mcpkit/mcp-go/mcp/transport/stdio"
	"github.com/mcpkit/mcp-go/mcp/transport/streamablehttp"
	"github.com/mcpkit/mcp-go/toolbox"
)

// NewMCPServer bridges one toolset's worth of tools.Tool entries into an
// mcp/server.Server, so every database/cloud integration under
// internal/tools registers as a tools/call handler reachable over any of
// the four core transports, not just this package's own stdio/SSE/HTTP
// sessions.
func NewMCPServer(version string, resourceMgr *ResourceManager, toolsetName string, logger toolbox.Logger) (*mcpserver.Server, error) {
	toolset, ok := resourceMgr.GetToolset(toolsetName)
	if !ok {
		return nil, fmt.Errorf("toolset %q does not exist", toolsetName)
	}

	srv := mcpserver.New(mcpserver.Options{
		Info:             mcpcore.Implementation{Name: "mcp-go", Version: version},
		Logger:           logger,
		Tools:            true,
		ToolsListChanged: true,
	})

	for name := range toolset.Manifest.ToolsManifest {
		tool, ok := resourceMgr.GetTool(name)
		if !ok {
			continue
		}
		srv.AddTool(toMCPTool(name, tool), toolCallHandler(tool))
	}
	return srv, nil
}

func toMCPTool(name string, tool tools.Tool) mcpcore.Tool {
	manifest := tool.McpManifest()
	inputSchema := map[string]any{
		"type":       manifest.InputSchema.Type,
		"properties": manifest.InputSchema.Properties,
	}
	if len(manifest.InputSchema.Required) > 0 {
		inputSchema["required"] = manifest.InputSchema.Required
	}
	return mcpcore.Tool{
		Name:        name,
		Description: manifest.Description,
		InputSchema: inputSchema,
	}
}

// toolCallHandler adapts one tools.Tool into a mcp/server.ToolHandler.
// Authorization against a header-derived auth service, the way api.go's
// HTTP handler does it, is out of scope here: this bridge serves transports
// (stdio, WebSocket) that have no HTTP headers to authorize against, so a
// tool with AuthRequired configured is only reachable through this path if
// it has none, matching Authorized(nil).
func toolCallHandler(tool tools.Tool) mcpserver.ToolHandler {
	return func(ctx context.Context, req mcpserver.CallToolRequest, _ *mcpserver.Extra) (mcpcore.CallToolResult, error) {
		if !tool.Authorized(nil) {
			return mcpcore.CallToolResult{
				Content: []mcpcore.Content{mcpcore.TextContent("tool invocation not authorized")},
				IsError: true,
			}, nil
		}

		params, err := tool.ParseParams(req.Arguments, nil)
		if err != nil {
			return mcpcore.CallToolResult{
				Content: []mcpcore.Content{mcpcore.TextContent(fmt.Sprintf("provided parameters were invalid: %s", err))},
				IsError: true,
			}, nil
		}

		res, err := tool.Invoke(ctx, params)
		if err != nil {
			return mcpcore.CallToolResult{
				Content: []mcpcore.Content{mcpcore.TextContent(err.Error())},
				IsError: true,
			}, nil
		}

		data, err := json.Marshal(res)
		if err != nil {
			return mcpcore.CallToolResult{
				Content: []mcpcore.Content{mcpcore.TextContent(fmt.Sprintf("unable to marshal result: %s", err))},
				IsError: true,
			}, nil
		}
		return mcpcore.CallToolResult{Content: []mcpcore.Content{mcpcore.TextContent(string(data))}}, nil
	}
}

// attachMCPSession builds a fresh bridged mcpserver.Server for toolsetName
// and hands the transport to it, the same two-step NewMCPServer+CreateSession
// sequence cmd/root.go runs once for the WebSocket listener, here repeated
// per session since the toolset is chosen per connection.
func (s *Server) attachMCPSession(ctx context.Context, toolsetName string, t transport.Transport) {
	mcpSrv, err := NewMCPServer(s.version, s.ResourceMgr, toolsetName, s.logger)
	if err != nil {
		s.logger.WarnContext(ctx, fmt.Sprintf("unable to build MCP server for toolset %q: %s", toolsetName, err))
		return
	}
	if _, err := mcpSrv.CreateSession(ctx, t); err != nil {
		s.logger.WarnContext(ctx, fmt.Sprintf("unable to create MCP session for toolset %q: %s", toolsetName, err))
	}
}

// toolsetNameFromContext recovers the {toolsetName} wildcard segment from a
// request context inside an OnSession callback, which only receives the
// context, not the *http.Request chi.URLParam normally reads it from.
func toolsetNameFromContext(ctx context.Context) string {
	return chi.RouteContext(ctx).URLParam("toolsetName")
}

// mountMCPTransports wires the legacy SSE and Streamable HTTP endpoint
// pairs at r's root, generalizing the Toolbox server's per-toolset
// sseHandler/httpHandler mounts (the former internal/server/mcp.go) onto the mcp/
// engine: every tools.Tool in ResourceMgr is reachable the same way over
// either transport, keyed by the toolset resolved from the request route.
func mountMCPTransports(s *Server, r chi.Router) {
	sseH := &sse.Handler{
		BasePath: "/sse",
		OnSession: func(ctx context.Context, t *sse.ServerTransport) {
			s.attachMCPSession(ctx, toolsetNameFromContext(ctx), t)
		},
	}
	streamableH := &streamablehttp.Handler{
		OnSession: func(ctx context.Context, t *streamablehttp.ServerTransport) {
			s.attachMCPSession(ctx, toolsetNameFromContext(ctx), t)
		},
	}
	r.Get("/sse", sseH.ServeSSE)
	r.Post("/sse", sseH.ServePost)
	r.Get("/", streamableH.ServeHTTP)
	r.Post("/", streamableH.ServeHTTP)
	r.Delete("/", streamableH.ServeHTTP)
}

// MCPRouter builds the /mcp subrouter: the combined toolset at the root and
// one instance of the same endpoint pair per named toolset, mirroring the
// route shape of the Toolbox server's mcpRouter (the former internal/server/mcp.go)
// but dispatching through the mcp/ protocol engine instead of the
// hand-rolled v20241105/v20250326 dispatcher.
func MCPRouter(s *Server) (chi.Router, error) {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)

	mountMCPTransports(s, r)
	r.Route("/{toolsetName}", func(r chi.Router) {
		mountMCPTransports(s, r)
	})

	return r, nil
}

// ServeMCPStdio bridges the combined toolset onto a stdio transport for
// --stdio mode, replacing the Toolbox server's NewStdioSession
// (the former internal/server/mcp.go) with the same mcp/ engine every other transport
// uses.
func (s *Server) ServeMCPStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	mcpSrv, err := NewMCPServer(s.version, s.ResourceMgr, "", s.logger)
	if err != nil {
		return fmt.Errorf("unable to build MCP stdio server: %w", err)
	}

	t := stdio.New(in, out, nil, nil)
	done := make(chan struct{})
	t.OnClose(func() { close(done) })

	if _, err := mcpSrv.CreateSession(ctx, t); err != nil {
		return fmt.Errorf("unable to create MCP stdio session: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		_ = t.Close()
		return ctx.Err()
	}
}
