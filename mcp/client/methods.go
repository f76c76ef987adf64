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

package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcpkit/mcp-go/mcp"
	"github.com/mcpkit/mcp-go/mcp/jsonrpc"
)

// CallOptions configures one outgoing request beyond its method-specific
// params: a progress callback and/or a timeout override.
type CallOptions struct {
	Timeout    time.Duration
	OnProgress func(mcp.Progress)
}

func (o CallOptions) toRequestOptions() mcp.RequestOptions {
	ro := mcp.RequestOptions{Timeout: o.Timeout}
	if o.OnProgress != nil {
		ro.OnProgress = func(p mcp.Progress) { o.OnProgress(p) }
	}
	return ro
}

// call is the shared plumbing every typed method funnels through: fail fast
// on a missing server capability, then round-trip through the engine and
// decode the raw result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any, opts CallOptions) error {
	if err := c.AssertCapabilityForMethod(method); err != nil {
		return err
	}
	raw, err := c.engine.Call(ctx, method, params, opts.toRequestOptions())
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return unmarshalResult(raw, out)
}

// ListTools lists the server's tools.
func (c *Client) ListTools(ctx context.Context, opts CallOptions) ([]mcp.Tool, error) {
	var result mcp.ListToolsResult
	if err := c.call(ctx, mcp.MethodToolsList, struct{}{}, &result, opts); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a tool by name. meta is validated against invariant I3
// before any network I/O; an invalid key fails with *mcp.InvalidArgumentError.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any, meta jsonrpc.Meta, opts CallOptions) (mcp.CallToolResult, error) {
	var result mcp.CallToolResult
	if err := jsonrpc.ValidateMeta(meta); err != nil {
		return result, &mcp.InvalidArgumentError{Message: err.Error()}
	}
	params := mcp.CallToolParams{Name: name, Arguments: arguments, Meta: meta}
	err := c.call(ctx, mcp.MethodToolsCall, params, &result, opts)
	return result, err
}

// ListResources lists the server's resources.
func (c *Client) ListResources(ctx context.Context, opts CallOptions) ([]mcp.Resource, error) {
	var result mcp.ListResourcesResult
	if err := c.call(ctx, mcp.MethodResourcesList, struct{}{}, &result, opts); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

// ListResourceTemplates lists the server's parameterized resource templates.
func (c *Client) ListResourceTemplates(ctx context.Context, opts CallOptions) ([]mcp.ResourceTemplate, error) {
	var result mcp.ListResourceTemplatesResult
	if err := c.call(ctx, mcp.MethodResourcesTemplatesList, struct{}{}, &result, opts); err != nil {
		return nil, err
	}
	return result.ResourceTemplates, nil
}

// ReadResource reads the content at uri.
func (c *Client) ReadResource(ctx context.Context, uri string, opts CallOptions) ([]mcp.EmbeddedResource, error) {
	var result mcp.ReadResourceResult
	params := mcp.ReadResourceParams{Uri: uri}
	if err := c.call(ctx, mcp.MethodResourcesRead, params, &result, opts); err != nil {
		return nil, err
	}
	return result.Contents, nil
}

// SubscribeResource subscribes to update notifications for uri; requires
// the server to have advertised resources.subscribe.
func (c *Client) SubscribeResource(ctx context.Context, uri string, opts CallOptions) error {
	params := mcp.ResourceSubscribeParams{Uri: uri}
	return c.call(ctx, mcp.MethodResourcesSubscribe, params, nil, opts)
}

// UnsubscribeResource reverses SubscribeResource.
func (c *Client) UnsubscribeResource(ctx context.Context, uri string, opts CallOptions) error {
	params := mcp.ResourceSubscribeParams{Uri: uri}
	return c.call(ctx, mcp.MethodResourcesUnsubscribe, params, nil, opts)
}

// ListPrompts lists the server's prompts.
func (c *Client) ListPrompts(ctx context.Context, opts CallOptions) ([]mcp.Prompt, error) {
	var result mcp.ListPromptsResult
	if err := c.call(ctx, mcp.MethodPromptsList, struct{}{}, &result, opts); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

// GetPrompt resolves a named prompt with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string, opts CallOptions) (mcp.GetPromptResult, error) {
	var result mcp.GetPromptResult
	params := mcp.GetPromptParams{Name: name, Arguments: arguments}
	err := c.call(ctx, mcp.MethodPromptsGet, params, &result, opts)
	return result, err
}

// Complete requests completion candidates for a prompt argument or resource
// template URI.
func (c *Client) Complete(ctx context.Context, ref mcp.CompleteReference, argument mcp.CompleteArgument, opts CallOptions) (mcp.CompletionValues, error) {
	var result mcp.CompleteResult
	params := mcp.CompleteParams{Ref: ref, Argument: argument}
	if err := c.call(ctx, mcp.MethodCompletionComplete, params, &result, opts); err != nil {
		return mcp.CompletionValues{}, err
	}
	return result.Completion, nil
}

// SetLoggingLevel asks the server to only emit notifications/message at or
// above level.
func (c *Client) SetLoggingLevel(ctx context.Context, level mcp.LoggingLevel, opts CallOptions) error {
	params := mcp.SetLevelParams{Level: level}
	return c.call(ctx, mcp.MethodSetLevel, params, nil, opts)
}

func unmarshalResult(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func decodeParams(req *jsonrpc.Request, out any) error {
	raw, err := json.Marshal(req.Params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func decodeNotificationParams(n *jsonrpc.Notification, out any) error {
	raw, err := json.Marshal(n.Params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
