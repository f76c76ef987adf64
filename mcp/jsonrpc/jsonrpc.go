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

// Package jsonrpc implements the wire envelopes of JSON-RPC 2.0 as used by
// the Model Context Protocol: requests, notifications, responses, and the
// error object, plus the single discriminator that classifies an arbitrary
// inbound JSON value into one of those shapes.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC version MCP speaks.
const Version = "2.0"

// Standard JSON-RPC / MCP error codes (spec section 6).
const (
	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeConnectionClosed = -32000
	CodeRequestTimeout   = -32001
)

// RequestId is either a unique positive integer or a non-empty string. It is
// never reused for the lifetime of an open request on a given peer.
type RequestId struct {
	str    string
	num    int64
	isStr  bool
	isZero bool
}

// NewStringId builds a string-valued RequestId.
func NewStringId(s string) RequestId { return RequestId{str: s, isStr: true} }

// NewNumberId builds an integer-valued RequestId.
func NewNumberId(n int64) RequestId { return RequestId{num: n} }

// IsZero reports whether this is the zero value (no id assigned).
func (id RequestId) IsZero() bool { return !id.isStr && id.num == 0 && !id.isZero }

// String renders the id for logs and map keys. String and number ids never
// collide because of the leading type tag.
func (id RequestId) String() string {
	if id.isStr {
		return "s:" + id.str
	}
	return fmt.Sprintf("n:%d", id.num)
}

func (id RequestId) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *RequestId) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = RequestId{num: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("jsonrpc: id must be a string or a number: %w", err)
	}
	if s == "" {
		return fmt.Errorf("jsonrpc: string id must not be empty")
	}
	*id = RequestId{str: s, isStr: true}
	return nil
}

// Meta is the reserved `_meta` sub-mapping carried on request/notification
// params and on results. Keys obey the grammar in invariant I3.
type Meta map[string]any

// Request is a message expecting a response.
type Request struct {
	Jsonrpc string    `json:"jsonrpc"`
	Id      RequestId `json:"id"`
	Method  string    `json:"method"`
	Params  any       `json:"params,omitempty"`
}

// Notification is a one-way message; it carries no id and receives no reply.
type Notification struct {
	Jsonrpc string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a reply envelope, successful or failed: exactly one of
// Result/Error is ever serialized for a given envelope (invariant I2);
// NewResponse builds the success form and NewError the error form.
type Response struct {
	Jsonrpc string         `json:"jsonrpc"`
	Id      RequestId      `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error         `json:"error,omitempty"`
}

// Error is the structured error object of a failed response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewResponse builds a success Response, marshaling result into Result.
func NewResponse(id RequestId, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("jsonrpc: marshal result: %w", err)
	}
	return &Response{Jsonrpc: Version, Id: id, Result: raw}, nil
}

// NewError builds an error Response. data is always an object, never null
// (section 6); callers should pass a map or struct, or nil to omit it.
func NewError(id RequestId, code int, message string, data any) *Response {
	return &Response{Jsonrpc: Version, Id: id, Error: &Error{Code: code, Message: message, Data: data}}
}

// NewRequest builds a Request holding params as given; it does not marshal
// them. Progress-token injection goes through WithProgressToken, which
// merges into a copy rather than the caller-owned value.
func NewRequest(id RequestId, method string, params any) *Request {
	return &Request{Jsonrpc: Version, Id: id, Method: method, Params: params}
}

func NewNotification(method string, params any) *Notification {
	return &Notification{Jsonrpc: Version, Method: method, Params: params}
}

// Kind classifies an inbound envelope per the discriminator in spec 4.A.
type Kind int

const (
	KindInvalid Kind = iota
	KindRequest
	KindNotification
	KindResponse
	KindError
)

// envelopeShape is the permissive shape used only to classify and then
// re-decode into the concrete type; unknown keys are ignored throughout the
// wire model per the JSON config policy (section 4.A).
type envelopeShape struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// Classify inspects a raw JSON value and reports which envelope shape it
// has, without fully decoding it. A structurally invalid envelope yields
// (KindInvalid, CodeParseError-flavored error).
func Classify(raw []byte) (Kind, error) {
	var shape envelopeShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return KindInvalid, fmt.Errorf("jsonrpc: parse error: %w", err)
	}
	hasId := len(shape.Id) > 0 && string(shape.Id) != "null"
	switch {
	case hasId && shape.Method != "":
		return KindRequest, nil
	case !hasId && shape.Method != "":
		return KindNotification, nil
	case hasId && len(shape.Error) > 0:
		return KindError, nil
	case hasId && len(shape.Result) > 0:
		return KindResponse, nil
	default:
		return KindInvalid, fmt.Errorf("jsonrpc: message is neither request, notification, nor response")
	}
}

// DecodeRequest decodes raw into a Request once Classify has identified it
// as one.
func DecodeRequest(raw []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode request: %w", err)
	}
	return &req, nil
}

func DecodeNotification(raw []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode notification: %w", err)
	}
	return &n, nil
}

func DecodeResponse(raw []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("jsonrpc: decode response: %w", err)
	}
	return &r, nil
}
