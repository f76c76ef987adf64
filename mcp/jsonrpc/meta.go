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

package jsonrpc

import (
	"fmt"
	"strings"
)

// label is one dot-separated component of a _meta key: [A-Za-z0-9_-]+, no
// leading '-', no consecutive dots, no trailing dot (invariant I3).
func validLabel(s string) bool {
	if s == "" || s[0] == '-' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func validDottedLabels(s string) bool {
	if s == "" || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.Contains(s, "..") {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if !validLabel(part) {
			return false
		}
	}
	return true
}

func isReservedLabel(s string) bool {
	l := strings.ToLower(s)
	return l == "mcp" || l == "modelcontextprotocol"
}

// ValidateMetaKey enforces invariant I3: `[prefix "/"] name`, where prefix
// and name are each dot-separated label sequences, and a prefix whose
// labels contain (case-insensitively) "mcp" or "modelcontextprotocol" is
// reserved and rejected at the client boundary.
func ValidateMetaKey(key string) error {
	prefix, name, hasPrefix := strings.Cut(key, "/")
	if !hasPrefix {
		name = prefix
		prefix = ""
	}
	if !validDottedLabels(name) {
		return fmt.Errorf("jsonrpc: invalid _meta key %q: bad name segment", key)
	}
	if hasPrefix {
		if !validDottedLabels(prefix) {
			return fmt.Errorf("jsonrpc: invalid _meta key %q: bad prefix segment", key)
		}
		for _, label := range strings.Split(prefix, ".") {
			if isReservedLabel(label) {
				return fmt.Errorf("jsonrpc: _meta key %q uses reserved prefix label %q", key, label)
			}
		}
	}
	return nil
}

// ValidateMeta validates every key of m against ValidateMetaKey, returning
// the first violation found.
func ValidateMeta(m Meta) error {
	for k := range m {
		if err := ValidateMetaKey(k); err != nil {
			return err
		}
	}
	return nil
}

// WithProgressToken returns a shallow clone of params with _meta.progressToken
// set to token, without mutating the caller-owned params value (design note:
// "do not mutate caller-owned structures; clone, merge, then serialize").
// params must marshal to a JSON object (or be nil).
func WithProgressToken(params any, token RequestId) (any, error) {
	merged := map[string]any{}
	if params != nil {
		raw, err := marshalToMap(params)
		if err != nil {
			return nil, fmt.Errorf("jsonrpc: progress token injection: %w", err)
		}
		merged = raw
	}
	meta, _ := merged["_meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	} else {
		cloned := make(map[string]any, len(meta))
		for k, v := range meta {
			cloned[k] = v
		}
		meta = cloned
	}
	meta["progressToken"] = token
	merged["_meta"] = meta
	return merged, nil
}
