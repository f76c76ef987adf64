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

import "fmt"

// CapabilityUnsupportedError is returned before any I/O when a method needs
// a capability the remote peer never advertised, or a local capability the
// role itself was never configured with (invariant I5).
type CapabilityUnsupportedError struct {
	Method     string
	Capability string
}

func (e *CapabilityUnsupportedError) Error() string {
	return fmt.Sprintf("mcp: capability %q required for %q was not advertised", e.Capability, e.Method)
}

// InvalidArgumentError marks a request rejected locally before any network
// I/O, e.g. a malformed _meta key (invariant I3).
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string { return "mcp: invalid argument: " + e.Message }
