// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"context"
	"testing"
)

// TestSetupOTelNoExportersConfiguresNoopProviders exercises the path with
// neither an OTLP endpoint nor GCP export enabled, which never reaches out
// to the network and should still hand back a usable shutdown func.
func TestSetupOTelNoExportersConfiguresNoopProviders(t *testing.T) {
	shutdown, err := SetupOTel(context.Background(), "1.2.3", "", false, "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if shutdown == nil {
		t.Fatalf("expected a non-nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error shutting down: %s", err)
	}
}

func TestCreateTelemetryInstrumentationBuildsCounters(t *testing.T) {
	if _, err := SetupOTel(context.Background(), "1.2.3", "", false, "test-service"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	inst, err := CreateTelemetryInstrumentation("1.2.3")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if inst.Tracer == nil {
		t.Fatalf("expected a non-nil tracer")
	}
	if inst.McpSse == nil {
		t.Fatalf("expected a non-nil mcp.sse counter")
	}
	if inst.McpPost == nil {
		t.Fatalf("expected a non-nil mcp.streamable_http counter")
	}

	// Recording through the counters should not panic or error even against
	// the no-op meter provider configured above.
	inst.McpSse.Add(context.Background(), 1)
	inst.McpPost.Add(context.Background(), 1)
}
