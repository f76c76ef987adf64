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

// Package stdio implements the Stdio transport (section 4.D): newline-framed
// JSON over a pair of byte streams, with an optional supervised stderr
// channel. It is grounded on the line-based read loop of the Toolbox
// server's stdio session, generalized into a bidirectional Transport that
// either a client or a server can drive.
package stdio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mcpkit/mcp-go/mcp/transport"
)

// readBufSize bounds each stdin/stderr read iteration (section 4.D).
const readBufSize = 8 * 1024

// StderrSeverity classifies one line read from a supervised stderr stream.
type StderrSeverity int

const (
	SeverityInfo StderrSeverity = iota
	SeverityWarning
	SeverityFatal
)

// StderrClassifier maps a stderr line to a severity. A FATAL classification
// raises ConnectionClosedError, drives the transport to Closed, and stops
// both reader loops.
type StderrClassifier func(line string) StderrSeverity

// ConnectionClosedError is raised when a FATAL stderr line is observed
// (JSON-RPC code -32000, jsonrpc.CodeConnectionClosed).
type ConnectionClosedError struct {
	Line string
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("stdio: fatal stderr line, closing connection: %s", e.Line)
}

// Transport is the Stdio transport: it writes newline-terminated JSON to Out
// and reads newline-framed messages from In. An optional Stderr stream is
// supervised by Classifier. The three tasks (stdin reader, stderr reader,
// stdout writer) live under one supervisor (section 5): completion of
// either reader cancels the context and drives Close.
type Transport struct {
	transport.Lifecycle

	In     io.Reader
	Out    io.Writer
	Stderr io.Reader

	Classifier StderrClassifier

	writeMu       sync.Mutex
	cancel        context.CancelFunc
	stdinFramer   transport.LineFramer
	stderrFramer  transport.LineFramer
}

// New builds a stdio Transport over in/out. stderr and classifier are
// optional; pass nil to skip stderr supervision.
func New(in io.Reader, out io.Writer, stderr io.Reader, classifier StderrClassifier) *Transport {
	return &Transport{In: in, Out: out, Stderr: stderr, Classifier: classifier}
}

func (t *Transport) Start(ctx context.Context) error {
	if err := t.BeginStart(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go func() {
		t.readLoop(ctx, t.In, t.feedStdin)
		_ = t.Close()
	}()

	if t.Stderr != nil {
		go func() {
			t.readLoop(ctx, t.Stderr, t.feedStderr)
			_ = t.Close()
		}()
	}
	return nil
}

// feeder processes one chunk of bytes read from a stream; it returns an
// error only when the stream should be torn down (EOF or fatal stderr).
type feeder func(ctx context.Context, chunk []byte) error

func (t *Transport) readLoop(ctx context.Context, r io.Reader, feed feeder) {
	buf := make([]byte, readBufSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := feed(ctx, buf[:n]); ferr != nil {
				t.FireError(ferr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				t.FireError(fmt.Errorf("stdio: read error: %w", err))
			}
			return
		}
	}
}

func (t *Transport) feedStdin(ctx context.Context, chunk []byte) error {
	t.stdinFramer.Feed(chunk)
	for {
		line, ok := t.stdinFramer.Next()
		if !ok {
			return nil
		}
		if line == "" {
			continue
		}
		t.FireMessage(ctx, json.RawMessage(line))
	}
}

func (t *Transport) feedStderr(_ context.Context, chunk []byte) error {
	t.stderrFramer.Feed(chunk)
	for {
		line, ok := t.stderrFramer.Next()
		if !ok {
			return nil
		}
		if t.Classifier == nil {
			continue
		}
		if t.Classifier(line) == SeverityFatal {
			return &ConnectionClosedError{Line: line}
		}
		// INFO/WARNING severities are supervised but non-fatal; callers
		// observe them through the classifier's own side effects (logging).
	}
}

func (t *Transport) Send(_ context.Context, message json.RawMessage, _ *transport.SendOptions) error {
	if err := t.CheckSendable(); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := fmt.Fprintf(t.Out, "%s\n", message); err != nil {
		return &transport.SendFailedError{Err: err}
	}
	return nil
}

func (t *Transport) Close() error {
	if !t.BeginClose() {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.FireClose()
	return nil
}
