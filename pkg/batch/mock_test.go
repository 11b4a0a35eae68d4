package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aixgo-dev/chatbatch/pkg/checkpoint"
	"github.com/aixgo-dev/chatbatch/pkg/client"
)

// mockCompleter returns queued results in call order, then a fixed reply.
type mockCompleter struct {
	mu       sync.Mutex
	results  []mockResult
	fallback string
	calls    []client.Request
	delay    time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

type mockResult struct {
	body json.RawMessage
	err  error
}

func newMockCompleter(reply string) *mockCompleter {
	return &mockCompleter{fallback: reply}
}

func (m *mockCompleter) Complete(ctx context.Context, req client.Request) (json.RawMessage, error) {
	n := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		cur := m.maxInflight.Load()
		if n <= cur || m.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var res *mockResult
	if len(m.results) > 0 {
		res = &m.results[0]
		m.results = m.results[1:]
	}
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}

	if res != nil {
		return res.body, res.err
	}
	return completion(m.fallback), nil
}

func (m *mockCompleter) push(body json.RawMessage, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, mockResult{body: body, err: err})
}

func (m *mockCompleter) getCalls() []client.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]client.Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// alwaysFail fails every call with a transport error.
type alwaysFail struct {
	calls atomic.Int32
}

func (a *alwaysFail) Complete(ctx context.Context, req client.Request) (json.RawMessage, error) {
	a.calls.Add(1)
	return nil, &client.TransportError{Op: "POST", URL: "http://test", Err: errors.New("connection refused")}
}

func completion(content string) json.RawMessage {
	body := fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",
"choices":[{"index":0,"message":{"role":"assistant","content":%q},"finish_reason":"stop"}],
"usage":{"prompt_tokens":10,"completion_tokens":1,"total_tokens":11}}`, content)
	return json.RawMessage(body)
}

func apiErrorBody(typ, code, msg string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"error":{"message":%q,"type":%q,"param":null,"code":%q}}`, msg, typ, code))
}

// failingStore wraps a store and fails appends once armed.
type failingStore struct {
	checkpoint.Store
	appendErr error
}

func (f *failingStore) Append(ctx context.Context, rec checkpoint.Record) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.Store.Append(ctx, rec)
}

// recordSleeps replaces the backoff sleep with a counter.
func recordSleeps(d *Dispatcher) *atomic.Int32 {
	var n atomic.Int32
	d.sleep = func(ctx context.Context, _ time.Duration) error {
		n.Add(1)
		return ctx.Err()
	}
	return &n
}
