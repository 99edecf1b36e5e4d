package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	mu      sync.Mutex
	calls   int
	results []error
	delay   time.Duration
	last    CompletionOptions
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (*Completion, error) {
	c.mu.Lock()
	idx := c.calls
	c.calls++
	c.last = opts
	c.mu.Unlock()

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if idx < len(c.results) && c.results[idx] != nil {
		return nil, c.results[idx]
	}
	return &Completion{Text: "answer to: " + prompt, PromptTokens: 3, CompletionTokens: 4}, nil
}

func (c *scriptedClient) GetModelInfo() ModelInfo {
	return ModelInfo{Name: "test-model", Provider: "test"}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGatewayReturnsCompletionText(t *testing.T) {
	client := &scriptedClient{}
	gw := NewGateway(client, fastPolicy(2), GatewayConfig{Timeout: time.Second}, quietLogger())

	text, err := gw.Complete(context.Background(), "hi", CompletionOptions{Temperature: 0.2, MaxTokens: 10})

	require.NoError(t, err)
	assert.Equal(t, "answer to: hi", text)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, 10, client.last.MaxTokens)
}

func TestGatewayRetriesTransientThenSucceeds(t *testing.T) {
	client := &scriptedClient{results: []error{
		&ProviderError{Provider: "test", StatusCode: 500, Transient: true, Err: errors.New("oops")},
	}}
	gw := NewGateway(client, fastPolicy(2), GatewayConfig{Timeout: time.Second}, quietLogger())

	text, err := gw.Complete(context.Background(), "hi", CompletionOptions{})

	require.NoError(t, err)
	assert.Equal(t, "answer to: hi", text)
	assert.Equal(t, 2, client.calls)
}

func TestGatewaySurfacesPermanentError(t *testing.T) {
	client := &scriptedClient{results: []error{
		&ProviderError{Provider: "test", StatusCode: 400, Err: errors.New("bad request")},
	}}
	gw := NewGateway(client, fastPolicy(3), GatewayConfig{Timeout: time.Second}, quietLogger())

	_, err := gw.Complete(context.Background(), "hi", CompletionOptions{})

	require.Error(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestGatewayTreatsAttemptTimeoutAsTransient(t *testing.T) {
	client := &scriptedClient{delay: 50 * time.Millisecond}
	gw := NewGateway(client, fastPolicy(1), GatewayConfig{Timeout: 5 * time.Millisecond}, quietLogger())

	_, err := gw.Complete(context.Background(), "hi", CompletionOptions{})

	require.Error(t, err)
	assert.Equal(t, 2, client.calls)
	var providerErr *ProviderError
	assert.True(t, errors.As(err, &providerErr))
	assert.True(t, providerErr.Transient)
}

func TestManagerRegisterAndLookup(t *testing.T) {
	m := NewManager()
	m.Register("default", &scriptedClient{})

	client, err := m.GetClient("default")
	require.NoError(t, err)
	assert.Equal(t, "test", client.GetModelInfo().Provider)

	m.RemoveClient("default")
	_, err = m.GetClient("default")
	assert.Error(t, err)

	assert.Error(t, m.RegisterClient("x", Config{Provider: "unknown"}))
}
