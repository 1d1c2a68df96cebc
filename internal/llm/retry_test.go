package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockRetryProvider returns queued errors first, then queued responses.
type mockRetryProvider struct {
	name       string
	errors     []error
	responses  []*Response
	calls      int
	embedCalls int
	embedErr   error
}

func (m *mockRetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.errors) {
		return nil, m.errors[idx]
	}
	respIdx := idx - len(m.errors)
	if respIdx < len(m.responses) {
		return m.responses[respIdx], nil
	}
	return nil, errors.New("no more responses")
}

func (m *mockRetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.embedCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (m *mockRetryProvider) Name() string { return m.name }

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 2 {
		t.Errorf("expected 2 max retries, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 1*time.Second {
		t.Errorf("expected 1 second retry delay, got %v", cfg.RetryDelay)
	}
	if cfg.MaxDelay != 30*time.Second {
		t.Errorf("expected 30 second max delay, got %v", cfg.MaxDelay)
	}
	if cfg.Timeout != 1*time.Minute {
		t.Errorf("expected 1 minute timeout, got %v", cfg.Timeout)
	}
}

func TestNewRetryProvider_NilConfig(t *testing.T) {
	inner := &mockRetryProvider{name: "test"}
	retry := NewRetryProvider(inner, nil)

	if retry == nil {
		t.Fatal("expected non-nil retry provider")
	}
	if retry.config == nil {
		t.Fatal("expected config to be set")
	}
	if retry.config.MaxRetries != 2 {
		t.Errorf("expected default 2 retries, got %d", retry.config.MaxRetries)
	}
}

func TestRetryProvider_Name(t *testing.T) {
	inner := &mockRetryProvider{name: "test-provider"}
	retry := NewRetryProvider(inner, nil)

	if retry.Name() != "test-provider" {
		t.Errorf("expected 'test-provider', got %s", retry.Name())
	}
}

func TestRetryProvider_Complete_SucceedsFirstTry(t *testing.T) {
	inner := &mockRetryProvider{
		name:      "test",
		responses: []*Response{{Content: "success"}},
	}

	retry := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Timeout:    5 * time.Second,
	})

	resp, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "success" {
		t.Errorf("expected 'success', got %q", resp.Content)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_RetriesOnRetryableError(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errors: []error{
			errors.New("500 Internal Server Error"),
			errors.New("503 Service Unavailable"),
		},
		responses: []*Response{{Content: "success after retries"}},
	}

	retry := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
		Timeout:    5 * time.Second,
	})

	resp, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "success after retries" {
		t.Errorf("got %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_StopsOnNonRetryable(t *testing.T) {
	inner := &mockRetryProvider{
		name:   "test",
		errors: []error{errors.New("401 Unauthorized")},
	}

	retry := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		MaxDelay:   100 * time.Millisecond,
		Timeout:    5 * time.Second,
	})

	_, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("expected non-retryable error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 call, got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_ExhaustsRetries(t *testing.T) {
	inner := &mockRetryProvider{
		name: "test",
		errors: []error{
			errors.New("503 Service Unavailable"),
			errors.New("503 Service Unavailable"),
			errors.New("503 Service Unavailable"),
		},
	}

	retry := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 2,
		RetryDelay: 5 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
		Timeout:    5 * time.Second,
	})

	_, err := retry.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if !strings.Contains(err.Error(), "max retries (2) exceeded") {
		t.Errorf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", inner.calls)
	}
}

func TestRetryProvider_Complete_ContextCancelled(t *testing.T) {
	inner := &mockRetryProvider{
		name:   "test",
		errors: []error{errors.New("503 Service Unavailable")},
	}

	retry := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 5,
		RetryDelay: 1 * time.Second,
		MaxDelay:   5 * time.Second,
		Timeout:    5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retry.Complete(ctx, &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error with cancelled context")
	}
}

func TestRetryProvider_Embed_PassesThrough(t *testing.T) {
	inner := &mockRetryProvider{name: "test"}
	retry := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 5,
		RetryDelay: 10 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Timeout:    5 * time.Second,
	})

	vectors, err := retry.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Errorf("expected 2 vectors, got %d", len(vectors))
	}
	if inner.embedCalls != 1 {
		t.Errorf("expected 1 embed call, got %d", inner.embedCalls)
	}
}

func TestRetryProvider_Embed_ErrorNotRetried(t *testing.T) {
	inner := &mockRetryProvider{
		name:     "test",
		embedErr: errors.New("503 Service Unavailable"),
	}
	retry := NewRetryProvider(inner, nil)

	_, err := retry.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.embedCalls != 1 {
		t.Errorf("embedding failures must not be retried, got %d calls", inner.embedCalls)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate_limited", errors.New("429 Too Many Requests"), true},
		{"server_error", errors.New("500 Internal Server Error"), true},
		{"bad_gateway", errors.New("502 Bad Gateway"), true},
		{"unavailable", errors.New("503 Service Unavailable"), true},
		{"bad_request", errors.New("400 Bad Request"), false},
		{"unauthorized", errors.New("401 Unauthorized"), false},
		{"not_found", errors.New("404 Not Found"), false},
		{"unknown", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrapWithRetry_Nil(t *testing.T) {
	if WrapWithRetry(nil, ProviderConfig{}) != nil {
		t.Error("wrapping nil provider should return nil")
	}
}
