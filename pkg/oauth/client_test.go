package oauth

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestRetryTransport() *retryTransport {
	return &retryTransport{base: http.DefaultTransport, maxRetries: 3, backoff: 10 * time.Millisecond}
}

func TestNewDefaultHTTPClient_TLSConfigNotModified(t *testing.T) {
	customTLS := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}

	client := newDefaultHTTPClient(30*time.Second, customTLS, true)
	if client == nil {
		t.Fatal("Expected non-nil client")
	}

	if customTLS.InsecureSkipVerify {
		t.Error("Original TLS config was modified")
	}
}

func TestRoundTrip_RetryOn503(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := newTestRetryTransport().RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRoundTrip_ExhaustedRetries(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := newTestRetryTransport().RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected final 429 response, got %d", resp.StatusCode)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
}

func TestRoundTrip_NoRetry(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
	}{
		{name: "client error", method: http.MethodGet, status: http.StatusBadRequest},
		{name: "post is not retried", method: http.MethodPost, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			req, err := http.NewRequest(tt.method, server.URL, strings.NewReader("body"))
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}

			resp, err := newTestRetryTransport().RoundTrip(req)
			if err != nil {
				t.Fatalf("RoundTrip() failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, resp.StatusCode)
			}
			if attempts.Load() != 1 {
				t.Errorf("Expected 1 attempt, got %d", attempts.Load())
			}
		})
	}
}

func TestRoundTrip_ContextCanceledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	transport := &retryTransport{base: http.DefaultTransport, maxRetries: 3, backoff: time.Hour}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := transport.RoundTrip(req); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		statusCode int
		want       bool
	}{
		{http.StatusOK, false},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		got := shouldRetry(&http.Response{StatusCode: tt.statusCode})
		if got != tt.want {
			t.Errorf("shouldRetry(%d) = %v, want %v", tt.statusCode, got, tt.want)
		}
	}

	if !shouldRetry(nil) {
		t.Error("shouldRetry(nil) should return true")
	}
}
