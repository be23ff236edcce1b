package httpkit

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestNewClient_DefaultTimeout(t *testing.T) {
	c := NewClient()
	if c.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, DefaultTimeout)
	}
}

func TestNewClient_ResponseHeaderTimeout(t *testing.T) {
	c := NewClient(WithTimeout(2*time.Minute), WithResponseHeaderTimeout(90*time.Second))
	ua, ok := c.Transport.(*userAgentTransport)
	if !ok {
		t.Fatalf("transport = %T", c.Transport)
	}
	tr := ua.base.(*http.Transport)
	if tr.ResponseHeaderTimeout != 90*time.Second {
		t.Errorf("ResponseHeaderTimeout = %v", tr.ResponseHeaderTimeout)
	}
	if c.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v", c.Timeout)
	}
}

func TestNewClient_UserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		opts []ClientOption
		want string
	}{
		{name: "default", want: "timestamper/"},
		{name: "custom", opts: []ClientOption{WithUserAgent("TestBot/1.0")}, want: "TestBot/1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewClient(tt.opts...).Get(srv.URL)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if !strings.HasPrefix(string(body), tt.want) {
				t.Errorf("User-Agent = %q, want prefix %q", body, tt.want)
			}
		})
	}
}

func TestNewClient_KeepsCallerUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("User-Agent")))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	req.Header.Set("User-Agent", "caller")
	resp, err := NewClient().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "caller" {
		t.Errorf("User-Agent = %q, want caller", body)
	}
}

func TestIsDialError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"refused", syscall.ECONNREFUSED, true},
		{"wrapped op error", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.EHOSTUNREACH)}, true},
		{"reset", syscall.ECONNRESET, false},
		{"plain", errors.New("boom"), false},
		{"formatted", fmt.Errorf("get: %w", syscall.ENETUNREACH), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDialError(tt.err); got != tt.want {
				t.Errorf("IsDialError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type flakyTransport struct {
	failures int
	calls    int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("ok")), Request: req}, nil
}

func TestRetryTransport_RecoversFromDialErrors(t *testing.T) {
	base := &flakyTransport{failures: 2}
	rt := &retryTransport{base: base, count: 3, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if base.calls != 3 {
		t.Errorf("calls = %d, want 3", base.calls)
	}
}

func TestRetryTransport_GivesUp(t *testing.T) {
	base := &flakyTransport{failures: 10}
	rt := &retryTransport{base: base, count: 2, delay: time.Millisecond}

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if base.calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", base.calls)
	}
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader(strings.Repeat("x", 100)))
	if got := ReadErrorBody(body, 10); got != strings.Repeat("x", 10) {
		t.Errorf("ReadErrorBody = %q", got)
	}
	if got := ReadErrorBody(nil, 10); got != "" {
		t.Errorf("ReadErrorBody(nil) = %q", got)
	}
}
