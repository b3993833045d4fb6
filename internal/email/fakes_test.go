package email

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type transportCall struct {
	cfg TransportConfig
	at  time.Time
}

// fakeTransport records every call and answers from the configured funcs.
type fakeTransport struct {
	mu       sync.Mutex
	verifyFn func(cfg TransportConfig) error
	sendFn   func(n int, cfg TransportConfig) error // n is the 1-based send call
	verifies []transportCall
	sends    []transportCall
	lastBody []byte
}

func (f *fakeTransport) Verify(ctx context.Context, cfg TransportConfig) error {
	f.mu.Lock()
	f.verifies = append(f.verifies, transportCall{cfg: cfg, at: time.Now()})
	fn := f.verifyFn
	f.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(cfg)
}

func (f *fakeTransport) Send(ctx context.Context, cfg TransportConfig, from string, to []string, msg io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return err
	}

	f.mu.Lock()
	f.sends = append(f.sends, transportCall{cfg: cfg, at: time.Now()})
	f.lastBody = buf.Bytes()
	n := len(f.sends)
	fn := f.sendFn
	f.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(n, cfg)
}

func (f *fakeTransport) verifyCalls() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transportCall(nil), f.verifies...)
}

func (f *fakeTransport) sendCalls() []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transportCall(nil), f.sends...)
}

// fakeResolver answers lookups from a fixed table.
type fakeResolver struct {
	mu      sync.Mutex
	err     error
	lookups int
}

func (r *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	r.mu.Lock()
	r.lookups++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return []string{"192.0.2.10"}, nil
}

func (r *fakeResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	if r.err != nil {
		return nil, r.err
	}
	if network == "ip6" {
		return []net.IP{net.ParseIP("2001:db8::10")}, nil
	}
	return []net.IP{net.ParseIP("192.0.2.10")}, nil
}

func (r *fakeResolver) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

// fixedSource is a TransportSource whose value the test controls.
type fixedSource struct {
	mu  sync.Mutex
	cfg TransportConfig
}

func (s *fixedSource) Current() TransportConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *fixedSource) set(cfg TransportConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func attachmentFrom(name, contentType string, data []byte) *Attachment {
	return &Attachment{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
