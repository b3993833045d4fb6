package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/DukeRupert/folio/internal/metrics"
)

// =============================================================================
// Selector State
// =============================================================================

// State is the verification state of a Selector.
type State string

const (
	StateUnverified        State = "unverified"
	StateVerifyingPrimary  State = "verifying_primary"
	StateReadyPrimary      State = "ready_primary"
	StateVerifyingFallback State = "verifying_fallback"
	StateReadyFallback     State = "ready_fallback"
	StateFailed            State = "failed"
)

// AllStates lists every state, used to reset the state gauge.
var AllStates = []State{
	StateUnverified,
	StateVerifyingPrimary,
	StateReadyPrimary,
	StateVerifyingFallback,
	StateReadyFallback,
	StateFailed,
}

// Ready reports whether a transport has been verified.
func (s State) Ready() bool {
	return s == StateReadyPrimary || s == StateReadyFallback
}

// =============================================================================
// Selector
// =============================================================================

// SelectorConfig configures a Selector.
type SelectorConfig struct {
	Primary TransportConfig

	// Attempts per configuration (default 2).
	Attempts int

	// Backoff is multiplied by the attempt number to get the wait after a
	// failed verification (default 1s).
	Backoff time.Duration

	// Fallback derives the alternate configuration. Defaults to Fallback.
	Fallback func(TransportConfig) TransportConfig
}

// Selector decides which TransportConfig senders use. It verifies the
// primary configuration and, if that fails, a derived fallback. The
// current configuration is only ever written by the Selector.
type Selector struct {
	primary   TransportConfig
	attempts  int
	backoff   time.Duration
	fallback  func(TransportConfig) TransportConfig
	transport Transport
	resolver  Resolver
	logger    *slog.Logger

	current atomic.Pointer[TransportConfig]
	state   atomic.Value // State
	runMu   sync.Mutex
}

// NewSelector creates a Selector in the unverified state with the primary
// configuration as current. A nil resolver uses net.DefaultResolver.
func NewSelector(cfg SelectorConfig, transport Transport, resolver Resolver, logger *slog.Logger) *Selector {
	if cfg.Attempts < 1 {
		cfg.Attempts = 2
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Fallback == nil {
		cfg.Fallback = Fallback
	}
	if cfg.Primary.Label == "" {
		cfg.Primary.Label = LabelPrimary
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	s := &Selector{
		primary:   cfg.Primary,
		attempts:  cfg.Attempts,
		backoff:   cfg.Backoff,
		fallback:  cfg.Fallback,
		transport: transport,
		resolver:  resolver,
		logger:    logger.With("component", "transport_selector"),
	}
	primary := cfg.Primary
	s.current.Store(&primary)
	s.setState(StateUnverified)
	return s
}

// Current returns the latest verified configuration, or the primary when
// nothing has been verified yet.
func (s *Selector) Current() TransportConfig {
	return *s.current.Load()
}

// State returns the current verification state.
func (s *Selector) State() State {
	return s.state.Load().(State)
}

// Run verifies the primary configuration and then, if needed, the
// fallback. On total failure the selector enters StateFailed, keeps the
// primary as current and returns the combined error. Concurrent calls are
// serialized.
func (s *Selector) Run(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setState(StateVerifyingPrimary)
	primaryErr := s.verify(ctx, s.primary)
	if primaryErr == nil {
		s.use(s.primary, StateReadyPrimary)
		return nil
	}
	if ctx.Err() != nil {
		s.fail(s.primary)
		return ctx.Err()
	}

	fb := s.fallback(s.primary)
	s.logger.Warn("primary transport failed verification, trying fallback",
		"primary", s.primary.String(),
		"fallback", fb.String(),
		"error", primaryErr,
	)

	s.setState(StateVerifyingFallback)
	fallbackErr := s.verify(ctx, fb)
	if fallbackErr == nil {
		s.use(fb, StateReadyFallback)
		return nil
	}

	s.fail(s.primary)
	err := errors.Join(
		fmt.Errorf("primary %s: %w", s.primary.Addr(), primaryErr),
		fmt.Errorf("fallback %s: %w", fb.Addr(), fallbackErr),
	)
	s.logger.Error("no SMTP transport could be verified; sends will fail until a later verification succeeds",
		"error", err,
	)
	return err
}

// Check runs one live verification of the current configuration.
func (s *Selector) Check(ctx context.Context) (TransportConfig, error) {
	cfg := s.Current()
	err := s.transport.Verify(ctx, cfg)
	metrics.Verification(cfg.Label, err == nil)
	return cfg, err
}

// Budget is the longest a full Run can take: every attempt against both
// configurations running into its timeout, plus the waits between them.
func (s *Selector) Budget() time.Duration {
	return s.phaseBudget(s.primary) + s.phaseBudget(s.fallback(s.primary))
}

func (s *Selector) phaseBudget(cfg TransportConfig) time.Duration {
	d := time.Duration(s.attempts) * cfg.timeout()
	for n := 1; n < s.attempts; n++ {
		d += time.Duration(n) * s.backoff
	}
	return d
}

// verify tries cfg up to s.attempts times, waiting attempt x backoff
// between tries. Each attempt, DNS probe included, is bounded by the
// configured timeout.
func (s *Selector) verify(ctx context.Context, cfg TransportConfig) error {
	attempt := 0
	b := retry.WithMaxRetries(uint64(s.attempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		return time.Duration(attempt) * s.backoff, false
	}))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.timeout())
		defer cancel()

		s.probeDNS(attemptCtx, cfg)

		start := time.Now()
		err := s.transport.Verify(attemptCtx, cfg)
		metrics.Verification(cfg.Label, err == nil)
		if err != nil {
			s.logger.Warn("transport verification failed",
				"transport", cfg.String(),
				"attempt", attempt,
				"max_attempts", s.attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}

		s.logger.Info("transport verified",
			"transport", cfg.String(),
			"attempt", attempt,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
}

// probeDNS logs the addresses the host resolves to. Failures are logged
// and otherwise ignored.
func (s *Selector) probeDNS(ctx context.Context, cfg TransportConfig) {
	if net.ParseIP(cfg.Host) != nil {
		return
	}
	addrs, err := s.resolver.LookupHost(ctx, cfg.Host)
	if err != nil {
		s.logger.Warn("DNS lookup failed", "host", cfg.Host, "error", err)
		return
	}
	s.logger.Debug("DNS lookup", "host", cfg.Host, "addrs", addrs)
}

func (s *Selector) use(cfg TransportConfig, state State) {
	c := cfg
	s.current.Store(&c)
	s.setState(state)
}

func (s *Selector) fail(primary TransportConfig) {
	p := primary
	s.current.Store(&p)
	s.setState(StateFailed)
}

func (s *Selector) setState(state State) {
	s.state.Store(state)

	names := make([]string, len(AllStates))
	for i, st := range AllStates {
		names[i] = string(st)
	}
	metrics.SetTransportState(string(state), names)
}
