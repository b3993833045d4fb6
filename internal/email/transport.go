package email

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

// =============================================================================
// Transport Configuration
// =============================================================================

// Transport labels.
const (
	LabelPrimary  = "primary"
	LabelFallback = "fallback"
)

// Well-known submission ports.
const (
	PortSMTPS      = 465 // implicit TLS
	PortSubmission = 587 // STARTTLS
)

// DefaultTimeout bounds each network step of a verify or send: connect,
// greeting, every command and the message body write.
const DefaultTimeout = 120 * time.Second

// TransportConfig describes one way of reaching the outbound SMTP server.
type TransportConfig struct {
	Label    string // "primary" or "fallback"
	Host     string
	Port     int
	Secure   bool // implicit TLS; false means plaintext upgraded with STARTTLS when offered
	Username string
	Password string
	Timeout  time.Duration
	IPFamily int // 0 = any, 4 or 6
}

// Addr returns host:port.
func (c TransportConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String is safe to log; credentials are never included.
func (c TransportConfig) String() string {
	mode := "starttls"
	if c.Secure {
		mode = "smtps"
	}
	return fmt.Sprintf("%s %s (%s)", c.Label, c.Addr(), mode)
}

func (c TransportConfig) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Fallback derives the alternate configuration tried when the primary
// cannot be verified. 465/SMTPS and 587/STARTTLS swap with each other;
// any other port moves to 587 when it was secure and to 465 when not.
func Fallback(primary TransportConfig) TransportConfig {
	fb := primary
	fb.Label = LabelFallback

	switch {
	case primary.Port == PortSMTPS && primary.Secure:
		fb.Port, fb.Secure = PortSubmission, false
	case primary.Port == PortSubmission && !primary.Secure:
		fb.Port, fb.Secure = PortSMTPS, true
	case primary.Secure:
		fb.Port, fb.Secure = PortSubmission, false
	default:
		fb.Port, fb.Secure = PortSMTPS, true
	}
	return fb
}

// =============================================================================
// Transport Interface
// =============================================================================

// Transport performs the wire operations against one TransportConfig.
type Transport interface {
	// Verify connects and authenticates without sending a message.
	Verify(ctx context.Context, cfg TransportConfig) error

	// Send delivers msg to the given recipients.
	Send(ctx context.Context, cfg TransportConfig, from string, to []string, msg io.WriterTo) error
}

// Resolver is the subset of *net.Resolver used for DNS probing and IP
// family selection.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}
