package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"time"
)

// ErrTimeout is returned when an SMTP connect, greeting or socket operation
// exceeds the configured timeout.
var ErrTimeout = errors.New("smtp operation timed out")

// ErrNoAuth is returned when credentials are configured but the server
// offers no usable AUTH mechanism.
var ErrNoAuth = errors.New("smtp server offers no supported AUTH mechanism")

// SMTPTransport implements Transport over a connection it owns. Every
// network step runs under a fresh socket deadline of TransportConfig.Timeout
// and cancelling ctx closes the socket.
type SMTPTransport struct {
	resolver  Resolver
	localName string
}

// NewSMTPTransport creates a transport. A nil resolver uses
// net.DefaultResolver.
func NewSMTPTransport(resolver Resolver) *SMTPTransport {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	localName, err := os.Hostname()
	if err != nil || localName == "" {
		localName = "localhost"
	}
	return &SMTPTransport{resolver: resolver, localName: localName}
}

// Verify connects, negotiates TLS and authenticates, then quits.
func (t *SMTPTransport) Verify(ctx context.Context, cfg TransportConfig) error {
	s, err := t.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	s.arm()
	return s.wrap(s.client.Quit())
}

// Send delivers one message. Server replies come back as *textproto.Error
// so callers can classify reply codes.
func (t *SMTPTransport) Send(ctx context.Context, cfg TransportConfig, from string, to []string, msg io.WriterTo) error {
	s, err := t.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.close()

	c := s.client
	s.arm()
	if err := c.Mail(from); err != nil {
		return s.wrap(err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return s.wrap(err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return s.wrap(err)
	}
	s.arm()
	if _, err := msg.WriteTo(w); err != nil {
		return s.wrap(err)
	}
	s.arm()
	if err := w.Close(); err != nil {
		return s.wrap(err)
	}
	return s.wrap(c.Quit())
}

// session is one open SMTP connection.
type session struct {
	ctx     context.Context
	conn    net.Conn // raw TCP connection; deadlines set here cover TLS too
	client  *smtp.Client
	timeout time.Duration
	stop    func() bool
}

// open dials, reads the greeting, upgrades to TLS and authenticates. On
// error the connection is already closed.
func (t *SMTPTransport) open(ctx context.Context, cfg TransportConfig) (*session, error) {
	timeout := cfg.timeout()

	host, err := t.pickHost(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, classifyNetError(ctx, err, timeout)
	}

	s := &session{ctx: ctx, conn: conn, timeout: timeout}
	s.stop = context.AfterFunc(ctx, func() { _ = conn.Close() })

	tlsConfig := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	var wire net.Conn = conn
	if cfg.Secure {
		wire = tls.Client(conn, tlsConfig)
	}

	// NewClient reads the 220 greeting (and runs the implicit TLS handshake).
	s.arm()
	c, err := smtp.NewClient(wire, cfg.Host)
	if err != nil {
		s.close()
		return nil, s.wrap(err)
	}
	s.client = c

	if err := s.handshake(cfg, tlsConfig, t.localName); err != nil {
		s.close()
		return nil, s.wrap(err)
	}
	return s, nil
}

func (s *session) handshake(cfg TransportConfig, tlsConfig *tls.Config, localName string) error {
	c := s.client

	s.arm()
	if err := c.Hello(localName); err != nil {
		return err
	}

	if !cfg.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			s.arm()
			if err := c.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	if cfg.Username == "" {
		return nil
	}
	ok, mechs := c.Extension("AUTH")
	if !ok {
		return ErrNoAuth
	}
	auth, err := newSASLAuth(mechs, cfg)
	if err != nil {
		return err
	}
	s.arm()
	return c.Auth(auth)
}

// arm gives the next network step a full timeout.
func (s *session) arm() {
	_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
}

func (s *session) close() {
	s.stop()
	if s.client != nil {
		_ = s.client.Close()
		return
	}
	_ = s.conn.Close()
}

func (s *session) wrap(err error) error {
	return classifyNetError(s.ctx, err, s.timeout)
}

// classifyNetError reports cancellation as ctx.Err() and socket deadline
// expiry as ErrTimeout. SMTP replies pass through untouched.
func classifyNetError(ctx context.Context, err error, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, err)
	}
	return err
}

// pickHost returns the address to dial. With an IP family preference the
// host is resolved and the first address of that family is used.
func (t *SMTPTransport) pickHost(ctx context.Context, cfg TransportConfig) (string, error) {
	if cfg.IPFamily == 0 || net.ParseIP(cfg.Host) != nil {
		return cfg.Host, nil
	}

	network := "ip4"
	if cfg.IPFamily == 6 {
		network = "ip6"
	}
	ips, err := t.resolver.LookupIP(ctx, network, cfg.Host)
	if err != nil {
		return "", fmt.Errorf("resolve %s (%s): %w", cfg.Host, network, err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("resolve %s: no %s addresses", cfg.Host, network)
	}
	return ips[0].String(), nil
}

var _ Transport = (*SMTPTransport)(nil)
