package email

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

// receivedMail is one message accepted by the test server.
type receivedMail struct {
	From string
	To   []string
	Data string
}

// testSMTPServer is an in-process SMTP server speaking plaintext with
// AUTH PLAIN on 127.0.0.1.
type testSMTPServer struct {
	user, pass string
	rejectRcpt string

	mu       sync.Mutex
	messages []receivedMail
	logins   int

	server *smtp.Server
	port   int
}

func startTestSMTPServer(t *testing.T, user, pass string) *testSMTPServer {
	t.Helper()

	ts := &testSMTPServer{user: user, pass: pass}

	s := smtp.NewServer(ts)
	s.Domain = "localhost"
	s.AllowInsecureAuth = true
	s.ReadTimeout = 5 * time.Second
	s.WriteTimeout = 5 * time.Second
	s.MaxMessageBytes = 10 << 20
	s.MaxRecipients = 5

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ts.server = s
	ts.port = l.Addr().(*net.TCPAddr).Port

	go func() {
		_ = s.Serve(l)
	}()
	t.Cleanup(func() { _ = s.Close() })

	return ts
}

func (ts *testSMTPServer) config() TransportConfig {
	return TransportConfig{
		Label:    LabelPrimary,
		Host:     "127.0.0.1",
		Port:     ts.port,
		Secure:   false,
		Username: ts.user,
		Password: ts.pass,
		Timeout:  5 * time.Second,
	}
}

func (ts *testSMTPServer) received() []receivedMail {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]receivedMail(nil), ts.messages...)
}

func (ts *testSMTPServer) loginCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.logins
}

// NewSession implements smtp.Backend.
func (ts *testSMTPServer) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &testSession{server: ts}, nil
}

type testSession struct {
	server *testSMTPServer
	authed bool
	from   string
	to     []string
}

func (s *testSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *testSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username != s.server.user || password != s.server.pass {
			return &smtp.SMTPError{
				Code:         535,
				EnhancedCode: smtp.EnhancedCode{5, 7, 8},
				Message:      "Authentication failed",
			}
		}
		s.authed = true
		s.server.mu.Lock()
		s.server.logins++
		s.server.mu.Unlock()
		return nil
	}), nil
}

func (s *testSession) Mail(from string, opts *smtp.MailOptions) error {
	if !s.authed {
		return &smtp.SMTPError{
			Code:         530,
			EnhancedCode: smtp.EnhancedCode{5, 7, 0},
			Message:      "Authentication required",
		}
	}
	s.from = from
	return nil
}

func (s *testSession) Rcpt(to string, opts *smtp.RcptOptions) error {
	if s.server.rejectRcpt != "" && strings.EqualFold(to, s.server.rejectRcpt) {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "mailbox unavailable",
		}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.server.mu.Lock()
	s.server.messages = append(s.server.messages, receivedMail{From: s.from, To: s.to, Data: string(b)})
	s.server.mu.Unlock()
	return nil
}

func (s *testSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *testSession) Logout() error {
	return nil
}
