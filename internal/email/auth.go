package email

import (
	"errors"
	"net"
	"net/smtp"
	"strings"

	"github.com/emersion/go-sasl"
)

// ErrInsecureAuth is returned instead of sending credentials over an
// unencrypted connection to a remote host.
var ErrInsecureAuth = errors.New("refusing to authenticate over an unencrypted connection")

// saslAuth adapts a go-sasl client to net/smtp.Auth.
type saslAuth struct {
	client sasl.Client
}

// newSASLAuth picks PLAIN when offered and LOGIN otherwise. mechs is the
// AUTH extension parameter, e.g. "PLAIN LOGIN".
func newSASLAuth(mechs string, cfg TransportConfig) (smtp.Auth, error) {
	offered := make(map[string]bool)
	for _, m := range strings.Fields(mechs) {
		offered[strings.ToUpper(m)] = true
	}

	switch {
	case offered[sasl.Plain]:
		return saslAuth{client: sasl.NewPlainClient("", cfg.Username, cfg.Password)}, nil
	case offered[sasl.Login]:
		return saslAuth{client: sasl.NewLoginClient(cfg.Username, cfg.Password)}, nil
	}
	return nil, ErrNoAuth
}

func (a saslAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS && !isLoopback(server.Name) {
		return "", nil, ErrInsecureAuth
	}
	return a.client.Start()
}

func (a saslAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	return a.client.Next(fromServer)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
