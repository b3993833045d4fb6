package email

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallback(t *testing.T) {
	tests := []struct {
		name       string
		port       int
		secure     bool
		wantPort   int
		wantSecure bool
	}{
		{name: "smtps to starttls", port: 465, secure: true, wantPort: 587, wantSecure: false},
		{name: "starttls to smtps", port: 587, secure: false, wantPort: 465, wantSecure: true},
		{name: "custom secure port", port: 2465, secure: true, wantPort: 587, wantSecure: false},
		{name: "custom plain port", port: 2525, secure: false, wantPort: 465, wantSecure: true},
		{name: "465 without tls", port: 465, secure: false, wantPort: 465, wantSecure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := TransportConfig{
				Label:    LabelPrimary,
				Host:     "smtp.example.com",
				Port:     tt.port,
				Secure:   tt.secure,
				Username: "user",
				Password: "secret",
				Timeout:  5 * time.Second,
				IPFamily: 4,
			}

			fb := Fallback(primary)

			assert.Equal(t, LabelFallback, fb.Label)
			assert.Equal(t, tt.wantPort, fb.Port)
			assert.Equal(t, tt.wantSecure, fb.Secure)
			// Everything except port and TLS mode is carried over.
			assert.Equal(t, primary.Host, fb.Host)
			assert.Equal(t, primary.Username, fb.Username)
			assert.Equal(t, primary.Password, fb.Password)
			assert.Equal(t, primary.Timeout, fb.Timeout)
			assert.Equal(t, primary.IPFamily, fb.IPFamily)
		})
	}
}

func TestTransportConfig_String(t *testing.T) {
	cfg := TransportConfig{Label: LabelPrimary, Host: "smtp.example.com", Port: 465, Secure: true, Password: "hunter2"}

	s := cfg.String()
	assert.Equal(t, "primary smtp.example.com:465 (smtps)", s)
	assert.NotContains(t, s, "hunter2")
}

func TestTransportConfig_Addr_IPv6(t *testing.T) {
	cfg := TransportConfig{Host: "::1", Port: 587}
	assert.Equal(t, "[::1]:587", cfg.Addr())
}
