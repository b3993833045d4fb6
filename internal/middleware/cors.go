package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware lets the portfolio frontend call the API from another origin.
type CORSMiddleware struct {
	cors *cors.Cors
}

// NewCORSMiddleware creates a CORS middleware for the given origins.
// "*" allows any origin.
func NewCORSMiddleware(allowedOrigins []string, logger *slog.Logger) *CORSMiddleware {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
		MaxAge:         600,
	})
	c.Log = slogPrintf{logger: logger}
	return &CORSMiddleware{cors: c}
}

// Handler returns middleware that answers preflight requests and sets
// Access-Control headers on actual requests.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return m.cors.Handler(next)
}

// slogPrintf adapts slog to the Printf logger rs/cors expects.
type slogPrintf struct {
	logger *slog.Logger
}

func (l slogPrintf) Printf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "cors")
}
