package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/folio/internal/domain"
	"github.com/DukeRupert/folio/internal/email"
)

// TransportChecker reports on the SMTP transport picked at startup.
type TransportChecker interface {
	Check(ctx context.Context) (email.TransportConfig, error)
	State() email.State
}

// transportStatusResponse is the body of GET /api/transport-status.
type transportStatusResponse struct {
	OK       bool   `json:"ok"`
	Provider string `json:"provider,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Secure   *bool  `json:"secure,omitempty"`
	Label    string `json:"label,omitempty"`
	State    string `json:"state,omitempty"`
}

// HealthHandler serves liveness and transport status.
type HealthHandler struct {
	provider string
	checker  TransportChecker // nil when mail goes through an API provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewHealthHandler creates a new HealthHandler. checker may be nil.
func NewHealthHandler(provider string, checker TransportChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		provider: provider,
		checker:  checker,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes registers the health routes with the provided mux.
//
// Routes:
// - GET /api/health           -> Health
// - GET /api/transport-status -> TransportStatus
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/transport-status", h.TransportStatus)
}

// Health reports that the process is up. It never touches the transport.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// TransportStatus verifies the current SMTP transport once and reports it.
func (h *HealthHandler) TransportStatus(w http.ResponseWriter, r *http.Request) {
	const op = "health.transport_status"

	if h.checker == nil {
		writeJSON(w, http.StatusOK, transportStatusResponse{OK: true, Provider: h.provider})
		return
	}

	cfg, err := h.checker.Check(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "Transport not available: "+err.Error()))
		return
	}

	secure := cfg.Secure
	writeJSON(w, http.StatusOK, transportStatusResponse{
		OK:       true,
		Provider: h.provider,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Secure:   &secure,
		Label:    cfg.Label,
		State:    string(h.checker.State()),
	})
}
