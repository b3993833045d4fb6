// Package handler contains HTTP handlers for the folio API.
//
// This file implements the contact form endpoint.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/DukeRupert/folio/internal/domain"
	"github.com/DukeRupert/folio/internal/service"
)

// =============================================================================
// Request Types
// =============================================================================

// contactRequest is the JSON body of POST /api/contact. Multipart forms use
// the same field names.
type contactRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Message     string `json:"message"`
	SenderType  string `json:"senderType"`
	CompanyName string `json:"companyName"`
	Position    string `json:"position"`
	Phone       string `json:"phone"`
}

// formOverhead is the body allowance on top of the attachment limit for the
// text fields and multipart framing.
const formOverhead = 1 << 20

// multipartMemory is how much of a multipart body is kept in memory before
// file parts spill to disk.
const multipartMemory = 1 << 20

// =============================================================================
// Handler Configuration
// =============================================================================

// ContactHandler handles contact form submissions.
type ContactHandler struct {
	contactService service.ContactService
	policy         domain.AttachmentPolicy
	logger         *slog.Logger
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(contactService service.ContactService, policy domain.AttachmentPolicy, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		policy:         policy,
		logger:         logger,
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RegisterRoutes registers the contact route with the provided mux.
//
// Routes:
// - POST /api/contact -> Submit
func (h *ContactHandler) RegisterRoutes(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	mux.Handle("POST /api/contact", limit(http.HandlerFunc(h.Submit)))
}

// =============================================================================
// POST /api/contact - Submit Contact Form
// =============================================================================

// Submit accepts a JSON or multipart contact submission and relays it.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.policy.MaxBytes+formOverhead)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		req    contactRequest
		upload *service.Upload
		err    error
	)
	switch mediaType {
	case "application/json":
		err = h.decodeJSON(r, &req)
	case "multipart/form-data":
		upload, err = h.decodeMultipart(r, &req)
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
	case "application/x-www-form-urlencoded":
		err = h.decodeForm(r, &req)
	default:
		err = domain.Invalid("contact.decode", "Unsupported content type. Use application/json or multipart/form-data")
	}
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if upload != nil {
		if closer, ok := upload.Body.(multipart.File); ok {
			defer closer.Close()
		}
	}

	kind, err := domain.ParseSenderKind(req.SenderType)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub := &domain.ContactSubmission{
		Name:         req.Name,
		Email:        req.Email,
		Kind:         kind,
		Organization: req.CompanyName,
		Position:     req.Position,
		Phone:        req.Phone,
		Message:      req.Message,
	}

	if _, err := h.contactService.Submit(r.Context(), sub, upload); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{OK: true, Message: "Message sent"})
}

// decodeJSON reads a JSON submission. JSON bodies carry no attachment.
func (h *ContactHandler) decodeJSON(r *http.Request, req *contactRequest) error {
	const op = "contact.decode"

	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		if isBodyTooLarge(err) {
			return h.policy.TooLargeError()
		}
		return domain.Invalid(op, "Invalid JSON body")
	}
	return nil
}

// decodeForm reads a URL-encoded submission.
func (h *ContactHandler) decodeForm(r *http.Request, req *contactRequest) error {
	const op = "contact.decode"

	if err := r.ParseForm(); err != nil {
		if isBodyTooLarge(err) {
			return h.policy.TooLargeError()
		}
		return domain.Invalid(op, "Invalid form body")
	}
	fillFromForm(r, req)
	return nil
}

// decodeMultipart reads a multipart submission with an optional file in
// the "attachment" field.
func (h *ContactHandler) decodeMultipart(r *http.Request, req *contactRequest) (*service.Upload, error) {
	const op = "contact.decode"

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			return nil, h.policy.TooLargeError()
		}
		h.logger.Info("failed to parse multipart form", "error", err)
		return nil, domain.Invalid(op, "Upload failed")
	}
	fillFromForm(r, req)

	files := r.MultipartForm.File["attachment"]
	switch len(files) {
	case 0:
		return nil, nil
	case 1:
	default:
		return nil, domain.Invalid(op, "Only one attachment is allowed")
	}

	fh := files[0]
	file, err := fh.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", "error", err, "filename", fh.Filename)
		return nil, domain.Internal(err, op, "Failed to read attachment")
	}

	return &service.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        file,
	}, nil
}

func fillFromForm(r *http.Request, req *contactRequest) {
	req.Name = r.FormValue("name")
	req.Email = r.FormValue("email")
	req.Message = r.FormValue("message")
	req.SenderType = r.FormValue("senderType")
	req.CompanyName = r.FormValue("companyName")
	req.Position = r.FormValue("position")
	req.Phone = r.FormValue("phone")
}

// isBodyTooLarge reports whether err came from http.MaxBytesReader or from
// a multipart part exceeding its in-memory limit.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}
