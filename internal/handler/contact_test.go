package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/folio/internal/domain"
	"github.com/DukeRupert/folio/internal/email"
	"github.com/DukeRupert/folio/internal/service"
	"github.com/DukeRupert/folio/internal/storage"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSender struct {
	mu       sync.Mutex
	err      error
	messages []*email.Message
	payloads []string
}

func (s *stubSender) Name() string { return "stub" }

func (s *stubSender) Send(ctx context.Context, msg *email.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	if msg.Attachment != nil {
		b, err := msg.Attachment.ReadAll(ctx)
		if err != nil {
			return "", err
		}
		s.payloads = append(s.payloads, string(b))
	}
	if s.err != nil {
		return "", s.err
	}
	return "<stub@example.com>", nil
}

func (s *stubSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type contactFixture struct {
	mux    *http.ServeMux
	sender *stubSender
	store  storage.Storage
}

func newContactFixture(t *testing.T, policy domain.AttachmentPolicy) *contactFixture {
	t.Helper()
	logger := testLogger()
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, logger)
	require.NoError(t, err)

	sender := &stubSender{}
	svc := service.NewContactService(sender, store, service.ContactConfig{
		From:     "site@example.com",
		Receiver: "owner@example.com",
		Policy:   policy,
	}, logger)

	mux := http.NewServeMux()
	NewContactHandler(svc, policy, logger).RegisterRoutes(mux, func(h http.Handler) http.Handler { return h })
	return &contactFixture{mux: mux, sender: sender, store: store}
}

func (f *contactFixture) do(req *http.Request) (*httptest.ResponseRecorder, apiResponse) {
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	var body apiResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func (f *contactFixture) storedCount(t *testing.T) int {
	t.Helper()
	objs, err := f.store.List(context.Background(), storage.AttachmentPrefix)
	require.NoError(t, err)
	return len(objs)
}

func jsonRequest(t *testing.T, v any) *http.Request {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/contact", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type filePart struct {
	filename    string
	contentType string
	content     []byte
}

func multipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="attachment"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/contact", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func validFields() map[string]string {
	return map[string]string{
		"name":    "Jane Doe",
		"email":   "jane@example.com",
		"message": "Hello\nthere",
	}
}

// =============================================================================
// POST /api/contact
// =============================================================================

func TestContactHandler_JSONSuccess(t *testing.T) {
	f := newContactFixture(t, domain.DefaultAttachmentPolicy())

	rec, body := f.do(jsonRequest(t, map[string]string{
		"name":        "Jane Doe",
		"email":       "jane@example.com",
		"message":     "Hello",
		"senderType":  "company",
		"companyName": "Acme",
		"position":    "CTO",
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, apiResponse{OK: true, Message: "Message sent"}, body)
	require.Equal(t, 1, f.sender.calls())
	msg := f.sender.messages[0]
	assert.Equal(t, "[Website Contact] Acme - CTO", msg.Subject)
	assert.Equal(t, "jane@example.com", msg.ReplyTo)
	assert.Equal(t, "owner@example.com", msg.To)
}

func TestContactHandler_MultipartWithAttachment(t *testing.T) {
	f := newContactFixture(t, domain.DefaultAttachmentPolicy())

	rec, body := f.do(multipartRequest(t, validFields(), filePart{
		filename:    "resume.pdf",
		contentType: "application/pdf",
		content:     []byte("%PDF-1.4 resume"),
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.OK)
	require.Equal(t, 1, f.sender.calls())
	assert.Equal(t, "%PDF-1.4 resume", f.sender.payloads[0])
	assert.Equal(t, "resume.pdf", f.sender.messages[0].Attachment.Filename)
	assert.Contains(t, f.sender.messages[0].HTMLBody, "Hello<br/>there")

	assert.Zero(t, f.storedCount(t), "attachment should be deleted after delivery")
}

func TestContactHandler_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{name: "no name", fields: map[string]string{"email": "a@b.c", "message": "hi"}},
		{name: "no email", fields: map[string]string{"name": "A", "message": "hi"}},
		{name: "no message", fields: map[string]string{"name": "A", "email": "a@b.c"}},
		{name: "blank message", fields: map[string]string{"name": "A", "email": "a@b.c", "message": "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newContactFixture(t, domain.DefaultAttachmentPolicy())

			rec, body := f.do(jsonRequest(t, tt.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Missing required fields", body.Error)
			assert.Zero(t, f.sender.calls())

			rec, _ = f.do(multipartRequest(t, tt.fields, filePart{"a.pdf", "application/pdf", []byte("pdf")}))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, f.sender.calls())
			assert.Zero(t, f.storedCount(t))
		})
	}
}

func TestContactHandler_DisallowedAttachmentType(t *testing.T) {
	f := newContactFixture(t, domain.DefaultAttachmentPolicy())

	rec, body := f.do(multipartRequest(t, validFields(), filePart{
		filename:    "setup.exe",
		contentType: "application/x-msdownload",
		content:     []byte("MZ"),
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body.Error, "Invalid attachment type. Allowed: image/png")
	assert.Zero(t, f.sender.calls())
	assert.Zero(t, f.storedCount(t))
}

func TestContactHandler_OversizedAttachment(t *testing.T) {
	policy := domain.DefaultAttachmentPolicy()
	policy.MaxBytes = 1024
	f := newContactFixture(t, policy)

	rec, body := f.do(multipartRequest(t, validFields(), filePart{
		filename:    "big.pdf",
		contentType: "application/pdf",
		content:     bytes.Repeat([]byte("x"), 2048),
	}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, body.Error, "Attachment too large")
	assert.Zero(t, f.sender.calls())
	assert.Zero(t, f.storedCount(t))
}

func TestContactHandler_BodyBeyondLimit(t *testing.T) {
	policy := domain.DefaultAttachmentPolicy()
	policy.MaxBytes = 1024
	f := newContactFixture(t, policy)

	rec, _ := f.do(multipartRequest(t, validFields(), filePart{
		filename:    "huge.pdf",
		contentType: "application/pdf",
		content:     bytes.Repeat([]byte("x"), formOverhead+4096),
	}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, f.sender.calls())
}

func TestContactHandler_DeliveryFailureKeepsAttachment(t *testing.T) {
	f := newContactFixture(t, domain.DefaultAttachmentPolicy())
	f.sender.err = errors.New("smtp send failed after 3 attempt(s): 421 service not available")

	rec, body := f.do(multipartRequest(t, validFields(), filePart{"cv.pdf", "application/pdf", []byte("%PDF")}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, body.OK)
	assert.Equal(t, "Failed to send message: smtp send failed after 3 attempt(s): 421 service not available", body.Error)
	assert.Equal(t, 1, f.storedCount(t), "attachment should be kept after a failed delivery")
}

func TestContactHandler_RejectsBadInput(t *testing.T) {
	f := newContactFixture(t, domain.DefaultAttachmentPolicy())

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		rec, body := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid JSON body", body.Error)
	})

	t.Run("unknown sender type", func(t *testing.T) {
		fields := validFields()
		fields["senderType"] = "robot"
		rec, body := f.do(jsonRequest(t, fields))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, body.Error, "Invalid sender type")
	})

	t.Run("unsupported content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("hello"))
		req.Header.Set("Content-Type", "text/plain")
		rec, _ := f.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("two attachments", func(t *testing.T) {
		rec, body := f.do(multipartRequest(t, validFields(),
			filePart{"a.pdf", "application/pdf", []byte("a")},
			filePart{"b.pdf", "application/pdf", []byte("b")},
		))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Only one attachment is allowed", body.Error)
	})

	assert.Zero(t, f.sender.calls())
}

func TestContactHandler_URLEncodedForm(t *testing.T) {
	f := newContactFixture(t, domain.DefaultAttachmentPolicy())

	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("name=Jane&email=jane%40example.com&message=Hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec, body := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.OK)
	assert.Equal(t, 1, f.sender.calls())
}
