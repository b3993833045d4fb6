package email

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SendGrid
// =============================================================================

func TestSendGridSender_Send(t *testing.T) {
	var (
		gotAuth string
		gotPath string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("X-Message-Id", "sg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "SG.key", Host: srv.URL}, testLogger())
	msg := testMessage()
	msg.Attachment = attachmentFrom("cv.pdf", "application/pdf", []byte("%PDF-1.4 resume"))

	id, err := sender.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "sg-123", id)
	assert.Equal(t, "Bearer SG.key", gotAuth)
	assert.Equal(t, "/v3/mail/send", gotPath)
	assert.Equal(t, "[Website Contact] Jane Doe", gotBody["subject"])

	replyTo, _ := gotBody["reply_to"].(map[string]any)
	assert.Equal(t, "jane@example.com", replyTo["email"])

	content, _ := gotBody["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "text/plain", content[0].(map[string]any)["type"])
	assert.Equal(t, "text/html", content[1].(map[string]any)["type"])

	attachments, _ := gotBody["attachments"].([]any)
	require.Len(t, attachments, 1)
	att := attachments[0].(map[string]any)
	assert.Equal(t, "cv.pdf", att["filename"])
	assert.Equal(t, "application/pdf", att["type"])
	assert.Equal(t, "JVBERi0xLjQgcmVzdW1l", att["content"])
}

func TestSendGridSender_ErrorStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"The provided authorization grant is invalid"}]}`))
	}))
	defer srv.Close()

	sender := NewSendGridSender(SendGridConfig{APIKey: "bad", Host: srv.URL}, testLogger())
	_, err := sender.Send(context.Background(), testMessage())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "authorization grant is invalid")
	assert.Equal(t, 1, calls, "API senders make a single call")
}

func TestSendGridSender_AttachmentOpenError(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "k", Host: "http://127.0.0.1:1"}, testLogger())
	msg := testMessage()
	msg.Attachment = &Attachment{
		Filename: "gone.pdf",
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return nil, errors.New("object not found")
		},
	}

	_, err := sender.Send(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.pdf")
}

// =============================================================================
// SES
// =============================================================================

type mockSESClient struct {
	err       error
	calls     int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.calls++
	m.lastInput = params
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-456")}, nil
}

func TestSESSender_Send(t *testing.T) {
	mock := &mockSESClient{}
	sender := NewSESSenderWithClient(mock, testLogger())

	msg := testMessage()
	msg.Attachment = attachmentFrom("cv.pdf", "application/pdf", []byte("%PDF-1.4 resume"))

	id, err := sender.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "ses-456", id)
	assert.Equal(t, "ses", sender.Name())
	require.Equal(t, 1, mock.calls)
	assert.Equal(t, "site@example.com", aws.ToString(mock.lastInput.FromEmailAddress))
	assert.Equal(t, []string{"owner@example.com"}, mock.lastInput.Destination.ToAddresses)

	raw := string(mock.lastInput.Content.Raw.Data)
	assert.Contains(t, raw, "Subject: [Website Contact] Jane Doe")
	assert.Contains(t, raw, "Reply-To: jane@example.com")
	assert.Contains(t, raw, `filename="cv.pdf"`)
	assert.Contains(t, raw, "JVBERi0xLjQgcmVzdW1l")
}

func TestSESSender_Error(t *testing.T) {
	mock := &mockSESClient{err: &smithy.GenericAPIError{
		Code:    "MessageRejected",
		Message: "Email address is not verified.",
		Fault:   smithy.FaultClient,
	}}
	sender := NewSESSenderWithClient(mock, testLogger())

	_, err := sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not verified")
	assert.Equal(t, 1, mock.calls)
	assert.Equal(t, "permanent", sesOutcome(err))
}

// =============================================================================
// Log
// =============================================================================

func TestLogSender_Send(t *testing.T) {
	sender := NewLogSender(testLogger())
	id, err := sender.Send(context.Background(), testMessage())

	require.NoError(t, err)
	assert.Contains(t, id, "@example.com>")
	assert.Equal(t, "log", sender.Name())
}
