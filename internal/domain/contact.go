// Package domain contains core business types and interfaces.
//
// This file defines the ContactSubmission type received from the portfolio
// contact form and the rules that decide whether it can be relayed.
package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// Sender Kind
// =============================================================================

// SenderKind describes who is reaching out through the contact form.
type SenderKind string

const (
	SenderKindIndividual   SenderKind = "individual"
	SenderKindCompany      SenderKind = "company"
	SenderKindOrganization SenderKind = "organization"
	SenderKindAgent        SenderKind = "agent"
)

// String returns the string representation of the kind.
func (k SenderKind) String() string {
	return string(k)
}

// IsValid returns true if the kind is a recognized value.
func (k SenderKind) IsValid() bool {
	switch k {
	case SenderKindIndividual, SenderKindCompany, SenderKindOrganization, SenderKindAgent:
		return true
	}
	return false
}

// Label returns the kind formatted for display (e.g., "Company").
func (k SenderKind) Label() string {
	return cases.Title(language.English).String(string(k))
}

// ParseSenderKind normalizes a raw form value. An empty value means
// individual; anything unrecognized is rejected.
func ParseSenderKind(raw string) (SenderKind, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return SenderKindIndividual, nil
	}
	k := SenderKind(raw)
	if !k.IsValid() {
		return "", Invalid("contact.validate", "Invalid sender type. Allowed: individual, company, organization, agent")
	}
	return k, nil
}

// =============================================================================
// Contact Submission
// =============================================================================

// SubjectPrefix is prepended to every relayed contact message subject.
const SubjectPrefix = "[Website Contact]"

// ContactSubmission is one message posted to the contact form.
type ContactSubmission struct {
	Name         string      // Sender name (required)
	Email        string      // Sender email, used as reply-to (required)
	Kind         SenderKind  // Who is writing
	Organization string      // Company or organization name (optional)
	Position     string      // Sender's role at the organization (optional)
	Phone        string      // Optional callback number
	Message      string      // Plain-text body (required)
	Attachment   *Attachment // At most one uploaded file
}

// Normalize trims surrounding whitespace from every text field and
// defaults the sender kind.
func (s *ContactSubmission) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Organization = strings.TrimSpace(s.Organization)
	s.Position = strings.TrimSpace(s.Position)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Message = strings.TrimSpace(s.Message)
	if s.Kind == "" {
		s.Kind = SenderKindIndividual
	}
}

// Validate checks the required fields. It does not look at the attachment;
// attachments are checked against an AttachmentPolicy before upload.
func (s *ContactSubmission) Validate() error {
	const op = "contact.validate"

	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Email) == "" || strings.TrimSpace(s.Message) == "" {
		return Invalid(op, "Missing required fields")
	}
	if s.Kind != "" && !s.Kind.IsValid() {
		return Invalid(op, "Invalid sender type. Allowed: individual, company, organization, agent")
	}
	return nil
}

// Subject returns the mail subject for the submission.
//
// Individuals are identified by name. Everyone else is identified by
// "<organization> - <position>", skipping empty parts and falling back to
// the name when both are empty.
func (s *ContactSubmission) Subject() string {
	who := s.Name
	if s.Kind != "" && s.Kind != SenderKindIndividual {
		parts := make([]string, 0, 2)
		if s.Organization != "" {
			parts = append(parts, s.Organization)
		}
		if s.Position != "" {
			parts = append(parts, s.Position)
		}
		if len(parts) > 0 {
			who = strings.Join(parts, " - ")
		}
	}
	return strings.TrimSpace(SubjectPrefix + " " + who)
}

// HasAttachment reports whether a file was uploaded with the submission.
func (s *ContactSubmission) HasAttachment() bool {
	return s.Attachment != nil && s.Attachment.Key != ""
}
