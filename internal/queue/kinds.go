package queue

import (
	"encoding/json"
	"fmt"
)

// Known job kinds. The set is closed: every kind has exactly one payload
// type, and the dispatcher rejects payloads that do not decode into it
// instead of passing raw maps around.
const (
	// KindVerificationEmail delivers the email-ownership verification mail.
	KindVerificationEmail = "verification_email"
)

// EmailPayload is the payload of KindVerificationEmail.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Validate reports whether the payload is deliverable at all. A payload
// failing this check is a permanent job failure: no retry will fix it.
func (p *EmailPayload) Validate() error {
	if p.To == "" {
		return fmt.Errorf("email payload: recipient is empty")
	}
	if p.Subject == "" {
		return fmt.Errorf("email payload: subject is empty")
	}
	return nil
}

// DecodeEmailPayload parses a job payload for KindVerificationEmail.
func DecodeEmailPayload(raw json.RawMessage) (*EmailPayload, error) {
	p := &EmailPayload{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to decode email payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// VerificationKey is the idempotency key of an account's verification mail.
// Keyed on the account, not the token: a retried signup or an early resend
// must not create a second job while one is still tracked.
func VerificationKey(accountID string) string {
	return "verify:" + accountID
}
