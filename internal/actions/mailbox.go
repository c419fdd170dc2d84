package actions

import (
	"encoding/json"
	"fmt"
)

// Mailbox contract: the integration registered under MailboxIntegration must
// expose MailboxCheckAction, which returns a CheckResult as its output.
const (
	MailboxIntegration = "email"
	MailboxCheckAction = "check"
)

// Email is one message reported by a mailbox check.
type Email struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	To      string `json:"to"`
	Date    string `json:"date"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// Payload returns the email as a plain map, the shape seen by trigger
// payloads and CEL filters.
func (e Email) Payload() map[string]any {
	return map[string]any{
		"id":      e.ID,
		"subject": e.Subject,
		"from":    e.From,
		"to":      e.To,
		"date":    e.Date,
		"text":    e.Text,
		"html":    e.HTML,
	}
}

// CheckResult is the output of a mailbox check action.
type CheckResult struct {
	Emails []Email `json:"emails"`
}

// DecodeCheckResult parses a mailbox check output. A nil or empty output is
// an empty result.
func DecodeCheckResult(out *ActionOutput) (*CheckResult, error) {
	res := &CheckResult{}
	if out == nil || len(out.Data) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(out.Data, res); err != nil {
		return nil, fmt.Errorf("decode mailbox check result: %w", err)
	}
	return res, nil
}
