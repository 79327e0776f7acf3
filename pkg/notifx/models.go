package notifx

import "strings"

// EmailMessage is one outgoing email. From may be left empty to use the
// provider's default sender.
type EmailMessage struct {
	From     string   `json:"from"`
	To       []string `json:"to"`
	CC       []string `json:"cc,omitempty"`
	ReplyTo  string   `json:"reply_to,omitempty"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body,omitempty"`
	HTMLBody string   `json:"html_body,omitempty"`
}

// Validate reports the first reason the message cannot be sent.
func (m EmailMessage) Validate() error {
	var reason string
	switch {
	case len(m.To) == 0:
		reason = "no recipients"
	case strings.TrimSpace(m.Subject) == "":
		reason = "empty subject"
	case m.TextBody == "" && m.HTMLBody == "":
		reason = "empty body"
	default:
		return nil
	}
	return notifxErrors.New(ErrInvalidMessage).WithDetail("reason", reason)
}
