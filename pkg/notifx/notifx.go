package notifx

import (
	"context"
	"strings"
)

// EmailSender delivers one message. Providers live in sub-packages.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error
}

// Client fronts a provider with message validation and named templates.
type Client struct {
	sender    EmailSender
	templates *TemplateRegistry
}

var _ EmailSender = (*Client)(nil)

func NewClient(sender EmailSender) *Client {
	return &Client{sender: sender, templates: NewTemplateRegistry()}
}

// Templates exposes the registry used by SendTemplate.
func (c *Client) Templates() *TemplateRegistry {
	return c.templates
}

// SendEmail validates msg, drops duplicate recipients and hands it to the
// provider.
func (c *Client) SendEmail(ctx context.Context, msg EmailMessage, opts ...Option) error {
	if c.sender == nil {
		return notifxErrors.New(ErrNoProvider)
	}
	msg.To = uniqueAddresses(msg.To)
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.sender.SendEmail(ctx, msg, opts...)
}

// SendTemplate renders the named template with data into msg.HTMLBody and
// sends it. A TextBody already on msg is kept as the plain-text part.
func (c *Client) SendTemplate(ctx context.Context, name string, data any, msg EmailMessage, opts ...Option) error {
	html, err := c.templates.Render(name, data)
	if err != nil {
		return err
	}
	msg.HTMLBody = html
	return c.SendEmail(ctx, msg, opts...)
}

func uniqueAddresses(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	out := addrs[:0:0]
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
