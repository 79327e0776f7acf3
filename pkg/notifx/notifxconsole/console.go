package notifxconsole

import (
	"context"
	"strings"

	"github.com/Abraxas-365/jobrunner/pkg/logx"
	"github.com/Abraxas-365/jobrunner/pkg/notifx"
)

// ConsoleProvider writes emails to the log instead of sending them.
type ConsoleProvider struct{}

func NewConsoleProvider() *ConsoleProvider {
	return &ConsoleProvider{}
}

func (p *ConsoleProvider) SendEmail(_ context.Context, msg notifx.EmailMessage, opts ...notifx.Option) error {
	so := notifx.ResolveSendOptions(opts...)

	fields := logx.Fields{
		"to":      strings.Join(msg.To, ", "),
		"subject": msg.Subject,
	}
	if msg.From != "" {
		fields["from"] = msg.From
	}
	for k, v := range so.Tags {
		fields["tag."+k] = v
	}
	logx.WithFields(fields).Info("notifx/console: email not sent (console provider)")

	if msg.TextBody != "" {
		logx.Debugf("notifx/console: text body:\n%s", msg.TextBody)
	}
	if msg.HTMLBody != "" {
		logx.Debugf("notifx/console: html body:\n%s", msg.HTMLBody)
	}
	return nil
}
