// Package jobxnotify sends an email through notifx when a job fails permanently.
package jobxnotify

import (
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/jobrunner/pkg/jobx"
	"github.com/Abraxas-365/jobrunner/pkg/notifx"
	"github.com/Abraxas-365/jobrunner/pkg/ptrx"
)

const templateName = "jobx.failed"

const failedTemplate = `<h2>Job {{ .Type }} failed permanently</h2>
<table>
  <tr><td>ID</td><td>{{ .ID }}</td></tr>
  <tr><td>Type</td><td>{{ .Type }}</td></tr>
  <tr><td>Attempts</td><td>{{ .Attempts }} / {{ .MaxAttempts }}</td></tr>
  <tr><td>Error</td><td>{{ deref .Error }}</td></tr>
  <tr><td>Created</td><td>{{ rfc3339 .CreatedAt }}</td></tr>
  <tr><td>Failed</td><td>{{ rfc3339 .FailedAt }}</td></tr>
</table>`

// EmailNotifier implements jobx.FailureNotifier.
type EmailNotifier struct {
	client *notifx.Client
	from   string
	to     []string
	opts   []notifx.Option
}

var _ jobx.FailureNotifier = (*EmailNotifier)(nil)

// NewEmailNotifier registers the alert template on client. An empty from
// leaves the sender to the provider; opts are applied to every alert.
func NewEmailNotifier(client *notifx.Client, from string, to []string, opts ...notifx.Option) (*EmailNotifier, error) {
	if err := client.Templates().Register(templateName, failedTemplate); err != nil {
		return nil, err
	}
	return &EmailNotifier{client: client, from: from, to: to, opts: opts}, nil
}

func (n *EmailNotifier) NotifyFailed(ctx context.Context, job *jobx.Job) error {
	view := struct {
		*jobx.Job
		CreatedAt *time.Time
	}{job, ptrx.Time(job.CreatedAt)}

	text := fmt.Sprintf("Job %s (%s) failed permanently after %d attempts.", job.ID, job.Type, job.Attempts)
	msg := notifx.EmailMessage{
		From:     n.from,
		To:       n.to,
		Subject:  fmt.Sprintf("[jobrunner] %s job %s failed after %d attempts", job.Type, job.ID, job.Attempts),
		TextBody: text,
	}
	opts := append([]notifx.Option{notifx.WithJob(job.ID.String(), job.Type)}, n.opts...)
	return n.client.SendTemplate(ctx, templateName, view, msg, opts...)
}
