package notifx

// SendOptions carries provider hints for one send. Providers that have no
// use for a field ignore it.
type SendOptions struct {
	Tags             map[string]string
	ConfigurationSet string
}

type Option func(*SendOptions)

// WithTag attaches a single key/value tag. Later tags with the same key win.
func WithTag(key, value string) Option {
	return func(o *SendOptions) {
		if o.Tags == nil {
			o.Tags = make(map[string]string)
		}
		o.Tags[key] = value
	}
}

// WithJob tags the message with the job it reports on.
func WithJob(id, jobType string) Option {
	return func(o *SendOptions) {
		WithTag("job_id", id)(o)
		WithTag("job_type", jobType)(o)
	}
}

// WithConfigurationSet routes the send through a named provider
// configuration set (SES event publishing, for instance). Empty is a no-op.
func WithConfigurationSet(name string) Option {
	return func(o *SendOptions) {
		if name != "" {
			o.ConfigurationSet = name
		}
	}
}

// ResolveSendOptions applies opts in order.
func ResolveSendOptions(opts ...Option) SendOptions {
	var so SendOptions
	for _, apply := range opts {
		if apply != nil {
			apply(&so)
		}
	}
	return so
}
