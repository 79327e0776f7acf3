package config

const (
	NotifxConsole = "console"
	NotifxSES     = "ses"
	NotifxNone    = "none"
)

// NotifxConfig configures permanent-failure alerts.
type NotifxConfig struct {
	Provider         string   `env:"NOTIFX_PROVIDER"              envDefault:"console"`
	FromAddress      string   `env:"NOTIFX_FROM_ADDRESS"          envDefault:"jobrunner@localhost"`
	AlertTo          []string `env:"NOTIFX_ALERT_TO"              envSeparator:","`
	AWSRegion        string   `env:"NOTIFX_AWS_REGION"            envDefault:"us-east-1"`
	ConfigurationSet string   `env:"NOTIFX_SES_CONFIGURATION_SET"`
}

// Enabled reports whether alerts should be sent at all.
func (c NotifxConfig) Enabled() bool {
	return c.Provider != NotifxNone && len(c.AlertTo) > 0
}

func (c NotifxConfig) validate() error {
	switch c.Provider {
	case NotifxConsole, NotifxNone:
		return nil
	case NotifxSES:
		if c.FromAddress == "" {
			return invalid("NOTIFX_FROM_ADDRESS", "required when NOTIFX_PROVIDER=ses")
		}
		return nil
	default:
		return invalid("NOTIFX_PROVIDER", "must be console, ses or none")
	}
}
