package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/hmpv-lab-platform/internal/config"
	"github.com/wolfman30/hmpv-lab-platform/internal/notify"
	"github.com/wolfman30/hmpv-lab-platform/pkg/logging"
)

// BuildEmailSender picks the EMAIL_PROVIDER implementation, falling back to
// the logging stub when the chosen provider is not configured.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger), "stub"
	}

	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			return sender, "sendgrid"
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; using stub sender")
	case "ses":
		if strings.TrimSpace(cfg.SESFromEmail) != "" {
			if sender := notify.NewSESSender(ses, notify.SESConfig{
				FromEmail:        cfg.SESFromEmail,
				FromName:         cfg.SendGridFromName,
				ConfigurationSet: cfg.SESConfigSet,
			}, logger); sender != nil {
				return sender, "ses"
			}
		}
		logger.Warn("ses selected but SES_FROM_EMAIL or client missing; using stub sender")
	}
	return notify.NewStubEmailSender(logger), "stub"
}
