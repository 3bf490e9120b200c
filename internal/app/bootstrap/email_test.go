package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	appconfig "github.com/wolfman30/hmpv-lab-platform/internal/config"
	"github.com/wolfman30/hmpv-lab-platform/internal/notify"
)

func TestBuildEmailSender(t *testing.T) {
	cases := []struct {
		name string
		cfg  *appconfig.Config
		want string
	}{
		{"nil config", nil, "stub"},
		{"stub", &appconfig.Config{EmailProvider: "stub"}, "stub"},
		{"sendgrid", &appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.key", SendGridFromEmail: "lab@example.com"}, "sendgrid"},
		{"sendgrid without key", &appconfig.Config{EmailProvider: "sendgrid"}, "stub"},
		{"ses without from", &appconfig.Config{EmailProvider: "ses"}, "stub"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender, kind := BuildEmailSender(tc.cfg, nil, nil)
			assert.NotNil(t, sender)
			assert.Equal(t, tc.want, kind)
		})
	}
}

func TestBuildEmailSenderSESWithoutClient(t *testing.T) {
	sender, kind := BuildEmailSender(&appconfig.Config{EmailProvider: "ses", SESFromEmail: "lab@example.com"}, nil, nil)
	assert.Equal(t, "stub", kind)
	assert.IsType(t, &notify.StubEmailSender{}, sender)
}
