package notify

import (
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/notify"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (notify.Notifier, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.NotificationWebhookURL == "" {
			return notify.Nop{}, nil
		}
		return NewWebhookNotifier(c.NotificationWebhookURL), nil
	})
}
