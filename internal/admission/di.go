package admission

import (
	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/notify"
	"github.com/foxseedlab/gatekeeper/internal/token"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Factory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		tokens := do.MustInvoke[token.Issuer](i)
		connect := do.MustInvoke[call.Connector](i)
		notifier := do.MustInvoke[notify.Notifier](i)
		return NewFactory(cfg, tokens, connect, notifier), nil
	})
}
