package httpapi

import (
	"github.com/foxseedlab/gatekeeper/internal/admission"
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/hub"
	"github.com/foxseedlab/gatekeeper/internal/token"
	"github.com/labstack/echo/v4"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*echo.Echo, error) {
		cfg := do.MustInvoke[*config.Config](i)
		h := do.MustInvoke[*hub.Hub](i)
		issuer := do.MustInvoke[token.Issuer](i)
		factory := do.MustInvoke[*admission.Factory](i)
		return New(cfg, h, issuer, factory), nil
	})
}
