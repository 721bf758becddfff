package token

import (
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/token"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*JWTIssuer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewJWTIssuer(c.JWTSecret, c.TokenTTL), nil
	})
	do.Provide(injector, func(i do.Injector) (token.Verifier, error) {
		return do.MustInvoke[*JWTIssuer](i), nil
	})
	do.Provide(injector, func(i do.Injector) (token.Issuer, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.UsesRemoteTokenService() {
			return NewHTTPClient(c.TokenServiceURL), nil
		}
		return do.MustInvoke[*JWTIssuer](i), nil
	})
}
