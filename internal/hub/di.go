package hub

import (
	"github.com/foxseedlab/gatekeeper/internal/repository"
	"github.com/foxseedlab/gatekeeper/internal/token"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Hub, error) {
		repo := do.MustInvoke[repository.Repository](i)
		verifier := do.MustInvoke[token.Verifier](i)
		return New(repo, verifier), nil
	})
}
