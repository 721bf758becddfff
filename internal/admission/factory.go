package admission

import (
	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/identity"
	"github.com/foxseedlab/gatekeeper/internal/notify"
	"github.com/foxseedlab/gatekeeper/internal/token"
)

// Factory builds one controller per UI session from the shared collaborators.
type Factory struct {
	opts     Options
	tokens   token.Issuer
	connect  call.Connector
	notifier notify.Notifier
}

func NewFactory(cfg *config.Config, tokens token.Issuer, connect call.Connector, notifier notify.Notifier) *Factory {
	return &Factory{
		opts:     OptionsFromConfig(cfg),
		tokens:   tokens,
		connect:  connect,
		notifier: notifier,
	}
}

// New returns a controller whose notifications go to the shared notifier plus any
// per-session extras (for example the host's own browser).
func (f *Factory) New(p identity.Participant, ref SessionRef, extra ...notify.Notifier) *Controller {
	notifier := f.notifier
	if len(extra) > 0 {
		notifier = notify.Multi(append([]notify.Notifier{f.notifier}, extra...)...)
	}
	return NewController(f.opts, f.tokens, f.connect, notifier, p, ref)
}
