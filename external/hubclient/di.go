package hubclient

import (
	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/config"
	"github.com/foxseedlab/gatekeeper/internal/hub"
	"github.com/samber/do/v2"
)

// RegisterDI provides the call.Connector: the remote hub when CALL_HUB_URL is set,
// otherwise the in-process hub.
func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (call.Connector, error) {
		c := do.MustInvoke[*config.Config](i)
		if c.UsesRemoteHub() {
			return NewConnector(c.CallHubURL), nil
		}
		return do.MustInvoke[*hub.Hub](i).Connect, nil
	})
}
