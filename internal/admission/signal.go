package admission

import (
	"encoding/json"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/identity"
)

const (
	eventJoinRequest  = "join-request"
	eventJoinAccepted = "join-accepted"
	eventJoinRejected = "join-rejected"
)

const (
	reasonBusy    = "busy"
	reasonTimeout = "timeout"
)

// signal is the custom event payload exchanged between host and joiner.
type signal struct {
	Type      string     `json:"type"`
	User      *call.User `json:"user,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

func decodeSignal(ev call.CustomEvent) (signal, bool) {
	var s signal
	if len(ev.Custom) == 0 {
		return s, false
	}
	if err := json.Unmarshal(ev.Custom, &s); err != nil {
		return s, false
	}
	return s, s.Type != ""
}

// requester prefers the identity embedded in the payload and falls back to the event sender.
func (s signal) requester(ev call.CustomEvent) identity.Participant {
	if s.User != nil && s.User.ID != "" {
		return identity.Participant{ID: s.User.ID, DisplayName: s.User.Name}
	}
	return identity.Participant{ID: ev.Sender.ID, DisplayName: ev.Sender.Name}
}

func callUser(p identity.Participant) *call.User {
	return &call.User{ID: p.ID, Name: p.DisplayName}
}
