package admission

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
	"github.com/foxseedlab/gatekeeper/internal/identity"
)

var (
	ErrCredential       = errors.New("credential unavailable")
	ErrSessionCreate    = errors.New("create or join session failed")
	ErrSessionNotFound  = call.ErrCallNotFound
	ErrNotHost          = errors.New("only the host can resolve join requests")
	ErrNoPendingRequest = errors.New("no pending join request")
	ErrClosed           = errors.New("admission controller closed")
	ErrAlreadyStarted   = errors.New("admission controller already started")
)

type State int

const (
	StateInitializing State = iota
	StateHostActive
	StateAwaitingHostAvailability
	StateAwaitingApproval
	StateAdmitted
	StateRejected
	StateSessionFull
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateHostActive:
		return "host-active"
	case StateAwaitingHostAvailability:
		return "awaiting-host-availability"
	case StateAwaitingApproval:
		return "awaiting-approval"
	case StateAdmitted:
		return "admitted"
	case StateRejected:
		return "rejected"
	case StateSessionFull:
		return "session-full"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := StateInitializing; st <= StateSessionFull; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown admission state %q", b)
}

// Terminal reports whether the controller can no longer leave this state on its own.
func (s State) Terminal() bool {
	return s == StateAdmitted || s == StateRejected
}

type Role int

const (
	RoleJoiner Role = iota
	RoleHost
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "joiner"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRole accepts both the generic names and the clinic names used by the UI.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "host", "doctor":
		return RoleHost, nil
	case "joiner", "patient":
		return RoleJoiner, nil
	default:
		return RoleJoiner, fmt.Errorf("unknown role %q", s)
	}
}

type SessionRef struct {
	SessionID string
	Role      Role
}

type JoinRequest struct {
	Requester  identity.Participant `json:"requester"`
	RequestID  string               `json:"request_id,omitempty"`
	ReceivedAt time.Time            `json:"received_at"`
}

// Snapshot is the read-only view the UI renders from.
type Snapshot struct {
	State       State
	Role        Role
	SessionID   string
	Participant identity.Participant
	Pending     *JoinRequest
	Countdown   int
	FullRetries int
	Err         error
}
