package call

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const DefaultType = "default"

// UserNameHeader carries a caller's display name to a remote hub; tokens only name the user id.
const UserNameHeader = "X-User-Name"

var (
	ErrCallNotFound = errors.New("call not found")
	ErrUnauthorized = errors.New("invalid call credentials")
)

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Credentials struct {
	User  User
	Token string
}

type RecordingSettings struct {
	Quality string `json:"quality"`
	Mode    string `json:"mode"`
}

type Settings struct {
	Recording RecordingSettings `json:"recording"`
}

type CallData struct {
	SettingsOverride *Settings `json:"settings_override,omitempty"`
}

type JoinOptions struct {
	Create bool      `json:"create"`
	Data   *CallData `json:"data,omitempty"`
}

type State struct {
	CID              string    `json:"cid"`
	CreatedBy        string    `json:"created_by"`
	Settings         Settings  `json:"settings"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
}

type CustomEvent struct {
	CID       string          `json:"call_cid"`
	Sender    User            `json:"user"`
	Custom    json.RawMessage `json:"custom"`
	CreatedAt time.Time       `json:"created_at"`
}

// Connector constructs a client bound to the given credentials.
type Connector func(ctx context.Context, creds Credentials) (Client, error)

type Client interface {
	Call(callType, id string) Call
	Close() error
}

type Call interface {
	CID() string
	Join(ctx context.Context, opts JoinOptions) error
	// Get refreshes State. It returns ErrCallNotFound when the call has not been created.
	Get(ctx context.Context) (State, error)
	State() State
	SendCustomEvent(ctx context.Context, custom any) error
	// OnCustom returns only once the subscription is live; events sent after it
	// returns reach handler. It may block on network I/O.
	OnCustom(handler func(CustomEvent)) (unsubscribe func(), err error)
	Leave(ctx context.Context) error
}

func CID(callType, id string) string {
	return callType + ":" + id
}
