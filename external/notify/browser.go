package notify

import (
	"context"
	"sync"

	"github.com/foxseedlab/gatekeeper/internal/notify"
)

const (
	FrameNotification      = "notification"
	FramePermissionRequest = "permission-request"
)

type Frame struct {
	Type         string               `json:"type"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// BrowserNotifier shows desktop notifications in the host's own browser tab.
// The browser reports its permission through SetPermission.
type BrowserNotifier struct {
	send func(Frame) error

	mu   sync.Mutex
	perm notify.Permission
}

func NewBrowserNotifier(send func(Frame) error, initial notify.Permission) *BrowserNotifier {
	return &BrowserNotifier{send: send, perm: initial}
}

func (b *BrowserNotifier) SetPermission(p notify.Permission) {
	b.mu.Lock()
	b.perm = p
	b.mu.Unlock()
}

func (b *BrowserNotifier) Permission(context.Context) notify.Permission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perm
}

// RequestPermission asks the browser to prompt the user. It does not wait for the
// answer, which arrives later through SetPermission.
func (b *BrowserNotifier) RequestPermission(ctx context.Context) (notify.Permission, error) {
	current := b.Permission(ctx)
	if current != notify.PermissionDenied {
		return current, nil
	}
	if err := b.send(Frame{Type: FramePermissionRequest}); err != nil {
		return current, err
	}
	return current, nil
}

func (b *BrowserNotifier) Notify(_ context.Context, n notify.Notification) error {
	return b.send(Frame{Type: FrameNotification, Notification: &n})
}
