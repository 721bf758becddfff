package notify

import (
	"context"
	"errors"
	"log/slog"
)

type Permission int

const (
	PermissionUnavailable Permission = iota
	PermissionDenied
	PermissionGranted
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "unavailable"
	}
}

func ParsePermission(s string) Permission {
	switch s {
	case "granted":
		return PermissionGranted
	case "denied", "default":
		return PermissionDenied
	default:
		return PermissionUnavailable
	}
}

type Notification struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

type Notifier interface {
	Permission(ctx context.Context) Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Notify(ctx context.Context, n Notification) error
}

// Nop never has permission.
type Nop struct{}

func (Nop) Permission(context.Context) Permission { return PermissionUnavailable }
func (Nop) RequestPermission(context.Context) (Permission, error) {
	return PermissionUnavailable, nil
}
func (Nop) Notify(context.Context, Notification) error { return nil }

type multi []Notifier

// Multi fans a notification out to every notifier that currently holds permission.
func Multi(notifiers ...Notifier) Notifier {
	out := make(multi, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (m multi) Permission(ctx context.Context) Permission {
	best := PermissionUnavailable
	for _, n := range m {
		if p := n.Permission(ctx); p > best {
			best = p
		}
	}
	return best
}

func (m multi) RequestPermission(ctx context.Context) (Permission, error) {
	best := PermissionUnavailable
	var errs []error
	for _, n := range m {
		p, err := n.RequestPermission(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p > best {
			best = p
		}
	}
	return best, errors.Join(errs...)
}

func (m multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, target := range m {
		if target.Permission(ctx) != PermissionGranted {
			continue
		}
		if err := target.Notify(ctx, n); err != nil {
			slog.Warn("notification delivery failed", "error", err, "session_id", n.SessionID)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
