package admission

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foxseedlab/gatekeeper/internal/call"
)

func TestPoller_StopsWhenCheckReportsDone(t *testing.T) {
	p := newPoller(5 * time.Millisecond)
	var calls atomic.Int32
	p.start(context.Background(), func(context.Context) bool {
		return calls.Add(1) == 3
	})

	waitUntil(t, time.Second, func() bool { return !p.active() }, "poller did not finish")
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != 3 {
		t.Errorf("check calls = %d, want 3", got)
	}
}

func TestPoller_StartReplacesPreviousPoll(t *testing.T) {
	p := newPoller(5 * time.Millisecond)
	var first, second atomic.Int32
	p.start(context.Background(), func(context.Context) bool { first.Add(1); return false })
	waitUntil(t, time.Second, func() bool { return first.Load() > 0 }, "first poll did not run")

	p.start(context.Background(), func(context.Context) bool { second.Add(1); return false })
	time.Sleep(10 * time.Millisecond)
	stopped := first.Load()
	time.Sleep(40 * time.Millisecond)

	if first.Load() != stopped {
		t.Error("first poll kept running after a new one started")
	}
	if second.Load() == 0 {
		t.Error("second poll did not run")
	}
	p.stop()
	if p.active() {
		t.Error("poller active after stop")
	}
}

func TestPoller_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newPoller(5 * time.Millisecond)
	p.start(ctx, func(context.Context) bool { return false })
	cancel()
	waitUntil(t, time.Second, func() bool { return !p.active() }, "poller survived parent cancellation")
}

func TestDelayedCall_FiresOnce(t *testing.T) {
	var d delayedCall
	var calls atomic.Int32
	d.schedule(context.Background(), 10*time.Millisecond, func(context.Context) { calls.Add(1) })
	if !d.pending() {
		t.Fatal("call not pending after schedule")
	}
	waitUntil(t, time.Second, func() bool { return calls.Load() == 1 }, "delayed call did not fire")
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != 1 || d.pending() {
		t.Errorf("calls = %d pending = %v, want 1/false", calls.Load(), d.pending())
	}
}

func TestDelayedCall_RescheduleAndStop(t *testing.T) {
	var d delayedCall
	var first, second atomic.Int32
	d.schedule(context.Background(), 20*time.Millisecond, func(context.Context) { first.Add(1) })
	d.schedule(context.Background(), 20*time.Millisecond, func(context.Context) { second.Add(1) })
	waitUntil(t, time.Second, func() bool { return second.Load() == 1 }, "rescheduled call did not fire")
	if first.Load() != 0 {
		t.Error("replaced call fired")
	}

	var third atomic.Int32
	d.schedule(context.Background(), 20*time.Millisecond, func(context.Context) { third.Add(1) })
	d.stop()
	time.Sleep(50 * time.Millisecond)
	if third.Load() != 0 {
		t.Error("stopped call fired")
	}
}

func TestDecodeSignal(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantOK bool
		want   string
	}{
		{name: "request", raw: `{"type":"join-request","user":{"id":"jane_doe","name":"Jane Doe"},"request_id":"r1"}`, wantOK: true, want: eventJoinRequest},
		{name: "empty", raw: ``, wantOK: false},
		{name: "not json", raw: `hello`, wantOK: false},
		{name: "no type", raw: `{"user":{"id":"x"}}`, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, ok := decodeSignal(call.CustomEvent{Custom: []byte(tt.raw)})
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && sig.Type != tt.want {
				t.Errorf("type = %q, want %q", sig.Type, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"doctor": RoleHost, "HOST": RoleHost, "patient": RoleJoiner, " joiner ": RoleJoiner} {
		got, err := ParseRole(in)
		if err != nil || got != want {
			t.Errorf("ParseRole(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseRole("nurse"); err == nil {
		t.Error("ParseRole accepted an unknown role")
	}
}
