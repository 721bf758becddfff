package admission

import (
	"context"
	"sync"
	"time"
)

// poller runs check every interval until check reports done or the poll is stopped.
// At most one poll is active; start cancels the previous one first.
type poller struct {
	interval time.Duration

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func newPoller(interval time.Duration) *poller {
	return &poller{interval: interval}
}

func (p *poller) start(parent context.Context, check func(ctx context.Context) bool) {
	p.stop()

	ctx, cancel := context.WithCancel(parent)
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		defer p.finish(gen)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if check(ctx) {
					return
				}
			}
		}
	}()
}

func (p *poller) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = nil
}

// stop cancels the active poll without waiting for an in-flight check.
func (p *poller) stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *poller) active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// delayedCall is a single-slot one-shot timer.
type delayedCall struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

func (d *delayedCall) schedule(parent context.Context, delay time.Duration, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.gen++
	gen := d.gen
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		d.mu.Lock()
		fire := d.gen == gen && d.cancel != nil
		if fire {
			d.cancel = nil
		}
		d.mu.Unlock()
		if fire {
			fn(ctx)
		}
		cancel()
	}()
}

func (d *delayedCall) stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (d *delayedCall) pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}
