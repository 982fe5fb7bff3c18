package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/mimir/internal/observability"
)

// poller is one independent periodic sync task. Each tick stamps a
// last-active timestamp before doing any work, which is what the watchdog
// inspects to detect a quiesced timer.
type poller struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)

	lastActive atomic.Int64
	cancel     context.CancelFunc
	done       chan struct{}
}

// run is the poller goroutine body.
func (p *poller) run(ctx context.Context, immediate bool) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if immediate {
		p.lastActive.Store(time.Now().UnixMilli())
		p.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.lastActive.Store(time.Now().UnixMilli())
			p.tick(ctx)
		}
	}
}

func (p *poller) stop() {
	p.cancel()
}

// wait blocks until the poller goroutine exits or the context gives up.
func (p *poller) wait(ctx context.Context) {
	select {
	case <-p.done:
	case <-ctx.Done():
	}
}

// idleFor reports how long the poller has gone without starting a tick.
func (p *poller) idleFor(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(p.lastActive.Load()))
}

// startPollerLocked creates and launches a poller. Caller holds s.mu.
func (s *Store) startPollerLocked(name string, interval time.Duration, immediate bool, tick func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())

	p := &poller{
		name:     name,
		interval: interval,
		tick:     tick,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	// A fresh poller counts as active now, so the watchdog doesn't kill it
	// before its first tick.
	p.lastActive.Store(time.Now().UnixMilli())

	s.pollers[name] = p
	go p.run(ctx, immediate)
}

// ResetSyncTimerIfExited is the watchdog: request paths call it when they
// suspect the background timers died (e.g. after a fork, or a runtime that
// suspended timers). A poller that has not started a tick within
// max(SyncOutdatedMax, its interval) is stopped, restarted, and kicked
// into an immediate sync.
//
// The returned error is nil when every poller is healthy; otherwise it
// names the restarted timers so the host can log the incident. Rapid
// repeated calls are safe: a just-restarted poller is active by
// definition.
func (s *Store) ResetSyncTimerIfExited() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		return nil
	}

	now := time.Now()
	var restarted []string

	for name, p := range s.pollers {
		threshold := SyncOutdatedMax
		if p.interval > threshold {
			threshold = p.interval
		}
		if p.idleFor(now) <= threshold {
			continue
		}

		p.stop()
		s.startPollerLocked(name, p.interval, true, p.tick)
		restarted = append(restarted, name)
		observability.PollerRestarts.WithLabelValues(name).Inc()
	}

	if len(restarted) == 0 {
		return nil
	}

	err := fmt.Errorf("store: forced restart of quiesced sync timer(s): %s", strings.Join(restarted, ", "))
	s.logger.Warn("sync timers restarted by watchdog", slog.String("timers", strings.Join(restarted, ", ")))
	return err
}
