package machine

import (
	"log/slog"
	"time"

	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/ports"
	"github.com/aretw0/choreo/pkg/session"
)

// DefaultOutboundTimeout bounds a single compose+send round.
const DefaultOutboundTimeout = 10 * time.Second

// DefaultTemplateCacheSize is the number of sealed templates kept in memory.
const DefaultTemplateCacheSize = 256

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now. Tests use it to make timeouts deterministic.
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) {
		m.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithLocker adds a distributed lock around every run mutation.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Machine) {
		m.lockOpts = append(m.lockOpts, session.WithLocker(locker))
	}
}

// WithLockTTL sets the TTL of distributed run locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Machine) {
		m.lockOpts = append(m.lockOpts, session.WithLockTTL(ttl))
	}
}

// WithHooks registers lifecycle hooks. They run after the run lock is released.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Machine) {
		m.hooks = hooks
	}
}

// WithComposer sets the MessageComposer used on state entry.
func WithComposer(c ports.MessageComposer) Option {
	return func(m *Machine) {
		m.composer = c
	}
}

// WithNotifier sets the NotificationSender used on state entry.
func WithNotifier(n ports.NotificationSender) Option {
	return func(m *Machine) {
		m.notifier = n
	}
}

// WithOutboundTimeout bounds each state-entry fan-out.
func WithOutboundTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.outboundTimeout = d
		}
	}
}

// WithTemplateCacheSize sets how many sealed templates are kept in memory.
func WithTemplateCacheSize(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.cacheSize = n
		}
	}
}
