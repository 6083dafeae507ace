// Package supervisor implements the idle-shutdown state machine of
// spec.md §4.K: a dedicated event-bus subscriber that arms a 15-second
// timer at start, disarms it on the first non-builtin device/chip, and
// watches for the last non-builtin device disconnecting. The deferred
// cleanup discipline follows bridge.RunDeviceBridge.
package supervisor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"netsim/internal/eventbus"
	"netsim/internal/groutine"
)

// IdleTimeout is the spec-mandated IDLE_SECS_FOR_SHUTDOWN.
const IdleTimeout = 15 * time.Second

type state int

const (
	stateInitial state = iota
	stateArmed
	stateAttached
)

// Supervisor watches the event bus and publishes ShutDown when the daemon
// should exit.
type Supervisor struct {
	bus     *eventbus.Bus
	logger  *logrus.Logger
	timeout time.Duration
}

// New creates a supervisor with the default 15-second idle timeout.
func New(bus *eventbus.Bus, logger *logrus.Logger) *Supervisor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Supervisor{bus: bus, logger: logger, timeout: IdleTimeout}
}

// WithTimeout overrides the idle timeout, primarily for tests.
func (s *Supervisor) WithTimeout(d time.Duration) *Supervisor {
	s.timeout = d
	return s
}

// Run starts the supervisor's dedicated goroutine. It is off by default in
// tests and under --no-shutdown (spec.md §4.K): callers only invoke Run
// when shutdown-on-idle is wanted.
func (s *Supervisor) Run(ctx context.Context) {
	sub := s.bus.Subscribe(32)
	groutine.Go(ctx, "shutdown-supervisor", func(ctx context.Context) {
		defer sub.Unsubscribe()
		s.loop(ctx, sub)
	})
}

func (s *Supervisor) loop(ctx context.Context, sub *eventbus.Subscriber) {
	st := stateInitial
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if st == stateInitial {
				s.logger.Info("supervisor: no devices connected within idle timeout, shutting down")
				s.bus.Publish(eventbus.Event{Kind: eventbus.ShutDown, Reason: "no devices connected within 15s"})
				return
			}
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			switch st {
			case stateInitial:
				if (e.Kind == eventbus.DeviceAdded || e.Kind == eventbus.ChipAdded) && !e.Builtin {
					st = stateArmed
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
				}
			case stateArmed, stateAttached:
				if e.Kind == eventbus.ChipRemoved && e.RemainingNonBuiltinDevices == 0 {
					s.logger.Info("supervisor: last non-builtin device disconnected, shutting down")
					s.bus.Publish(eventbus.Event{Kind: eventbus.ShutDown, Reason: "last device disconnected"})
					return
				}
			}
		}
	}
}
