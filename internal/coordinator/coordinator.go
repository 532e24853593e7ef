// Package coordinator implements the Mode Coordinator (C14): a single
// mutex serializing Sentinel/Institutional startup and shutdown so at most
// one trading loop is active at any instant. It is grounded on the
// teacher's internal/autopilot state-machine style (small enum-typed
// state behind a mutex, idempotent stop), generalized from the teacher's
// single-strategy on/off switch to the two-mode exclusion this engine
// requires.
package coordinator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Mode is the coordinator's current active loop.
type Mode string

const (
	ModeIdle          Mode = "Idle"
	ModeSentinel      Mode = "Sentinel"
	ModeInstitutional Mode = "Institutional"
)

// Loop is a trading loop task the coordinator can start and stop. Start
// and Stop must not block on network I/O for longer than it takes to flip
// an internal flag; the coordinator calls both while holding its mutex.
type Loop interface {
	Start(ctx context.Context)
	Stop()
}

// PositionMonitor is started once, the first time any loop becomes active,
// and is never stopped by mode transitions (it runs independently per the
// concurrency model).
type PositionMonitor interface {
	EnsureRunning(ctx context.Context)
}

// Coordinator serializes transitions between Idle, Sentinel, and
// Institutional. It holds no loop state itself beyond the current mode; the
// loops it drives own their own goroutines.
type Coordinator struct {
	mu      sync.Mutex
	mode    Mode
	monitor PositionMonitor
	started bool

	sentinel      Loop
	institutional Loop
	logger        zerolog.Logger
}

// New builds a Coordinator over the given loops and position monitor.
func New(sentinel, institutional Loop, monitor PositionMonitor, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		mode:          ModeIdle,
		sentinel:      sentinel,
		institutional: institutional,
		monitor:       monitor,
		logger:        logger.With().Str("component", "ModeCoordinator").Logger(),
	}
}

// Mode returns the current active mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// StartSentinel transitions Idle -> Sentinel. It is a no-op (returns an
// error) if Sentinel or Institutional is already active.
func (c *Coordinator) StartSentinel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeIdle {
		return modeErr("startSentinel", c.mode)
	}
	c.ensureMonitor(ctx)
	c.sentinel.Start(ctx)
	c.mode = ModeSentinel
	c.logger.Info().Str("mode", string(c.mode)).Msg("mode transition")
	return nil
}

// StartInstitutional transitions {Idle, Sentinel} -> Institutional,
// stopping Sentinel first if it was active.
func (c *Coordinator) StartInstitutional(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeIdle && c.mode != ModeSentinel {
		return modeErr("startInstitutional", c.mode)
	}
	if c.mode == ModeSentinel {
		c.sentinel.Stop()
	}
	c.ensureMonitor(ctx)
	c.institutional.Start(ctx)
	c.mode = ModeInstitutional
	c.logger.Info().Str("mode", string(c.mode)).Msg("mode transition")
	return nil
}

// StopSentinel transitions Sentinel -> Idle. Unconditional and idempotent:
// calling it while Sentinel is not active is a harmless no-op.
func (c *Coordinator) StopSentinel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeSentinel {
		return
	}
	c.sentinel.Stop()
	c.mode = ModeIdle
	c.logger.Info().Str("mode", string(c.mode)).Msg("mode transition")
}

// StopInstitutional transitions Institutional -> Idle. Unconditional and
// idempotent.
func (c *Coordinator) StopInstitutional() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeInstitutional {
		return
	}
	c.institutional.Stop()
	c.mode = ModeIdle
	c.logger.Info().Str("mode", string(c.mode)).Msg("mode transition")
}

// Shutdown stops whichever loop is active, unconditionally.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.mode {
	case ModeSentinel:
		c.sentinel.Stop()
	case ModeInstitutional:
		c.institutional.Stop()
	}
	c.mode = ModeIdle
}

// ensureMonitor starts the position monitor on first use. Callers must
// hold c.mu.
func (c *Coordinator) ensureMonitor(ctx context.Context) {
	if c.started {
		return
	}
	c.monitor.EnsureRunning(ctx)
	c.started = true
}

func modeErr(op string, current Mode) error {
	return &ModeError{Op: op, Current: current}
}

// ModeError reports an illegal mode transition attempt.
type ModeError struct {
	Op      string
	Current Mode
}

func (e *ModeError) Error() string {
	return "coordinator: " + e.Op + " invalid from mode " + string(e.Current)
}
