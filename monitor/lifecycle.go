package monitor

import (
	"context"
	"time"

	"github.com/replicatedcom/usagemon/log"
)

type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start measures every interval in the background until ctx is done or Stop
// is called. Only an idle monitor can be started.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Idle {
		return
	}
	m.state = Running

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if err := m.Measure(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("while monitoring %s: %v", m.cfg.Container, err)
		}

		timer := time.NewTimer(m.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Stop cancels the background loop, waits for it and closes the output. It
// can be called more than once and before Start.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state == Stopped {
		m.mu.Unlock()
		return nil
	}
	m.state = Stopped
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return m.out.Close()
}
