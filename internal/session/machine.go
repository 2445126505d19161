package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sokinpui/pfx.go/model"
)

// Machine owns the session state. Every transition is persisted before it
// returns, so a reader never observes a half-updated session.
type Machine struct {
	mu     sync.Mutex
	store  *Store
	state  State
	logger *zap.Logger
	now    func() time.Time
}

// NewMachine loads the persisted session from store.
func NewMachine(store *Store, logger *zap.Logger) (*Machine, error) {
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{store: store, state: st, logger: logger, now: time.Now}, nil
}

// Store returns the backing store.
func (m *Machine) Store() *Store { return m.store }

// State returns a copy of the current state. Changing the copy, including
// its dispatch plan and snapshot, does not change the session.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase
}

// Begin moves to Dispatched with d as the outstanding dispatch.
func (m *Machine) Begin(d *model.Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase == PhaseDispatched {
		return model.Reject(model.CodeSessionBusy, "dispatch %s is still outstanding; complete or interrupt it first", m.state.Dispatch.ID)
	}
	cmd := d.Command
	next := State{
		Phase:       PhaseDispatched,
		LastCommand: &cmd,
		Dispatch:    d,
		LastResult:  m.state.LastResult,
	}
	return m.commit(next)
}

// Update rewrites the outstanding dispatch record without changing phase.
func (m *Machine) Update(d *model.Dispatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseDispatched {
		return model.Reject(model.CodeInvalidState, "no dispatch is outstanding")
	}
	next := m.state
	next.Dispatch = d
	return m.commit(next)
}

// Complete records res and moves Dispatched to Completed.
func (m *Machine) Complete(d *model.Dispatch, res model.Result) error {
	return m.finish(PhaseCompleted, d, res)
}

// Interrupt records res and moves Dispatched to Interrupted.
func (m *Machine) Interrupt(d *model.Dispatch, res model.Result) error {
	return m.finish(PhaseInterrupted, d, res)
}

func (m *Machine) finish(phase Phase, d *model.Dispatch, res model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Phase != PhaseDispatched {
		return model.Reject(model.CodeInvalidState, "cannot move to %s from %s", phase, m.state.Phase)
	}
	next := m.state
	next.Phase = phase
	if d != nil {
		next.Dispatch = d
	}
	next.LastResult = &res
	next.PendingOptions = res.Options
	return m.commit(next)
}

// Reset clears the session back to Idle and drops every snapshot.
func (m *Machine) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		return err
	}
	m.logger.Debug("session reset", zap.String("from", string(m.state.Phase)))
	m.state = idle()
	return nil
}

func (m *Machine) commit(next State) error {
	next.UpdatedAt = m.now().UTC()
	if err := m.store.Save(next); err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("from", string(m.state.Phase)),
		zap.String("to", string(next.Phase)),
	}
	if next.Dispatch != nil {
		fields = append(fields, zap.String("dispatch", next.Dispatch.ID))
	}
	m.logger.Debug("session transition", fields...)
	m.state = next.clone()
	return nil
}
