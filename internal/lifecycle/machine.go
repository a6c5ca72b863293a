package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/turnsim/internal/events"
)

// ErrInvalidTransition is returned when a phase change is not allowed
var ErrInvalidTransition = errors.New("invalid phase transition")

// Transition represents a phase change in the history
type Transition struct {
	From      Phase
	To        Phase
	Timestamp time.Time
	Reason    string
}

// Machine tracks the lifecycle phase of one environment
type Machine struct {
	mu        sync.RWMutex
	envID     string
	current   Phase
	history   []Transition
	publisher events.Publisher
	logger    zerolog.Logger
}

// NewMachine creates a machine in PhaseUninitialized. publisher may be nil.
func NewMachine(envID string, publisher events.Publisher, logger zerolog.Logger) *Machine {
	return &Machine{
		envID:     envID,
		current:   PhaseUninitialized,
		history:   make([]Transition, 0, 4),
		publisher: publisher,
		logger:    logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Current returns the current phase
func (m *Machine) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// CanTransitionTo checks if a transition to the target phase is allowed
func (m *Machine) CanTransitionTo(target Phase) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.CanTransitionTo(target)
}

// TransitionTo moves the machine to target, recording and publishing the change
func (m *Machine) TransitionTo(target Phase, reason string) error {
	m.mu.Lock()
	from := m.current
	if !from.CanTransitionTo(target) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, target)
	}
	m.current = target
	m.history = append(m.history, Transition{
		From:      from,
		To:        target,
		Timestamp: time.Now(),
		Reason:    reason,
	})
	m.mu.Unlock()

	if m.publisher != nil {
		m.publisher.Publish(events.NewPhaseChangedEvent(m.envID, from.String(), target.String(), reason))
	}

	m.logger.Debug().
		Str("env_id", m.envID).
		Str("from_phase", from.String()).
		Str("to_phase", target.String()).
		Str("reason", reason).
		Msg("Phase transition completed")

	return nil
}

// History returns a copy of the transition history
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]Transition, len(m.history))
	copy(history, m.history)
	return history
}
