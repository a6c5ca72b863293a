package events

import (
	"time"
)

// Event type constants
const (
	TypeRunInitialized  = "run.initialized"
	TypeHistoryReplayed = "history.replayed"
	TypeActionApplied   = "action.applied"
	TypeRunPaused       = "run.paused"
	TypeRunEnded        = "run.ended"
	TypePhaseChanged    = "phase.changed"
)

// RunInitializedEvent is published once an environment has its agents, seed
// and initial state.
type RunInitializedEvent struct {
	BaseEvent
	Environment string
	NumAgents   int
	Seed        int64
}

// NewRunInitializedEvent creates a new RunInitializedEvent
func NewRunInitializedEvent(envID, environment string, numAgents int, seed int64) *RunInitializedEvent {
	return &RunInitializedEvent{
		BaseEvent:   newBase(TypeRunInitialized, envID),
		Environment: environment,
		NumAgents:   numAgents,
		Seed:        seed,
	}
}

// HistoryReplayedEvent is published after a recorded history has been
// restored into an environment.
type HistoryReplayedEvent struct {
	BaseEvent
	Events int
}

// NewHistoryReplayedEvent creates a new HistoryReplayedEvent
func NewHistoryReplayedEvent(envID string, events int) *HistoryReplayedEvent {
	return &HistoryReplayedEvent{
		BaseEvent: newBase(TypeHistoryReplayed, envID),
		Events:    events,
	}
}

// ActionAppliedEvent is published after an action has been appended to the
// history and every agent has been notified.
type ActionAppliedEvent struct {
	BaseEvent
	ActionNumber int
	ActingAgent  int
	Action       int
	Rewards      []float64
	Terminal     bool
}

// NewActionAppliedEvent creates a new ActionAppliedEvent
func NewActionAppliedEvent(envID string, actionNumber, actingAgent, action int, rewards []float64, terminal bool) *ActionAppliedEvent {
	return &ActionAppliedEvent{
		BaseEvent:    newBase(TypeActionApplied, envID),
		ActionNumber: actionNumber,
		ActingAgent:  actingAgent,
		Action:       action,
		Rewards:      rewards,
		Terminal:     terminal,
	}
}

// RunPausedEvent is published when a hosted run stops to wait for an
// externally driven agent.
type RunPausedEvent struct {
	BaseEvent
	ActionNumber int
	WaitingAgent int
}

// NewRunPausedEvent creates a new RunPausedEvent
func NewRunPausedEvent(envID string, actionNumber, waitingAgent int) *RunPausedEvent {
	return &RunPausedEvent{
		BaseEvent:    newBase(TypeRunPaused, envID),
		ActionNumber: actionNumber,
		WaitingAgent: waitingAgent,
	}
}

// RunEndedEvent is published when the environment reaches a terminal state
type RunEndedEvent struct {
	BaseEvent
	Rewards      []float64
	ActionNumber int
	Duration     time.Duration
}

// NewRunEndedEvent creates a new RunEndedEvent
func NewRunEndedEvent(envID string, rewards []float64, actionNumber int, duration time.Duration) *RunEndedEvent {
	return &RunEndedEvent{
		BaseEvent:    newBase(TypeRunEnded, envID),
		Rewards:      rewards,
		ActionNumber: actionNumber,
		Duration:     duration,
	}
}

// PhaseChangedEvent is published when the environment lifecycle moves between phases
type PhaseChangedEvent struct {
	BaseEvent
	FromPhase string
	ToPhase   string
	Reason    string
}

// NewPhaseChangedEvent creates a new PhaseChangedEvent
func NewPhaseChangedEvent(envID, fromPhase, toPhase, reason string) *PhaseChangedEvent {
	return &PhaseChangedEvent{
		BaseEvent: newBase(TypePhaseChanged, envID),
		FromPhase: fromPhase,
		ToPhase:   toPhase,
		Reason:    reason,
	}
}
