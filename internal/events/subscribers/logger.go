package subscribers

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/turnsim/internal/events"
)

// LoggerSubscriber logs events to structured logs
type LoggerSubscriber struct {
	id              string
	logger          zerolog.Logger
	logLevel        zerolog.Level
	eventTypeFilter map[string]bool // If non-nil, only log these event types
	devMode         bool            // If true, log full event details
}

// NewLoggerSubscriber creates a new logger subscriber
func NewLoggerSubscriber(id string, logger zerolog.Logger, logLevel zerolog.Level) *LoggerSubscriber {
	return &LoggerSubscriber{
		id:       id,
		logger:   logger.With().Str("subscriber", "event_logger").Logger(),
		logLevel: logLevel,
	}
}

// ID returns the subscriber's unique identifier
func (ls *LoggerSubscriber) ID() string {
	return ls.id
}

// SetEventFilter sets which event types to log (nil means log all)
func (ls *LoggerSubscriber) SetEventFilter(eventTypes []string) {
	if len(eventTypes) == 0 {
		ls.eventTypeFilter = nil
		return
	}

	ls.eventTypeFilter = make(map[string]bool)
	for _, eventType := range eventTypes {
		ls.eventTypeFilter[eventType] = true
	}
}

// SetDevMode enables or disables development mode logging
func (ls *LoggerSubscriber) SetDevMode(enabled bool) {
	ls.devMode = enabled
}

// InterestedIn returns true if the subscriber wants to receive this event type
func (ls *LoggerSubscriber) InterestedIn(eventType string) bool {
	if ls.eventTypeFilter == nil {
		return true
	}
	return ls.eventTypeFilter[eventType]
}

// HandleEvent processes an event by logging it
func (ls *LoggerSubscriber) HandleEvent(event events.Event) {
	eventLogger := ls.logger.With().
		Str("event_type", event.Type()).
		Str("env_id", event.EnvID()).
		Time("timestamp", event.Timestamp()).
		Logger()

	logEvent := eventLogger.WithLevel(ls.logLevel)
	if ls.logLevel == zerolog.NoLevel {
		logEvent = eventLogger.Info()
	}

	switch e := event.(type) {
	case *events.RunInitializedEvent:
		logEvent.
			Str("environment", e.Environment).
			Int("num_agents", e.NumAgents).
			Int64("seed", e.Seed)

	case *events.HistoryReplayedEvent:
		logEvent.Int("events", e.Events)

	case *events.ActionAppliedEvent:
		logEvent.
			Int("action_number", e.ActionNumber).
			Int("acting_agent", e.ActingAgent).
			Int("action", e.Action).
			Floats64("rewards", e.Rewards).
			Bool("terminal", e.Terminal)

	case *events.RunPausedEvent:
		logEvent.
			Int("action_number", e.ActionNumber).
			Int("waiting_agent", e.WaitingAgent)

	case *events.RunEndedEvent:
		logEvent.
			Floats64("rewards", e.Rewards).
			Int("action_number", e.ActionNumber).
			Dur("duration", e.Duration)

	case *events.PhaseChangedEvent:
		logEvent.
			Str("from_phase", e.FromPhase).
			Str("to_phase", e.ToPhase).
			Str("reason", e.Reason)
	}

	if ls.devMode {
		if jsonData, err := json.Marshal(event); err == nil {
			logEvent.RawJSON("event_data", jsonData)
		}
	}

	logEvent.Msg("Environment event")
}
