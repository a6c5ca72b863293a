package subscribers_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/turnsim/internal/events"
	"github.com/mitchelldurbincs/turnsim/internal/events/subscribers"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var line map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &line))
		lines = append(lines, line)
	}
	return lines
}

func TestLoggerSubscriber(t *testing.T) {
	var buf bytes.Buffer
	logSub := subscribers.NewLoggerSubscriber("test-logger", zerolog.New(&buf), zerolog.InfoLevel)

	assert.Equal(t, "test-logger", logSub.ID())
	assert.True(t, logSub.InterestedIn(events.TypeActionApplied))
	assert.True(t, logSub.InterestedIn("any.event.type"))
}

func TestLoggerSubscriberEventLogging(t *testing.T) {
	testCases := []struct {
		name  string
		event events.Event
		check func(t *testing.T, line map[string]interface{})
	}{
		{
			name:  "RunInitialized",
			event: events.NewRunInitializedEvent("env-1", "Lucky", 2, 42),
			check: func(t *testing.T, line map[string]interface{}) {
				assert.Equal(t, "Lucky", line["environment"])
				assert.Equal(t, float64(2), line["num_agents"])
				assert.Equal(t, float64(42), line["seed"])
			},
		},
		{
			name:  "ActionApplied",
			event: events.NewActionAppliedEvent("env-1", 3, 1, 4, []float64{-1, 1}, true),
			check: func(t *testing.T, line map[string]interface{}) {
				assert.Equal(t, float64(3), line["action_number"])
				assert.Equal(t, float64(1), line["acting_agent"])
				assert.Equal(t, float64(4), line["action"])
				assert.Equal(t, true, line["terminal"])
				assert.Equal(t, []interface{}{float64(-1), float64(1)}, line["rewards"])
			},
		},
		{
			name:  "RunPaused",
			event: events.NewRunPausedEvent("env-1", 2, 0),
			check: func(t *testing.T, line map[string]interface{}) {
				assert.Equal(t, float64(0), line["waiting_agent"])
			},
		},
		{
			name:  "PhaseChanged",
			event: events.NewPhaseChangedEvent("env-1", "SetUp", "Running", "run started"),
			check: func(t *testing.T, line map[string]interface{}) {
				assert.Equal(t, "SetUp", line["from_phase"])
				assert.Equal(t, "Running", line["to_phase"])
				assert.Equal(t, "run started", line["reason"])
			},
		},
		{
			name:  "RunEnded",
			event: events.NewRunEndedEvent("env-1", []float64{1, -1}, 4, time.Second),
			check: func(t *testing.T, line map[string]interface{}) {
				assert.Equal(t, float64(4), line["action_number"])
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			logSub := subscribers.NewLoggerSubscriber("event-logger", zerolog.New(&buf), zerolog.InfoLevel)
			logSub.HandleEvent(tc.event)

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, "Environment event", lines[0]["message"])
			assert.Equal(t, "info", lines[0]["level"])
			assert.Equal(t, "env-1", lines[0]["env_id"])
			assert.Equal(t, tc.event.Type(), lines[0]["event_type"])
			tc.check(t, lines[0])
		})
	}
}

func TestLoggerSubscriberFilterAndDevMode(t *testing.T) {
	var buf bytes.Buffer
	logSub := subscribers.NewLoggerSubscriber("filtered", zerolog.New(&buf), zerolog.DebugLevel)
	logSub.SetEventFilter([]string{events.TypeRunEnded})

	assert.True(t, logSub.InterestedIn(events.TypeRunEnded))
	assert.False(t, logSub.InterestedIn(events.TypeActionApplied))

	logSub.SetEventFilter(nil)
	assert.True(t, logSub.InterestedIn(events.TypeActionApplied))

	logSub.SetDevMode(true)
	logSub.HandleEvent(events.NewRunPausedEvent("env-2", 5, 1))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "debug", lines[0]["level"])
	data, ok := lines[0]["event_data"].(map[string]interface{})
	require.True(t, ok, "dev mode should attach the raw event")
	assert.Equal(t, float64(1), data["WaitingAgent"])
}

func TestLoggerSubscriberOnBus(t *testing.T) {
	var buf bytes.Buffer
	bus := events.NewEventBusWithLogger(zerolog.Nop())
	bus.Subscribe(subscribers.NewLoggerSubscriber("bus-logger", zerolog.New(&buf), zerolog.InfoLevel))

	bus.Publish(events.NewHistoryReplayedEvent("env-3", 7))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, float64(7), lines[0]["events"])
}
