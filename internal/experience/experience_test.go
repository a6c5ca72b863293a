package experience

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mitchelldurbincs/turnsim/internal/games/lucky"
	"github.com/mitchelldurbincs/turnsim/internal/sim"
	"github.com/mitchelldurbincs/turnsim/internal/testutil"
)

func playedHistory(t *testing.T) []sim.Event {
	t.Helper()
	env := testutil.QuietEnv(lucky.New())
	require.NoError(t, env.InitializeWithSeed([]sim.Agent{testutil.NewScriptedAgent(), testutil.NewScriptedAgent()}, 17))
	_, err := env.Run()
	require.NoError(t, err)
	return env.History()
}

func TestExtract(t *testing.T) {
	history := playedHistory(t)
	transitions, err := Extract("g1", history)
	require.NoError(t, err)
	require.Len(t, transitions, len(history)-1)

	for i, tr := range transitions {
		assert.Equal(t, "g1", tr.GameID)
		assert.Equal(t, i+1, tr.Step)
		assert.Equal(t, history[i].State.ActingAgent(), tr.ActingAgent)
		assert.Equal(t, history[i+1].Action, tr.Action)
		assert.Equal(t, history[i+1].Rewards, tr.Rewards)
		if i > 0 {
			assert.Equal(t, transitions[i-1].NextStateKey, tr.StateKey)
		}
	}
	last := transitions[len(transitions)-1]
	assert.True(t, last.Done)

	none, err := Extract("g2", history[:1])
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriter_RoundTrip(t *testing.T) {
	transitions, err := Extract("g1", playedHistory(t))
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewWriter(&buf, zerolog.Nop())
	require.NoError(t, w.Write(transitions))
	require.NoError(t, w.Close())

	stats := w.Stats()
	assert.Equal(t, int64(len(transitions)), stats.TotalWritten)
	assert.Equal(t, int64(buf.Len()), stats.BytesWritten)
	assert.Equal(t, len(transitions), bytes.Count(buf.Bytes(), []byte("\n")))

	read, err := ReadAll(&buf)
	require.NoError(t, err)
	assert.Equal(t, transitions, read)
}

func TestOpenFile_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.jsonl")
	transitions, err := Extract("g1", playedHistory(t))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		w, err := OpenFile(path, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, w.Write(transitions[:1]))
		require.NoError(t, w.Close())
	}

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	read, err := ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, read, 2)
}

func TestFromStruct_Malformed(t *testing.T) {
	s, err := structpb.NewStruct(map[string]any{"game_id": "g"})
	require.NoError(t, err)
	_, err = FromStruct(s)
	assert.ErrorIs(t, err, ErrMalformedTransition)

	_, err = ReadAll(bytes.NewBufferString("{not json}\n"))
	assert.Error(t, err)
}
