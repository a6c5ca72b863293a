package gameserver

import (
	"context"
	"math/rand"
	"net"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/mitchelldurbincs/turnsim/internal/games/lucky"
	"github.com/mitchelldurbincs/turnsim/internal/storage/sqlite"
	"github.com/mitchelldurbincs/turnsim/internal/testutil"
)

const bufSize = 1024 * 1024

func testConfig() ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.CleanupInterval = 0
	return cfg
}

func newTestManager(t *testing.T, cfg ManagerConfig, opts ...ManagerOption) *GameManager {
	t.Helper()
	gm := NewGameManager(cfg, append([]ManagerOption{WithManagerLogger(zerolog.Nop())}, opts...)...)
	t.Cleanup(gm.Stop)
	return gm
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "games.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedPtr(seed int64) *int64 { return &seed }

// setupTestServer serves gm over an in-memory connection
func setupTestServer(t *testing.T, gm *GameManager) *Client {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer(ServerOptions(zerolog.Nop())...)
	RegisterGameServiceServer(s, NewServer(gm, zerolog.Nop()))

	go func() {
		if err := s.Serve(lis); err != nil {
			t.Logf("Server exited with error: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		s.Stop()
		lis.Close()
	})
	return NewClient(conn)
}

// firstEmptyBox picks the lowest unclaimed lucky box from a game view
func firstEmptyBox(t *testing.T, view map[string]any) int {
	t.Helper()
	boxes, ok := view["boxes"].([]any)
	require.True(t, ok, "view has no boxes: %v", view)
	for i, b := range boxes {
		if b.(float64) == 0 {
			return i
		}
	}
	t.Fatal("no empty box left")
	return -1
}

// luckySeed finds a seed whose initial lucky state satisfies ok
func luckySeed(t *testing.T, ok func(s *lucky.State) bool) int64 {
	t.Helper()
	return testutil.FindSeed(t, 1000, func(rng *rand.Rand) bool {
		state, err := lucky.New().InitialState(rng)
		require.NoError(t, err)
		return ok(state.(*lucky.State))
	})
}
