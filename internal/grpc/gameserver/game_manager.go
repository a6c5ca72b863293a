package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/turnsim/internal/agents"
	"github.com/mitchelldurbincs/turnsim/internal/events"
	"github.com/mitchelldurbincs/turnsim/internal/events/subscribers"
	"github.com/mitchelldurbincs/turnsim/internal/games"
	"github.com/mitchelldurbincs/turnsim/internal/monitoring"
	"github.com/mitchelldurbincs/turnsim/internal/sim"
	"github.com/mitchelldurbincs/turnsim/internal/storage/sqlite"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrAtCapacity       = errors.New("server at capacity")
	ErrUnsupportedAgent = errors.New("agent cannot be hosted")
	ErrNotClientTurn    = errors.New("acting agent is not a client")
)

// hostedAgents are the agents a server can run: console agents would block
// on the server's own terminal.
var hostedAgents = map[string]bool{"random": true, "client": true}

// HistoryStore persists hosted games. *sqlite.Store implements it.
type HistoryStore interface {
	SaveGame(ctx context.Context, rec sqlite.GameRecord) error
	AppendEvents(ctx context.Context, gameID string, startSeq int, records []sim.EventRecord) error
	LoadGame(ctx context.Context, id string) (sqlite.GameRecord, []sim.EventRecord, error)
}

// ManagerConfig bounds how many games are kept in memory and for how long.
type ManagerConfig struct {
	MaxGames         int
	CleanupInterval  time.Duration
	FinishedGameTTL  time.Duration
	AbandonedGameTTL time.Duration
}

// DefaultManagerConfig mirrors the server configuration defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxGames:         100,
		CleanupInterval:  5 * time.Minute,
		FinishedGameTTL:  10 * time.Minute,
		AbandonedGameTTL: 30 * time.Minute,
	}
}

type gameInstance struct {
	id         string
	gameName   string
	agentNames []string
	env        *sim.Environment
	eventBus   *events.EventBus
	mu         sync.Mutex

	createdAt    time.Time
	lastActivity time.Time

	// number of history events already written to the store
	persisted int

	idempotencyManager *IdempotencyManager
	streamManager      *StreamManager
}

// snapshotLocked summarises the game. Must be called with mu held.
func (g *gameInstance) snapshotLocked() (GameUpdatesResponse, error) {
	records, err := sim.EncodeHistory(g.env.History())
	if err != nil {
		return GameUpdatesResponse{}, err
	}
	state := g.env.CurrentState()
	last, _ := g.env.LastEvent()
	resp := GameUpdatesResponse{
		GameHistory:  records,
		ActionNumber: g.env.ActionNumber(),
		ActingAgent:  state.ActingAgent(),
		Terminal:     state.IsTerminal(),
		Rewards:      last.Rewards,
		Phase:        g.env.Phase().String(),
	}
	if v, ok := state.(sim.Viewable); ok {
		resp.View = v.UIState()
	}
	return resp, nil
}

// ManagerOption configures a GameManager.
type ManagerOption func(*GameManager)

// WithStore persists every game to store and restores unknown ids from it.
func WithStore(store HistoryStore) ManagerOption {
	return func(gm *GameManager) { gm.store = store }
}

func WithManagerLogger(logger zerolog.Logger) ManagerOption {
	return func(gm *GameManager) { gm.logger = logger }
}

// WithMonitor reports hosted game and watcher counts to monitor after every
// cleanup pass.
func WithMonitor(monitor *monitoring.GoroutineMonitor) ManagerOption {
	return func(gm *GameManager) { gm.monitor = monitor }
}

// GameManager manages all hosted game instances
type GameManager struct {
	mu      sync.RWMutex
	games   map[string]*gameInstance
	cfg     ManagerConfig
	store   HistoryStore
	monitor *monitoring.GoroutineMonitor
	logger  zerolog.Logger
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewGameManager creates a game manager. Call Start to run periodic cleanup.
func NewGameManager(cfg ManagerConfig, opts ...ManagerOption) *GameManager {
	gm := &GameManager{
		games:  make(map[string]*gameInstance),
		cfg:    cfg,
		logger: log.Logger,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(gm)
	}
	gm.logger = gm.logger.With().Str("component", "game_manager").Logger()
	return gm
}

// Start launches the cleanup loop when a cleanup interval is configured.
func (gm *GameManager) Start() {
	if gm.cfg.CleanupInterval <= 0 {
		return
	}
	gm.wg.Add(1)
	go gm.runCleanup(gm.cfg.CleanupInterval)
}

// Stop ends the cleanup loop and disconnects every watcher.
func (gm *GameManager) Stop() {
	gm.stopOnce.Do(func() {
		close(gm.stop)
		gm.wg.Wait()

		gm.mu.RLock()
		defer gm.mu.RUnlock()
		for _, g := range gm.games {
			g.streamManager.CloseAll()
		}
	})
}

// UpdateConfig applies new limits and TTLs. The cleanup interval only takes
// effect on the next Start.
func (gm *GameManager) UpdateConfig(cfg ManagerConfig) {
	gm.mu.Lock()
	gm.cfg = cfg
	gm.mu.Unlock()
	gm.logger.Info().
		Int("max_games", cfg.MaxGames).
		Dur("finished_ttl", cfg.FinishedGameTTL).
		Dur("abandoned_ttl", cfg.AbandonedGameTTL).
		Msg("Game manager limits updated")
}

func (gm *GameManager) config() ManagerConfig {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return gm.cfg
}

func (gm *GameManager) checkCapacity() error {
	gm.mu.RLock()
	current, limit := len(gm.games), gm.cfg.MaxGames
	gm.mu.RUnlock()
	if limit > 0 && current >= limit {
		gm.logger.Warn().
			Int("current_games", current).
			Int("max_games", limit).
			Msg("Rejecting game - server at capacity")
		return fmt.Errorf("%w: %d/%d games active", ErrAtCapacity, current, limit)
	}
	return nil
}

func normalizeAgents(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if !hostedAgents[n] {
			if _, err := agents.Build(n); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedAgent, name)
		}
		out[i] = n
	}
	return out, nil
}

// newInstance wires an environment to its own event bus and stream manager.
func (gm *GameManager) newInstance(id, gameName string, agentNames []string, game sim.Game) *gameInstance {
	logger := gm.logger.With().Str("game_id", id).Logger()
	bus := events.NewEventBusWithLogger(logger)
	settings := sim.DefaultSettings()
	settings.DisableOutput()
	env := sim.New(game,
		sim.WithID(id),
		sim.WithLogger(logger),
		sim.WithEventBus(bus),
		sim.WithSettings(settings),
		sim.WithOutput(io.Discard),
	)

	now := gm.now()
	g := &gameInstance{
		id:                 id,
		gameName:           strings.ToLower(strings.TrimSpace(gameName)),
		agentNames:         agentNames,
		env:                env,
		eventBus:           bus,
		createdAt:          now,
		lastActivity:       now,
		idempotencyManager: NewIdempotencyManager(),
		streamManager:      NewStreamManager(logger),
	}

	eventLogger := subscribers.NewLoggerSubscriber("event_logger_"+id, logger, zerolog.DebugLevel)
	eventLogger.SetDevMode(gm.logger.GetLevel() <= zerolog.TraceLevel)
	bus.Subscribe(eventLogger)

	bus.SubscribeFunc(events.TypeActionApplied, func(event events.Event) {
		e, ok := event.(*events.ActionAppliedEvent)
		if !ok {
			return
		}
		g.streamManager.Broadcast(GameUpdate{
			GameID:       id,
			ActionNumber: e.ActionNumber,
			ActingAgent:  e.ActingAgent,
			Action:       e.Action,
			Rewards:      e.Rewards,
			Terminal:     e.Terminal,
		})
	})
	bus.SubscribeFunc(events.TypePhaseChanged, func(event events.Event) {
		if e, ok := event.(*events.PhaseChangedEvent); ok {
			logger.Debug().
				Str("from_phase", e.FromPhase).
				Str("to_phase", e.ToPhase).
				Str("reason", e.Reason).
				Msg("Phase changed")
		}
	})
	return g
}

// CreateGame sets up a new game and runs it until a client must act.
func (gm *GameManager) CreateGame(ctx context.Context, req NewGameRequest) (*gameInstance, error) {
	if err := gm.checkCapacity(); err != nil {
		return nil, err
	}
	game, err := games.New(req.Game)
	if err != nil {
		return nil, err
	}
	names, err := normalizeAgents(req.Agents)
	if err != nil {
		return nil, err
	}
	roster, err := agents.BuildAll(names, agents.WithLogger(gm.logger))
	if err != nil {
		return nil, err
	}

	var seed int64
	if req.Seed != nil {
		seed = *req.Seed
	} else if seed, err = sim.DrawSeed(); err != nil {
		return nil, err
	}

	g := gm.newInstance(uuid.NewString(), req.Game, names, game)
	if err := g.env.InitializeWithSeed(roster, seed); err != nil {
		return nil, err
	}
	if err := g.env.RunHosted(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	err = gm.persistLocked(ctx, g)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if err := gm.insert(g); err != nil {
		return nil, err
	}
	gm.logger.Info().
		Str("game_id", g.id).
		Str("game", g.gameName).
		Strs("agents", names).
		Int64("seed", seed).
		Int("current_games", gm.ActiveGames()).
		Msg("Created game")
	return g, nil
}

// insert adds g unless the capacity was reached since it was checked.
func (gm *GameManager) insert(g *gameInstance) error {
	gm.mu.Lock()
	defer gm.mu.Unlock()
	if gm.cfg.MaxGames > 0 && len(gm.games) >= gm.cfg.MaxGames {
		return fmt.Errorf("%w: %d/%d games active", ErrAtCapacity, len(gm.games), gm.cfg.MaxGames)
	}
	gm.games[g.id] = g
	return nil
}

// GetGame returns the game with id, restoring it from the store if it is
// not in memory.
func (gm *GameManager) GetGame(ctx context.Context, id string) (*gameInstance, error) {
	gm.mu.RLock()
	g, exists := gm.games[id]
	gm.mu.RUnlock()
	if exists {
		return g, nil
	}
	if gm.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	return gm.restore(ctx, id)
}

func (gm *GameManager) restore(ctx context.Context, id string) (*gameInstance, error) {
	if err := gm.checkCapacity(); err != nil {
		return nil, err
	}
	rec, records, err := gm.store.LoadGame(ctx, id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}

	game, err := games.New(rec.Game)
	if err != nil {
		return nil, err
	}
	replay, err := sim.DecodeHistory(game, records)
	if err != nil {
		return nil, fmt.Errorf("decode history of %s: %w", id, err)
	}
	roster, err := agents.BuildAll(rec.Agents, agents.WithLogger(gm.logger))
	if err != nil {
		return nil, err
	}

	g := gm.newInstance(id, rec.Game, rec.Agents, game)
	g.createdAt = rec.CreatedAt
	g.persisted = len(records)
	g.env.SetSeed(rec.Seed)
	for _, a := range roster {
		g.env.AddAgent(a)
	}
	if err := g.env.SetUp(replay); err != nil {
		return nil, fmt.Errorf("replay %s: %w", id, err)
	}
	if err := g.env.RunHosted(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	err = gm.persistLocked(ctx, g)
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	gm.mu.Lock()
	if existing, ok := gm.games[id]; ok {
		gm.mu.Unlock()
		return existing, nil
	}
	gm.games[id] = g
	gm.mu.Unlock()

	gm.logger.Info().
		Str("game_id", id).
		Int("events", len(records)).
		Msg("Restored game from store")
	return g, nil
}

// persistLocked writes the events appended since the last call and the
// game metadata. Must be called with g.mu held.
func (gm *GameManager) persistLocked(ctx context.Context, g *gameInstance) error {
	if gm.store == nil {
		return nil
	}
	history := g.env.History()
	seed, _ := g.env.Seed()
	rec := sqlite.GameRecord{
		ID:           g.id,
		Game:         g.gameName,
		Agents:       g.agentNames,
		Seed:         seed,
		Terminal:     g.env.CurrentState().IsTerminal(),
		ActionNumber: len(history),
		CreatedAt:    g.createdAt,
	}
	if err := gm.store.SaveGame(ctx, rec); err != nil {
		return fmt.Errorf("persist game %s: %w", g.id, err)
	}
	if g.persisted < len(history) {
		records, err := sim.EncodeHistory(history[g.persisted:])
		if err != nil {
			return fmt.Errorf("persist game %s: %w", g.id, err)
		}
		if err := gm.store.AppendEvents(ctx, g.id, g.persisted, records); err != nil {
			return fmt.Errorf("persist game %s: %w", g.id, err)
		}
		g.persisted = len(history)
	}
	return nil
}

// StreamCount returns the number of connected watchers across all games
func (gm *GameManager) StreamCount() int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	n := 0
	for _, g := range gm.games {
		n += g.streamManager.ClientCount()
	}
	return n
}

// ActiveGames returns the number of games held in memory
func (gm *GameManager) ActiveGames() int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return len(gm.games)
}

// runCleanup periodically removes finished and abandoned games
func (gm *GameManager) runCleanup(interval time.Duration) {
	defer gm.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-gm.stop:
			return
		case <-ticker.C:
			gm.safeCleanup()
		}
	}
}

func (gm *GameManager) safeCleanup() {
	defer func() {
		if r := recover(); r != nil {
			gm.logger.Error().
				Interface("panic", r).
				Msg("Game cleanup panicked")
		}
	}()
	gm.cleanupGames()
}

// cleanupGames drops finished and abandoned games from memory. Stored games
// can still be restored by id afterwards.
func (gm *GameManager) cleanupGames() {
	defer gm.reportCounts()
	cfg := gm.config()

	// Collect game references without holding the manager lock while taking game locks
	gm.mu.RLock()
	refs := make([]*gameInstance, 0, len(gm.games))
	for _, g := range gm.games {
		refs = append(refs, g)
	}
	gm.mu.RUnlock()

	now := gm.now()
	var toDelete []*gameInstance
	for _, g := range refs {
		g.mu.Lock()
		inactive := now.Sub(g.lastActivity)
		terminal := g.env.CurrentState().IsTerminal()
		g.mu.Unlock()

		reason := ""
		switch {
		case terminal && inactive > cfg.FinishedGameTTL:
			reason = "finished game TTL expired"
		case !terminal && inactive > cfg.AbandonedGameTTL:
			reason = "game abandoned (no activity)"
		}
		if reason == "" {
			continue
		}
		toDelete = append(toDelete, g)
		gm.logger.Info().
			Str("game_id", g.id).
			Str("reason", reason).
			Dur("age", now.Sub(g.createdAt)).
			Dur("inactive", inactive).
			Msg("Cleaning up game")
	}
	if len(toDelete) == 0 {
		return
	}

	for _, g := range toDelete {
		g.streamManager.CloseAll()
	}

	gm.mu.Lock()
	for _, g := range toDelete {
		delete(gm.games, g.id)
	}
	remaining := len(gm.games)
	gm.mu.Unlock()

	gm.logger.Info().
		Int("cleaned", len(toDelete)).
		Int("remaining", remaining).
		Msg("Game cleanup completed")
}

func (gm *GameManager) reportCounts() {
	if gm.monitor == nil {
		return
	}
	gm.monitor.RegisterComponent("hosted_games", gm.ActiveGames())
	gm.monitor.RegisterComponent("watch_streams", gm.StreamCount())
}
