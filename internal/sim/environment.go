package sim

import (
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mitchelldurbincs/turnsim/internal/events"
	"github.com/mitchelldurbincs/turnsim/internal/lifecycle"
)

// MaxSeed bounds freshly drawn seeds.
const MaxSeed = 100_000_000

// Environment drives one run of a Game: it owns the agent roster, the random
// stream and the event history.
type Environment struct {
	id      string
	game    Game
	agents  []Agent
	history []Event

	seed   int64
	seeded bool
	rng    *rand.Rand

	startTime time.Time
	endTime   time.Time

	settings   Settings
	out        io.Writer
	logger     zerolog.Logger
	bus        events.Publisher
	machine    *lifecycle.Machine
	replayMask ReplayMask
}

// Option configures an Environment.
type Option func(*Environment)

// WithLogger sets the logger used by the environment.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Environment) {
		e.logger = logger
	}
}

// WithSettings replaces the default display settings.
func WithSettings(s Settings) Option {
	return func(e *Environment) {
		e.settings = s
	}
}

// WithOutput sets where console rendering is written.
func WithOutput(w io.Writer) Option {
	return func(e *Environment) {
		e.out = w
	}
}

// WithEventBus publishes lifecycle and action events to bus.
func WithEventBus(bus events.Publisher) Option {
	return func(e *Environment) {
		e.bus = bus
	}
}

// WithReplayMask installs a mask applied to replayed events before agents see them.
func WithReplayMask(mask ReplayMask) Option {
	return func(e *Environment) {
		e.replayMask = mask
	}
}

// WithID overrides the generated environment id.
func WithID(id string) Option {
	return func(e *Environment) {
		e.id = id
	}
}

// New creates an uninitialized environment for game.
func New(game Game, opts ...Option) *Environment {
	e := &Environment{
		id:       uuid.New().String(),
		game:     game,
		settings: DefaultSettings(),
		out:      os.Stdout,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().
		Str("component", "environment").
		Str("env_id", e.id).
		Str("game", game.Name()).
		Logger()
	e.machine = lifecycle.NewMachine(e.id, e.bus, e.logger)
	return e
}

// DrawSeed returns a fresh seed in [0, MaxSeed].
func DrawSeed() (int64, error) {
	n, err := crand.Int(crand.Reader, big.NewInt(MaxSeed+1))
	if err != nil {
		return 0, fmt.Errorf("draw seed: %w", err)
	}
	return n.Int64(), nil
}

// Initialize draws a seed, attaches agents in order and sets up.
func (e *Environment) Initialize(agents []Agent) error {
	seed, err := DrawSeed()
	if err != nil {
		return err
	}
	return e.InitializeWithSeed(agents, seed)
}

// InitializeWithSeed seeds the random stream, attaches agents in order and sets up.
// Preconditions are checked first so a refused call leaves the seed and the
// roster untouched.
func (e *Environment) InitializeWithSeed(agents []Agent, seed int64) error {
	if e.machine.Current() != lifecycle.PhaseUninitialized {
		return ErrAlreadySetUp
	}
	if len(agents) == 0 || len(e.agents) > 0 {
		return fmt.Errorf("%w: initialize needs a fresh roster of agents", ErrNotInitialized)
	}
	if n := e.game.NumAgents(); n > 0 && n != len(agents) {
		return fmt.Errorf("%w: %s needs %d, have %d", ErrAgentCount, e.game.Name(), n, len(agents))
	}
	for i, a := range agents {
		if a.Environment() != nil {
			return fmt.Errorf("%w: agent %d", ErrAgentAttached, i)
		}
	}

	e.SetSeed(seed)
	for _, a := range agents {
		e.AddAgent(a)
	}
	return e.SetUp(nil)
}

// SetSeed records seed and reseeds the environment's random stream.
func (e *Environment) SetSeed(seed int64) {
	e.seed = seed
	e.seeded = true
	e.rng = rand.New(rand.NewSource(seed))
}

// AddAgent appends a to the roster and attaches it with the next agent number.
func (e *Environment) AddAgent(a Agent) {
	a.Attach(e, len(e.agents))
	e.agents = append(e.agents, a)
}

// SetUp installs the initial event and lets agents set up. With a replay
// history, its first entry becomes the initial event and the remaining
// entries are appended and delivered to every agent in order.
func (e *Environment) SetUp(replay []Event) error {
	if e.id == "" || len(e.agents) == 0 || !e.seeded {
		return fmt.Errorf("%w: id, agents and seed must be set before set up", ErrNotInitialized)
	}
	if e.machine.Current() != lifecycle.PhaseUninitialized {
		return ErrAlreadySetUp
	}
	if n := e.game.NumAgents(); n > 0 && n != len(e.agents) {
		return fmt.Errorf("%w: %s needs %d, have %d", ErrAgentCount, e.game.Name(), n, len(e.agents))
	}

	var initial Event
	if len(replay) > 0 {
		initial = replay[0]
	} else {
		state, err := e.game.InitialState(e.rng)
		if err != nil {
			return fmt.Errorf("initial state: %w", err)
		}
		initial = Event{Action: NoAction, State: state}
	}

	e.history = []Event{initial}
	for _, a := range e.agents {
		if err := a.SetUp(); err != nil {
			e.history = nil
			return fmt.Errorf("set up agent %d (%s): %w", a.AgentNum(), a.Name(), err)
		}
	}

	for _, ev := range replay[min(1, len(replay)):] {
		e.history = append(e.history, ev)
		for _, a := range e.agents {
			if e.replayMask != nil {
				a.HandleEvent(e.replayMask(a.AgentNum(), ev))
			} else {
				a.HandleEvent(ev)
			}
		}
	}

	if err := e.machine.TransitionTo(lifecycle.PhaseSetUp, "initial state installed"); err != nil {
		return err
	}
	e.publish(events.NewRunInitializedEvent(e.id, e.game.Name(), len(e.agents), e.seed))
	if len(replay) > 0 {
		e.publish(events.NewHistoryReplayedEvent(e.id, len(replay)))
	}
	if e.CurrentState().IsTerminal() {
		if err := e.machine.TransitionTo(lifecycle.PhaseTerminal, "initial state terminal"); err != nil {
			return err
		}
	}

	e.logger.Debug().
		Int64("seed", e.seed).
		Int("agents", len(e.agents)).
		Int("replayed", len(replay)).
		Msg("Environment set up")
	return nil
}

// Advance applies action to the current state, appends the resulting event
// and notifies every agent in attach order.
func (e *Environment) Advance(action Action) error {
	if len(e.history) == 0 {
		return ErrNotInitialized
	}
	state := e.CurrentState()
	if state.IsTerminal() {
		return ErrGameOver
	}

	next, err := e.game.Transition(state, action)
	if err != nil {
		return fmt.Errorf("action %s by agent %d: %w", action, state.ActingAgent(), err)
	}

	ev := Event{Action: action, Rewards: next.Rewards(), State: next}
	e.history = append(e.history, ev)
	for _, a := range e.agents {
		a.HandleEvent(ev)
	}

	if e.machine.Current() == lifecycle.PhaseSetUp {
		if err := e.machine.TransitionTo(lifecycle.PhaseRunning, "first action applied"); err != nil {
			return err
		}
	}
	terminal := next.IsTerminal()
	if terminal {
		if err := e.machine.TransitionTo(lifecycle.PhaseTerminal, "terminal state reached"); err != nil {
			return err
		}
	}

	e.publish(events.NewActionAppliedEvent(e.id, e.ActionNumber(), state.ActingAgent(), int(action), ev.Rewards, terminal))
	e.logger.Debug().
		Int("action_number", e.ActionNumber()).
		Int("acting_agent", state.ActingAgent()).
		Int("action", int(action)).
		Bool("terminal", terminal).
		Msg("Action applied")
	return nil
}

// Run drives the environment until a terminal state, asking the acting agent
// for every action, and returns the final event's rewards, falling back to
// the current state's rewards when that event carries none.
func (e *Environment) Run() (Rewards, error) {
	if len(e.history) == 0 {
		return nil, ErrNotInitialized
	}
	display := e.settings.DisplayEnvironmentState
	if display {
		e.DisplaySetup()
	}

	e.startTime = time.Now()
	for {
		state := e.CurrentState()
		if state.IsTerminal() {
			if display {
				e.Display(true)
			}
			break
		}
		if display {
			e.Display(false)
		}

		action, err := e.agents[state.ActingAgent()].SelectAction()
		if err != nil {
			return nil, fmt.Errorf("agent %d select action: %w", state.ActingAgent(), err)
		}
		if display {
			if cd, ok := state.(ChoiceDisplayer); ok {
				fmt.Fprintln(e.out, cd.ChoiceDisplay(action))
			}
		}

		if err := e.Advance(action); err != nil {
			return nil, err
		}
	}
	e.endTime = time.Now()

	rewards := e.history[len(e.history)-1].Rewards
	if rewards == nil {
		// a replayed history can consist of a terminal initial event only
		rewards = e.CurrentState().Rewards()
	}
	e.publish(events.NewRunEndedEvent(e.id, rewards, e.ActionNumber(), e.endTime.Sub(e.startTime)))
	return rewards, nil
}

// RunHosted drives the environment until a terminal state or until the
// acting agent is externally driven. Callers resume it with Advance followed
// by another RunHosted.
func (e *Environment) RunHosted() error {
	if len(e.history) == 0 {
		return ErrNotInitialized
	}
	for {
		state := e.CurrentState()
		if state.IsTerminal() {
			e.logger.Debug().Int("action_number", e.ActionNumber()).Msg("Game over")
			return nil
		}

		agent := e.agents[state.ActingAgent()]
		switch agent.Kind() {
		case ExternallyDriven:
			e.publish(events.NewRunPausedEvent(e.id, e.ActionNumber(), agent.AgentNum()))
			return nil
		case Autonomous:
			action, err := agent.SelectAction()
			if err != nil {
				return fmt.Errorf("agent %d select action: %w", agent.AgentNum(), err)
			}
			if err := e.Advance(action); err != nil {
				return err
			}
		default:
			return fmt.Errorf("agent %d: unknown kind %s", agent.AgentNum(), agent.Kind())
		}
	}
}

func (e *Environment) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// ID returns the environment's unique identifier.
func (e *Environment) ID() string { return e.id }

// Name returns the game's name.
func (e *Environment) Name() string { return e.game.Name() }

// Game returns the rules driving this environment.
func (e *Environment) Game() Game { return e.game }

// Rand returns the environment-owned random stream, nil before SetSeed.
func (e *Environment) Rand() *rand.Rand { return e.rng }

// Seed returns the seed and whether one has been set.
func (e *Environment) Seed() (int64, bool) { return e.seed, e.seeded }

// Settings returns the display settings.
func (e *Environment) Settings() Settings { return e.settings }

// Phase returns the current lifecycle phase.
func (e *Environment) Phase() lifecycle.Phase { return e.machine.Current() }

// StartTime and EndTime bracket the last completed Run.
func (e *Environment) StartTime() time.Time { return e.startTime }

func (e *Environment) EndTime() time.Time { return e.endTime }

// NumAgents returns the roster size.
func (e *Environment) NumAgents() int { return len(e.agents) }

// Agents returns a copy of the roster in agent-number order.
func (e *Environment) Agents() []Agent {
	out := make([]Agent, len(e.agents))
	copy(out, e.agents)
	return out
}

// Agent returns the agent with number n.
func (e *Environment) Agent(n int) Agent { return e.agents[n] }

// CurrentState returns the state of the last event. It panics before SetUp.
func (e *Environment) CurrentState() State {
	if len(e.history) == 0 {
		panic(ErrNotInitialized)
	}
	return e.history[len(e.history)-1].State
}

// ActingAgent returns the agent who must choose from the current state.
func (e *Environment) ActingAgent() Agent {
	return e.agents[e.CurrentState().ActingAgent()]
}

// ActionNumber is the 1-based length of the history.
func (e *Environment) ActionNumber() int { return len(e.history) }

// History returns a copy of the event history.
func (e *Environment) History() []Event {
	out := make([]Event, len(e.history))
	copy(out, e.history)
	return out
}

// LastEvent returns the most recent event.
func (e *Environment) LastEvent() (Event, error) {
	if len(e.history) == 0 {
		return Event{}, ErrNotInitialized
	}
	return e.history[len(e.history)-1], nil
}

// IsContractViolation reports whether err (usually recovered from a panic)
// is one of the programming errors the core signals by panicking.
func IsContractViolation(err error) bool {
	return errors.Is(err, ErrClientSelect) ||
		errors.Is(err, ErrAgentNotAttached) ||
		errors.Is(err, ErrAgentAttached) ||
		errors.Is(err, ErrUnimplemented)
}
