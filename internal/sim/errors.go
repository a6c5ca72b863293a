package sim

import "errors"

var (
	ErrNotInitialized   = errors.New("environment not initialized")
	ErrAlreadySetUp     = errors.New("environment already set up")
	ErrAgentCount       = errors.New("wrong number of agents for game")
	ErrGameOver         = errors.New("game is over")
	ErrIllegalAction    = errors.New("illegal action")
	ErrInvalidStateKey  = errors.New("invalid state key")
	ErrClientSelect     = errors.New("client agents never select actions")
	ErrAgentNotAttached = errors.New("agent not attached to an environment")
	ErrAgentAttached    = errors.New("agent already attached to an environment")
	ErrUnimplemented    = errors.New("not implemented")
)
