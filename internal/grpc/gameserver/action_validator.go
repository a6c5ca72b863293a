package gameserver

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

// ActionValidator handles all action validation logic
type ActionValidator struct {
	gameManager *GameManager
}

// NewActionValidator creates a new validator instance
func NewActionValidator(gm *GameManager) *ActionValidator {
	return &ActionValidator{
		gameManager: gm,
	}
}

// ValidateRequest checks the request shape and resolves its game.
func (v *ActionValidator) ValidateRequest(ctx context.Context, req SubmitActionRequest) (*gameInstance, error) {
	if strings.TrimSpace(req.GameID) == "" {
		return nil, status.Error(codes.InvalidArgument, "gameId is required")
	}
	if req.Action < 0 {
		return nil, status.Errorf(codes.InvalidArgument, "action must be non-negative, got %d", req.Action)
	}
	game, err := v.gameManager.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, toStatus(err)
	}
	return game, nil
}

// ValidateActionLocked checks that the game can take action from a client
// right now. Must be called with game.mu held.
func (v *ActionValidator) ValidateActionLocked(game *gameInstance, action sim.Action) error {
	state := game.env.CurrentState()
	if state.IsTerminal() {
		return status.Errorf(codes.FailedPrecondition, "game %s is over: %v", game.id, sim.ErrGameOver)
	}

	acting := game.env.ActingAgent()
	if !sim.IsClient(acting) {
		return status.Errorf(codes.FailedPrecondition, "game %s: %v (agent %d is %s)",
			game.id, ErrNotClientTurn, acting.AgentNum(), acting.Name())
	}

	if !sim.Contains(state.EligibleActions(), action) {
		return status.Error(codes.InvalidArgument,
			fmt.Sprintf("game %s: %v: action %d by agent %d", game.id, sim.ErrIllegalAction, action, acting.AgentNum()))
	}
	return nil
}
