package gameserver

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mitchelldurbincs/turnsim/internal/agents"
	"github.com/mitchelldurbincs/turnsim/internal/games"
	"github.com/mitchelldurbincs/turnsim/internal/sim"
	"github.com/mitchelldurbincs/turnsim/internal/storage/sqlite"
)

// NewGameRequest asks the server to host a fresh game. A nil Seed draws one.
type NewGameRequest struct {
	Game   string   `json:"game"`
	Agents []string `json:"agents"`
	Seed   *int64   `json:"seed,omitempty"`
}

type NewGameResponse struct {
	GameID string `json:"gameId"`
}

type GameUpdatesRequest struct {
	GameID string `json:"gameId"`
}

// GameUpdatesResponse is the full replayable history of a game plus a
// summary of its current state.
type GameUpdatesResponse struct {
	GameHistory  []sim.EventRecord `json:"gameHistory"`
	ActionNumber int               `json:"actionNumber"`
	ActingAgent  int               `json:"actingAgent"`
	Terminal     bool              `json:"terminal"`
	Rewards      sim.Rewards       `json:"rewards"`
	Phase        string            `json:"phase"`
	View         map[string]any    `json:"view,omitempty"`
}

type SubmitActionRequest struct {
	GameID         string `json:"gameId"`
	Action         int    `json:"action"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type SubmitActionResponse struct {
	Success      bool `json:"success"`
	ActionNumber int  `json:"actionNumber"`
}

type WatchGameRequest struct {
	GameID string `json:"gameId"`
}

// GameUpdate is pushed to watchers after every applied action. The first
// update of a watch carries the current state with Action set to -1.
type GameUpdate struct {
	GameID       string      `json:"gameId"`
	ActionNumber int         `json:"actionNumber"`
	ActingAgent  int         `json:"actingAgent"`
	Action       int         `json:"action"`
	Rewards      sim.Rewards `json:"rewards"`
	Terminal     bool        `json:"terminal"`
}

// toStruct converts a message into its google.protobuf.Struct wire form.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// fromStruct fills v from its google.protobuf.Struct wire form.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// decodeRequest is fromStruct for server handlers: failures are InvalidArgument.
func decodeRequest(s *structpb.Struct, v any) error {
	if err := fromStruct(s, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}

// encodeResponse is toStruct for server handlers: failures are Internal.
func encodeResponse(v any) (*structpb.Struct, error) {
	s, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// toStatus maps domain errors onto gRPC status codes. Errors that already
// carry a status pass through unchanged.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrGameNotFound), errors.Is(err, sqlite.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrAtCapacity):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, sim.ErrGameOver), errors.Is(err, ErrNotClientTurn):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, games.ErrUnknownGame),
		errors.Is(err, agents.ErrUnknownAgent),
		errors.Is(err, ErrUnsupportedAgent),
		errors.Is(err, sim.ErrAgentCount),
		errors.Is(err, sim.ErrIllegalAction):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
