package gameserver

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

// Server implements the GameService gRPC server
type Server struct {
	UnimplementedGameServiceServer

	gameManager *GameManager
	validator   *ActionValidator
	logger      zerolog.Logger
}

// NewServer creates a game server backed by gm.
func NewServer(gm *GameManager, logger zerolog.Logger) *Server {
	return &Server{
		gameManager: gm,
		validator:   NewActionValidator(gm),
		logger:      logger.With().Str("component", "game_service").Logger(),
	}
}

// GameManager returns the manager holding the hosted games.
func (s *Server) GameManager() *GameManager { return s.gameManager }

// NewGame creates a game and runs it until a client agent must act.
func (s *Server) NewGame(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req NewGameRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if len(req.Agents) == 0 {
		return nil, status.Error(codes.InvalidArgument, "at least one agent is required")
	}

	game, err := s.gameManager.CreateGame(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Str("game", req.Game).Strs("agents", req.Agents).Msg("Failed to create game")
		return nil, toStatus(err)
	}
	return encodeResponse(NewGameResponse{GameID: game.id})
}

// GameUpdates returns the replayable history and summary of a game.
func (s *Server) GameUpdates(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GameUpdatesRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	game, err := s.gameManager.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, toStatus(err)
	}

	game.mu.Lock()
	defer game.mu.Unlock()
	resp, err := game.snapshotLocked()
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(resp)
}

// SubmitAction applies a client's action, then lets autonomous agents play
// until a client must act again or the game ends.
func (s *Server) SubmitAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SubmitActionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	game, err := s.validator.ValidateRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	if cached, ok := game.idempotencyManager.Check(req.IdempotencyKey); ok {
		s.logger.Debug().
			Str("game_id", req.GameID).
			Str("idempotency_key", req.IdempotencyKey).
			Msg("Returning cached response for idempotent request")
		return encodeResponse(cached)
	}

	action := sim.Action(req.Action)
	if err := s.validator.ValidateActionLocked(game, action); err != nil {
		return nil, err
	}
	if err := game.env.Advance(action); err != nil {
		return nil, toStatus(err)
	}
	if err := game.env.RunHosted(); err != nil {
		return nil, toStatus(err)
	}
	game.lastActivity = s.gameManager.now()

	if err := s.gameManager.persistLocked(ctx, game); err != nil {
		// the action is applied in memory; the next change retries the write
		s.logger.Error().Err(err).Str("game_id", game.id).Msg("Failed to persist game")
	}

	resp := SubmitActionResponse{Success: true, ActionNumber: game.env.ActionNumber()}
	game.idempotencyManager.Store(req.IdempotencyKey, resp)

	s.logger.Debug().
		Str("game_id", game.id).
		Int("action", req.Action).
		Int("action_number", resp.ActionNumber).
		Bool("terminal", game.env.CurrentState().IsTerminal()).
		Msg("Action submitted")
	return encodeResponse(resp)
}

// WatchGame streams an update after every applied action, starting with the
// current state, until the game ends or the client goes away.
func (s *Server) WatchGame(in *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	var req WatchGameRequest
	if err := decodeRequest(in, &req); err != nil {
		return err
	}
	game, err := s.gameManager.GetGame(stream.Context(), req.GameID)
	if err != nil {
		return toStatus(err)
	}

	game.mu.Lock()
	client := game.streamManager.RegisterClient(stream.Context())
	snapshot, err := game.snapshotLocked()
	game.mu.Unlock()
	defer game.streamManager.UnregisterClient(client.id)
	if err != nil {
		return toStatus(err)
	}

	logger := s.logger.With().Str("game_id", game.id).Str("client_id", client.id).Logger()
	logger.Info().Msg("Client watching game")

	initial := GameUpdate{
		GameID:       game.id,
		ActionNumber: snapshot.ActionNumber,
		ActingAgent:  snapshot.ActingAgent,
		Action:       int(sim.NoAction),
		Rewards:      snapshot.Rewards,
		Terminal:     snapshot.Terminal,
	}
	if err := s.send(stream, initial); err != nil {
		logger.Error().Err(err).Msg("Failed to send initial game state")
		return err
	}
	if initial.Terminal {
		return nil
	}

	for {
		select {
		case update, ok := <-client.updateChan:
			if !ok {
				logger.Info().Msg("Stream closed by server")
				return nil
			}
			if err := s.send(stream, update); err != nil {
				logger.Error().Err(err).Msg("Stream error")
				return err
			}
			if update.Terminal {
				return nil
			}
		case <-client.ctx.Done():
			logger.Info().Msg("Stream closed by client")
			return nil
		}
	}
}

func (s *Server) send(stream grpc.ServerStreamingServer[structpb.Struct], update GameUpdate) error {
	msg, err := encodeResponse(update)
	if err != nil {
		return err
	}
	return stream.Send(msg)
}
