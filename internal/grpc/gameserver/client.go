package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed wrapper over the GameService RPCs.
type Client struct {
	rpc GameServiceClient
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{rpc: NewGameServiceClient(cc)}
}

// Dial connects to a GameService at target without transport security.
func Dial(target string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

func (c *Client) NewGame(ctx context.Context, req NewGameRequest) (string, error) {
	in, err := toStruct(req)
	if err != nil {
		return "", err
	}
	out, err := c.rpc.NewGame(ctx, in)
	if err != nil {
		return "", err
	}
	var resp NewGameResponse
	if err := fromStruct(out, &resp); err != nil {
		return "", err
	}
	return resp.GameID, nil
}

func (c *Client) GameUpdates(ctx context.Context, gameID string) (*GameUpdatesResponse, error) {
	in, err := toStruct(GameUpdatesRequest{GameID: gameID})
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.GameUpdates(ctx, in)
	if err != nil {
		return nil, err
	}
	var resp GameUpdatesResponse
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SubmitAction(ctx context.Context, req SubmitActionRequest) (*SubmitActionResponse, error) {
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	out, err := c.rpc.SubmitAction(ctx, in)
	if err != nil {
		return nil, err
	}
	var resp SubmitActionResponse
	if err := fromStruct(out, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Watch calls fn with every update of a game until the server ends the
// stream, ctx is done, or fn returns an error.
func (c *Client) Watch(ctx context.Context, gameID string, fn func(GameUpdate) error) error {
	in, err := toStruct(WatchGameRequest{GameID: gameID})
	if err != nil {
		return err
	}
	stream, err := c.rpc.WatchGame(ctx, in)
	if err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		var update GameUpdate
		if err := fromStruct(msg, &update); err != nil {
			return err
		}
		if err := fn(update); err != nil {
			return err
		}
	}
}
