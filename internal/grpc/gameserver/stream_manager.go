package gameserver

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const streamBufferSize = 64

// streamClient is one WatchGame subscriber.
type streamClient struct {
	id         string
	ctx        context.Context
	cancelFunc context.CancelFunc
	updateChan chan GameUpdate
}

// StreamManager fans game updates out to every watcher of one game.
type StreamManager struct {
	clients   map[string]*streamClient
	clientsMu sync.RWMutex
	logger    zerolog.Logger
}

// NewStreamManager creates a new stream manager
func NewStreamManager(logger zerolog.Logger) *StreamManager {
	return &StreamManager{
		clients: make(map[string]*streamClient),
		logger:  logger,
	}
}

// RegisterClient adds a watcher whose lifetime is bound to ctx.
func (sm *StreamManager) RegisterClient(ctx context.Context) *streamClient {
	cctx, cancel := context.WithCancel(ctx)
	client := &streamClient{
		id:         uuid.NewString(),
		ctx:        cctx,
		cancelFunc: cancel,
		updateChan: make(chan GameUpdate, streamBufferSize),
	}

	sm.clientsMu.Lock()
	sm.clients[client.id] = client
	total := len(sm.clients)
	sm.clientsMu.Unlock()

	sm.logger.Debug().
		Str("client_id", client.id).
		Int("total_streams", total).
		Msg("Stream client registered")
	return client
}

// UnregisterClient removes a watcher and closes its channel.
func (sm *StreamManager) UnregisterClient(id string) {
	sm.clientsMu.Lock()
	defer sm.clientsMu.Unlock()

	if client, exists := sm.clients[id]; exists {
		client.cancelFunc()
		close(client.updateChan)
		delete(sm.clients, id)

		sm.logger.Debug().
			Str("client_id", id).
			Int("remaining_streams", len(sm.clients)).
			Msg("Stream client unregistered")
	}
}

// Broadcast queues update for every watcher without blocking; a watcher
// whose buffer is full misses the update.
func (sm *StreamManager) Broadcast(update GameUpdate) {
	sm.clientsMu.RLock()
	defer sm.clientsMu.RUnlock()

	for id, client := range sm.clients {
		select {
		case client.updateChan <- update:
		default:
			sm.logger.Warn().
				Str("client_id", id).
				Int("action_number", update.ActionNumber).
				Msg("Stream update channel full, dropping update")
		}
	}
}

// ClientCount returns the number of connected watchers.
func (sm *StreamManager) ClientCount() int {
	sm.clientsMu.RLock()
	defer sm.clientsMu.RUnlock()
	return len(sm.clients)
}

// CloseAll disconnects every watcher.
func (sm *StreamManager) CloseAll() {
	sm.clientsMu.Lock()
	defer sm.clientsMu.Unlock()

	for id, client := range sm.clients {
		client.cancelFunc()
		close(client.updateChan)
		delete(sm.clients, id)
	}
}
