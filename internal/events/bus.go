package events

import (
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventBus is a synchronous event bus. Subscribers are notified in the
// order they subscribed.
type EventBus struct {
	mu           sync.RWMutex
	subscribers  []Subscriber
	funcHandlers map[string][]EventHandler
	logger       zerolog.Logger
}

// NewEventBus creates a new event bus instance
func NewEventBus() *EventBus {
	return NewEventBusWithLogger(log.Logger)
}

// NewEventBusWithLogger creates an event bus that logs through logger
func NewEventBusWithLogger(logger zerolog.Logger) *EventBus {
	return &EventBus{
		funcHandlers: make(map[string][]EventHandler),
		logger:       logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe adds a subscriber, replacing any existing subscriber with the same ID
func (eb *EventBus) Subscribe(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, s := range eb.subscribers {
		if s.ID() == subscriber.ID() {
			eb.subscribers[i] = subscriber
			return
		}
	}
	eb.subscribers = append(eb.subscribers, subscriber)
	eb.logger.Debug().
		Str("subscriber_id", subscriber.ID()).
		Msg("Subscriber added to event bus")
}

// Unsubscribe removes a subscriber from the event bus
func (eb *EventBus) Unsubscribe(subscriberID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for i, s := range eb.subscribers {
		if s.ID() == subscriberID {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			eb.logger.Debug().
				Str("subscriber_id", subscriberID).
				Msg("Subscriber removed from event bus")
			return
		}
	}
}

// SubscribeFunc adds a function handler for specific event types
func (eb *EventBus) SubscribeFunc(eventType string, handler EventHandler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.funcHandlers[eventType] = append(eb.funcHandlers[eventType], handler)
	handlerID := eventType + "_func_" + strconv.Itoa(len(eb.funcHandlers[eventType]))
	eb.logger.Debug().
		Str("event_type", eventType).
		Str("handler_id", handlerID).
		Msg("Function handler added to event bus")

	return handlerID
}

// Publish sends an event to all interested subscribers synchronously.
// A panicking subscriber is logged and does not stop delivery to the others.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	subscribers := make([]Subscriber, len(eb.subscribers))
	copy(subscribers, eb.subscribers)
	handlers := eb.funcHandlers[event.Type()]
	eb.mu.RUnlock()

	eventType := event.Type()
	eb.logger.Debug().
		Str("event_type", eventType).
		Str("env_id", event.EnvID()).
		Time("timestamp", event.Timestamp()).
		Msg("Publishing event")

	for _, subscriber := range subscribers {
		if !subscriber.InterestedIn(eventType) {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error().
						Str("subscriber_id", subscriber.ID()).
						Str("event_type", eventType).
						Interface("panic", r).
						Msg("Subscriber panicked while handling event")
				}
			}()
			subscriber.HandleEvent(event)
		}()
	}

	for i, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error().
						Str("event_type", eventType).
						Int("handler_index", i).
						Interface("panic", r).
						Msg("Function handler panicked while handling event")
				}
			}()
			handler(event)
		}()
	}
}

// SubscriberCount returns the number of subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// FuncHandlerCount returns the number of function handlers for a specific event type
func (eb *EventBus) FuncHandlerCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.funcHandlers[eventType])
}
