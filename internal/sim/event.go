package sim

import (
	"encoding/json"
	"fmt"
)

// Event is one entry of an environment's history: the action that led to
// State and the rewards valid at State. The initial event carries NoAction
// and nil rewards.
type Event struct {
	Action  Action
	Rewards Rewards
	State   State
}

// IsInitial reports whether this is the no-action event at index 0.
func (e Event) IsInitial() bool {
	return e.Action == NoAction
}

// EventRecord is the serialized form of an Event. Action is nil for the
// initial event.
type EventRecord struct {
	Action  *Action  `json:"action"`
	Rewards Rewards  `json:"rewards"`
	State   StateKey `json:"state"`
}

// StateDecoder rebuilds states from their keys.
type StateDecoder interface {
	DecodeState(key StateKey) (State, error)
}

// Record reduces the event to its state key plus action and rewards.
func (e Event) Record() (EventRecord, error) {
	key, err := e.State.StateKey()
	if err != nil {
		return EventRecord{}, fmt.Errorf("encode state: %w", err)
	}
	rec := EventRecord{
		Rewards: e.Rewards.Clone(),
		State:   key,
	}
	if !e.IsInitial() {
		action := e.Action
		rec.Action = &action
	}
	return rec, nil
}

// DecodeEvent rebuilds an Event from its record using the owning game's decoder.
func DecodeEvent(dec StateDecoder, rec EventRecord) (Event, error) {
	state, err := dec.DecodeState(rec.State)
	if err != nil {
		return Event{}, fmt.Errorf("decode state: %w", err)
	}
	action := NoAction
	if rec.Action != nil {
		action = *rec.Action
	}
	return Event{Action: action, Rewards: rec.Rewards.Clone(), State: state}, nil
}

// EncodeHistory converts a history into records, preserving order.
func EncodeHistory(history []Event) ([]EventRecord, error) {
	records := make([]EventRecord, 0, len(history))
	for i, ev := range history {
		rec, err := ev.Record()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// DecodeHistory is the inverse of EncodeHistory.
func DecodeHistory(dec StateDecoder, records []EventRecord) ([]Event, error) {
	history := make([]Event, 0, len(records))
	for i, rec := range records {
		ev, err := DecodeEvent(dec, rec)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		history = append(history, ev)
	}
	return history, nil
}

// MarshalHistory encodes a history as a JSON array of records.
func MarshalHistory(history []Event) ([]byte, error) {
	records, err := EncodeHistory(history)
	if err != nil {
		return nil, err
	}
	return json.Marshal(records)
}

// UnmarshalHistory decodes a JSON array of records into a history.
func UnmarshalHistory(dec StateDecoder, data []byte) ([]Event, error) {
	var records []EventRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return DecodeHistory(dec, records)
}
