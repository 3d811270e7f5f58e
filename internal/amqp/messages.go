package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// SyncTriggerMessage asks a running ledger to push its pending records.
// It carries no record data; the receiver reads everything from its own store.
type SyncTriggerMessage struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSyncTriggerMessage creates a trigger stamped with the current time
func NewSyncTriggerMessage(reason string) *SyncTriggerMessage {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "amqp"
	}
	return &SyncTriggerMessage{
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncTriggerMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncTriggerMessageFromJSON creates a message from JSON bytes
func SyncTriggerMessageFromJSON(data []byte) (*SyncTriggerMessage, error) {
	var msg SyncTriggerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Reason == "" {
		return nil, errors.New("sync trigger without reason")
	}
	return &msg, nil
}
