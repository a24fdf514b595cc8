// Package message defines the raw notification input consumed by the parsing pipeline.
package message

import "time"

// RawMessage is one bank notification as delivered by the message source.
// Sender is the display name shown to the user; Address is the raw originating
// identifier (they may be equal). The core never mutates or persists it.
type RawMessage struct {
	Body      string    `json:"body"`
	Sender    string    `json:"sender"`
	Address   string    `json:"address"`
	Timestamp time.Time `json:"timestamp"`
}
