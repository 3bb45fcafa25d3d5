// Package streaming fans translation progress events out to live
// subscribers such as MCP sessions and the CLI progress printer.
package streaming

import "context"

// Event is one step of a running translation.
type Event struct {
	TranslationID string `json:"translation_id"`
	Script        string `json:"script,omitempty"`
	Type          string `json:"event_type"`
	Phase         string `json:"phase,omitempty"`
	Payload       any    `json:"payload,omitempty"`
}

// Filter selects the events a subscriber receives. Zero fields match
// everything.
type Filter struct {
	TranslationID string   `json:"translation_id,omitempty"`
	Types         []string `json:"event_types,omitempty"`
}

// Hub provides pub/sub for translation events.
type Hub interface {
	Publish(ctx context.Context, event Event) error
	// Subscribe returns the event channel and a cancel func that closes it.
	Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error)
}
