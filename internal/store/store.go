// Package store persists translation history in libSQL.
package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Translations
	SaveTranslation(ctx context.Context, t *Translation) error
	GetTranslation(ctx context.Context, id string) (*Translation, error)
	ListTranslations(ctx context.Context, filter TranslationFilter) ([]*Translation, error)
	DeleteTranslation(ctx context.Context, id string) error

	// Phase events (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, translationID string, since int64) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
