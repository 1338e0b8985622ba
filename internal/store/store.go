package store

import "context"

// Store defines the local persistence contract of the editor.
// All implementations must be safe for concurrent use.
type Store interface {
	// Drafts
	SaveDraft(ctx context.Context, draft *Draft) error
	GetDraft(ctx context.Context, name string) (*Draft, error)
	ListDrafts(ctx context.Context, filter DraftFilter) ([]*Draft, error)
	DeleteDraft(ctx context.Context, name string) error

	// Catalog cache
	PutCatalog(ctx context.Context, kind CatalogKind, payload []byte) error
	GetCatalog(ctx context.Context, kind CatalogKind) (*CatalogEntry, error)

	// Secrets
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecretKeys(ctx context.Context) ([]string, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
