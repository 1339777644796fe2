package batch

import (
	"context"

	"citetrack/internal/item"
)

// ReferenceManager is the external store of bibliographic records. Links
// are created and removed there; this system only tracks them.
type ReferenceManager interface {
	SaveURL(ctx context.Context, sourceURL string) (key string, cit item.Citation, err error)
	VerifyItem(ctx context.Context, key string) (item.Citation, error)
	CreateLink(ctx context.Context, cit item.Citation) (string, error)
	RemoveLink(ctx context.Context, key string) error
}

// IdentifierDiscoverer scrapes identifier candidates from a source page.
type IdentifierDiscoverer interface {
	Discover(ctx context.Context, sourceURL string) ([]item.IdentifierCandidate, error)
}

// MetadataSource resolves identifiers and titles to citation metadata.
type MetadataSource interface {
	LookupIdentifier(ctx context.Context, kind, value string) (item.Citation, error)
	LookupTitle(ctx context.Context, title string) (item.Citation, error)
}

// MetadataExtractor produces a citation from raw page content when nothing
// structured is available.
type MetadataExtractor interface {
	Extract(ctx context.Context, sourceURL string) (item.Citation, error)
}
