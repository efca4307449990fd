// README: Record store adapter consumed by the lifecycle engine.
package lifecycle

import "context"

// RecordStore is the minimum document-store surface the engine needs.
// Implementations return ErrNotFound, ErrConflict or ErrStoreUnavailable;
// raw backend errors must not escape.
type RecordStore interface {
	Get(ctx context.Context, collection, id string) (*Record, error)
	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, fields map[string]any) error
	// Update merge-patches an existing document when its version still equals
	// expectVersion, and bumps the version.
	Update(ctx context.Context, collection, id string, fields map[string]any, expectVersion int64) error
	Delete(ctx context.Context, collection, id string) error
	// Relocate moves a document between collections atomically.
	Relocate(ctx context.Context, op RelocateOp) (RelocateResult, error)
	Query(ctx context.Context, collection string, q Query) (Page, error)
	// IDs lists every document id of a collection.
	IDs(ctx context.Context, collection string) ([]string, error)
}

// RelocateOp describes a move of one document from From to To under the same id.
type RelocateOp struct {
	From string
	To   string
	ID   string
	// Build receives the source as read inside the transaction and returns the
	// destination document. An error aborts the relocation with no writes.
	// Build also runs when the destination already exists; its document is
	// then discarded but its error still aborts.
	Build func(src *Record) (map[string]any, error)
}

type RelocateResult struct {
	Record  *Record
	Resumed bool
}

type Filter struct {
	Field string
	Value any
}

// Query selects documents by equality filters, newest first on OrderBy.
type Query struct {
	Filters []Filter
	OrderBy string
	Limit   int
	// After is the id of the last document of the previous page.
	After string
}

type Page struct {
	Records    []*Record `json:"records"`
	NextCursor string    `json:"nextCursor,omitempty"`
}
