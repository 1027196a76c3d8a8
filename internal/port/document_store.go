package port

import "context"

type Op string

const (
	OpEqual        Op = "=="
	OpGreaterEqual Op = ">="
	OpLessEqual    Op = "<="
)

// Document pairs a store-assigned id with its raw payload.
type Document struct {
	ID   string
	Data map[string]any
}

// Txn exposes reads and writes that participate atomically in a
// RunTransaction call.
type Txn interface {
	// Get returns (nil, nil) when the document does not exist
	Get(ctx context.Context, collection, id string) (map[string]any, error)

	// Update merges the given top-level fields into the document
	Update(ctx context.Context, collection, id string, fields map[string]any) error
}

// DocumentStore is the abstract transactional key-document store backing
// the catalog. Adapters exist for memory, MySQL and Redis.
type DocumentStore interface {
	// Get returns (nil, nil) when the document does not exist
	Get(ctx context.Context, collection, id string) (map[string]any, error)

	// List returns every document in the collection
	List(ctx context.Context, collection string) ([]Document, error)

	// Query returns documents whose field matches value under op
	Query(ctx context.Context, collection, field string, op Op, value any) ([]Document, error)

	// Add persists a new document and returns its assigned id
	Add(ctx context.Context, collection string, doc map[string]any) (string, error)

	// Update merges the given top-level fields into an existing document
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document; deleting a missing document is not an error
	Delete(ctx context.Context, collection, id string) error

	// RunTransaction executes fn atomically with respect to other
	// transactions on the same documents
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Txn) error) error
}
