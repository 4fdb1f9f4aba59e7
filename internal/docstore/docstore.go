// Package docstore provides generic document-database primitives.
//
// A Client stores schemaless documents grouped in collections and supports
// get/create/update/delete by identifier plus equality-filtered listing with
// a sort key and a limit. Drivers:
//   - Appwrite (http:// and https:// endpoints), through the official SDK
//   - SQLite (sqlite:// endpoints), for local development and tests
package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrDocumentNotFound is returned when the store positively reports that a
// document does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// Document is a stored document. Data holds user attributes only.
type Document struct {
	ID   string
	Data map[string]any
}

// String returns the string attribute key, or "" when absent.
func (d Document) String(key string) string {
	if v, ok := d.Data[key].(string); ok {
		return v
	}
	return ""
}

// Filter matches documents whose Field equals Value.
type Filter struct {
	Field string
	Value string
}

// ListOptions controls ListDocuments.
type ListOptions struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Client is the set of primitives a document database must offer.
type Client interface {
	CreateDocument(ctx context.Context, collection, id string, data map[string]any) (Document, error)
	GetDocument(ctx context.Context, collection, id string) (Document, error)
	UpdateDocument(ctx context.Context, collection, id string, data map[string]any) (Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	ListDocuments(ctx context.Context, collection string, opts ListOptions) ([]Document, error)
	Close() error
}

// Config addresses a document database.
type Config struct {
	Endpoint   string
	ProjectID  string
	APIKey     string
	DatabaseID string
	Timeout    time.Duration
}

const (
	sqliteScheme   = "sqlite://"
	defaultTimeout = 30 * time.Second
)

// Open returns the driver matching the endpoint scheme.
func Open(cfg Config) (Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	switch {
	case strings.HasPrefix(endpoint, sqliteScheme):
		return OpenSQLite(strings.TrimPrefix(endpoint, sqliteScheme))
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		if cfg.Timeout == 0 {
			cfg.Timeout = defaultTimeout
		}
		return NewAppwrite(cfg)
	default:
		return nil, errors.Errorf("unsupported document store endpoint %q", endpoint)
	}
}
