package docstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/appwrite/sdk-for-go/appwrite"
	"github.com/appwrite/sdk-for-go/databases"
	"github.com/appwrite/sdk-for-go/id"
	"github.com/appwrite/sdk-for-go/models"
	"github.com/appwrite/sdk-for-go/query"
	"github.com/pkg/errors"
)

const typeDocumentNotFound = "document_not_found"

// APIError is a non-2xx reply from the Appwrite API.
type APIError struct {
	Code    int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("appwrite: %d %s: %s", e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("appwrite: %d: %s", e.Code, e.Message)
}

// sdkError is the subset of the SDK's error type we classify on.
type sdkError interface {
	error
	GetStatusCode() int
	GetMessage() string
	GetType() string
}

// Appwrite backs Client with the Appwrite Databases API.
type Appwrite struct {
	databases *databases.Databases
	database  string
	timeout   time.Duration
}

// NewAppwrite validates cfg and returns a client. No request is made.
func NewAppwrite(cfg Config) (*Appwrite, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "appwrite: parse endpoint")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("appwrite: endpoint %q is not an absolute URL", cfg.Endpoint)
	}
	if cfg.ProjectID == "" || cfg.APIKey == "" || cfg.DatabaseID == "" {
		return nil, errors.New("appwrite: project, key and database are required")
	}

	client := appwrite.NewClient(
		appwrite.WithEndpoint(endpoint),
		appwrite.WithProject(cfg.ProjectID),
		appwrite.WithKey(cfg.APIKey),
	)
	return &Appwrite{
		databases: databases.New(client),
		database:  cfg.DatabaseID,
		timeout:   cfg.Timeout,
	}, nil
}

func (a *Appwrite) CreateDocument(ctx context.Context, collection, documentID string, data map[string]any) (Document, error) {
	if documentID == "" {
		documentID = id.Unique()
	}
	doc, err := call(ctx, a.timeout, func() (*models.Document, error) {
		return a.databases.CreateDocument(a.database, collection, documentID, data)
	})
	if err != nil {
		return Document{}, err
	}
	return decodeDocument(doc)
}

func (a *Appwrite) GetDocument(ctx context.Context, collection, documentID string) (Document, error) {
	doc, err := call(ctx, a.timeout, func() (*models.Document, error) {
		return a.databases.GetDocument(a.database, collection, documentID)
	})
	if err != nil {
		return Document{}, err
	}
	return decodeDocument(doc)
}

func (a *Appwrite) UpdateDocument(ctx context.Context, collection, documentID string, data map[string]any) (Document, error) {
	doc, err := call(ctx, a.timeout, func() (*models.Document, error) {
		return a.databases.UpdateDocument(a.database, collection, documentID,
			a.databases.WithUpdateDocumentData(data))
	})
	if err != nil {
		return Document{}, err
	}
	return decodeDocument(doc)
}

func (a *Appwrite) DeleteDocument(ctx context.Context, collection, documentID string) error {
	_, err := call(ctx, a.timeout, func() (*interface{}, error) {
		return a.databases.DeleteDocument(a.database, collection, documentID)
	})
	return err
}

func (a *Appwrite) ListDocuments(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	list, err := call(ctx, a.timeout, func() (*models.DocumentList, error) {
		return a.databases.ListDocuments(a.database, collection,
			a.databases.WithListDocumentsQueries(queries(opts)))
	})
	if err != nil {
		return nil, err
	}

	// nested documents cannot be decoded on their own
	var page struct {
		Documents []map[string]any `json:"documents"`
	}
	if err := list.Decode(&page); err != nil {
		return nil, errors.Wrap(err, "appwrite: decode document list")
	}

	docs := make([]Document, 0, len(page.Documents))
	for _, raw := range page.Documents {
		docs = append(docs, parseDocument(raw))
	}
	return docs, nil
}

// Close is a no-op; the SDK client holds no dedicated resources.
func (a *Appwrite) Close() error {
	return nil
}

// call runs an SDK request, which takes no context, and stops waiting for it
// once ctx is done or timeout elapses.
func call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return zero, classify(r.err)
		}
		return r.v, nil
	}
}

// classify maps SDK errors onto ErrDocumentNotFound and *APIError.
func classify(err error) error {
	var sdkErr sdkError
	if !errors.As(err, &sdkErr) {
		return errors.Wrap(err, "appwrite")
	}

	apiErr := &APIError{
		Code:    sdkErr.GetStatusCode(),
		Type:    sdkErr.GetType(),
		Message: sdkErr.GetMessage(),
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(apiErr.Code)
	}
	if apiErr.Code == http.StatusNotFound && (apiErr.Type == "" || apiErr.Type == typeDocumentNotFound) {
		return errors.Wrap(ErrDocumentNotFound, apiErr.Message)
	}
	return apiErr
}

func queries(opts ListOptions) []string {
	var q []string
	for _, f := range opts.Filters {
		q = append(q, query.Equal(f.Field, f.Value))
	}
	if opts.OrderBy != "" {
		if opts.Descending {
			q = append(q, query.OrderDesc(opts.OrderBy))
		} else {
			q = append(q, query.OrderAsc(opts.OrderBy))
		}
	}
	if opts.Limit > 0 {
		q = append(q, query.Limit(opts.Limit))
	}
	return q
}

func decodeDocument(doc *models.Document) (Document, error) {
	var raw map[string]any
	if err := doc.Decode(&raw); err != nil {
		return Document{}, errors.Wrap(err, "appwrite: decode document")
	}
	return parseDocument(raw), nil
}

// parseDocument splits Appwrite system attributes ($id, $createdAt, ...)
// from user data.
func parseDocument(raw map[string]any) Document {
	doc := Document{Data: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k == "$id" {
			doc.ID, _ = v.(string)
			continue
		}
		if strings.HasPrefix(k, "$") {
			continue
		}
		doc.Data[k] = v
	}
	return doc
}

var _ Client = (*Appwrite)(nil)
