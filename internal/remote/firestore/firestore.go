// Package firestore implements remote.Store on the Cloud Firestore REST API.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	fsapi "google.golang.org/api/firestore/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"ledger/internal/remote"
)

const (
	DefaultDatabaseID = "(default)"
	DefaultTimeout    = 15 * time.Second
)

// Config selects the Firestore database and how to reach it.
type Config struct {
	ProjectID       string
	DatabaseID      string
	Timeout         time.Duration
	CredentialsJSON []byte

	// Endpoint and HTTPClient override the Google endpoint, e.g. for an emulator.
	Endpoint   string
	HTTPClient *http.Client
}

type Client struct {
	docs    *fsapi.ProjectsDatabasesDocumentsService
	root    string
	timeout time.Duration
}

var _ remote.Store = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("missing firestore project id")
	}
	if cfg.DatabaseID == "" {
		cfg.DatabaseID = DefaultDatabaseID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case len(cfg.CredentialsJSON) > 0:
		opts = append(opts,
			option.WithCredentialsJSON(cfg.CredentialsJSON),
			option.WithScopes(fsapi.DatastoreScope))
	default:
		return nil, errors.New("missing service account credentials")
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	svc, err := fsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore service: %w", err)
	}

	slog.InfoContext(ctx, "Firestore client created",
		"project_id", cfg.ProjectID,
		"database_id", cfg.DatabaseID,
		"timeout", cfg.Timeout)

	return &Client{
		docs:    svc.Projects.Databases.Documents,
		root:    fmt.Sprintf("projects/%s/databases/%s/documents", cfg.ProjectID, cfg.DatabaseID),
		timeout: cfg.Timeout,
	}, nil
}

// NewFromEnv builds a client from FIRESTORE_PROJECT_ID, FIRESTORE_DATABASE_ID
// and the service account variables (GOOGLE_SERVICE_ACCOUNT_JSON,
// GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS).
func NewFromEnv(ctx context.Context, timeout time.Duration) (*Client, error) {
	creds, err := CredentialsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, Config{
		ProjectID:       strings.TrimSpace(os.Getenv("FIRESTORE_PROJECT_ID")),
		DatabaseID:      strings.TrimSpace(os.Getenv("FIRESTORE_DATABASE_ID")),
		Timeout:         timeout,
		CredentialsJSON: creds,
	})
}

// CredentialsFromEnv loads service account JSON from the environment.
func CredentialsFromEnv(ctx context.Context) ([]byte, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case serviceAccountJSON != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		return []byte(serviceAccountJSON), nil
	case serviceAccountFile != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		b, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (c *Client) collectionParent(col remote.CollectionRef) string {
	return c.root + "/users/" + col.OwnerID
}

func (c *Client) documentName(ref remote.DocumentRef) string {
	return c.root + "/" + ref.Path()
}

// Create writes the document with a fixed id. ALREADY_EXISTS means an earlier
// attempt landed, so the document is overwritten with doc and the id returned.
func (c *Client) Create(ctx context.Context, col remote.CollectionRef, docID string, doc remote.Document) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path := col.Path()
	call := c.docs.CreateDocument(c.collectionParent(col), col.Name, encodeDocument(doc))
	if docID != "" {
		call = call.DocumentId(docID)
	}
	created, err := call.Context(ctx).Do()
	if err == nil {
		return lastSegment(created.Name), nil
	}
	if statusCode(err) != http.StatusConflict || docID == "" {
		return "", classify("create", path, err)
	}

	slog.DebugContext(ctx, "Document already exists, replacing", "path", col.Doc(docID).Path())
	if err := c.Replace(ctx, col.Doc(docID), doc); err != nil {
		return "", err
	}
	return docID, nil
}

func (c *Client) Replace(ctx context.Context, ref remote.DocumentRef, doc remote.Document) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.docs.Patch(c.documentName(ref), encodeDocument(doc)).Context(ctx).Do(); err != nil {
		return classify("replace", ref.Path(), err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, ref remote.DocumentRef) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.docs.Delete(c.documentName(ref)).Context(ctx).Do(); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil
		}
		return classify("delete", ref.Path(), err)
	}
	return nil
}

func statusCode(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}

// classify maps API errors to remote failures: 408, 429 and 5xx are
// transient, other 4xx permanent. Errors without a status (network, timeout,
// undecodable response) are transient since creates are idempotent.
func classify(op, path string, err error) error {
	code := statusCode(err)
	switch {
	case code == 0:
		return remote.NewTransient(op, path, err)
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return remote.NewTransient(op, path, err)
	default:
		return remote.NewPermanent(op, path, err)
	}
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

func encodeDocument(doc remote.Document) *fsapi.Document {
	fields := make(map[string]fsapi.Value, len(doc))
	for k, v := range doc {
		fields[k] = encodeValue(v)
	}
	return &fsapi.Document{Fields: fields}
}

func encodeValue(v any) fsapi.Value {
	switch x := v.(type) {
	case nil:
		return fsapi.Value{NullValue: "NULL_VALUE"}
	case string:
		return fsapi.Value{StringValue: x, ForceSendFields: []string{"StringValue"}}
	case bool:
		return fsapi.Value{BooleanValue: x, ForceSendFields: []string{"BooleanValue"}}
	case int:
		return fsapi.Value{IntegerValue: int64(x), ForceSendFields: []string{"IntegerValue"}}
	case int64:
		return fsapi.Value{IntegerValue: x, ForceSendFields: []string{"IntegerValue"}}
	case float64:
		return fsapi.Value{DoubleValue: x, ForceSendFields: []string{"DoubleValue"}}
	case time.Time:
		return fsapi.Value{TimestampValue: x.UTC().Format(time.RFC3339Nano)}
	default:
		return fsapi.Value{StringValue: fmt.Sprint(x), ForceSendFields: []string{"StringValue"}}
	}
}
