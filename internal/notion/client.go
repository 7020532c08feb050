// Package notion commits analysis records to the document store, verifies
// them, and feeds the project catalog.
package notion

import (
	"context"
	"errors"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/MrWong99/dictaflow/internal/resilience"
)

// pageAPI is the slice of the page service the pipeline uses.
type pageAPI interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Get(ctx context.Context, id notionapi.PageID) (*notionapi.Page, error)
}

// databaseAPI is the slice of the database service the pipeline uses.
type databaseAPI interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// Client wraps the store API for the three databases the pipeline touches.
type Client struct {
	pages pageAPI
	dbs   databaseAPI

	tasksDB    string
	notesDB    string
	projectsDB string

	retry resilience.Retry
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetry overrides the store retry policy.
func WithRetry(r resilience.Retry) ClientOption {
	return func(c *Client) {
		r.Classify = ClassifyStoreError
		c.retry = r
	}
}

// WithServices injects page and database services, for tests.
func WithServices(pages pageAPI, dbs databaseAPI) ClientOption {
	return func(c *Client) {
		c.pages = pages
		c.dbs = dbs
	}
}

// NewClient builds a store client from an integration token and the three
// database IDs.
func NewClient(token, tasksDB, notesDB, projectsDB string, opts ...ClientOption) *Client {
	api := notionapi.NewClient(notionapi.Token(token))
	c := &Client{
		pages:      api.Page,
		dbs:        api.Database,
		tasksDB:    tasksDB,
		notesDB:    notesDB,
		projectsDB: projectsDB,
		retry:      resilience.Retry{Classify: ClassifyStoreError},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClassifyStoreError buckets store API failures for the shared retry
// policy: 429 and rate mentions back off harder, other 4xx surface
// immediately, everything else is transient.
func ClassifyStoreError(err error) resilience.Class {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == 429:
			return resilience.ClassRateLimit
		case apiErr.Status >= 400 && apiErr.Status < 500:
			return resilience.ClassFatal
		default:
			return resilience.ClassTransient
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate") {
		return resilience.ClassRateLimit
	}
	return resilience.ClassTransient
}
