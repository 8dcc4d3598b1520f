package notion

import (
	"context"
	"encoding/json"
)

// API is the workspace surface used by the rest of pagesmith. *Client is
// the production implementation; notiontest.Store is an in-memory fake.
type API interface {
	// ListChildren returns one page of blockID's children starting at
	// cursor. An empty NextCursor means pagination is exhausted.
	ListChildren(ctx context.Context, blockID, cursor string, pageSize int) (ChildPage, error)

	// AppendChildren writes blocks under parentID, after the sibling with ID
	// after when it is non-empty. The result lists committed IDs even when
	// an error is returned.
	AppendChildren(ctx context.Context, parentID string, blocks []Block, after string) (AppendResult, error)

	RetrievePage(ctx context.Context, pageID string, filterProperties []string) (Page, error)
	UpdatePage(ctx context.Context, pageID string, update PageUpdate) (Page, error)
	CreatePage(ctx context.Context, req PageCreate) (Page, error)
	RetrievePageProperty(ctx context.Context, pageID, propertyID, cursor string, pageSize int) (json.RawMessage, error)

	ListUsers(ctx context.Context, cursor string, pageSize int) (UserList, error)
	RetrieveUser(ctx context.Context, userID string) (User, error)
	Me(ctx context.Context) (User, error)

	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
}

var _ API = (*Client)(nil)
