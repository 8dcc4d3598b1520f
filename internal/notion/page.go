package notion

import "encoding/json"

// Page is a page (or, in search results, a database) object.
type Page struct {
	Object         string                     `json:"object"`
	ID             string                     `json:"id"`
	URL            string                     `json:"url,omitempty"`
	CreatedTime    string                     `json:"created_time,omitempty"`
	LastEditedTime string                     `json:"last_edited_time,omitempty"`
	InTrash        bool                       `json:"in_trash,omitempty"`
	Archived       bool                       `json:"archived,omitempty"`
	Parent         json.RawMessage            `json:"parent,omitempty"`
	Icon           json.RawMessage            `json:"icon,omitempty"`
	Cover          json.RawMessage            `json:"cover,omitempty"`
	Properties     map[string]json.RawMessage `json:"properties,omitempty"`

	// TitleText is only present on database objects.
	TitleText []RichText `json:"title,omitempty"`
}

// Title returns the page title, looking first for the property of type
// "title" and then at the database title.
func (p Page) Title() string {
	for _, raw := range p.Properties {
		var prop struct {
			Type  string     `json:"type"`
			Title []RichText `json:"title"`
		}
		if json.Unmarshal(raw, &prop) == nil && prop.Type == "title" {
			return Plain(prop.Title)
		}
	}
	return Plain(p.TitleText)
}

// PageUpdate is the body of an update-page request. Nil fields are left
// untouched.
type PageUpdate struct {
	Properties map[string]any `json:"properties,omitempty"`
	InTrash    *bool          `json:"in_trash,omitempty"`
	Archived   *bool          `json:"archived,omitempty"`
	Icon       any            `json:"icon,omitempty"`
	Cover      any            `json:"cover,omitempty"`
}

// TitleUpdate returns a PageUpdate that renames a page.
func TitleUpdate(title string) PageUpdate {
	return PageUpdate{Properties: TitleProperty(title)}
}

// TitleProperty returns the properties map setting the page title.
func TitleProperty(title string) map[string]any {
	return map[string]any{
		"title": map[string]any{"title": Text(title)},
	}
}

// PageCreate is the body of a create-page request under a parent page.
type PageCreate struct {
	ParentID   string
	Title      string
	Icon       any
	Cover      any
	Properties map[string]any
	Children   []Block
}

// MarshalJSON encodes the request in the API shape.
func (c PageCreate) MarshalJSON() ([]byte, error) {
	props := make(map[string]any, len(c.Properties)+1)
	for k, v := range c.Properties {
		props[k] = v
	}
	for k, v := range TitleProperty(c.Title) {
		props[k] = v
	}
	body := struct {
		Parent     map[string]string `json:"parent"`
		Properties map[string]any    `json:"properties"`
		Icon       any               `json:"icon,omitempty"`
		Cover      any               `json:"cover,omitempty"`
		Children   []Block           `json:"children,omitempty"`
	}{
		Parent:     map[string]string{"page_id": c.ParentID},
		Properties: props,
		Icon:       c.Icon,
		Cover:      c.Cover,
		Children:   c.Children,
	}
	return json.Marshal(body)
}

// User is a workspace member or bot.
type User struct {
	Object    string          `json:"object"`
	ID        string          `json:"id"`
	Type      string          `json:"type,omitempty"`
	Name      string          `json:"name,omitempty"`
	AvatarURL string          `json:"avatar_url,omitempty"`
	Person    *Person         `json:"person,omitempty"`
	Bot       json.RawMessage `json:"bot,omitempty"`
}

// Person holds the person-specific fields of a user.
type Person struct {
	Email string `json:"email,omitempty"`
}

// UserList is one page of users.
type UserList struct {
	Results    []User `json:"results"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// SearchRequest is the body of a search request.
type SearchRequest struct {
	Query       string        `json:"query,omitempty"`
	Filter      *SearchFilter `json:"filter,omitempty"`
	Sort        *SearchSort   `json:"sort,omitempty"`
	StartCursor string        `json:"start_cursor,omitempty"`
	PageSize    int           `json:"page_size,omitempty"`
}

// SearchFilter restricts results to pages or databases.
type SearchFilter struct {
	Property string `json:"property"`
	Value    string `json:"value"`
}

// SearchSort orders results by last edited time.
type SearchSort struct {
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Results    []Page `json:"results"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ChildPage is one page of a block's children.
type ChildPage struct {
	Results    []Block
	NextCursor string
	HasMore    bool
}

// AppendResult lists the IDs of top-level blocks that were committed, in
// order. On failure it still reports exactly the committed prefix.
type AppendResult struct {
	IDs []string
}
