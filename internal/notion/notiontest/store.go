// Package notiontest provides an in-memory workspace implementing
// notion.API, with pagination, request limits and fault injection for tests.
package notiontest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pagesmith/pagesmith/internal/notion"
)

// DefaultMaxChildren mirrors the API's per-array child limit.
const DefaultMaxChildren = 100

// AppendFault makes the Nth AppendChildren call (1-based, counted across
// the store) commit only its first Commit blocks and then fail with Err.
type AppendFault struct {
	Call   int
	Commit int
	Err    error
}

// AppendCall records one AppendChildren request.
type AppendCall struct {
	ParentID string
	After    string
	Blocks   int
	Total    int
}

type node struct {
	block    notion.Block
	children []string
}

// Store is an in-memory workspace. The zero value is not usable; call NewStore.
type Store struct {
	// MaxChildren is the per-array limit enforced on writes.
	MaxChildren int

	// BeforeList, when set, runs before every ListChildren call and may
	// fail it.
	BeforeList func(blockID, cursor string) error

	mu      sync.Mutex
	nodes   map[string]*node
	pages   map[string]*notion.Page
	users   []notion.User
	me      notion.User
	seq     int
	fetches map[string]int
	appends []AppendCall
	faults  map[int]AppendFault
}

var _ notion.API = (*Store)(nil)

// NewStore returns an empty workspace.
func NewStore() *Store {
	return &Store{
		MaxChildren: DefaultMaxChildren,
		nodes:       make(map[string]*node),
		pages:       make(map[string]*notion.Page),
		fetches:     make(map[string]int),
		faults:      make(map[int]AppendFault),
		me:          notion.User{Object: "user", ID: "bot-1", Type: "bot", Name: "pagesmith"},
	}
}

// AddPage creates a top-level page and returns its ID.
func (s *Store) AddPage(title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID("page")
	s.addPageLocked(id, title, nil)
	return id
}

func (s *Store) addPageLocked(id, title string, parent json.RawMessage) {
	props, _ := json.Marshal(map[string]any{
		"type":  "title",
		"title": notion.Text(title),
	})
	s.pages[id] = &notion.Page{
		Object:     "page",
		ID:         id,
		URL:        "https://www.notion.so/" + id,
		Parent:     parent,
		Properties: map[string]json.RawMessage{"title": props},
	}
	s.nodes[id] = &node{block: notion.Block{
		ID:        id,
		Type:      notion.TypeChildPage,
		ChildPage: &notion.ChildPagePayload{Title: title},
	}}
}

// AddBlocks seeds blocks (and their nested Children) under parentID without
// any limit checks and returns the top-level IDs.
func (s *Store) AddBlocks(parentID string, blocks ...notion.Block) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.insertLocked(parentID, blocks, "")
	if err != nil {
		panic(err)
	}
	return ids
}

// AddChildPage creates a page nested under parentID, visible as a
// child_page block, and returns its ID.
func (s *Store) AddChildPage(parentID, title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID("page")
	parent, _ := json.Marshal(map[string]string{"type": "page_id", "page_id": parentID})
	s.addPageLocked(id, title, parent)
	s.nodes[parentID].children = append(s.nodes[parentID].children, id)
	return id
}

// Link makes an existing block appear as a child of parentID as well. It
// exists to build malformed (cyclic) trees.
func (s *Store) Link(parentID, childID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[parentID].children = append(s.nodes[parentID].children, childID)
}

// AddUser registers a workspace user.
func (s *Store) AddUser(u notion.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, u)
}

// InjectAppendFault registers a fault for a future AppendChildren call.
func (s *Store) InjectAppendFault(f AppendFault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[f.Call] = f
}

// Children returns a snapshot of the direct children of parentID.
func (s *Store) Children(parentID string) []notion.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[parentID]
	if !ok {
		return nil
	}
	out := make([]notion.Block, 0, len(n.children))
	for _, id := range n.children {
		out = append(out, s.blockLocked(id))
	}
	return out
}

// Fetches returns how many ListChildren calls targeted blockID.
func (s *Store) Fetches(blockID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[blockID]
}

// TotalFetches returns the number of ListChildren calls.
func (s *Store) TotalFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.fetches {
		n += c
	}
	return n
}

// Appends returns the AppendChildren calls received so far.
func (s *Store) Appends() []AppendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AppendCall(nil), s.appends...)
}

// ListChildren implements notion.API. Cursors are decimal offsets.
func (s *Store) ListChildren(ctx context.Context, blockID, cursor string, pageSize int) (notion.ChildPage, error) {
	if err := ctx.Err(); err != nil {
		return notion.ChildPage{}, err
	}
	if s.BeforeList != nil {
		if err := s.BeforeList(blockID, cursor); err != nil {
			return notion.ChildPage{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[blockID]++

	n, ok := s.nodes[blockID]
	if !ok {
		return notion.ChildPage{}, notFound(blockID)
	}
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 || start > len(n.children) {
			return notion.ChildPage{}, &notion.APIError{Status: http.StatusBadRequest, Code: "validation_error", Message: "invalid start_cursor"}
		}
	}
	if pageSize <= 0 || pageSize > notion.MaxPageSize {
		pageSize = notion.MaxPageSize
	}
	end := min(start+pageSize, len(n.children))

	page := notion.ChildPage{}
	for _, id := range n.children[start:end] {
		page.Results = append(page.Results, s.blockLocked(id))
	}
	if end < len(n.children) {
		page.HasMore = true
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// AppendChildren implements notion.API.
func (s *Store) AppendChildren(ctx context.Context, parentID string, blocks []notion.Block, after string) (notion.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return notion.AppendResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, b := range blocks {
		total += b.Count()
	}
	s.appends = append(s.appends, AppendCall{ParentID: parentID, After: after, Blocks: len(blocks), Total: total})
	call := len(s.appends)

	if _, ok := s.nodes[parentID]; !ok {
		return notion.AppendResult{}, notFound(parentID)
	}
	if err := s.checkLimits(blocks); err != nil {
		return notion.AppendResult{}, err
	}

	commit := len(blocks)
	fault, faulty := s.faults[call]
	if faulty {
		commit = min(max(fault.Commit, 0), len(blocks))
	}

	ids, err := s.insertLocked(parentID, blocks[:commit], after)
	if err != nil {
		return notion.AppendResult{IDs: ids}, err
	}
	if faulty {
		return notion.AppendResult{IDs: ids}, fault.Err
	}
	return notion.AppendResult{IDs: ids}, nil
}

func (s *Store) checkLimits(blocks []notion.Block) error {
	if len(blocks) > s.MaxChildren {
		return &notion.APIError{
			Status:  http.StatusBadRequest,
			Code:    "validation_error",
			Message: fmt.Sprintf("body.children.length should be ≤ %d, instead was %d", s.MaxChildren, len(blocks)),
		}
	}
	for _, b := range blocks {
		if err := s.checkLimits(b.Children); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertLocked(parentID string, blocks []notion.Block, after string) ([]string, error) {
	parent, ok := s.nodes[parentID]
	if !ok {
		return nil, notFound(parentID)
	}
	pos := len(parent.children)
	if after != "" {
		pos = -1
		for i, id := range parent.children {
			if id == after {
				pos = i + 1
				break
			}
		}
		if pos < 0 {
			return nil, &notion.APIError{Status: http.StatusBadRequest, Code: "validation_error", Message: "after block " + after + " is not a child of " + parentID}
		}
	}

	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		id := s.nextID(string(b.Type))
		stored := b
		stored.ID = id
		stored.Children = nil
		s.nodes[id] = &node{block: stored}
		if len(b.Children) > 0 {
			if _, err := s.insertLocked(id, b.Children, ""); err != nil {
				return ids, err
			}
		}
		ids = append(ids, id)
	}
	parent.children = slices.Insert(parent.children, pos, ids...)
	return ids, nil
}

func (s *Store) blockLocked(id string) notion.Block {
	n := s.nodes[id]
	b := n.block
	b.HasChildren = len(n.children) > 0
	return b
}

func (s *Store) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

// RetrievePage implements notion.API.
func (s *Store) RetrievePage(_ context.Context, pageID string, _ []string) (notion.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageID]
	if !ok {
		return notion.Page{}, notFound(pageID)
	}
	return *p, nil
}

// UpdatePage implements notion.API. Only the title, trash and archive
// flags are interpreted.
func (s *Store) UpdatePage(_ context.Context, pageID string, update notion.PageUpdate) (notion.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageID]
	if !ok {
		return notion.Page{}, notFound(pageID)
	}
	if update.InTrash != nil {
		p.InTrash = *update.InTrash
	}
	if update.Archived != nil {
		p.Archived = *update.Archived
	}
	for name, v := range update.Properties {
		raw, err := json.Marshal(v)
		if err != nil {
			return notion.Page{}, err
		}
		if name == "title" {
			var t struct {
				Title []notion.RichText `json:"title"`
			}
			_ = json.Unmarshal(raw, &t)
			raw, _ = json.Marshal(map[string]any{"type": "title", "title": t.Title})
			s.nodes[pageID].block.ChildPage.Title = notion.Plain(t.Title)
		}
		p.Properties[name] = raw
	}
	return *p, nil
}

// CreatePage implements notion.API.
func (s *Store) CreatePage(_ context.Context, req notion.PageCreate) (notion.Page, error) {
	s.mu.Lock()
	if _, ok := s.nodes[req.ParentID]; !ok {
		s.mu.Unlock()
		return notion.Page{}, notFound(req.ParentID)
	}
	if err := s.checkLimits(req.Children); err != nil {
		s.mu.Unlock()
		return notion.Page{}, err
	}
	id := s.nextID("page")
	parent, _ := json.Marshal(map[string]string{"type": "page_id", "page_id": req.ParentID})
	s.addPageLocked(id, req.Title, parent)
	s.nodes[req.ParentID].children = append(s.nodes[req.ParentID].children, id)
	if len(req.Children) > 0 {
		if _, err := s.insertLocked(id, req.Children, ""); err != nil {
			s.mu.Unlock()
			return notion.Page{}, err
		}
	}
	p := *s.pages[id]
	s.mu.Unlock()
	return p, nil
}

// RetrievePageProperty implements notion.API.
func (s *Store) RetrievePageProperty(_ context.Context, pageID, propertyID, _ string, _ int) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageID]
	if !ok {
		return nil, notFound(pageID)
	}
	raw, ok := p.Properties[propertyID]
	if !ok {
		return nil, notFound(propertyID)
	}
	return raw, nil
}

// ListUsers implements notion.API. Pagination uses decimal offsets.
func (s *Store) ListUsers(_ context.Context, cursor string, pageSize int) (notion.UserList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, _ := strconv.Atoi(cursor)
	if pageSize <= 0 {
		pageSize = notion.MaxPageSize
	}
	start = min(start, len(s.users))
	end := min(start+pageSize, len(s.users))
	out := notion.UserList{Results: append([]notion.User(nil), s.users[start:end]...)}
	if end < len(s.users) {
		out.HasMore = true
		out.NextCursor = strconv.Itoa(end)
	}
	return out, nil
}

// RetrieveUser implements notion.API.
func (s *Store) RetrieveUser(_ context.Context, userID string) (notion.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			return u, nil
		}
	}
	return notion.User{}, notFound(userID)
}

// Me implements notion.API.
func (s *Store) Me(context.Context) (notion.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.me, nil
}

// Search implements notion.API. It matches page titles case-insensitively.
func (s *Store) Search(_ context.Context, req notion.SearchRequest) (notion.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(req.Query)
	var out notion.SearchResult
	for _, id := range sortedKeys(s.pages) {
		p := s.pages[id]
		if req.Filter != nil && req.Filter.Value != p.Object {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(p.Title()), q) {
			out.Results = append(out.Results, *p)
		}
	}
	return out, nil
}

func sortedKeys(m map[string]*notion.Page) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// IDs embed a zero-padded sequence number: lexical order is creation order.
	slices.Sort(keys)
	return keys
}

func notFound(id string) error {
	return &notion.APIError{
		Status:  http.StatusNotFound,
		Code:    "object_not_found",
		Message: "Could not find block with ID: " + id,
	}
}
