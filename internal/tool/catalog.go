package tool

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/jsonschema-go/jsonschema"
)

// Param describes one top-level argument of a tool.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Descriptor is the catalog entry of a tool.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SideEffect  SideEffect      `json:"side_effect"`
	Params      []Param         `json:"params"`
	Schema      json.RawMessage `json:"schema"`
}

// Catalog returns the descriptors of all registered tools sorted by name.
func (r *Registry) Catalog() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.tools))
	for name, e := range r.tools {
		out = append(out, describe(name, e))
	}
	slices.SortFunc(out, func(a, b Descriptor) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func describe(name string, e *entry) Descriptor {
	s := e.tool.Schema()
	d := Descriptor{
		Name:        name,
		Description: e.tool.Description(),
		SideEffect:  e.tool.SideEffect(),
		Schema:      e.raw,
	}
	for _, p := range propertyNames(s) {
		ps := s.Properties[p]
		d.Params = append(d.Params, Param{
			Name:        p,
			Type:        schemaType(ps),
			Required:    slices.Contains(s.Required, p),
			Description: ps.Description,
		})
	}
	return d
}

func propertyNames(s *jsonschema.Schema) []string {
	if len(s.PropertyOrder) > 0 {
		return s.PropertyOrder
	}
	names := make([]string, 0, len(s.Properties))
	for n := range s.Properties {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func schemaType(s *jsonschema.Schema) string {
	if s.Type != "" {
		return s.Type
	}
	types := slices.DeleteFunc(slices.Clone(s.Types), func(t string) bool { return t == "null" })
	if len(types) == 0 {
		return "any"
	}
	return strings.Join(types, "|")
}

// searchIndex is an in-memory full-text index over the catalog. It is
// rebuilt lazily after the tool set changes.
type searchIndex struct {
	idx bleve.Index
}

type searchDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// nameBoost ranks name matches above description matches.
const nameBoost = 3

// Search returns the descriptors best matching query, at most limit of
// them. An empty query returns the first limit tools by name.
func (r *Registry) Search(query string, limit int) ([]Descriptor, error) {
	if limit <= 0 {
		limit = 10
	}
	query = strings.TrimSpace(query)
	if query == "" {
		all := r.Catalog()
		return all[:min(limit, len(all))], nil
	}

	idx, err := r.searchIndex()
	if err != nil {
		return nil, err
	}
	nameQ := bleve.NewMatchQuery(query)
	nameQ.SetField("name")
	nameQ.SetBoost(nameBoost)
	descQ := bleve.NewMatchQuery(query)
	descQ.SetField("description")

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(nameQ, descQ), limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	res, err := idx.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("tool: search %q: %w", query, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if e, ok := r.tools[hit.ID]; ok {
			out = append(out, describe(hit.ID, e))
		}
	}
	return out, nil
}

func (r *Registry) searchIndex() (*searchIndex, error) {
	r.mu.RLock()
	idx := r.index
	r.mu.RUnlock()
	if idx != nil {
		return idx, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		return r.index, nil
	}
	b, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("tool: building search index: %w", err)
	}
	for name, e := range r.tools {
		doc := searchDoc{
			Name:        strings.NewReplacer("_", " ", "-", " ").Replace(name),
			Description: e.tool.Description(),
		}
		if err := b.Index(name, doc); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("tool: indexing %s: %w", name, err)
		}
	}
	r.index = &searchIndex{idx: b}
	return r.index, nil
}
