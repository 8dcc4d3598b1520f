package doctools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/tool"
	"github.com/pagesmith/pagesmith/internal/tree"
)

type getPageTextArgs struct {
	PageID   string `json:"page_id" jsonschema:"ID of the page to read"`
	MaxDepth int    `json:"max_depth,omitempty" jsonschema:"nesting levels to expand below the page, 0 for the configured default"`
	PageSize int    `json:"page_size,omitempty" jsonschema:"children fetched per request, at most 100"`
}

var getPageTextSchema = tool.MustSchema[getPageTextArgs]()

type getPageText struct{ d *Deps }

func (*getPageText) Name() string { return "get_page_text" }
func (*getPageText) Description() string {
	return "Extract all visible text from a page: headings, lists, quotes, code, tables, toggles and nested sub-pages."
}
func (*getPageText) Schema() *jsonschema.Schema   { return getPageTextSchema }
func (*getPageText) SideEffect() tool.SideEffect { return tool.SideEffectRead }

func (t *getPageText) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[getPageTextArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("page_id", a.PageID); err != nil {
		return tool.Output{}, err
	}
	opts := tree.Options{
		MaxDepth: a.MaxDepth,
		PageSize: a.PageSize,
		OnPage: func(p tree.Progress) {
			tool.ReportProgress(ctx, tool.Progress{
				Message: fmt.Sprintf("fetched page %d of children of %s", p.Page, p.BlockID),
				Data:    p,
			})
		},
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = t.d.MaxDepth
	}
	if opts.PageSize <= 0 {
		opts.PageSize = t.d.PageSize
	}
	doc, err := t.d.Extractor.ExtractText(ctx, a.PageID, opts)
	if err != nil {
		return tool.Output{}, err
	}
	return tool.Output{
		Content: doc.Text,
		Data: map[string]any{
			"page_id":   doc.RootID,
			"blocks":    doc.Blocks,
			"fetches":   doc.Fetches,
			"truncated": doc.Truncated,
		},
	}, nil
}

type retrievePageArgs struct {
	PageID           string   `json:"page_id" jsonschema:"ID of the page"`
	FilterProperties []string `json:"filter_properties,omitempty" jsonschema:"property IDs to include, all when empty"`
}

var retrievePageSchema = tool.MustSchema[retrievePageArgs]()

type retrievePage struct{ d *Deps }

func (*retrievePage) Name() string { return "retrieve_page" }
func (*retrievePage) Description() string {
	return "Retrieve a page's properties, without its block content."
}
func (*retrievePage) Schema() *jsonschema.Schema   { return retrievePageSchema }
func (*retrievePage) SideEffect() tool.SideEffect { return tool.SideEffectRead }

func (t *retrievePage) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[retrievePageArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("page_id", a.PageID); err != nil {
		return tool.Output{}, err
	}
	p, err := t.d.API.RetrievePage(ctx, a.PageID, a.FilterProperties)
	if err != nil {
		return tool.Output{}, err
	}
	return jsonOutput(p)
}

type retrievePagePropertyArgs struct {
	PageID      string `json:"page_id" jsonschema:"ID of the page"`
	PropertyID  string `json:"property_id" jsonschema:"ID or name of the property"`
	StartCursor string `json:"start_cursor,omitempty" jsonschema:"pagination cursor from a previous call"`
	PageSize    int    `json:"page_size,omitempty" jsonschema:"items per page, at most 100"`
}

var retrievePagePropertySchema = tool.MustSchema[retrievePagePropertyArgs]()

type retrievePageProperty struct{ d *Deps }

func (*retrievePageProperty) Name() string { return "retrieve_page_property" }
func (*retrievePageProperty) Description() string {
	return "Retrieve the items of a single page property, paginated."
}
func (*retrievePageProperty) Schema() *jsonschema.Schema   { return retrievePagePropertySchema }
func (*retrievePageProperty) SideEffect() tool.SideEffect { return tool.SideEffectRead }

func (t *retrievePageProperty) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[retrievePagePropertyArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("page_id", a.PageID); err != nil {
		return tool.Output{}, err
	}
	if err := requireID("property_id", a.PropertyID); err != nil {
		return tool.Output{}, err
	}
	prop, err := t.d.API.RetrievePageProperty(ctx, a.PageID, a.PropertyID, a.StartCursor, a.PageSize)
	if err != nil {
		return tool.Output{}, err
	}
	var v any
	if err := json.Unmarshal(prop, &v); err != nil {
		return tool.Output{}, fmt.Errorf("%w: %w", notion.ErrMalformedResponse, err)
	}
	return jsonOutput(v)
}
