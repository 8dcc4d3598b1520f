package doctools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/tool"
)

type searchArgs struct {
	Query       string               `json:"query,omitempty" jsonschema:"text to match against titles, empty for everything shared with the integration"`
	Filter      *notion.SearchFilter `json:"filter,omitempty" jsonschema:"restrict results, e.g. {\"property\":\"object\",\"value\":\"page\"}"`
	Sort        *notion.SearchSort   `json:"sort,omitempty" jsonschema:"order results, e.g. {\"direction\":\"descending\",\"timestamp\":\"last_edited_time\"}"`
	StartCursor string               `json:"start_cursor,omitempty" jsonschema:"cursor from a previous response"`
	PageSize    int                  `json:"page_size,omitempty" jsonschema:"results per page, at most 100"`
}

var searchSchema = tool.MustSchema[searchArgs]()

type searchNotion struct{ d *Deps }

func (*searchNotion) Name() string { return "search_notion" }
func (*searchNotion) Description() string {
	return "Search pages and databases shared with the integration by title."
}
func (*searchNotion) Schema() *jsonschema.Schema   { return searchSchema }
func (*searchNotion) SideEffect() tool.SideEffect { return tool.SideEffectRead }

func (t *searchNotion) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[searchArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if a.Filter != nil && a.Filter.Value != "page" && a.Filter.Value != "database" {
		return tool.Output{}, fmt.Errorf("%w: filter value must be page or database", tool.ErrInvalidArgument)
	}
	res, err := t.d.API.Search(ctx, notion.SearchRequest{
		Query:       a.Query,
		Filter:      a.Filter,
		Sort:        a.Sort,
		StartCursor: a.StartCursor,
		PageSize:    a.PageSize,
	})
	if err != nil {
		return tool.Output{}, err
	}
	return jsonOutput(res)
}
