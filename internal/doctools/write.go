package doctools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pagesmith/pagesmith/internal/chunker"
	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/tool"
)

type appendContentArgs struct {
	PageID     string              `json:"page_id" jsonschema:"ID of the page or block to append to"`
	Markdown   string              `json:"markdown" jsonschema:"markdown-like content: # headings, - bullets, 1. numbered, - [ ] to-dos, > quotes, fenced code, --- dividers and | tables"`
	After      string              `json:"after,omitempty" jsonschema:"ID of the child block to insert after, end of the page when empty"`
	ResumeFrom *chunker.Checkpoint `json:"resume_from,omitempty" jsonschema:"checkpoint returned by a failed call, to continue it without duplicating content"`
}

var appendContentSchema = tool.MustSchema[appendContentArgs]()

type appendContent struct{ d *Deps }

func (*appendContent) Name() string { return "append_content" }
func (*appendContent) Description() string {
	return "Parse markdown into blocks and append them to a page, splitting large content into several requests."
}
func (*appendContent) Schema() *jsonschema.Schema   { return appendContentSchema }
func (*appendContent) SideEffect() tool.SideEffect { return tool.SideEffectWrite }

func (t *appendContent) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[appendContentArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("page_id", a.PageID); err != nil {
		return tool.Output{}, err
	}
	units := chunker.ParseMarkdown(a.Markdown)
	if len(units) == 0 {
		return tool.Output{}, fmt.Errorf("%w: markdown has no content", tool.ErrInvalidArgument)
	}
	rep, err := t.d.Chunker.Append(ctx, a.PageID, units, chunker.Options{
		After:   a.After,
		Resume:  a.ResumeFrom,
		OnBatch: progressFn(ctx),
	})
	return writeOutput(rep, len(units), err)
}

type createTableArgs struct {
	PageID          string              `json:"page_id" jsonschema:"ID of the page or block to add the table to"`
	Rows            [][]string          `json:"rows" jsonschema:"table rows, each a list of cell strings of the same length"`
	HasColumnHeader *bool               `json:"has_column_header,omitempty" jsonschema:"whether the first row is a header, default true"`
	HasRowHeader    bool                `json:"has_row_header,omitempty" jsonschema:"whether the first column is a header"`
	After           string              `json:"after,omitempty" jsonschema:"ID of the child block to insert after"`
	ResumeFrom      *chunker.Checkpoint `json:"resume_from,omitempty" jsonschema:"checkpoint returned by a failed call"`
}

var createTableSchema = tool.MustSchema[createTableArgs]()

type createTable struct{ d *Deps }

func (*createTable) Name() string { return "create_table" }
func (*createTable) Description() string {
	return "Create a table from rows of cells. Tables longer than one request are continued in follow-up requests."
}
func (*createTable) Schema() *jsonschema.Schema   { return createTableSchema }
func (*createTable) SideEffect() tool.SideEffect { return tool.SideEffectWrite }

func (t *createTable) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[createTableArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("page_id", a.PageID); err != nil {
		return tool.Output{}, err
	}
	header := true
	if a.HasColumnHeader != nil {
		header = *a.HasColumnHeader
	}
	rep, err := t.d.Chunker.CreateTable(ctx, a.PageID, a.Rows, chunker.TableOptions{
		HasColumnHeader: header,
		HasRowHeader:    a.HasRowHeader,
		After:           a.After,
		Resume:          a.ResumeFrom,
		OnBatch:         progressFn(ctx),
	})
	return writeOutput(rep, 1, err)
}

// writeOutput reports a chunked write. A partial failure keeps the report
// as Data so callers see what was committed.
func writeOutput(rep chunker.Report, units int, err error) (tool.Output, error) {
	out := tool.Output{
		Content: fmt.Sprintf("Wrote %d of %d units as %d blocks in %d requests.", rep.Units, units, rep.Blocks, rep.Requests),
		Data:    rep,
	}
	return out, err
}

type updatePageTitleArgs struct {
	PageID   string `json:"page_id" jsonschema:"ID of the page to rename"`
	NewTitle string `json:"new_title" jsonschema:"the new title"`
}

var updatePageTitleSchema = tool.MustSchema[updatePageTitleArgs]()

type updatePageTitle struct{ d *Deps }

func (*updatePageTitle) Name() string                { return "update_page_title" }
func (*updatePageTitle) Description() string         { return "Change the title of a page." }
func (*updatePageTitle) Schema() *jsonschema.Schema   { return updatePageTitleSchema }
func (*updatePageTitle) SideEffect() tool.SideEffect { return tool.SideEffectWrite }

func (t *updatePageTitle) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[updatePageTitleArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("page_id", a.PageID); err != nil {
		return tool.Output{}, err
	}
	p, err := t.d.API.UpdatePage(ctx, a.PageID, notion.TitleUpdate(a.NewTitle))
	if err != nil {
		return tool.Output{}, err
	}
	return jsonOutput(p)
}

type updatePageArgs struct {
	PageID     string         `json:"page_id" jsonschema:"ID of the page to update"`
	InTrash    *bool          `json:"in_trash,omitempty" jsonschema:"move the page to or out of the trash"`
	Archived   *bool          `json:"archived,omitempty" jsonschema:"archive or unarchive the page"`
	Properties map[string]any `json:"properties,omitempty" jsonschema:"property values keyed by name or ID"`
	Icon       map[string]any `json:"icon,omitempty" jsonschema:"icon object, e.g. {\"type\":\"emoji\",\"emoji\":\"📘\"}"`
	Cover      map[string]any `json:"cover,omitempty" jsonschema:"cover object, e.g. {\"type\":\"external\",\"external\":{\"url\":\"...\"}}"`
}

var updatePageSchema = tool.MustSchema[updatePageArgs]()

type updatePage struct{ d *Deps }

func (*updatePage) Name() string { return "update_page" }
func (*updatePage) Description() string {
	return "Update a page's properties, icon, cover, trash or archive state."
}
func (*updatePage) Schema() *jsonschema.Schema   { return updatePageSchema }
func (*updatePage) SideEffect() tool.SideEffect { return tool.SideEffectWrite }

func (t *updatePage) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[updatePageArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("page_id", a.PageID); err != nil {
		return tool.Output{}, err
	}
	if a.InTrash == nil && a.Archived == nil && len(a.Properties) == 0 && a.Icon == nil && a.Cover == nil {
		return tool.Output{}, fmt.Errorf("%w: nothing to update", tool.ErrInvalidArgument)
	}
	upd := notion.PageUpdate{
		Properties: a.Properties,
		InTrash:    a.InTrash,
		Archived:   a.Archived,
	}
	if a.Icon != nil {
		upd.Icon = a.Icon
	}
	if a.Cover != nil {
		upd.Cover = a.Cover
	}
	p, err := t.d.API.UpdatePage(ctx, a.PageID, upd)
	if err != nil {
		return tool.Output{}, err
	}
	return jsonOutput(p)
}

type createSubpageArgs struct {
	PageID   string         `json:"page_id" jsonschema:"ID of the parent page"`
	Title    string         `json:"title" jsonschema:"title of the new page"`
	Icon     map[string]any `json:"icon,omitempty" jsonschema:"optional icon object"`
	Cover    map[string]any `json:"cover,omitempty" jsonschema:"optional cover object"`
	Markdown string         `json:"markdown,omitempty" jsonschema:"optional initial content, in the append_content syntax"`
}

var createSubpageSchema = tool.MustSchema[createSubpageArgs]()

type createSubpage struct{ d *Deps }

func (*createSubpage) Name() string { return "create_subpage" }
func (*createSubpage) Description() string {
	return "Create a sub-page under a page, optionally with an icon, a cover and initial markdown content."
}
func (*createSubpage) Schema() *jsonschema.Schema   { return createSubpageSchema }
func (*createSubpage) SideEffect() tool.SideEffect { return tool.SideEffectWrite }

func (t *createSubpage) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[createSubpageArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	if err := requireID("page_id", a.PageID); err != nil {
		return tool.Output{}, err
	}
	req := notion.PageCreate{ParentID: a.PageID, Title: a.Title}
	if a.Icon != nil {
		req.Icon = a.Icon
	}
	if a.Cover != nil {
		req.Cover = a.Cover
	}
	// Content goes through the chunker afterwards so large bodies are split
	// and resumable with append_content.
	p, err := t.d.API.CreatePage(ctx, req)
	if err != nil {
		return tool.Output{}, err
	}
	if units := chunker.ParseMarkdown(a.Markdown); len(units) > 0 {
		if _, err := t.d.Chunker.Append(ctx, p.ID, units, chunker.Options{OnBatch: progressFn(ctx)}); err != nil {
			out, _ := jsonOutput(p)
			return out, fmt.Errorf("page %s created, content incomplete (continue with append_content): %w", p.ID, err)
		}
	}
	return jsonOutput(p)
}
