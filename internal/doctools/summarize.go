package doctools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/pagesmith/pagesmith/internal/prompt"
	"github.com/pagesmith/pagesmith/internal/tool"
)

type summarizeArgs struct {
	PageID string `json:"page_id,omitempty" jsonschema:"ID of the page to summarize"`
	Text   string `json:"text,omitempty" jsonschema:"text to summarize instead of a page"`
}

var summarizeSchema = tool.MustSchema[summarizeArgs]()

// summarizePage composes get_page_text with the configured summarizer.
// Given text instead of a page ID it summarizes that text directly.
type summarizePage struct{ d *Deps }

func (*summarizePage) Name() string { return "summarize_page" }
func (*summarizePage) Description() string {
	return "Return a short summary of a page's content, or of the given text. Pass exactly one of page_id or text."
}
func (*summarizePage) Schema() *jsonschema.Schema   { return summarizeSchema }
func (*summarizePage) SideEffect() tool.SideEffect { return tool.SideEffectDerived }

func (t *summarizePage) Execute(ctx context.Context, raw json.RawMessage) (tool.Output, error) {
	a, err := tool.DecodeArgs[summarizeArgs](raw)
	if err != nil {
		return tool.Output{}, err
	}
	source, text := "text", a.Text
	switch {
	case a.PageID != "" && a.Text != "":
		return tool.Output{}, fmt.Errorf("%w: pass page_id or text, not both", tool.ErrInvalidArgument)
	case a.Text == "":
		if err := requireID("page_id", a.PageID); err != nil {
			return tool.Output{}, err
		}
		if text, err = t.pageText(ctx, a.PageID); err != nil {
			return tool.Output{}, err
		}
		source = "page " + a.PageID
	}
	if strings.TrimSpace(text) == "" {
		return tool.Output{Content: "There is no text to summarize."}, nil
	}
	summary, err := t.d.Summarizer.Summarize(ctx, prompt.Summary, text)
	if err != nil {
		return tool.Output{}, fmt.Errorf("summarizing %s: %w", source, err)
	}
	return tool.Output{Content: summary}, nil
}

func (t *summarizePage) pageText(ctx context.Context, pageID string) (string, error) {
	args, err := json.Marshal(map[string]string{"page_id": pageID})
	if err != nil {
		return "", fmt.Errorf("encoding arguments: %w", err)
	}
	page, err := t.d.Invoker.Invoke(ctx, "get_page_text", args)
	if err != nil {
		return "", err
	}
	return page.Content, nil
}
