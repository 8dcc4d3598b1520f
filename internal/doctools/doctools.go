// Package doctools implements the workspace tools exposed to clients: page
// reading, chunked writes, page and user lookups, search and summaries.
// Every tool is a small type over a shared Deps value.
package doctools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pagesmith/pagesmith/internal/chunker"
	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/tool"
	"github.com/pagesmith/pagesmith/internal/tree"
)

// Summarizer condenses text following instruction.
type Summarizer interface {
	Summarize(ctx context.Context, instruction, text string) (string, error)
}

// Deps are the collaborators shared by the tools.
type Deps struct {
	API       notion.API
	Extractor *tree.Extractor
	Chunker   *chunker.Chunker

	// Summarizer is optional. summarize_page is only registered when set.
	Summarizer Summarizer

	// Invoker dispatches the tools summarize_page depends on. It defaults
	// to the registry the tools are registered on.
	Invoker tool.Invoker

	// MaxDepth and PageSize are the get_page_text defaults.
	MaxDepth int
	PageSize int
}

// Register adds every workspace tool to reg.
func Register(reg *tool.Registry, deps Deps) error {
	if deps.API == nil {
		return errors.New("doctools: API is required")
	}
	if deps.Extractor == nil {
		deps.Extractor = tree.NewExtractor(deps.API, nil)
	}
	if deps.Chunker == nil {
		deps.Chunker = chunker.New(deps.API)
	}
	if deps.Invoker == nil {
		deps.Invoker = reg
	}
	d := &deps

	tools := []tool.Tool{
		&getPageText{d},
		&appendContent{d},
		&createTable{d},
		&updatePageTitle{d},
		&updatePage{d},
		&createSubpage{d},
		&retrievePage{d},
		&retrievePageProperty{d},
		&listUsers{d},
		&retrieveUser{d},
		&getMe{d},
		&searchNotion{d},
	}
	if d.Summarizer != nil {
		tools = append(tools, &summarizePage{d})
	}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("doctools: %w", err)
		}
	}
	return nil
}

func requireID(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s must not be empty", tool.ErrInvalidArgument, field)
	}
	return nil
}

// jsonOutput renders v as indented JSON content and keeps it as Data.
func jsonOutput(v any) (tool.Output, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return tool.Output{}, fmt.Errorf("encoding result: %w", err)
	}
	return tool.Output{Content: string(data), Data: v}, nil
}

// progressFn forwards chunker batches as tool progress.
func progressFn(ctx context.Context) func(chunker.Batch) {
	return func(b chunker.Batch) {
		tool.ReportProgress(ctx, tool.Progress{
			Message: fmt.Sprintf("wrote %d of %d units", b.Units, b.Total),
			Data:    b,
		})
	}
}
