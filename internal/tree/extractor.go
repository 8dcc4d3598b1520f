// Package tree walks the block hierarchy under a page and renders it as
// plain text. The walk is iterative and keeps its pending work on an
// explicit stack, so arbitrarily deep pages cannot exhaust the goroutine
// stack.
package tree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/pagesmith/pagesmith/internal/checkpoint"
	"github.com/pagesmith/pagesmith/internal/notion"
)

// ErrCycle is returned when the same block is reached twice during a walk.
var ErrCycle = errors.New("tree: cycle detected")

// CycleError reports the block that was seen twice. It matches both
// ErrCycle and notion.ErrPermanent.
type CycleError struct {
	BlockID string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("tree: block %s visited twice", e.BlockID)
}

// Is implements errors.Is.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle || target == notion.ErrPermanent
}

// Lister is the part of the workspace API the walk needs.
type Lister interface {
	ListChildren(ctx context.Context, blockID, cursor string, pageSize int) (notion.ChildPage, error)
}

// Progress describes one fetched page of children.
type Progress struct {
	BlockID string
	Page    int
	Results int
	Fetches int
}

// Options tunes a single extraction.
type Options struct {
	// MaxDepth bounds nesting below the root. Direct children of the root
	// sit at depth 1. Zero means unlimited.
	MaxDepth int

	// PageSize is passed to ListChildren. Non-positive values let the
	// client choose.
	PageSize int

	// OnPage, when set, is called after every successful page fetch.
	OnPage func(Progress)
}

// Document is the result of an extraction.
type Document struct {
	RootID string
	Text   string

	// Blocks counts visited blocks, the root excluded.
	Blocks int

	// Fetches counts ListChildren requests.
	Fetches int

	// Truncated counts containers left unexpanded because of MaxDepth.
	Truncated int
}

// Extractor renders pages to text.
type Extractor struct {
	api    Lister
	logger *slog.Logger
}

// NewExtractor returns an Extractor reading through api. A nil logger
// discards output.
func NewExtractor(api Lister, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{api: api, logger: logger}
}

type item struct {
	block  notion.Block
	depth  int
	indent int
}

type walk struct {
	ctx     context.Context
	api     Lister
	opts    Options
	visited map[string]struct{}
	parts   []string
	doc     Document
}

// ExtractText walks every block under rootID depth-first and returns the
// rendered text. Each page of children is fully fetched, across all
// cursors, before any of them is descended into. Page boundaries are
// cancellation checkpoints.
func (e *Extractor) ExtractText(ctx context.Context, rootID string, opts Options) (Document, error) {
	w := &walk{
		ctx:     ctx,
		api:     e.api,
		opts:    opts,
		visited: map[string]struct{}{rootID: {}},
		doc:     Document{RootID: rootID},
	}

	children, err := w.fetchAll(rootID)
	if err != nil {
		return w.doc, err
	}
	stack := pushReversed(nil, children, 1, 0)

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := w.visit(it.block.ID); err != nil {
			return w.doc, err
		}

		if it.block.Type == notion.TypeTable {
			if err := w.table(it); err != nil {
				return w.doc, err
			}
			continue
		}

		w.emit(renderBlock(it.block), it.indent)
		if !it.block.HasChildren {
			continue
		}
		if w.cut(it) {
			continue
		}
		kids, err := w.fetchAll(it.block.ID)
		if err != nil {
			return w.doc, err
		}
		indent := it.indent + 1
		if it.block.Type == notion.TypeChildPage {
			indent = 0
		}
		stack = pushReversed(stack, kids, it.depth+1, indent)
	}

	w.doc.Text = joinParts(w.parts)
	e.logger.Debug("tree: page extracted",
		"root", rootID,
		"blocks", w.doc.Blocks,
		"fetches", w.doc.Fetches,
		"truncated", w.doc.Truncated,
	)
	return w.doc, nil
}

func (w *walk) visit(id string) error {
	if _, seen := w.visited[id]; seen {
		return &CycleError{BlockID: id}
	}
	w.visited[id] = struct{}{}
	w.doc.Blocks++
	return nil
}

// cut reports whether it sits at the depth limit, recording a marker if so.
func (w *walk) cut(it item) bool {
	if w.opts.MaxDepth <= 0 || it.depth < w.opts.MaxDepth {
		return false
	}
	w.doc.Truncated++
	indent := it.indent + 1
	if it.block.Type == notion.TypeChildPage {
		indent = 0
	}
	w.emit(truncationMarker(it.block), indent)
	return true
}

func (w *walk) table(it item) error {
	if !it.block.HasChildren {
		return nil
	}
	if w.cut(it) {
		return nil
	}
	rows, err := w.fetchAll(it.block.ID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.visit(r.ID); err != nil {
			return err
		}
	}
	header := it.block.Table != nil && it.block.Table.HasColumnHeader
	w.emit(renderTable(rows, header), it.indent)
	return nil
}

// fetchAll pages through the children of id until the cursor is exhausted.
func (w *walk) fetchAll(id string) ([]notion.Block, error) {
	var (
		out    []notion.Block
		cursor string
		page   int
	)
	for {
		if err := checkpoint.Check(w.ctx); err != nil {
			return nil, err
		}
		res, err := w.api.ListChildren(w.ctx, id, cursor, w.opts.PageSize)
		if err != nil {
			return nil, fmt.Errorf("tree: listing children of %s: %w", id, err)
		}
		page++
		w.doc.Fetches++
		out = append(out, res.Results...)
		if w.opts.OnPage != nil {
			w.opts.OnPage(Progress{BlockID: id, Page: page, Results: len(res.Results), Fetches: w.doc.Fetches})
		}
		if !res.HasMore {
			return out, nil
		}
		if res.NextCursor == "" || res.NextCursor == cursor {
			return nil, fmt.Errorf("tree: listing children of %s: %w: %w: cursor did not advance",
				id, notion.ErrPermanent, notion.ErrMalformedResponse)
		}
		cursor = res.NextCursor
	}
}

func (w *walk) emit(text string, indent int) {
	if text == "" {
		return
	}
	w.parts = append(w.parts, indentLines(text, indent))
}

func pushReversed(stack []item, blocks []notion.Block, depth, indent int) []item {
	for _, b := range slices.Backward(blocks) {
		stack = append(stack, item{block: b, depth: depth, indent: indent})
	}
	return stack
}
