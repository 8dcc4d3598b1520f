package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pagesmith/pagesmith/internal/checkpoint"
	"github.com/pagesmith/pagesmith/internal/notion"
	"github.com/pagesmith/pagesmith/internal/notion/notiontest"
)

func longToggle(n int) notion.Block {
	kids := make([]notion.Block, n)
	for i := range kids {
		kids[i] = notion.Paragraph(fmt.Sprintf("item %d", i))
	}
	return notion.Toggle("Details", kids...)
}

func TestExtractText_PaginatesNestedChildren(t *testing.T) {
	t.Parallel()

	store := notiontest.NewStore()
	page := store.AddPage("Doc")
	store.AddBlocks(page, notion.Paragraph("one"), notion.Paragraph("two"), notion.Paragraph("three"))
	toggle := store.AddBlocks(page, longToggle(150))[0]

	doc, err := NewExtractor(store, nil).ExtractText(context.Background(), page, Options{PageSize: 50})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got := store.Fetches(toggle); got != 3 {
		t.Errorf("toggle fetches = %d, want 3", got)
	}
	if got := store.Fetches(page); got != 1 {
		t.Errorf("page fetches = %d, want 1", got)
	}
	if doc.Fetches != 4 {
		t.Errorf("doc.Fetches = %d, want 4", doc.Fetches)
	}
	if doc.Blocks != 154 {
		t.Errorf("doc.Blocks = %d, want 154", doc.Blocks)
	}

	parts := strings.Split(doc.Text, "\n\n")
	if len(parts) != 154 {
		t.Fatalf("parts = %d, want 154", len(parts))
	}
	if parts[0] != "one" || parts[2] != "three" || parts[3] != "Details" {
		t.Errorf("unexpected leading parts: %q", parts[:4])
	}
	if parts[4] != "  item 0" || parts[153] != "  item 149" {
		t.Errorf("nested parts out of order: %q ... %q", parts[4], parts[153])
	}
}

func TestExtractText_PageSizeDoesNotChangeOutput(t *testing.T) {
	t.Parallel()

	store := notiontest.NewStore()
	page := store.AddPage("Doc")
	store.AddBlocks(page,
		notion.Heading(1, "Title"),
		longToggle(12),
		notion.Bulleted("a"),
		notion.Toggle("outer", notion.Toggle("inner", notion.Paragraph("deep"))),
	)

	ex := NewExtractor(store, nil)
	want, err := ex.ExtractText(context.Background(), page, Options{PageSize: 100})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	for _, size := range []int{1, 2, 5, 7} {
		got, err := ex.ExtractText(context.Background(), page, Options{PageSize: size})
		if err != nil {
			t.Fatalf("ExtractText(page size %d): %v", size, err)
		}
		if got.Text != want.Text {
			t.Errorf("page size %d changed output:\n%s\nwant:\n%s", size, got.Text, want.Text)
		}
	}
}

func TestExtractText_Rendering(t *testing.T) {
	t.Parallel()

	store := notiontest.NewStore()
	page := store.AddPage("Doc")
	store.AddBlocks(page,
		notion.Heading(2, "Plan"),
		notion.ToDo("ship", true),
		notion.ToDo("test", false),
		notion.Numbered("first"),
		notion.Quote("wise words"),
		notion.Code("x := 1", "go"),
		notion.Divider(),
		notion.Table([][]string{{"k", "v"}, {"a", "1"}}, true, false),
	)
	sub := store.AddChildPage(page, "Appendix")
	store.AddBlocks(sub, notion.Paragraph("extra"))

	doc, err := NewExtractor(store, nil).ExtractText(context.Background(), page, Options{})
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	want := strings.Join([]string{
		"## Plan",
		"- [x] ship",
		"- [ ] test",
		"1. first",
		"> wise words",
		"```go\nx := 1\n```",
		"---",
		"| k | v |\n| --- | --- |\n| a | 1 |",
		fmt.Sprintf("--- Sub-page: Appendix (%s) ---", sub),
		"extra",
	}, "\n\n")
	if doc.Text != want {
		t.Errorf("text mismatch:\n%s\nwant:\n%s", doc.Text, want)
	}
}

func TestExtractText_MaxDepth(t *testing.T) {
	t.Parallel()

	store := notiontest.NewStore()
	page := store.AddPage("Doc")
	ids := store.AddBlocks(page,
		notion.Paragraph("top"),
		notion.Toggle("outer", notion.Toggle("inner", notion.Paragraph("deep"))),
	)
	outer := ids[1]
	inner := store.Children(outer)[0].ID

	tests := []struct {
		name      string
		depth     int
		truncated int
		marker    string
		hidden    string
	}{
		{"depth 1", 1, 1, "[truncated: children of toggle " + outer + " not expanded]", "inner"},
		{"depth 2", 2, 1, "[truncated: children of toggle " + inner + " not expanded]", "deep"},
		{"unlimited", 0, 0, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := NewExtractor(store, nil).ExtractText(context.Background(), page, Options{MaxDepth: tt.depth})
			if err != nil {
				t.Fatalf("ExtractText: %v", err)
			}
			if doc.Truncated != tt.truncated {
				t.Errorf("Truncated = %d, want %d", doc.Truncated, tt.truncated)
			}
			if tt.marker != "" && !strings.Contains(doc.Text, tt.marker) {
				t.Errorf("missing marker %q in:\n%s", tt.marker, doc.Text)
			}
			if tt.hidden != "" && strings.Contains(doc.Text, tt.hidden) {
				t.Errorf("text beyond depth rendered:\n%s", doc.Text)
			}
			if tt.depth == 0 && !strings.Contains(doc.Text, "    deep") {
				t.Errorf("expected fully expanded text, got:\n%s", doc.Text)
			}
		})
	}
}

func TestExtractText_Cycle(t *testing.T) {
	t.Parallel()

	store := notiontest.NewStore()
	page := store.AddPage("Doc")
	toggle := store.AddBlocks(page, notion.Toggle("loop", notion.Paragraph("x")))[0]
	store.Link(toggle, page)

	_, err := NewExtractor(store, nil).ExtractText(context.Background(), page, Options{})
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if !errors.Is(err, notion.ErrPermanent) {
		t.Errorf("cycle should be permanent, got %v", err)
	}
}

func TestExtractText_CancelledAtPageBoundary(t *testing.T) {
	t.Parallel()

	store := notiontest.NewStore()
	page := store.AddPage("Doc")
	store.AddBlocks(page, longToggle(20))

	sig := checkpoint.NewSignal()
	ctx := checkpoint.WithSignal(context.Background(), sig)
	var pages int
	doc, err := NewExtractor(store, nil).ExtractText(ctx, page, Options{
		PageSize: 5,
		OnPage: func(Progress) {
			pages++
			if pages == 2 {
				sig.Fire()
			}
		},
	})
	if !errors.Is(err, checkpoint.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if doc.Fetches != 2 || store.TotalFetches() != 2 {
		t.Errorf("fetches after cancel: doc %d, store %d, want 2", doc.Fetches, store.TotalFetches())
	}
}

func TestExtractText_PropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(notiontest.NewStore(), nil).ExtractText(context.Background(), "missing", Options{})
	if !errors.Is(err, notion.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type stallingLister struct{}

func (stallingLister) ListChildren(context.Context, string, string, int) (notion.ChildPage, error) {
	return notion.ChildPage{Results: []notion.Block{notion.Paragraph("x")}, HasMore: true, NextCursor: "same"}, nil
}

func TestExtractText_StalledCursor(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(stallingLister{}, nil).ExtractText(context.Background(), "root", Options{})
	if !errors.Is(err, notion.ErrMalformedResponse) || !errors.Is(err, notion.ErrPermanent) {
		t.Fatalf("expected malformed permanent error, got %v", err)
	}
}
