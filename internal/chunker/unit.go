package chunker

import (
	"github.com/pagesmith/pagesmith/internal/notion"
)

// Kind identifies the shape of a content unit.
type Kind string

// Unit kinds.
const (
	KindParagraph Kind = "paragraph"
	KindHeading   Kind = "heading"
	KindBulleted  Kind = "bulleted"
	KindNumbered  Kind = "numbered"
	KindToDo      Kind = "todo"
	KindQuote     Kind = "quote"
	KindCode      Kind = "code"
	KindDivider   Kind = "divider"
	KindTable     Kind = "table"
)

// Unit is one piece of content to write: a single block, or a table with
// its rows.
type Unit struct {
	Kind     Kind   `json:"kind"`
	Text     string `json:"text,omitempty"`
	Level    int    `json:"level,omitempty"`
	Language string `json:"language,omitempty"`
	Checked  bool   `json:"checked,omitempty"`

	Rows            [][]string `json:"rows,omitempty"`
	HasColumnHeader bool       `json:"has_column_header,omitempty"`
	HasRowHeader    bool       `json:"has_row_header,omitempty"`
}

// TableUnit returns a table unit over rows.
func TableUnit(rows [][]string, hasColumnHeader, hasRowHeader bool) Unit {
	return Unit{Kind: KindTable, Rows: rows, HasColumnHeader: hasColumnHeader, HasRowHeader: hasRowHeader}
}

// block converts a non-table unit into its block.
func (u Unit) block() notion.Block {
	switch u.Kind {
	case KindHeading:
		return notion.Heading(u.Level, u.Text)
	case KindBulleted:
		return notion.Bulleted(u.Text)
	case KindNumbered:
		return notion.Numbered(u.Text)
	case KindToDo:
		return notion.ToDo(u.Text, u.Checked)
	case KindQuote:
		return notion.Quote(u.Text)
	case KindCode:
		return notion.Code(u.Text, u.Language)
	case KindDivider:
		return notion.Divider()
	case KindTable:
		return u.tableBlock(len(u.Rows))
	}
	return notion.Paragraph(u.Text)
}

// tableBlock builds the table block carrying the first n rows.
func (u Unit) tableBlock(n int) notion.Block {
	return notion.Table(u.Rows[:n], u.HasColumnHeader, u.HasRowHeader)
}

func rowBlocks(rows [][]string) []notion.Block {
	out := make([]notion.Block, len(rows))
	for i, r := range rows {
		out[i] = notion.TableRow(r)
	}
	return out
}
