package notion

import (
	"encoding/json"
	"fmt"
)

// BlockType is the type tag of a block.
type BlockType string

// Block types handled by pagesmith. Other types are preserved as raw payloads.
const (
	TypeParagraph BlockType = "paragraph"
	TypeHeading1  BlockType = "heading_1"
	TypeHeading2  BlockType = "heading_2"
	TypeHeading3  BlockType = "heading_3"
	TypeBulleted  BlockType = "bulleted_list_item"
	TypeNumbered  BlockType = "numbered_list_item"
	TypeToDo      BlockType = "to_do"
	TypeToggle    BlockType = "toggle"
	TypeQuote     BlockType = "quote"
	TypeCallout   BlockType = "callout"
	TypeCode      BlockType = "code"
	TypeDivider   BlockType = "divider"
	TypeTable     BlockType = "table"
	TypeTableRow  BlockType = "table_row"
	TypeChildPage BlockType = "child_page"
)

// IsTextual reports whether blocks of type t carry a TextPayload.
func (t BlockType) IsTextual() bool {
	switch t {
	case TypeParagraph, TypeHeading1, TypeHeading2, TypeHeading3,
		TypeBulleted, TypeNumbered, TypeToDo, TypeToggle, TypeQuote, TypeCallout:
		return true
	}
	return false
}

// HeadingLevel returns 1-3 for heading types and 0 otherwise.
func (t BlockType) HeadingLevel() int {
	switch t {
	case TypeHeading1:
		return 1
	case TypeHeading2:
		return 2
	case TypeHeading3:
		return 3
	}
	return 0
}

// Block is a single typed content unit. Exactly one payload field matching
// Type is set. Children is only used when writing nested blocks; reads
// report nesting through HasChildren and a separate ListChildren call.
type Block struct {
	ID          string
	Type        BlockType
	HasChildren bool

	Text      *TextPayload
	Code      *CodePayload
	Table     *TablePayload
	TableRow  *TableRowPayload
	ChildPage *ChildPagePayload
	Raw       json.RawMessage

	Children []Block
}

// TextPayload is shared by paragraphs, headings, list items, quotes,
// callouts, toggles and to-dos.
type TextPayload struct {
	RichText []RichText `json:"rich_text"`
	Checked  *bool      `json:"checked,omitempty"`
}

// CodePayload is the payload of a code block.
type CodePayload struct {
	RichText []RichText `json:"rich_text"`
	Language string     `json:"language"`
}

// TablePayload is the payload of a table block. Its rows are children.
type TablePayload struct {
	Width           int  `json:"table_width"`
	HasColumnHeader bool `json:"has_column_header"`
	HasRowHeader    bool `json:"has_row_header"`
}

// TableRowPayload is one row of a table.
type TableRowPayload struct {
	Cells [][]RichText `json:"cells"`
}

// ChildPagePayload is the payload of a child_page block.
type ChildPagePayload struct {
	Title string `json:"title"`
}

// PlainText returns the visible text of a textual or code block.
func (b Block) PlainText() string {
	switch {
	case b.Text != nil:
		return Plain(b.Text.RichText)
	case b.Code != nil:
		return Plain(b.Code.RichText)
	case b.ChildPage != nil:
		return b.ChildPage.Title
	}
	return ""
}

// Cells returns the plain text of each cell of a table row.
func (b Block) Cells() []string {
	if b.TableRow == nil {
		return nil
	}
	out := make([]string, len(b.TableRow.Cells))
	for i, c := range b.TableRow.Cells {
		out[i] = Plain(c)
	}
	return out
}

// Count returns the number of blocks b contributes to a write request,
// nested children included.
func (b Block) Count() int {
	n := 1
	for _, c := range b.Children {
		n += c.Count()
	}
	return n
}

type blockHeader struct {
	Object      string    `json:"object,omitempty"`
	ID          string    `json:"id,omitempty"`
	Type        BlockType `json:"type"`
	HasChildren bool      `json:"has_children,omitempty"`
}

// MarshalJSON encodes the block in the API's {"type": t, t: {...}} shape,
// nesting Children inside the payload.
func (b Block) MarshalJSON() ([]byte, error) {
	payload, err := b.payload()
	if err != nil {
		return nil, err
	}
	if len(b.Children) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("notion: block %s payload: %w", b.Type, err)
		}
		if fields == nil {
			fields = make(map[string]json.RawMessage)
		}
		children, err := json.Marshal(b.Children)
		if err != nil {
			return nil, err
		}
		fields["children"] = children
		if payload, err = json.Marshal(fields); err != nil {
			return nil, err
		}
	}

	head, err := json.Marshal(blockHeader{Object: "block", ID: b.ID, Type: b.Type, HasChildren: b.HasChildren})
	if err != nil {
		return nil, err
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(head, &out); err != nil {
		return nil, err
	}
	out[string(b.Type)] = payload
	return json.Marshal(out)
}

func (b Block) payload() (json.RawMessage, error) {
	var v any
	switch {
	case b.Text != nil:
		v = b.Text
	case b.Code != nil:
		v = b.Code
	case b.Table != nil:
		v = b.Table
	case b.TableRow != nil:
		v = b.TableRow
	case b.ChildPage != nil:
		v = b.ChildPage
	case len(b.Raw) > 0:
		return b.Raw, nil
	default:
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes a block object returned by the API.
func (b *Block) UnmarshalJSON(data []byte) error {
	var head blockHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*b = Block{ID: head.ID, Type: head.Type, HasChildren: head.HasChildren}
	raw := fields[string(head.Type)]
	if len(raw) == 0 {
		return nil
	}

	var target any
	switch {
	case head.Type.IsTextual():
		b.Text = &TextPayload{}
		target = b.Text
	case head.Type == TypeCode:
		b.Code = &CodePayload{}
		target = b.Code
	case head.Type == TypeTable:
		b.Table = &TablePayload{}
		target = b.Table
	case head.Type == TypeTableRow:
		b.TableRow = &TableRowPayload{}
		target = b.TableRow
	case head.Type == TypeChildPage:
		b.ChildPage = &ChildPagePayload{}
		target = b.ChildPage
	case head.Type == TypeDivider:
	default:
		b.Raw = append(json.RawMessage(nil), raw...)
	}
	if target != nil {
		if err := json.Unmarshal(raw, target); err != nil {
			return fmt.Errorf("notion: decoding %s block %s: %w", head.Type, head.ID, err)
		}
	}

	var nested struct {
		Children []Block `json:"children"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		b.Children = nested.Children
	}
	return nil
}

// Paragraph builds a paragraph block.
func Paragraph(text string) Block {
	return textBlock(TypeParagraph, text)
}

// Heading builds a heading block. Levels outside 1-3 are clamped.
func Heading(level int, text string) Block {
	switch {
	case level <= 1:
		return textBlock(TypeHeading1, text)
	case level == 2:
		return textBlock(TypeHeading2, text)
	default:
		return textBlock(TypeHeading3, text)
	}
}

// Bulleted builds a bulleted list item.
func Bulleted(text string) Block { return textBlock(TypeBulleted, text) }

// Numbered builds a numbered list item.
func Numbered(text string) Block { return textBlock(TypeNumbered, text) }

// Quote builds a quote block.
func Quote(text string) Block { return textBlock(TypeQuote, text) }

// Toggle builds a toggle block with optional nested children.
func Toggle(text string, children ...Block) Block {
	b := textBlock(TypeToggle, text)
	b.Children = children
	return b
}

// ToDo builds a to-do item.
func ToDo(text string, checked bool) Block {
	b := textBlock(TypeToDo, text)
	b.Text.Checked = &checked
	return b
}

// Code builds a code block.
func Code(text, language string) Block {
	if language == "" {
		language = "plain text"
	}
	return Block{Type: TypeCode, Code: &CodePayload{RichText: Text(text), Language: language}}
}

// Divider builds a divider block.
func Divider() Block {
	return Block{Type: TypeDivider}
}

// Table builds a table block with the given rows as children. The width is
// taken from the first row.
func Table(rows [][]string, hasColumnHeader, hasRowHeader bool) Block {
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	b := Block{
		Type:  TypeTable,
		Table: &TablePayload{Width: width, HasColumnHeader: hasColumnHeader, HasRowHeader: hasRowHeader},
	}
	b.Children = make([]Block, len(rows))
	for i, r := range rows {
		b.Children[i] = TableRow(r)
	}
	return b
}

// TableRow builds a single table row.
func TableRow(cells []string) Block {
	rt := make([][]RichText, len(cells))
	for i, c := range cells {
		rt[i] = Text(c)
		if rt[i] == nil {
			rt[i] = []RichText{}
		}
	}
	return Block{Type: TypeTableRow, TableRow: &TableRowPayload{Cells: rt}}
}

func textBlock(t BlockType, text string) Block {
	rt := Text(text)
	if rt == nil {
		rt = []RichText{}
	}
	return Block{Type: t, Text: &TextPayload{RichText: rt}}
}
