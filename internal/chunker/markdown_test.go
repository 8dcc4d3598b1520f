package chunker

import (
	"reflect"
	"testing"
)

func TestParseMarkdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []Unit
	}{
		{
			name: "headings clamp",
			in:   "# One\n## Two\n#### Four\n#Tight",
			want: []Unit{
				{Kind: KindHeading, Level: 1, Text: "One"},
				{Kind: KindHeading, Level: 2, Text: "Two"},
				{Kind: KindHeading, Level: 3, Text: "Four"},
				{Kind: KindHeading, Level: 1, Text: "Tight"},
			},
		},
		{
			name: "lists and todos",
			in:   "- apple\n* pear\n1. first\n2) second\n- [ ] open\n- [x] done",
			want: []Unit{
				{Kind: KindBulleted, Text: "apple"},
				{Kind: KindBulleted, Text: "pear"},
				{Kind: KindNumbered, Text: "first"},
				{Kind: KindNumbered, Text: "second"},
				{Kind: KindToDo, Text: "open"},
				{Kind: KindToDo, Text: "done", Checked: true},
			},
		},
		{
			name: "quote divider paragraph and blank lines",
			in:   "> said\n\n---\n\nplain text",
			want: []Unit{
				{Kind: KindQuote, Text: "said"},
				{Kind: KindDivider},
				{Kind: KindParagraph, Text: "plain text"},
			},
		},
		{
			name: "fenced code",
			in:   "```go\nfunc main() {\n\n}\n```\nafter",
			want: []Unit{
				{Kind: KindCode, Language: "go", Text: "func main() {\n\n}"},
				{Kind: KindParagraph, Text: "after"},
			},
		},
		{
			name: "unterminated fence runs to the end",
			in:   "```\nx\n# not a heading",
			want: []Unit{
				{Kind: KindCode, Text: "x\n# not a heading"},
			},
		},
		{
			name: "table with alignment row and ragged rows",
			in:   "| a | b | c |\n|---|:---:|---|\n| 1 | 2 |\n| 3 |  | 4 |\nend",
			want: []Unit{
				TableUnit([][]string{{"a", "b", "c"}, {"1", "2", ""}, {"3", "", "4"}}, true, false),
				{Kind: KindParagraph, Text: "end"},
			},
		},
		{
			name: "headings without text are dropped",
			in:   "#\n\nafter empty heading\n###   \n## kept",
			want: []Unit{
				{Kind: KindParagraph, Text: "after empty heading"},
				{Kind: KindHeading, Level: 2, Text: "kept"},
			},
		},
		{
			name: "single cell stays a paragraph",
			in:   "| solo |\n|---|\nnext",
			want: []Unit{
				{Kind: KindParagraph, Text: "| solo |"},
				{Kind: KindParagraph, Text: "next"},
			},
		},
		{
			name: "single column with two rows is a table",
			in:   "| head |\n| --- |\n| body |",
			want: []Unit{
				TableUnit([][]string{{"head"}, {"body"}}, true, false),
			},
		},
		{
			name: "one row with two cells is a table",
			in:   "| a | b |",
			want: []Unit{
				TableUnit([][]string{{"a", "b"}}, true, false),
			},
		},
		{
			name: "empty input",
			in:   "\n\n",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseMarkdown(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseMarkdown(%q)\n got  %+v\n want %+v", tt.in, got, tt.want)
			}
		})
	}
}
