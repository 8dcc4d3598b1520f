package tree

import (
	"fmt"
	"strings"

	"github.com/pagesmith/pagesmith/internal/notion"
)

const indentUnit = "  "

// renderBlock returns the text of a single block, children excluded.
func renderBlock(b notion.Block) string {
	text := b.PlainText()
	switch b.Type {
	case notion.TypeHeading1, notion.TypeHeading2, notion.TypeHeading3:
		if text == "" {
			return ""
		}
		return strings.Repeat("#", b.Type.HeadingLevel()) + " " + text
	case notion.TypeBulleted:
		return "- " + text
	case notion.TypeNumbered:
		return "1. " + text
	case notion.TypeToDo:
		if b.Text != nil && b.Text.Checked != nil && *b.Text.Checked {
			return "- [x] " + text
		}
		return "- [ ] " + text
	case notion.TypeQuote, notion.TypeCallout:
		if text == "" {
			return ""
		}
		return "> " + strings.ReplaceAll(text, "\n", "\n> ")
	case notion.TypeCode:
		lang := ""
		if b.Code != nil && b.Code.Language != "plain text" {
			lang = b.Code.Language
		}
		return "```" + lang + "\n" + text + "\n```"
	case notion.TypeDivider:
		return "---"
	case notion.TypeChildPage:
		return fmt.Sprintf("--- Sub-page: %s (%s) ---", text, b.ID)
	}
	return text
}

func renderTable(rows []notion.Block, header bool) string {
	var lines []string
	for i, r := range rows {
		cells := r.Cells()
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if i == 0 && header {
			sep := make([]string, len(cells))
			for j := range sep {
				sep[j] = "---"
			}
			lines = append(lines, "| "+strings.Join(sep, " | ")+" |")
		}
	}
	return strings.Join(lines, "\n")
}

func truncationMarker(b notion.Block) string {
	return fmt.Sprintf("[truncated: children of %s %s not expanded]", b.Type, b.ID)
}

func indentLines(text string, indent int) string {
	if indent <= 0 {
		return text
	}
	prefix := strings.Repeat(indentUnit, indent)
	return prefix + strings.ReplaceAll(text, "\n", "\n"+prefix)
}

func joinParts(parts []string) string {
	return strings.Join(parts, "\n\n")
}
