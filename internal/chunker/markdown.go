package chunker

import (
	"regexp"
	"strings"
)

var (
	numberedRe  = regexp.MustCompile(`^\d+[.)]\s+`)
	alignmentRe = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?$`)
)

// ParseMarkdown splits a markdown-like document into content units.
//
// Recognised syntax: "#" to "###" headings (deeper levels clamp to 3),
// "- " and "* " bullets, "1. " numbered items, "- [ ]" and "- [x]" to-dos,
// "> " quotes, fenced code blocks, "---" dividers and "|" tables. Blank
// lines and headings without text are skipped, and anything else becomes a
// paragraph. Table rows are padded to the widest row, and the first row is
// treated as the header. A table needs at least two cells; a lone "| x |"
// row stays a paragraph.
func ParseMarkdown(src string) []Unit {
	var (
		units []Unit
		table [][]string
		raw   []string
	)
	flush := func() {
		if len(table) == 0 {
			return
		}
		rows := padRows(table)
		if len(rows)*len(rows[0]) < 2 {
			for _, line := range raw {
				units = append(units, Unit{Kind: KindParagraph, Text: line})
			}
		} else {
			units = append(units, TableUnit(rows, true, false))
		}
		table, raw = nil, nil
	}

	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "|") || (len(table) > 0 && strings.Contains(trimmed, "|")) {
			if !alignmentRe.MatchString(trimmed) {
				table = append(table, splitRow(trimmed))
				raw = append(raw, trimmed)
			}
			continue
		}
		flush()

		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "```"):
			lang := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
			var body []string
			for i++; i < len(lines); i++ {
				if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
					break
				}
				body = append(body, lines[i])
			}
			units = append(units, Unit{Kind: KindCode, Text: strings.Join(body, "\n"), Language: lang})
		case strings.HasPrefix(trimmed, "#"):
			level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
			text := strings.TrimSpace(trimmed[level:])
			if text == "" {
				continue
			}
			units = append(units, Unit{
				Kind:  KindHeading,
				Level: min(level, 3),
				Text:  text,
			})
		case trimmed == "---" || trimmed == "***" || trimmed == "___":
			units = append(units, Unit{Kind: KindDivider})
		case hasToDoPrefix(trimmed):
			units = append(units, Unit{
				Kind:    KindToDo,
				Checked: trimmed[3] == 'x' || trimmed[3] == 'X',
				Text:    strings.TrimSpace(trimmed[5:]),
			})
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			units = append(units, Unit{Kind: KindBulleted, Text: strings.TrimSpace(trimmed[2:])})
		case numberedRe.MatchString(trimmed):
			units = append(units, Unit{Kind: KindNumbered, Text: numberedRe.ReplaceAllString(trimmed, "")})
		case strings.HasPrefix(trimmed, ">"):
			units = append(units, Unit{Kind: KindQuote, Text: strings.TrimSpace(strings.TrimPrefix(trimmed, ">"))})
		default:
			units = append(units, Unit{Kind: KindParagraph, Text: line})
		}
	}
	flush()
	return units
}

// hasToDoPrefix matches "- [ ] ", "- [x] " and "- [X] " (the trailing space
// may be omitted for an empty item).
func hasToDoPrefix(s string) bool {
	if len(s) < 5 || !strings.HasPrefix(s, "- [") || s[4] != ']' {
		return false
	}
	switch s[3] {
	case ' ', 'x', 'X':
	default:
		return false
	}
	return len(s) == 5 || s[5] == ' '
}

func splitRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i, c := range cells {
		cells[i] = strings.TrimSpace(c)
	}
	return cells
}

func padRows(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		width = max(width, len(r))
	}
	for i, r := range rows {
		for len(r) < width {
			r = append(r, "")
		}
		rows[i] = r
	}
	return rows
}
