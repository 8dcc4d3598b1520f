package notion

import (
	"strings"
	"unicode/utf8"
)

// MaxTextLength is the largest content the API accepts in a single rich
// text object.
const MaxTextLength = 2000

// RichText is one segment of formatted text.
type RichText struct {
	Type      string       `json:"type"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
	Href      string       `json:"href,omitempty"`
}

// TextContent is the payload of a "text" rich text segment.
type TextContent struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Link is a hyperlink target.
type Link struct {
	URL string `json:"url"`
}

// Text converts s into rich text segments, splitting it so that no segment
// exceeds MaxTextLength characters. An empty string yields no segments.
func Text(s string) []RichText {
	if s == "" {
		return nil
	}
	var out []RichText
	for s != "" {
		cut := len(s)
		if utf8.RuneCountInString(s) > MaxTextLength {
			cut = 0
			for i := 0; i < MaxTextLength; i++ {
				_, size := utf8.DecodeRuneInString(s[cut:])
				cut += size
			}
		}
		out = append(out, RichText{Type: "text", Text: &TextContent{Content: s[:cut]}})
		s = s[cut:]
	}
	return out
}

// Plain concatenates the visible text of the segments.
func Plain(rt []RichText) string {
	var b strings.Builder
	for _, r := range rt {
		switch {
		case r.PlainText != "":
			b.WriteString(r.PlainText)
		case r.Text != nil:
			b.WriteString(r.Text.Content)
		}
	}
	return b.String()
}
