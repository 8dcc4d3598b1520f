// Package prompt holds the canned prompts offered to model clients and the
// heuristic that picks one for a free-form request.
package prompt

import (
	"fmt"
	"strings"

	"github.com/pagesmith/pagesmith/internal/tool"
)

// Prompt names as exposed over MCP.
const (
	DefaultName         = "default_prompt"
	StructuredNotesName = "structured_notes_prompt"
)

// Role is the author of a prompt message.
type Role string

// Roles.
const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one prompt message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// structuredKeywords switch a request to the structured notes prompt.
var structuredKeywords = []string{"guide", "tutorial", "comprehensive", "structured", "notes"}

// Select returns the name of the prompt best suited to message.
func Select(message string) string {
	lower := strings.ToLower(message)
	for _, kw := range structuredKeywords {
		if strings.Contains(lower, kw) {
			return StructuredNotesName
		}
	}
	return DefaultName
}

// Render builds the named prompt. Unknown names fall back to the default
// prompt.
func Render(name, message string, catalog []tool.Descriptor) []Message {
	if name == StructuredNotesName {
		return StructuredNotes(message)
	}
	return Default(message, catalog)
}

// Default describes the available tools and asks for a plan of tool calls
// followed by a result.
func Default(message string, catalog []tool.Descriptor) []Message {
	var b strings.Builder
	b.WriteString("You are an assistant working inside a Notion workspace. These tools are available:\n")
	for _, d := range catalog {
		params := make([]string, 0, len(d.Params))
		for _, p := range d.Params {
			params = append(params, p.Name)
		}
		fmt.Fprintf(&b, "  - %s(%s): %s\n", d.Name, strings.Join(params, ", "), d.Description)
	}
	b.WriteString("\nFor each request, decide which tools to call and with which JSON arguments. ")
	b.WriteString("Reply with a JSON object with two keys:\n")
	b.WriteString("  - actions: an array of {\"tool\": name, \"input\": args} objects\n")
	b.WriteString("  - results: the final summary, confirmation or data\n")
	return []Message{
		{Role: RoleAssistant, Content: b.String()},
		{Role: RoleUser, Content: message},
	}
}

const structuredNotes = `Work through every request step by step and answer with a structured guide.

### 1. Title and headings
- Start with a descriptive title and a numbered table of contents.
- Keep headings and subheadings consistent.

### 2. Introduction
- Give an overview, explain why the topic matters and where it applies.

### 3. Objectives
- List the learning goals as bullet points.

### 4. Background
- Explain the core concepts. Write formulas in LaTeX and define every variable.
- Use analogies or small examples for the harder ideas.

### 5. Practice
- Include commented, runnable code examples and note their prerequisites.

### 6. Visualisations
- Describe the expected outputs and how to read them.

### 7. Applications
- Give domain examples and short case studies.

### 8. Tips
- Share guidelines, common pitfalls and performance trade-offs.

### 9. Conclusion
- Summarise the key takeaways and suggest next steps.

### 10. References
- Cite sources and link documentation.

Use lists, fenced code blocks and a professional, educational tone. Check facts and do not invent them.

Now write the guide.`

// StructuredNotes asks for a long-form, sectioned guide.
func StructuredNotes(message string) []Message {
	return []Message{
		{Role: RoleAssistant, Content: structuredNotes},
		{Role: RoleUser, Content: message},
	}
}

// Summary is the instruction sent along with page text to a summarizer.
const Summary = "Here is the content of a Notion page. Give a concise summary of it."
