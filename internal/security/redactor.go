package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys that likely contain secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|pass|api_key|apikey|credential|authorization)`)

// Redactor replaces secret values in strings and maps with a placeholder.
// Known token shapes are matched by regex; tokens loaded from configuration
// are registered as literals. All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: DefaultPatterns(),
	}
}

// AddPattern adds a compiled regex pattern to the redactor.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers a secret value that should be redacted on sight.
// Empty strings and duplicates are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lit := range r.literals {
		if lit == secret {
			return
		}
	}
	r.literals = append(r.literals, secret)
}

// Redact replaces every known pattern and literal in s with RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	// Literals first so a configured token is replaced whole even when a
	// pattern would only match its tail.
	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// RedactMap walks m in place. Non-empty string values under secret-looking
// keys are replaced outright; every other string is passed through Redact.
// Used when the effective configuration is printed.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		switch val := v.(type) {
		case map[string]any:
			r.RedactMap(val)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					r.RedactMap(sub)
				}
			}
		case string:
			if redacted := r.Redact(val); redacted != val {
				m[k] = redacted
			}
		}
	}
}

// IsSecretKey reports whether a configuration key names a credential.
func IsSecretKey(key string) bool {
	return secretKeyPattern.MatchString(key)
}

// DefaultPatterns returns compiled patterns for the credentials this
// service handles: Notion integration tokens, OpenAI keys and bearer headers.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Notion internal integration tokens, legacy and current prefixes.
		regexp.MustCompile(`(secret_|ntn_)[A-Za-z0-9]{20,}`),
		// OpenAI: sk-... and sk-proj-...
		regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_\-]{20,}`),
		// Authorization header values.
		regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]{16,}`),
	}
}
