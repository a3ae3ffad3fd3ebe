package security

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches config keys whose string values are secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_?key|credential|dsn)`)

// notSecretKey matches keys that merely name where a secret lives, or hold
// numeric budgets that happen to contain "token".
var notSecretKey = regexp.MustCompile(`(?i)(_env|_file|tokens)$`)

// Pattern is a named secret format. Replace is the regexp replacement
// template; empty means the whole match becomes RedactPlaceholder.
type Pattern struct {
	Name    string
	Re      *regexp.Regexp
	Replace string
}

// Redactor masks secrets in log output and in "memoryd config show".
// Provider keys and DSN passwords are recognised by format; values read
// from the configuration are registered as literals at startup.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []Pattern
	literals []string
	replacer *strings.Replacer
}

// NewRedactor creates a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an additional secret format.
func (r *Redactor) AddPattern(p Pattern) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, p)
}

// AddLiteral registers a secret value to mask wherever it appears.
// Empty strings and duplicates are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.literals, secret) {
		return
	}
	r.literals = append(r.literals, secret)
	// Longest first, so a secret that contains another is masked whole.
	slices.SortFunc(r.literals, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	pairs := make([]string, 0, 2*len(r.literals))
	for _, lit := range r.literals {
		pairs = append(pairs, lit, RedactPlaceholder)
	}
	r.replacer = strings.NewReplacer(pairs...)
}

// Redact masks every known secret in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	patterns, replacer := r.patterns, r.replacer
	r.mu.RUnlock()

	if replacer != nil {
		s = replacer.Replace(s)
	}
	for _, p := range patterns {
		if p.Replace == "" {
			s = p.Re.ReplaceAllLiteralString(s, RedactPlaceholder)
		} else {
			s = p.Re.ReplaceAllString(s, p.Replace)
		}
	}
	return s
}

// RedactMap masks, in place, secret-named values and any known secret
// embedded in other strings of a decoded YAML or JSON document.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if isSecretKey(k) {
			if s, ok := v.(string); ok && s != "" {
				m[k] = RedactPlaceholder
				continue
			}
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
	case string:
		return r.Redact(val)
	}
	return v
}

// CollectSecrets returns the non-empty string values stored under
// secret-named keys anywhere in m, for registration with AddLiteral.
func CollectSecrets(m map[string]any) []string {
	var out []string
	var walk func(v any, key string)
	walk = func(v any, key string) {
		switch val := v.(type) {
		case map[string]any:
			for k, sub := range val {
				walk(sub, k)
			}
		case []any:
			for _, item := range val {
				walk(item, key)
			}
		case string:
			if val != "" && isSecretKey(key) {
				out = append(out, val)
			}
		}
	}
	walk(m, "")
	slices.Sort(out)
	return slices.Compact(out)
}

func isSecretKey(k string) bool {
	return secretKeyPattern.MatchString(k) && !notSecretKey.MatchString(k)
}

// DefaultPatterns returns the secret formats memoryd's own configuration
// can contain: LLM provider keys and database connection strings.
func DefaultPatterns() []Pattern {
	return []Pattern{
		// Anthropic before OpenAI so the shorter pattern does not split it.
		{Name: "anthropic", Re: regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]{20,}`)},
		{Name: "openai", Re: regexp.MustCompile(`sk-(proj-|svcacct-)?[a-zA-Z0-9_\-]{20,}`)},
		// Keeps scheme, user and host so failed dials stay debuggable.
		{
			Name:    "dsn-password",
			Re:      regexp.MustCompile(`((?:postgres(?:ql)?|mysql|redis)://[^:/@\s]+:)[^@\s]+@`),
			Replace: "${1}" + RedactPlaceholder + "@",
		},
		{Name: "dsn-param", Re: regexp.MustCompile(`(?i)(password=)[^\s&]+`), Replace: "${1}" + RedactPlaceholder},
		{Name: "bearer", Re: regexp.MustCompile(`(?i)(bearer )[a-zA-Z0-9\-._~+/]{16,}=*`), Replace: "${1}" + RedactPlaceholder},
		{Name: "aws-access-key", Re: regexp.MustCompile(`AKIA[A-Z0-9]{16}`)},
	}
}
