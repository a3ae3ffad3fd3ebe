// Package entity implements memory.EntityExtractor adapters: an offline
// keyword extractor, an LLM-backed extractor, and a chain of the two.
package entity

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/skillminer/memoryd/internal/embedding"
	"github.com/skillminer/memoryd/internal/memory"
)

// Skill maps a lower-case phrase to its display form.
type Skill struct {
	Phrase  string
	Display string
}

// DefaultSkills is the technology vocabulary recognized by KeywordExtractor.
var DefaultSkills = []Skill{
	{"python", "Python"},
	{"java", "Java"},
	{"javascript", "JavaScript"},
	{"typescript", "TypeScript"},
	{"go", "Go"},
	{"golang", "Go"},
	{"rust", "Rust"},
	{"c++", "C++"},
	{"c#", "C#"},
	{"react", "React"},
	{"node.js", "Node.js"},
	{"sql", "SQL"},
	{"aws", "AWS"},
	{"gcp", "GCP"},
	{"azure", "Azure"},
	{"docker", "Docker"},
	{"kubernetes", "Kubernetes"},
	{"terraform", "Terraform"},
	{"git", "Git"},
	{"machine learning", "Machine Learning"},
	{"data analysis", "Data Analysis"},
	{"tensorflow", "TensorFlow"},
	{"pytorch", "PyTorch"},
	{"pandas", "Pandas"},
	{"numpy", "NumPy"},
	{"scikit learn", "Scikit-Learn"},
	{"mongodb", "MongoDB"},
	{"postgresql", "PostgreSQL"},
	{"postgres", "PostgreSQL"},
	{"redis", "Redis"},
	{"elasticsearch", "Elasticsearch"},
	{"kafka", "Kafka"},
	{"graphql", "GraphQL"},
	{"rest api", "REST API"},
}

// DefaultRoleKeywords mark job titles. The words around a match form the role.
var DefaultRoleKeywords = []string{
	"engineer", "developer", "manager", "analyst", "scientist", "architect",
	"director", "lead", "senior", "junior", "intern", "consultant",
}

// roleWindow is how many words on each side of a role keyword are kept.
const roleWindow = 2

// KeywordExtractor finds entities with vocabulary lists and capitalization
// cues. It needs no network and never fails.
type KeywordExtractor struct {
	skills []skillPattern
	roles  []string
	title  cases.Caser
}

type skillPattern struct {
	tokens  []string
	display string
}

var _ memory.EntityExtractor = (*KeywordExtractor)(nil)

// NewKeywordExtractor creates an extractor. Nil arguments use the defaults.
func NewKeywordExtractor(skills []Skill, roleKeywords []string) *KeywordExtractor {
	if skills == nil {
		skills = DefaultSkills
	}
	if roleKeywords == nil {
		roleKeywords = DefaultRoleKeywords
	}
	patterns := make([]skillPattern, 0, len(skills))
	for _, s := range skills {
		if toks := embedding.Tokenize(s.Phrase); len(toks) > 0 {
			patterns = append(patterns, skillPattern{tokens: toks, display: s.Display})
		}
	}
	return &KeywordExtractor{
		skills: patterns,
		roles:  roleKeywords,
		title:  cases.Title(language.English),
	}
}

// ExtractEntities implements memory.EntityExtractor.
func (x *KeywordExtractor) ExtractEntities(ctx context.Context, text string) (memory.Entities, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := memory.Entities{}
	if strings.TrimSpace(text) == "" {
		return out, nil
	}

	tokens := embedding.Tokenize(text)
	for _, p := range x.skills {
		if containsRun(tokens, p.tokens) {
			out[memory.CategorySkills] = append(out[memory.CategorySkills], p.display)
		}
	}

	for _, kw := range x.roles {
		for i, tok := range tokens {
			if tok != kw && tok != kw+"s" {
				continue
			}
			lo, hi := max(0, i-roleWindow), min(len(tokens), i+roleWindow+1)
			out[memory.CategoryRoles] = append(out[memory.CategoryRoles], x.title.String(strings.Join(tokens[lo:hi], " ")))
			break
		}
	}

	words := strings.Fields(text)
	for i, w := range words {
		switch strings.ToLower(trimPunct(w)) {
		case "at", "for", "joined":
			if name := properNounAfter(words, i); name != "" {
				out[memory.CategoryCompanies] = append(out[memory.CategoryCompanies], name)
			}
		case "in", "from":
			if name := properNounAfter(words, i); name != "" {
				out[memory.CategoryLocations] = append(out[memory.CategoryLocations], name)
			}
		}
	}
	return out.Normalize(), nil
}

func containsRun(haystack, needle []string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if slices.Equal(haystack[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}

// properNounAfter joins the capitalized words following words[i], stopping
// at the first lower-case word or at trailing punctuation.
func properNounAfter(words []string, i int) string {
	var parts []string
	for _, w := range words[i+1:] {
		clean := trimPunct(w)
		r := []rune(clean)
		if len(r) == 0 || !unicode.IsUpper(r[0]) {
			break
		}
		parts = append(parts, clean)
		if clean != w || len(parts) == 3 {
			break
		}
	}
	if len(parts) == 1 && isStopWord(parts[0]) {
		return ""
	}
	return strings.Join(parts, " ")
}

func trimPunct(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) && r != '&' && r != '+' && r != '#'
	})
}

func isStopWord(w string) bool {
	switch w {
	case "I", "The", "A", "An", "My", "Our", "This", "That":
		return true
	}
	return false
}
