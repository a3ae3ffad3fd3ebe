package memory

import (
	"maps"
	"slices"
	"strings"
)

// Category is an entity category. The set is fixed; extractors map anything
// they do not recognise to CategoryOther.
type Category string

// Entity categories.
const (
	CategorySkills    Category = "skills"
	CategoryCompanies Category = "companies"
	CategoryRoles     Category = "roles"
	CategoryLocations Category = "locations"
	CategoryOther     Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategorySkills,
	CategoryCompanies,
	CategoryRoles,
	CategoryLocations,
	CategoryOther,
}

// ParseCategory maps a free-form category name onto the fixed schema.
func ParseCategory(s string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategorySkills, CategoryCompanies, CategoryRoles, CategoryLocations:
		return c
	case "skill", "technologies", "technology", "tools":
		return CategorySkills
	case "company", "organizations", "organization", "employers":
		return CategoryCompanies
	case "role", "titles", "title", "positions", "jobs":
		return CategoryRoles
	case "location", "places", "place", "cities":
		return CategoryLocations
	default:
		return CategoryOther
	}
}

// Entities maps a category to the distinct entity strings found in a text.
type Entities map[Category][]string

// Normalize returns a copy that only uses known categories, with blank
// values removed, duplicates dropped case-insensitively, and empty categories
// omitted. First occurrence order is preserved.
func (e Entities) Normalize() Entities {
	out := make(Entities)
	seen := make(map[Category]map[string]struct{})
	// Sorted so values folded into "other" keep a stable order.
	keys := slices.Sorted(maps.Keys(e))
	for _, key := range keys {
		cat := ParseCategory(string(key))
		for _, v := range e[key] {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if seen[cat] == nil {
				seen[cat] = make(map[string]struct{})
			}
			k := strings.ToLower(v)
			if _, dup := seen[cat][k]; dup {
				continue
			}
			seen[cat][k] = struct{}{}
			out[cat] = append(out[cat], v)
		}
	}
	return out
}

// Merge appends the values of other into e, dropping duplicates.
func (e Entities) Merge(other Entities) Entities {
	combined := make(Entities, len(e)+len(other))
	for _, src := range []Entities{e, other} {
		for k, v := range src {
			combined[k] = append(combined[k], v...)
		}
	}
	return combined.Normalize()
}

// Empty reports whether no category has any value.
func (e Entities) Empty() bool {
	for _, v := range e {
		if len(v) > 0 {
			return false
		}
	}
	return true
}
