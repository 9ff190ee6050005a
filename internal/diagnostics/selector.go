package diagnostics

import (
	"sort"
	"strings"
)

// Wildcard selects every language.
const Wildcard = "*"

// Selector decides which languages the coordinator tracks. The zero value
// matches nothing.
type Selector struct {
	all bool
	ids map[string]struct{}
}

func AllLanguages() Selector {
	return Selector{all: true}
}

func Language(id string) Selector {
	return Languages(id)
}

func Languages(ids ...string) Selector {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Selector{ids: set}
}

// ParseSelector builds a selector from configuration. An empty list or one
// containing Wildcard selects everything.
func ParseSelector(ids []string) Selector {
	if len(ids) == 0 {
		return AllLanguages()
	}
	for _, id := range ids {
		if id == Wildcard {
			return AllLanguages()
		}
	}
	return Languages(ids...)
}

func (s Selector) Matches(languageID string) bool {
	if s.all {
		return true
	}
	_, ok := s.ids[languageID]
	return ok
}

func (s Selector) String() string {
	if s.all {
		return Wildcard
	}
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
