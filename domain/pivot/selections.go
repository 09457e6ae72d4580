package pivot

import (
	"sort"
	"strings"
)

// Selections maps a field, and its lowercase alias, to the values currently
// included for it. Both keys are kept in sync because backend column casing
// does not always match the names chosen in the UI.
type Selections map[string][]string

// Clone returns a deep copy
func (s Selections) Clone() Selections {
	out := make(Selections, len(s))
	for k, v := range s {
		out[k] = cloneStrings(v)
	}
	return out
}

// Lookup returns the selection for field by exact key, then lowercase key,
// then any key equal under case folding.
func (s Selections) Lookup(field string) ([]string, bool) {
	if v, ok := s[field]; ok {
		return v, true
	}
	if v, ok := s[strings.ToLower(field)]; ok {
		return v, true
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, field) {
			return s[k], true
		}
	}
	return nil, false
}

// nonEmpty returns the first non-empty selection stored under the exact or
// lowercase key of field.
func (s Selections) nonEmpty(field string) []string {
	if v := s[field]; len(v) > 0 {
		return v
	}
	if v := s[strings.ToLower(field)]; len(v) > 0 {
		return v
	}
	return nil
}

func (s Selections) set(field string, values []string) {
	s[field] = cloneStrings(values)
	s[strings.ToLower(field)] = cloneStrings(values)
}

func (s Selections) remove(field string) {
	delete(s, field)
	delete(s, strings.ToLower(field))
}

// Reconcile derives the selection map for the given active filter fields.
// Active fields without a non-empty selection default to every catalog value;
// keys belonging to no active field are dropped. current is not modified.
func Reconcile(active []string, current Selections, catalog *Catalog) Selections {
	keep := make(map[string]bool, len(active)*2)
	for _, f := range active {
		keep[f] = true
		keep[strings.ToLower(f)] = true
	}

	next := make(Selections, len(active)*2)
	for k, v := range current {
		if keep[k] {
			next[k] = cloneStrings(v)
		}
	}

	for _, f := range active {
		sel := current.nonEmpty(f)
		if len(sel) == 0 {
			sel = catalog.Options(f)
		}
		next.set(f, sel)
	}
	return next
}
