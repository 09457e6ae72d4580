package pivot

import "strings"

// Catalog is the read-only field list of a data source together with the
// distinct values observed per field. Option lookups accept the exact field
// name or its lowercase alias.
type Catalog struct {
	fields  []string
	known   map[string]bool
	options map[string][]string
}

// NewCatalog builds a catalog. options may be keyed by exact or lowercase name.
func NewCatalog(fields []string, options map[string][]string) *Catalog {
	c := &Catalog{
		fields:  make([]string, 0, len(fields)),
		known:   make(map[string]bool, len(fields)),
		options: make(map[string][]string, len(options)*2),
	}
	for _, f := range fields {
		if f == "" || c.known[f] {
			continue
		}
		c.fields = append(c.fields, f)
		c.known[f] = true
	}
	for field, values := range options {
		vals := dedupe(values)
		c.options[field] = vals
		lower := strings.ToLower(field)
		if _, exists := c.options[lower]; !exists || lower == field {
			c.options[lower] = vals
		}
	}
	return c
}

// Fields returns the ordered field names
func (c *Catalog) Fields() []string {
	if c == nil {
		return []string{}
	}
	return cloneStrings(c.fields)
}

// Has reports whether field is a known field (exact name)
func (c *Catalog) Has(field string) bool {
	return c != nil && c.known[field]
}

// Options returns the distinct values for field, looked up by exact then
// lowercase name. The returned slice is a copy.
func (c *Catalog) Options(field string) []string {
	if c == nil {
		return []string{}
	}
	if vals, ok := c.options[field]; ok {
		return cloneStrings(vals)
	}
	if vals, ok := c.options[strings.ToLower(field)]; ok {
		return cloneStrings(vals)
	}
	return []string{}
}

// IsFullSelection reports whether selection covers the whole catalog for
// field, which the compute request treats as no restriction.
func (c *Catalog) IsFullSelection(field string, selection []string) bool {
	return len(selection) == len(c.Options(field))
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
