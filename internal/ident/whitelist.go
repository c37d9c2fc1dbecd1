package ident

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DemoAlias is the alias of the primary (demographics) table in every query.
const DemoAlias = "demo"

// SupportedExtensions lists the data-file extensions a whitelist is built from.
var SupportedExtensions = []string{".csv", ".parquet"}

// Whitelist is the set of table names a query may reference.
//
// Members are stored in sanitized form. Build one with NewWhitelist or
// WhitelistFromListing; the zero value rejects everything.
type Whitelist struct {
	names map[string]struct{}
}

// NewWhitelist sanitizes and collects names.
func NewWhitelist(names ...string) Whitelist {
	wl := Whitelist{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		wl.names[Sanitize(n)] = struct{}{}
	}
	return wl
}

// WhitelistFromListing builds a whitelist from file names in a data directory.
// Only supported data files contribute; their extension is stripped.
func WhitelistFromListing(files []string) Whitelist {
	var names []string
	for _, f := range files {
		if stem, ok := TableStem(f); ok {
			names = append(names, stem)
		}
	}
	return NewWhitelist(names...)
}

// TableStem returns the base name of a supported data file without its
// extension. ok is false for unsupported files.
func TableStem(file string) (stem string, ok bool) {
	base := filepath.Base(file)
	ext := strings.ToLower(filepath.Ext(base))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return strings.TrimSuffix(base, filepath.Ext(base)), true
		}
	}
	return "", false
}

// Contains reports whether name is a member as given.
func (w Whitelist) Contains(name string) bool {
	_, ok := w.names[name]
	return ok
}

// Len returns the number of members.
func (w Whitelist) Len() int {
	return len(w.names)
}

// Names returns the members in sorted order.
func (w Whitelist) Names() []string {
	out := make([]string, 0, len(w.names))
	for n := range w.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ValidateTable accepts name if its raw or sanitized form is whitelisted.
// It returns the whitelisted member and true, or "" and false.
func ValidateTable(name string, wl Whitelist) (string, bool) {
	if wl.Contains(name) {
		return name, true
	}
	if clean := Sanitize(name); wl.Contains(clean) {
		return clean, true
	}
	return "", false
}

// ValidateColumn accepts name if its raw or sanitized form is in allowed.
// It returns the sanitized name and true, or "" and false.
func ValidateColumn(name string, allowed []string) (string, bool) {
	clean := Sanitize(name)
	for _, a := range allowed {
		if a == name || a == clean {
			return clean, true
		}
	}
	return "", false
}

// Demo returns the primary table alias.
func Demo() Identifier {
	return Identifier{name: DemoAlias}
}

// TableAlias returns the alias a table is joined under.
//
// The primary table is always aliased DemoAlias. Other tables use their
// sanitized name, prefixed "tbl_" if that would collide with the demo alias
// or a reserved word.
func TableAlias(table, primary string) Identifier {
	clean := Sanitize(table)
	if clean == Sanitize(primary) {
		return Demo()
	}
	if clean == DemoAlias || IsReserved(clean) {
		clean = Sanitize("tbl_" + clean)
	}
	return Identifier{name: clean}
}

// Columns sanitizes a header row. Names that collide after sanitizing get
// a numeric suffix: "a b" and "a_b" become "a_b" and "a_b_2".
func Columns(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, name := range raw {
		clean := Sanitize(name)
		candidate := clean
		stem := clean
		if len(stem) > MaxLength-8 {
			stem = stem[:MaxLength-8]
		}
		for n := 2; seen[candidate]; n++ {
			candidate = Sanitize(fmt.Sprintf("%s_%d", stem, n))
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}
