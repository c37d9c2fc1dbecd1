// Package ident turns untrusted names into SQL identifiers.
//
// Every table and column name that reaches generated SQL passes through
// Sanitize (directly or via Safe). Values never do: values are always bound
// as parameters by the querysql package.
package ident

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the maximum length of a sanitized identifier.
const MaxLength = 64

// Fallback is returned when nothing usable survives sanitization.
const Fallback = "safe_identifier"

// safePrefix is prepended to reserved words and names starting with a digit.
const safePrefix = "safe_"

var (
	controlChars   = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	commentMarkers = regexp.MustCompile(`--|/\*|\*/`)
	droppedChars   = regexp.MustCompile("['\"`;\\\\]")
	unsafeChars    = regexp.MustCompile(`[^A-Za-z0-9_]`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// reserved holds SQL words that must never appear bare as an identifier.
// Lookup is on the upper-cased whole identifier.
var reserved = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"CREATE": true, "ALTER": true, "UNION": true, "WHERE": true, "FROM": true,
	"JOIN": true, "HAVING": true, "GROUP": true, "ORDER": true, "BY": true,
	"EXEC": true, "EXECUTE": true, "SCRIPT": true, "TRUNCATE": true, "MERGE": true,
	"GRANT": true, "REVOKE": true, "TABLE": true, "DATABASE": true, "INDEX": true,
	"VIEW": true, "PROCEDURE": true, "FUNCTION": true, "ATTACH": true, "DETACH": true,
	"PRAGMA": true, "AND": true, "OR": true, "NOT": true, "NULL": true, "AS": true,
	"ON": true, "IN": true, "LIKE": true, "BETWEEN": true, "LIMIT": true,
	"SET": true, "INTO": true, "VALUES": true, "DISTINCT": true,
}

// foldAccents strips combining marks so "Âge" becomes "Age".
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Sanitize returns a string safe to splice into SQL as an identifier.
//
// The result always matches ^[A-Za-z][A-Za-z0-9_]*$, is at most MaxLength
// bytes and is never a reserved word. Sanitize is idempotent.
//
// Steps, in order:
//  1. fold accents
//  2. drop control characters
//  3. drop comment markers (--, /*, */)
//  4. drop quotes, backticks, semicolons and backslashes
//  5. replace whitespace and other punctuation with "_"
//  6. collapse "_" runs and trim them from both ends
//  7. empty → Fallback; reserved word → "safe_" prefix; leading digit → "safe_" prefix
//  8. truncate to MaxLength
func Sanitize(raw string) string {
	s, _, err := transform.String(foldAccents, raw)
	if err != nil {
		s = raw
	}
	s = controlChars.ReplaceAllString(s, "")
	s = commentMarkers.ReplaceAllString(s, "")
	s = droppedChars.ReplaceAllString(s, "")
	s = unsafeChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")

	if s == "" {
		return Fallback
	}
	if IsReserved(s) {
		s = safePrefix + s
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = safePrefix + s
	}
	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "_")
	}
	return s
}

// IsReserved reports whether s, compared case-insensitively, is a reserved word.
func IsReserved(s string) bool {
	return reserved[strings.ToUpper(s)]
}

// Identifier is a name that has been through Sanitize.
//
// The zero value is not valid. Obtain one with Safe or the Validate*
// functions; the querysql writer accepts nothing else for names.
type Identifier struct {
	name string
}

// Safe sanitizes raw and wraps the result.
func Safe(raw string) Identifier {
	return Identifier{name: Sanitize(raw)}
}

// String returns the sanitized name.
func (id Identifier) String() string {
	return id.name
}

// IsZero reports whether id was never initialised.
func (id Identifier) IsZero() bool {
	return id.name == ""
}
