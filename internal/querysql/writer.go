package querysql

import (
	"strings"

	"github.com/roach88/cohort/internal/ident"
)

// token is a fixed fragment of SQL syntax.
//
// CRITICAL: tokens are only ever package constants. Names enter the SQL text
// as ident.Identifier, values as bound placeholders. Nothing else is appended.
type token string

const (
	tokSelect      token = "SELECT "
	tokCountPrefix token = "COUNT(DISTINCT "
	tokCountSuffix token = ") AS participant_count "
	tokFrom        token = "FROM "
	tokAs          token = " AS "
	tokLeftJoin    token = " LEFT JOIN "
	tokOn          token = " ON "
	tokEquals      token = " = "
	tokDot         token = "."
	tokWhere       token = " WHERE "
	tokAnd         token = " AND "
	tokOr          token = " OR "
	tokBetween     token = " BETWEEN ? AND ?"
	tokIn          token = " IN "
	tokLike        token = " LIKE ? ESCAPE '\\'"
	tokOpen        token = "("
	tokClose       token = ")"
	tokComma       token = ", "
	tokPlaceholder token = "?"
	tokSpace       token = " "
)

// writer is an append-only SQL builder.
//
// It has no method that accepts a plain string, so untrusted text can only
// reach the output through ident.Safe.
type writer struct {
	sb     strings.Builder
	params []any
}

func (w *writer) tok(t token) *writer {
	w.sb.WriteString(string(t))
	return w
}

func (w *writer) ident(id ident.Identifier) *writer {
	w.sb.WriteString(id.String())
	return w
}

// column writes alias.col.
func (w *writer) column(alias, col ident.Identifier) *writer {
	return w.ident(alias).tok(tokDot).ident(col)
}

// bind records params for placeholders already present in the last token.
func (w *writer) bind(values ...any) *writer {
	w.params = append(w.params, values...)
	return w
}

// bindList writes "(?, ?, ...)" with one placeholder per value.
func (w *writer) bindList(values []any) *writer {
	w.tok(tokOpen)
	for i, v := range values {
		if i > 0 {
			w.tok(tokComma)
		}
		w.tok(tokPlaceholder).bind(v)
	}
	return w.tok(tokClose)
}

// append copies another writer's text and params onto w.
func (w *writer) append(other *writer) *writer {
	w.sb.WriteString(other.sb.String())
	w.params = append(w.params, other.params...)
	return w
}

// appendFragment copies an already built fragment onto w.
func (w *writer) appendFragment(f Fragment) *writer {
	w.sb.WriteString(f.SQL)
	w.params = append(w.params, f.Params...)
	return w
}

func (w *writer) String() string {
	return w.sb.String()
}

func (w *writer) Params() []any {
	out := make([]any, len(w.params))
	copy(out, w.params)
	return out
}
