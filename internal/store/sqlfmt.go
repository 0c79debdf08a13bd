package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// Ident quotes a (possibly schema-qualified) identifier. Every table, column,
// constraint and type name derived from operator input must reach SQL text
// through this function.
func Ident(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

// Literal quotes a string constant for statements where a bind parameter is not
// allowed (enum labels, column defaults).
func Literal(s string) string {
	return pq.QuoteLiteral(s)
}

// LockTab serialises schema mutations on the given tab names for the rest of the
// transaction. Names are locked in sorted order so that a rename (old and new name)
// cannot deadlock with another rename of the same pair.
func LockTab(ctx context.Context, q Querier, names ...string) error {
	uniq := make(map[string]bool, len(names))
	sorted := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || uniq[n] {
			continue
		}
		uniq[n] = true
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, n := range sorted {
		if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "tab:"+n); err != nil {
			return fmt.Errorf("lock tab %s: %w", n, err)
		}
	}
	return nil
}
