package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"clienttabs/internal/apperr"
	"clienttabs/internal/store"
)

// FieldMetadata records the display position of one field. It is the only durable
// ordering of fields; physical column order is never used for display.
type FieldMetadata struct {
	ID       string `json:"id"`
	Tab      string `json:"tab_name"`
	Field    string `json:"field_name"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

// Store reads and writes _field_metadata inside the caller's transaction. Writes
// are no-ops when the target rows are absent, so a retry after a partially
// applied failure does not fail on the metadata side.
type Store struct {
	q store.Querier
}

func NewStore(q store.Querier) *Store {
	return &Store{q: q}
}

// GetPosition returns store.ErrNotFound when the field has no metadata row.
func (s *Store) GetPosition(ctx context.Context, tab, field string) (int, error) {
	var pos int
	err := s.q.QueryRowContext(ctx,
		"SELECT position FROM _field_metadata WHERE tab_name = $1 AND field_name = $2",
		tab, field).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get position %s.%s: %w", tab, field, err)
	}
	return pos, nil
}

func (s *Store) GetAllForTab(ctx context.Context, tab string) ([]FieldMetadata, error) {
	return s.list(ctx,
		"SELECT id, tab_name, field_name, label, position FROM _field_metadata WHERE tab_name = $1 ORDER BY position, field_name",
		tab)
}

// All lists the ordering metadata of every tab.
func (s *Store) All(ctx context.Context) ([]FieldMetadata, error) {
	return s.list(ctx,
		"SELECT id, tab_name, field_name, label, position FROM _field_metadata ORDER BY tab_name, position, field_name")
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]FieldMetadata, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list field metadata: %w", err)
	}
	defer rows.Close()

	out := []FieldMetadata{}
	for rows.Next() {
		var m FieldMetadata
		if err := rows.Scan(&m.ID, &m.Tab, &m.Field, &m.Label, &m.Position); err != nil {
			return nil, fmt.Errorf("scan field metadata row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecordFieldCreated stores the position of a new field together with the label
// the operator typed for it.
func (s *Store) RecordFieldCreated(ctx context.Context, tab, field, label string, position int) error {
	_, err := store.Exec(ctx, s.q,
		`INSERT INTO _field_metadata (id, tab_name, field_name, label, position) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tab_name, field_name) DO UPDATE SET label = EXCLUDED.label, position = EXCLUDED.position`,
		uuid.NewString(), tab, field, label, position)
	if err != nil {
		return fmt.Errorf("record field %s.%s: %w", tab, field, err)
	}
	return nil
}

func (s *Store) SetLabel(ctx context.Context, tab, field, label string) error {
	if _, err := store.Exec(ctx, s.q,
		"UPDATE _field_metadata SET label = $3 WHERE tab_name = $1 AND field_name = $2",
		tab, field, label); err != nil {
		return fmt.Errorf("set label of %s.%s: %w", tab, field, err)
	}
	return nil
}

func (s *Store) RenameField(ctx context.Context, oldField, newField string) error {
	if _, err := store.Exec(ctx, s.q,
		"UPDATE _field_metadata SET field_name = $2 WHERE field_name = $1", oldField, newField); err != nil {
		return fmt.Errorf("rename field metadata %s: %w", oldField, err)
	}
	return nil
}

// RenameTab moves every row of oldTab to newTab and re-namespaces the field names.
func (s *Store) RenameTab(ctx context.Context, oldTab, newTab string) error {
	if _, err := store.Exec(ctx, s.q,
		`UPDATE _field_metadata
		 SET tab_name = $2, field_name = $2 || substr(field_name, length($1) + 1)
		 WHERE tab_name = $1`, oldTab, newTab); err != nil {
		return fmt.Errorf("rename tab metadata %s: %w", oldTab, err)
	}
	return nil
}

// DeleteField removes the row and closes the gap it leaves, keeping positions dense.
func (s *Store) DeleteField(ctx context.Context, tab, field string) error {
	var pos int
	err := s.q.QueryRowContext(ctx,
		"DELETE FROM _field_metadata WHERE tab_name = $1 AND field_name = $2 RETURNING position",
		tab, field).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete field metadata %s.%s: %w", tab, field, err)
	}

	if _, err := store.Exec(ctx, s.q,
		"UPDATE _field_metadata SET position = position - 1 WHERE tab_name = $1 AND position > $2",
		tab, pos); err != nil {
		return fmt.Errorf("compact positions of %s: %w", tab, err)
	}
	return nil
}

func (s *Store) DeleteTab(ctx context.Context, tab string) error {
	if _, err := store.Exec(ctx, s.q, "DELETE FROM _field_metadata WHERE tab_name = $1", tab); err != nil {
		return fmt.Errorf("delete tab metadata %s: %w", tab, err)
	}
	return nil
}

// Reorder assigns positions 0..n-1 following fields, which must name every field
// of the tab exactly once.
func (s *Store) Reorder(ctx context.Context, tab string, fields []string) error {
	current, err := s.GetAllForTab(ctx, tab)
	if err != nil {
		return err
	}

	have := make([]string, len(current))
	for i, m := range current {
		have[i] = m.Field
	}
	want := append([]string(nil), fields...)
	sort.Strings(have)
	sort.Strings(want)
	if len(have) != len(want) {
		return apperr.Validation("fields", "order", fmt.Sprintf("expected %d fields for tab %s, got %d", len(have), tab, len(want)))
	}
	for i := range have {
		if have[i] != want[i] {
			return apperr.Validation("fields", "order", fmt.Sprintf("field order for tab %s must list each field exactly once", tab))
		}
	}

	for pos, field := range fields {
		if _, err := store.Exec(ctx, s.q,
			"UPDATE _field_metadata SET position = $3 WHERE tab_name = $1 AND field_name = $2",
			tab, field, pos); err != nil {
			return fmt.Errorf("reorder %s.%s: %w", tab, field, err)
		}
	}
	return nil
}
