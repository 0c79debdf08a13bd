// Package instrument keeps the journal of schema changes. Entries are written in
// the same transaction as the DDL they describe, so a rolled back mutation leaves
// no entry behind.
package instrument

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"clienttabs/internal/store"
)

// Schema change actions.
const (
	ActionCreateTab   = "create_tab"
	ActionRenameTab   = "rename_tab"
	ActionDeleteTab   = "delete_tab"
	ActionCreateField = "create_field"
	ActionUpdateField = "update_field"
	ActionDeleteField = "delete_field"
	ActionReorder     = "reorder_fields"
)

// Change is one journal entry.
type Change struct {
	Action string
	Tab    string
	Field  string
	Detail map[string]any
}

// Recorder appends changes to the journal.
type Recorder interface {
	Record(ctx context.Context, q store.Querier, ch Change) error
}

// Journal writes to _schema_changes.
type Journal struct{}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Record(ctx context.Context, q store.Querier, ch Change) error {
	detail := []byte("{}")
	if len(ch.Detail) > 0 {
		b, err := json.Marshal(ch.Detail)
		if err != nil {
			return fmt.Errorf("marshal change detail: %w", err)
		}
		detail = b
	}

	_, err := store.Exec(ctx, q,
		`INSERT INTO _schema_changes (id, action, tab_name, field_name, detail) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), ch.Action, ch.Tab, ch.Field, string(detail))
	if err != nil {
		return fmt.Errorf("record %s on %s: %w", ch.Action, ch.Tab, err)
	}
	return nil
}
