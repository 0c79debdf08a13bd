package instrument

import (
	"context"

	"clienttabs/internal/store"
)

// NoopRecorder discards changes. Used by tests that do not assert on the journal.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, store.Querier, Change) error { return nil }
