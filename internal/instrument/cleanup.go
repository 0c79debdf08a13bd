package instrument

import (
	"context"
	"fmt"
	"log"

	"clienttabs/internal/store"
)

// PruneChanges deletes journal entries older than retentionDays and returns how
// many were removed. It runs on demand; nothing schedules it.
func PruneChanges(ctx context.Context, q store.Querier, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("retention must be at least one day, got %d", retentionDays)
	}
	n, err := store.Exec(ctx, q,
		"DELETE FROM _schema_changes WHERE created_at < NOW() - make_interval(days => $1)", retentionDays)
	if err != nil {
		return 0, fmt.Errorf("prune schema changes: %w", err)
	}
	if n > 0 {
		log.Printf("Journal cleanup: deleted %d schema changes older than %d days", n, retentionDays)
	}
	return n, nil
}
