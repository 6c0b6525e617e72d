package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/database"
)

// HistoryRepository persists emitted alerts in the local alert_log table.
type HistoryRepository struct {
	db *database.DB
}

// NewHistoryRepository creates a repository over the local database.
func NewHistoryRepository(db *database.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append records one emitted alert.
func (r *HistoryRepository) Append(ctx context.Context, a Alert) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO alert_log (device_id, channel, label, value, emitted_at) VALUES (?, ?, ?, ?, ?)",
		a.DeviceID, string(a.Channel), a.Label, a.Value, a.EmittedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("appending alert: %w", err)
	}
	return nil
}

// Recent returns up to limit alerts, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT device_id, channel, label, value, emitted_at FROM alert_log ORDER BY emitted_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying alert history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only query cleanup

	var alerts []Alert
	for rows.Next() {
		var (
			a       Alert
			channel string
		)
		if err := rows.Scan(&a.DeviceID, &channel, &a.Label, &a.Value, &a.EmittedAt); err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		a.Channel = Channel(channel)
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alert rows: %w", err)
	}
	return alerts, nil
}

// Purge deletes alerts emitted before the cutoff and returns how many
// rows went.
func (r *HistoryRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM alert_log WHERE emitted_at < ?", before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purging alert history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged alerts: %w", err)
	}
	return n, nil
}
