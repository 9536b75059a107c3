package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/surveil/internal/decision"
)

// Store is a decision.Store backed by SQLite. The full decision document is
// kept as JSON next to the indexed columns.
type Store struct {
	db *sql.DB
}

// Save inserts d, replacing any previous decision for the same alert.
func (s *Store) Save(ctx context.Context, d decision.Decision) error {
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("sqlite: marshal decision: %w", err)
	}
	decidedAt := d.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (alert_id, category, determination, fallback, document, decided_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(alert_id) DO UPDATE SET
			category = excluded.category,
			determination = excluded.determination,
			fallback = excluded.fallback,
			document = excluded.document,
			decided_at = excluded.decided_at,
			updated_at = excluded.updated_at`,
		d.AlertID, string(d.Category), string(d.Determination), boolInt(d.Fallback),
		string(doc), decidedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save decision %s: %w", d.AlertID, err)
	}
	return nil
}

// Load returns the decision stored for alertID.
func (s *Store) Load(ctx context.Context, alertID string) (decision.Decision, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, "SELECT document FROM decisions WHERE alert_id = ?", alertID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return decision.Decision{}, fmt.Errorf("%w: %s", decision.ErrNotFound, alertID)
	}
	if err != nil {
		return decision.Decision{}, fmt.Errorf("sqlite: load decision %s: %w", alertID, err)
	}

	var d decision.Decision
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return decision.Decision{}, fmt.Errorf("sqlite: decode decision %s: %w", alertID, err)
	}
	return d, nil
}

// Summary counts stored decisions per category and determination.
func (s *Store) Summary(ctx context.Context) (map[string]map[decision.Determination]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, determination, COUNT(*)
		FROM decisions
		GROUP BY category, determination
		ORDER BY category, determination`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: summarise decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]map[decision.Determination]int)
	for rows.Next() {
		var (
			category, determination string
			n                       int
		)
		if err := rows.Scan(&category, &determination, &n); err != nil {
			return nil, fmt.Errorf("sqlite: scan summary: %w", err)
		}
		if out[category] == nil {
			out[category] = make(map[decision.Determination]int)
		}
		out[category][decision.Determination(determination)] = n
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
