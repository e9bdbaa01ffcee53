package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"
	"test-session-service/internal/domain"
)

type testRow struct {
	bun.BaseModel `bun:"table:tests"`

	ID   string          `bun:"id,pk"`
	Data json.RawMessage `bun:"data,type:jsonb"`
}

// UpsertTests writes catalog entries, replacing existing ones with the same id.
func UpsertTests(ctx context.Context, db bun.IDB, tests []domain.TestInfo) error {
	if len(tests) == 0 {
		return nil
	}
	rows := make([]testRow, 0, len(tests))
	for _, t := range tests {
		if t.ID == "" {
			return fmt.Errorf("catalog entry without id")
		}
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal test %s: %w", t.ID, err)
		}
		rows = append(rows, testRow{ID: t.ID, Data: raw})
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("data = EXCLUDED.data").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert tests: %w", err)
	}
	return nil
}
