package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"test-session-service/internal/domain"
)

// CatalogLoader loads catalog entries stored as JSONB in Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadTest(ctx context.Context, testID string) (domain.TestInfo, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM tests WHERE id=$1`, testID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TestInfo{}, domain.ErrTestNotFound
	}
	if err != nil {
		return domain.TestInfo{}, fmt.Errorf("load test: %w", err)
	}
	var test domain.TestInfo
	if err := json.Unmarshal(raw, &test); err != nil {
		return domain.TestInfo{}, fmt.Errorf("unmarshal test: %w", err)
	}
	if test.ID == "" {
		test.ID = testID
	}
	return test, nil
}
