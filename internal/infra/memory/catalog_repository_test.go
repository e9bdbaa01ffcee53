package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"test-session-service/internal/domain"
)

func TestCatalogRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		CatalogLoader: NewStaticCatalogLoader(map[string]domain.TestInfo{
			"belbin_9_individual": sampleTest(),
		}),
	}
	repo := NewCatalogRepository(loader, time.Minute)

	if _, err := repo.GetTest(context.Background(), "belbin_9_individual"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader once, got %d", loader.count())
	}

	test, err := repo.GetTest(context.Background(), "belbin_9_individual")
	if err != nil {
		t.Fatalf("get test 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.count())
	}
	if !test.IsRemote() {
		t.Fatalf("expected remote test, got %+v", test)
	}
}

func TestCatalogRepositoryExpires(t *testing.T) {
	loader := &countingLoader{
		CatalogLoader: NewStaticCatalogLoader(map[string]domain.TestInfo{
			"belbin_9_individual": sampleTest(),
		}),
	}
	repo := NewCatalogRepository(loader, time.Minute)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetTest(context.Background(), "belbin_9_individual"); err != nil {
		t.Fatalf("get test: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetTest(context.Background(), "belbin_9_individual"); err != nil {
		t.Fatalf("get test after ttl: %v", err)
	}
	if loader.count() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.count())
	}
}

func TestCatalogRepositoryNotFound(t *testing.T) {
	repo := NewCatalogRepository(NewStaticCatalogLoader(nil), time.Minute)
	if _, err := repo.GetTest(context.Background(), "missing"); !errors.Is(err, domain.ErrTestNotFound) {
		t.Fatalf("expected ErrTestNotFound, got %v", err)
	}
}

type countingLoader struct {
	CatalogLoader
	mu    sync.Mutex
	calls int
}

func (l *countingLoader) LoadTest(ctx context.Context, testID string) (domain.TestInfo, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.CatalogLoader.LoadTest(ctx, testID)
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func sampleTest() domain.TestInfo {
	return domain.TestInfo{
		ID:               "belbin_9_individual",
		Title:            "Belbin team roles",
		Price:            490000,
		DefinitionSource: domain.SourceRemote,
	}
}
