package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"test-session-service/internal/domain"
)

// CatalogLoader fetches test metadata from a backing store (e.g., Postgres).
type CatalogLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.TestInfo, error)
}

// CatalogRepository caches catalog entries with TTL to avoid repeated DB hits.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedTest
}

type cachedTest struct {
	test      domain.TestInfo
	expiresAt time.Time
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTest),
	}
}

func (r *CatalogRepository) GetTest(ctx context.Context, testID string) (domain.TestInfo, error) {
	if test, ok := r.cached(testID); ok {
		return test, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		if test, ok := r.cached(testID); ok {
			return test, nil
		}

		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.TestInfo{}, err
		}

		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.cache[testID] = cachedTest{test: test, expiresAt: expiresAt}
		r.mu.Unlock()
		return test, nil
	})
	if err != nil {
		return domain.TestInfo{}, err
	}
	return result.(domain.TestInfo), nil
}

func (r *CatalogRepository) cached(testID string) (domain.TestInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[testID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.TestInfo{}, false
	}
	return entry.test, true
}

// ttlWithJitter adds up to 10% so entries loaded together expire apart.
func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader is a loader backed by an in-memory map (useful for tests/demos).
type StaticCatalogLoader struct {
	tests map[string]domain.TestInfo
}

func NewStaticCatalogLoader(tests map[string]domain.TestInfo) *StaticCatalogLoader {
	return &StaticCatalogLoader{tests: tests}
}

func (l *StaticCatalogLoader) LoadTest(_ context.Context, testID string) (domain.TestInfo, error) {
	if test, ok := l.tests[testID]; ok {
		return test, nil
	}
	return domain.TestInfo{}, domain.ErrTestNotFound
}
