package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"test-session-service/internal/domain"
	"test-session-service/internal/infra/memory"
)

// CatalogRepository caches catalog entries in Redis (one JSON string per test)
// and falls back to a loader on cache miss.
//
//	SET test:{testID}:info {json} EX ttl
type CatalogRepository struct {
	client *redis.Client
	loader memory.CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader memory.CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetTest(ctx context.Context, testID string) (domain.TestInfo, error) {
	key := r.infoKey(testID)
	if test, ok := r.cached(ctx, key); ok {
		return test, nil
	}

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if test, ok := r.cached(ctx, key); ok {
			return test, nil
		}

		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.TestInfo{}, err
		}

		raw, err := json.Marshal(test)
		if err != nil {
			return test, nil
		}
		if err := r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err(); err != nil {
			log.Printf("catalog cache: set %s: %v", key, err)
		}
		return test, nil
	})
	if err != nil {
		return domain.TestInfo{}, err
	}
	return result.(domain.TestInfo), nil
}

// Invalidate drops the cached entry so the next read hits the loader.
func (r *CatalogRepository) Invalidate(ctx context.Context, testID string) error {
	return r.client.Del(ctx, r.infoKey(testID)).Err()
}

func (r *CatalogRepository) cached(ctx context.Context, key string) (domain.TestInfo, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("catalog cache: get %s: %v", key, err)
		}
		return domain.TestInfo{}, false
	}
	var test domain.TestInfo
	if err := json.Unmarshal(raw, &test); err != nil {
		log.Printf("catalog cache: decode %s: %v", key, err)
		return domain.TestInfo{}, false
	}
	return test, true
}

func (r *CatalogRepository) infoKey(testID string) string {
	return "test:" + testID + ":info"
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
