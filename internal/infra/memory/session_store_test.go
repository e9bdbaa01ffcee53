package memory

import (
	"context"
	"testing"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected missing envelope, ok=%v err=%v", ok, err)
	}

	value := []byte(`{"version":2}`)
	if err := store.Put(ctx, "k", value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'x'

	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected envelope, ok=%v err=%v", ok, err)
	}
	if string(got) != `{"version":2}` {
		t.Fatalf("stored envelope aliased caller buffer: %s", got)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
}
