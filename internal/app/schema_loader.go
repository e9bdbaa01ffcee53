package app

import (
	"context"
	"sync"

	"test-session-service/internal/domain"
)

// DefinitionProvider fetches a remote test definition and its prefill data.
type DefinitionProvider interface {
	FetchDefinition(ctx context.Context, testID, token string) (domain.DefinitionBundle, error)
}

// SchemaState is the loader's lifecycle.
type SchemaState string

const (
	SchemaIdle    SchemaState = "idle"
	SchemaLoading SchemaState = "loading"
	SchemaOK      SchemaState = "ok"
	SchemaError   SchemaState = "error"
)

// SchemaResult carries the bundle on ok, or the failure re-classified into the
// access vocabulary on error.
type SchemaResult struct {
	State   SchemaState
	Failure domain.AccessState
	Bundle  domain.DefinitionBundle
	Stale   bool
}

// SchemaLoader loads the schema of a remote test once per (test id, token).
// Failures are terminal for the key: Load never retries them.
type SchemaLoader struct {
	provider DefinitionProvider

	mu      sync.Mutex
	key     string
	gen     uint64
	current SchemaResult
	pending chan struct{}
}

func NewSchemaLoader(provider DefinitionProvider) *SchemaLoader {
	return &SchemaLoader{provider: provider, current: SchemaResult{State: SchemaIdle}}
}

// State returns the current result.
func (l *SchemaLoader) State() SchemaResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *SchemaLoader) Load(ctx context.Context, testID, token string) SchemaResult {
	key := testID + "\x1f" + token

	l.mu.Lock()
	if l.key == key && l.current.State != SchemaIdle {
		res, pending := l.current, l.pending
		l.mu.Unlock()
		if res.State != SchemaLoading {
			return res
		}
		select {
		case <-pending:
		case <-ctx.Done():
			return res
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.key != key {
			res.Stale = true
			return res
		}
		return l.current
	}
	l.gen++
	gen := l.gen
	l.key = key
	l.current = SchemaResult{State: SchemaLoading}
	pending := make(chan struct{})
	l.pending = pending
	l.mu.Unlock()

	res := l.fetch(ctx, testID, token)

	l.mu.Lock()
	defer l.mu.Unlock()
	close(pending)
	if gen != l.gen {
		res.Stale = true
		return res
	}
	l.current = res
	return res
}

func (l *SchemaLoader) fetch(ctx context.Context, testID, token string) SchemaResult {
	if testID == "" || token == "" {
		return SchemaResult{State: SchemaError, Failure: domain.AccessError}
	}
	bundle, err := l.provider.FetchDefinition(ctx, testID, token)
	if err != nil {
		return SchemaResult{State: SchemaError, Failure: domain.ClassifyAccess(err, true)}
	}
	if bundle.Prefill == nil {
		bundle.Prefill = map[string]string{}
	}
	return SchemaResult{State: SchemaOK, Bundle: bundle}
}
