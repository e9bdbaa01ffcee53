package app

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"test-session-service/internal/domain"
)

// TokenValidator checks a single-use token with the issuer and returns the
// opaque user-context payload on success.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (json.RawMessage, error)
}

// AccessResult is the gate's view for one token.
type AccessResult struct {
	Token string
	State domain.AccessState
	Data  json.RawMessage
	// Stale is set on results that arrived after the gate moved to another token.
	// They were not applied.
	Stale bool
}

// AccessGate classifies access for the token currently presented.
type AccessGate struct {
	validator       TokenValidator
	notFoundDefined bool

	mu      sync.Mutex
	gen     uint64
	current AccessResult
	entered bool
	pending chan struct{}
}

// NewAccessGate builds a gate. notFoundDefined maps a 404 from the validator to
// not-found instead of error.
func NewAccessGate(validator TokenValidator, notFoundDefined bool) *AccessGate {
	return &AccessGate{validator: validator, notFoundDefined: notFoundDefined}
}

// State returns the current result.
func (g *AccessGate) State() AccessResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

// Enter presents a token. An empty token resolves to no-token without a
// network call. A token already presented is not validated again. Presenting
// a different token restarts from loading, and any in-flight result for the
// previous token is discarded when it arrives. Callers presenting the token
// that is still loading wait for that one request.
func (g *AccessGate) Enter(ctx context.Context, token string) AccessResult {
	token = strings.TrimSpace(token)

	g.mu.Lock()
	if g.entered && g.current.Token == token {
		res, pending := g.current, g.pending
		g.mu.Unlock()
		if res.State == domain.AccessLoading && pending != nil {
			select {
			case <-pending:
			case <-ctx.Done():
				return res
			}
			if cur := g.State(); cur.Token == token {
				return cur
			}
			res.Stale = true
		}
		return res
	}
	g.entered = true
	g.gen++
	gen := g.gen
	if token == "" {
		g.current = AccessResult{State: domain.AccessNoToken}
		res := g.current
		g.mu.Unlock()
		return res
	}
	g.current = AccessResult{Token: token, State: domain.AccessLoading}
	pending := make(chan struct{})
	g.pending = pending
	g.mu.Unlock()

	res := g.validate(ctx, token)

	g.mu.Lock()
	defer g.mu.Unlock()
	close(pending)
	if gen != g.gen {
		res.Stale = true
		return res
	}
	g.current = res
	return res
}

func (g *AccessGate) validate(ctx context.Context, token string) AccessResult {
	data, err := g.validator.ValidateToken(ctx, token)
	if err != nil {
		return AccessResult{Token: token, State: domain.ClassifyAccess(err, g.notFoundDefined)}
	}
	return AccessResult{Token: token, State: domain.AccessValid, Data: data}
}
