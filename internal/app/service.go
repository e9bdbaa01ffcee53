package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"test-session-service/internal/domain"
)

// CatalogRepository loads test metadata (from cache/backing store).
type CatalogRepository interface {
	GetTest(ctx context.Context, testID string) (domain.TestInfo, error)
}

// ServiceDeps wires the test-session use cases.
type ServiceDeps struct {
	Catalog     CatalogRepository
	Validator   TokenValidator
	Definitions DefinitionProvider
	Sink        AnswerSink
	Envelopes   EnvelopeStore
	Namespace   string
	// TokenNotFound maps a 404 from token validation to not-found.
	TokenNotFound bool
	Idle          time.Duration
	Tick          time.Duration
	NextURL       string
	// Now is test-only for deterministic timestamps.
	Now func() time.Time
}

// Service opens attempts: it resolves access, loads the schema and restores
// any persisted session.
type Service struct {
	deps     ServiceDeps
	store    *SessionStore
	pipeline *SubmissionPipeline
	now      func() time.Time
}

func NewService(deps ServiceDeps) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Namespace == "" {
		deps.Namespace = DefaultNamespace
	}
	if deps.Idle <= 0 {
		deps.Idle = DefaultIdleThreshold
	}
	return &Service{
		deps:     deps,
		store:    NewSessionStore(deps.Envelopes),
		pipeline: NewSubmissionPipeline(deps.Sink, deps.NextURL),
		now:      now,
	}
}

// Access is the outcome of opening a test page.
type Access struct {
	State domain.AccessState `json:"state"`
	// Message is the remedial text for terminal states.
	Message string          `json:"message,omitempty"`
	Test    domain.TestInfo `json:"test"`
	// UserData is the issuer's user context for a valid token.
	UserData json.RawMessage `json:"userData,omitempty"`
}

func newAccess(state domain.AccessState, test domain.TestInfo) Access {
	a := Access{State: state, Test: test.Public()}
	if state != domain.AccessValid {
		a.Message = state.Message()
	}
	return a
}

// TestInfo returns the public catalog entry.
func (s *Service) TestInfo(ctx context.Context, testID string) (domain.TestInfo, error) {
	test, err := s.deps.Catalog.GetTest(ctx, testID)
	if err != nil {
		return domain.TestInfo{}, err
	}
	return test.Public(), nil
}

// Open resolves access for (testID, token) and returns a ready attempt when
// access is valid. A nil attempt comes with the terminal access state to show.
// The returned error is set only for failures worth logging; the access state
// is always usable.
func (s *Service) Open(ctx context.Context, testID, token string) (*Attempt, Access, error) {
	test, err := s.deps.Catalog.GetTest(ctx, testID)
	if errors.Is(err, domain.ErrTestNotFound) {
		return nil, newAccess(domain.AccessNotFound, domain.TestInfo{ID: testID}), nil
	}
	if err != nil {
		return nil, newAccess(domain.AccessError, domain.TestInfo{ID: testID}), fmt.Errorf("load test %s: %w", testID, err)
	}

	gate := NewAccessGate(s.deps.Validator, s.deps.TokenNotFound)
	granted := gate.Enter(ctx, token)
	if granted.State != domain.AccessValid {
		return nil, newAccess(granted.State, test), nil
	}
	token = granted.Token

	var (
		definition *domain.TestDefinition
		prefill    = map[string]string{}
		steps      []Step
		version    = domain.SessionV1
	)
	switch {
	case test.IsRemote():
		loaded := NewSchemaLoader(s.deps.Definitions).Load(ctx, test.ID, token)
		if loaded.State != SchemaOK {
			return nil, newAccess(loaded.Failure, test), nil
		}
		def := loaded.Bundle.Definition
		definition, prefill = &def, loaded.Bundle.Prefill
	case !test.IsLegacy():
		def := *test.Definition
		definition = &def
	}
	if definition != nil {
		version = domain.SessionV2
		steps, err = BuildSteps(*definition)
		if err != nil {
			return nil, newAccess(domain.AccessError, test), fmt.Errorf("build steps for %s: %w", test.ID, err)
		}
	} else {
		steps = LegacySteps(test.Questions)
	}

	key := SessionKey{Namespace: s.deps.Namespace, TestID: test.ID, Token: token}
	sess := s.restore(ctx, key, version)
	if sess == nil {
		sess = newSession(test.ID, version, granted.Data, prefill)
	}
	sess.TestID = test.ID
	prepareSession(sess, steps, prefill)

	nav := NewNavigator(steps, sess.UI.StepIndex)
	timer := NewActivityTimer(TimerOptions{
		StartedAt:  sess.Meta.StartedAt,
		ActiveTime: time.Duration(sess.Meta.ActiveTimeMs) * time.Millisecond,
		Idle:       s.deps.Idle,
		Tick:       s.deps.Tick,
		Now:        s.now,
	})

	att := &Attempt{
		id:         uuid.NewString(),
		test:       test,
		key:        key,
		store:      s.store,
		timer:      timer,
		pipeline:   s.pipeline,
		now:        s.now,
		userData:   granted.Data,
		definition: definition,
		prefill:    prefill,
		sess:       sess,
		nav:        nav,
	}
	att.mu.Lock()
	att.persistLocked(ctx)
	att.mu.Unlock()

	access := newAccess(domain.AccessValid, test)
	access.UserData = granted.Data
	return att, access, nil
}

// restore loads the persisted session. Corrupt envelopes and envelopes of the
// other generation are discarded and the attempt starts fresh.
func (s *Service) restore(ctx context.Context, key SessionKey, version int) *domain.Session {
	sess, err := s.store.Load(ctx, key)
	if err != nil {
		log.Printf("session %s: discarding stored envelope: %v", key, err)
		return nil
	}
	if sess == nil {
		return nil
	}
	if sess.Version != version {
		log.Printf("session %s: stored version %d does not match test mode %d, starting fresh", key, sess.Version, version)
		return nil
	}
	return sess
}

// Profile keys every structured session starts with.
var baseProfileKeys = []string{"firstName", "lastName", "sex", "job", "education", "birthDateJalali"}

type userContext struct {
	Name   string `json:"name"`
	Family string `json:"family"`
}

func newSession(testID string, version int, userData json.RawMessage, prefill map[string]string) *domain.Session {
	sess := &domain.Session{
		Version:   version,
		TestID:    testID,
		Profile:   map[string]string{},
		Belbin:    map[string]domain.AllocationState{},
		Answers:   map[string]domain.Answer{},
		Responses: map[string]any{},
	}
	if version != domain.SessionV2 {
		return sess
	}
	var user userContext
	if len(userData) > 0 {
		if err := json.Unmarshal(userData, &user); err != nil {
			log.Printf("session %s: ignoring unreadable user data: %v", testID, err)
		}
	}
	for _, k := range baseProfileKeys {
		sess.Profile[k] = ""
	}
	sess.Profile["firstName"] = firstNonEmpty(prefill["firstName"], user.Name)
	sess.Profile["lastName"] = firstNonEmpty(prefill["lastName"], user.Family)
	return sess
}

// prepareSession fills what a restored or new session may lack: maps, one
// allocation state per block, and profile values from prefill for fields still
// blank. Locked fields always take the prefill value.
func prepareSession(sess *domain.Session, steps []Step, prefill map[string]string) {
	if sess.Profile == nil {
		sess.Profile = map[string]string{}
	}
	if sess.Belbin == nil {
		sess.Belbin = map[string]domain.AllocationState{}
	}
	if sess.Answers == nil {
		sess.Answers = map[string]domain.Answer{}
	}
	if sess.Responses == nil {
		sess.Responses = map[string]any{}
	}
	for _, step := range steps {
		switch st := step.(type) {
		case ProfileStep:
			for _, f := range st.Section.Fields {
				v, ok := prefill[f.ID]
				if !ok {
					continue
				}
				if sess.Profile[f.ID] == "" || st.Section.IsLocked(f.ID) {
					sess.Profile[f.ID] = v
				}
			}
		case AllocationStep:
			sess.Belbin[st.Block.ID] = normalizeAllocation(st.Block, st.Rules, sess.Belbin[st.Block.ID])
		case LegacyStep:
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
