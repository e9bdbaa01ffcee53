package app

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"test-session-service/internal/domain"
)

// Attempt is one respondent's in-progress questionnaire for one (test, token).
// Every mutation is validated, applied to the in-memory session and then
// persisted as a full envelope.
type Attempt struct {
	id         string
	test       domain.TestInfo
	key        SessionKey
	store      *SessionStore
	timer      *ActivityTimer
	pipeline   *SubmissionPipeline
	now        func() time.Time
	userData   json.RawMessage
	definition *domain.TestDefinition
	prefill    map[string]string

	mu         sync.Mutex
	sess       *domain.Session
	nav        *Navigator
	submitting bool
	submitted  bool
	persistErr error
}

// ID identifies the attempt in logs and to the client.
func (a *Attempt) ID() string { return a.id }

// Key is the persistence key of the attempt.
func (a *Attempt) Key() SessionKey { return a.key }

// Test returns the catalog entry.
func (a *Attempt) Test() domain.TestInfo { return a.test }

// Session returns a copy of the in-memory session.
func (a *Attempt) Session() *domain.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess.Clone()
}

// PersistErr is the last store write failure, nil after a successful write.
func (a *Attempt) PersistErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persistErr
}

// Start acquires the activity timer for this page life.
func (a *Attempt) Start(ctx context.Context) error {
	return a.timer.Start(ctx)
}

// Close releases the timer and flushes the accumulated time to the store.
func (a *Attempt) Close(ctx context.Context) {
	a.timer.Stop()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.persistLocked(ctx)
}

// MarkActivity forwards an input signal to the timer.
func (a *Attempt) MarkActivity() {
	a.timer.MarkActivity()
}

// SetVisible forwards a visibility change to the timer; hiding flushes to the store.
func (a *Attempt) SetVisible(ctx context.Context, visible bool) {
	a.timer.SetVisible(visible)
	if visible {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.persistLocked(ctx)
}

// SetProfileField edits one profile field.
func (a *Attempt) SetProfileField(ctx context.Context, fieldID, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mutableLocked(domain.SessionV2); err != nil {
		return err
	}
	ps, ok := findProfileStep(a.nav.Steps())
	if !ok {
		return domain.ErrWrongMode
	}
	field, ok := ps.Section.Field(fieldID)
	if !ok {
		return domain.ErrUnknownField
	}
	if ps.Section.IsLocked(fieldID) {
		return domain.ErrFieldLocked
	}
	normalized, err := checkFieldValue(field, value)
	if err != nil {
		return err
	}
	a.sess.Profile[fieldID] = normalized
	a.persistLocked(ctx)
	return nil
}

// SetSelected toggles an allocation item.
func (a *Attempt) SetSelected(ctx context.Context, blockID, itemID string, selected bool) error {
	return a.updateBlock(ctx, blockID, func(step AllocationStep, st domain.AllocationState) (domain.AllocationState, error) {
		return SetSelected(step.Block, st, itemID, selected)
	})
}

// Increment adds a point to an allocation item; budget violations are no-ops.
func (a *Attempt) Increment(ctx context.Context, blockID, itemID string) error {
	return a.updateBlock(ctx, blockID, func(step AllocationStep, st domain.AllocationState) (domain.AllocationState, error) {
		next, _, err := Increment(step.Block, step.Rules, st, itemID)
		return next, err
	})
}

// Decrement removes a point from an allocation item; going below min is a no-op.
func (a *Attempt) Decrement(ctx context.Context, blockID, itemID string) error {
	return a.updateBlock(ctx, blockID, func(step AllocationStep, st domain.AllocationState) (domain.AllocationState, error) {
		next, _, err := Decrement(step.Block, step.Rules, st, itemID)
		return next, err
	})
}

func (a *Attempt) updateBlock(ctx context.Context, blockID string, apply func(AllocationStep, domain.AllocationState) (domain.AllocationState, error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mutableLocked(domain.SessionV2); err != nil {
		return err
	}
	_, step, ok := findAllocationStep(a.nav.Steps(), blockID)
	if !ok {
		return domain.ErrUnknownBlock
	}
	next, err := apply(step, a.sess.Belbin[blockID])
	if err != nil {
		return err
	}
	a.sess.Belbin[blockID] = next
	a.persistLocked(ctx)
	return nil
}

// ChooseOption answers a legacy question. Single questions take the option,
// multi questions toggle its membership.
func (a *Attempt) ChooseOption(ctx context.Context, questionID, optionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mutableLocked(domain.SessionV1); err != nil {
		return err
	}
	q, ok := findLegacyQuestion(a.nav.Steps(), questionID)
	if !ok {
		return domain.ErrUnknownQuestion
	}
	if !q.HasOption(optionID) {
		return domain.ErrUnknownOption
	}
	if !q.IsMulti() {
		a.sess.Answers[questionID] = domain.Answer{Single: optionID}
		a.persistLocked(ctx)
		return nil
	}
	current := a.sess.Answers[questionID]
	values := make([]string, 0, len(current.Values)+1)
	found := false
	for _, v := range current.Values {
		if v == optionID {
			found = true
			continue
		}
		values = append(values, v)
	}
	if !found {
		values = append(values, optionID)
	}
	a.sess.Answers[questionID] = domain.Answer{Multi: true, Values: values}
	a.persistLocked(ctx)
	return nil
}

// SetResponse stores a free-form response value.
func (a *Attempt) SetResponse(ctx context.Context, key string, value any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mutableLocked(domain.SessionV2); err != nil {
		return err
	}
	a.sess.Responses[key] = value
	a.persistLocked(ctx)
	return nil
}

// CanAdvance reports whether the current step is complete.
func (a *Attempt) CanAdvance() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.CanAdvance(a.sess)
}

// Next advances when the current step validates; otherwise it flags validation
// and returns the *domain.ValidationError.
func (a *Attempt) Next(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mutableLocked(0); err != nil {
		return err
	}
	before := a.nav.Index()
	err := a.nav.Next(a.sess)
	if a.nav.Index() != before {
		a.persistLocked(ctx)
	}
	return err
}

// Prev steps back unconditionally.
func (a *Attempt) Prev(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.mutableLocked(0); err != nil {
		return err
	}
	before := a.nav.Index()
	a.nav.Prev()
	if a.nav.Index() != before {
		a.persistLocked(ctx)
	}
	return nil
}

// mutableLocked rejects edits after submission, while a submission is in
// flight, or against the other session generation. version 0 skips the mode check.
func (a *Attempt) mutableLocked(version int) error {
	if a.submitted {
		return domain.ErrAlreadySubmitted
	}
	if a.submitting {
		return domain.ErrSubmissionInFlight
	}
	if version != 0 && a.sess.Version != version {
		return domain.ErrWrongMode
	}
	return nil
}

// persistLocked composes the full envelope (session, step pointer, timer
// snapshot) and writes it in one operation. Failures are logged and kept in
// persistErr; the in-memory session stays authoritative.
func (a *Attempt) persistLocked(ctx context.Context) {
	if a.submitted {
		return
	}
	snap := a.timer.Snapshot()
	a.sess.Meta.StartedAt = snap.StartedAt
	a.sess.Meta.ActiveTimeMs = snap.ActiveTimeMs
	a.sess.UI.StepIndex = a.nav.Index()

	if err := a.store.Save(ctx, a.key, a.sess.Clone()); err != nil {
		log.Printf("attempt %s: persist session failed: %v", a.id, err)
		a.persistErr = err
		return
	}
	a.persistErr = nil
}

// AttemptView is a read-only rendering of the attempt for clients.
type AttemptView struct {
	AttemptID      string                            `json:"attemptId"`
	TestID         string                            `json:"testId"`
	Title          string                            `json:"title"`
	Description    string                            `json:"description,omitempty"`
	Version        int                               `json:"version"`
	StepIndex      int                               `json:"stepIndex"`
	TotalSteps     int                               `json:"totalSteps"`
	IsLast         bool                              `json:"isLast"`
	CanAdvance     bool                              `json:"canAdvance"`
	ShowValidation bool                              `json:"showValidation"`
	Submitting     bool                              `json:"submitting"`
	Submitted      bool                              `json:"submitted"`
	Step           StepView                          `json:"step"`
	Profile        map[string]string                 `json:"profile,omitempty"`
	Prefill        map[string]string                 `json:"prefill,omitempty"`
	Belbin         map[string]domain.AllocationState `json:"belbin,omitempty"`
	Answers        map[string]domain.Answer          `json:"answers,omitempty"`
	Timer          TimerSnapshot                     `json:"timer"`
}

// StepView describes the current step.
type StepView struct {
	Kind      StepKind                `json:"kind"`
	Profile   *domain.ProfileSection  `json:"profile,omitempty"`
	Block     *domain.Block           `json:"block,omitempty"`
	Limits    *domain.Limits          `json:"limits,omitempty"`
	Remaining *int                    `json:"remaining,omitempty"`
	Questions []domain.LegacyQuestion `json:"questions,omitempty"`
}

// View renders the current state.
func (a *Attempt) View() AttemptView {
	a.mu.Lock()
	defer a.mu.Unlock()

	title, description := a.test.Title, a.test.Description
	if a.definition != nil {
		if a.definition.Title != "" {
			title = a.definition.Title
		}
		if a.definition.Description != "" {
			description = a.definition.Description
		}
	}
	sess := a.sess.Clone()
	view := AttemptView{
		AttemptID:      a.id,
		TestID:         a.test.ID,
		Title:          title,
		Description:    description,
		Version:        sess.Version,
		StepIndex:      a.nav.Index(),
		TotalSteps:     a.nav.Len(),
		IsLast:         a.nav.IsLast(),
		CanAdvance:     a.nav.CanAdvance(a.sess),
		ShowValidation: a.nav.ShowValidation(),
		Submitting:     a.submitting,
		Submitted:      a.submitted,
		Profile:        sess.Profile,
		Prefill:        a.prefill,
		Belbin:         sess.Belbin,
		Answers:        sess.Answers,
		Timer:          a.timer.Snapshot(),
	}
	switch step := a.nav.Current().(type) {
	case ProfileStep:
		section := step.Section
		view.Step = StepView{Kind: StepProfile, Profile: &section}
	case AllocationStep:
		block := step.Block
		limits := step.Rules.Resolve()
		remaining := Remaining(step.Rules, a.sess.Belbin[block.ID])
		view.Step = StepView{Kind: StepAllocation, Block: &block, Limits: &limits, Remaining: &remaining}
	case LegacyStep:
		view.Step = StepView{Kind: StepLegacy, Questions: step.Questions}
	}
	return view
}
