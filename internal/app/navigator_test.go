package app

import (
	"errors"
	"testing"

	"test-session-service/internal/domain"
)

func TestBuildSteps(t *testing.T) {
	steps, err := BuildSteps(sampleDefinition())
	if err != nil {
		t.Fatalf("build steps: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("expected profile plus two blocks, got %d", len(steps))
	}
	if steps[0].Kind() != StepProfile || steps[1].Kind() != StepAllocation {
		t.Fatalf("unexpected order %s, %s", steps[0].Kind(), steps[1].Kind())
	}
	if as := steps[2].(AllocationStep); as.Block.ID != "b2" || as.Rules.Resolve().Sum != 10 {
		t.Fatalf("unexpected last step %+v", as)
	}
}

func TestBuildStepsIncomplete(t *testing.T) {
	def := sampleDefinition()
	def.Sections = def.Sections[:1]
	if _, err := BuildSteps(def); !errors.Is(err, domain.ErrIncompleteDefinition) {
		t.Fatalf("expected ErrIncompleteDefinition, got %v", err)
	}
}

func TestNavigatorGatesOnValidation(t *testing.T) {
	steps, _ := BuildSteps(sampleDefinition())
	sess := emptySession(domain.SessionV2)
	nav := NewNavigator(steps, 0)

	err := nav.Next(sess)
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Kind != domain.InvalidProfile || verr.Target != "firstName" {
		t.Fatalf("expected profile validation error, got %v", err)
	}
	if nav.Index() != 0 || !nav.ShowValidation() {
		t.Fatalf("expected to stay on step 0 with validation shown")
	}

	sess.Profile["firstName"] = "Sara"
	sess.Profile["sex"] = "female"
	if err := nav.Next(sess); err != nil {
		t.Fatalf("next: %v", err)
	}
	if nav.Index() != 1 || nav.ShowValidation() {
		t.Fatalf("expected step 1 with validation cleared, got %d %v", nav.Index(), nav.ShowValidation())
	}

	nav.Prev()
	nav.Prev()
	if nav.Index() != 0 {
		t.Fatalf("expected prev to clamp at 0, got %d", nav.Index())
	}
}

func TestNavigatorPrevClearsValidation(t *testing.T) {
	steps, _ := BuildSteps(sampleDefinition())
	sess := emptySession(domain.SessionV2)
	sess.Profile["firstName"] = "Sara"
	sess.Profile["sex"] = "female"
	nav := NewNavigator(steps, 0)
	if err := nav.Next(sess); err != nil {
		t.Fatalf("next: %v", err)
	}

	if err := nav.Next(sess); err == nil {
		t.Fatalf("expected empty block to refuse next")
	}
	if nav.Index() != 1 || !nav.ShowValidation() {
		t.Fatalf("expected validation shown on step 1, got %d %v", nav.Index(), nav.ShowValidation())
	}

	nav.Prev()
	if nav.Index() != 0 || nav.ShowValidation() {
		t.Fatalf("expected prev to step 0 with validation cleared, got %d %v", nav.Index(), nav.ShowValidation())
	}

	nav.Flag(0)
	nav.Prev()
	if nav.Index() != 0 || nav.ShowValidation() {
		t.Fatalf("expected prev at first step to clamp and clear, got %d %v", nav.Index(), nav.ShowValidation())
	}
}

func TestNavigatorClampsRestoredIndex(t *testing.T) {
	steps, _ := BuildSteps(sampleDefinition())
	if got := NewNavigator(steps, 42).Index(); got != 2 {
		t.Fatalf("expected clamp to last step, got %d", got)
	}
	if got := NewNavigator(steps, -3).Index(); got != 0 {
		t.Fatalf("expected clamp to first step, got %d", got)
	}
}

func TestNavigatorStaysOnLastStep(t *testing.T) {
	steps, _ := BuildSteps(sampleDefinition())
	sess := emptySession(domain.SessionV2)
	block := steps[2].(AllocationStep).Block
	st, _ := SetSelected(block, domain.NewAllocationState(block), "a", true)
	st.Scores["a"] = 10
	sess.Belbin["b2"] = st

	nav := NewNavigator(steps, 2)
	if !nav.IsLast() {
		t.Fatalf("expected last step")
	}
	if err := nav.Next(sess); err != nil || nav.Index() != 2 {
		t.Fatalf("expected no-op next on last step, idx=%d err=%v", nav.Index(), err)
	}
}

func TestValidateAllocationStep(t *testing.T) {
	steps, _ := BuildSteps(sampleDefinition())
	step := steps[1].(AllocationStep)
	sess := emptySession(domain.SessionV2)
	sess.Belbin["b1"] = domain.NewAllocationState(step.Block)

	var verr *domain.ValidationError
	if err := ValidateStep(1, step, sess); !errors.As(err, &verr) || verr.Kind != domain.InvalidSelection {
		t.Fatalf("expected selection error, got %v", err)
	}

	st, _ := SetSelected(step.Block, sess.Belbin["b1"], "b", true)
	st.Scores["b"] = 7
	sess.Belbin["b1"] = st
	if err := ValidateStep(1, step, sess); !errors.As(err, &verr) || verr.Kind != domain.InvalidSum {
		t.Fatalf("expected sum error, got %v", err)
	}

	st.Scores["b"] = 10
	if err := ValidateStep(1, step, sess); err != nil {
		t.Fatalf("expected valid block, got %v", err)
	}
}

func TestValidateAllocationRange(t *testing.T) {
	step := AllocationStep{
		Block: threeItemBlock("b1"),
		Rules: domain.AllocationRules{Sum: intPtr(10), Min: intPtr(2)},
	}
	sess := emptySession(domain.SessionV2)
	st := domain.NewAllocationState(step.Block)
	st, _ = SetSelected(step.Block, st, "a", true)
	st, _ = SetSelected(step.Block, st, "b", true)
	for i := 0; i < 10; i++ {
		st, _, _ = Increment(step.Block, step.Rules, st, "a")
	}
	sess.Belbin["b1"] = st

	var verr *domain.ValidationError
	if err := ValidateStep(0, step, sess); !errors.As(err, &verr) || verr.Kind != domain.InvalidRange || verr.Target != "b" {
		t.Fatalf("expected selected item below min rejected, got %v", err)
	}

	st.Scores["a"] = 8
	st.Scores["b"] = 2
	if err := ValidateStep(0, step, sess); err != nil {
		t.Fatalf("expected valid block, got %v", err)
	}
}

func TestValidateLegacyStep(t *testing.T) {
	optional := false
	step := LegacyStep{Questions: []domain.LegacyQuestion{
		{ID: "q1", Options: []domain.Option{{ID: "a"}}},
		{ID: "q2", Type: "multi-choice", Options: []domain.Option{{ID: "a"}}},
		{ID: "q3", Required: &optional},
	}}
	sess := emptySession(domain.SessionV1)
	sess.Answers["q1"] = domain.Answer{Single: "a"}
	sess.Answers["q2"] = domain.Answer{Multi: true}

	var verr *domain.ValidationError
	if err := ValidateStep(0, step, sess); !errors.As(err, &verr) || verr.Target != "q2" {
		t.Fatalf("expected empty multi answer to fail, got %v", err)
	}
	sess.Answers["q2"] = domain.Answer{Multi: true, Values: []string{"a"}}
	if err := ValidateStep(0, step, sess); err != nil {
		t.Fatalf("expected valid step, got %v", err)
	}
}

func TestCheckFieldValue(t *testing.T) {
	date := domain.Field{ID: "birthDateJalali", Type: domain.FieldJalaliDate}
	got, err := checkFieldValue(date, "۱۳۷۰/۰۶/۳۱")
	if err != nil || got != "1370/06/31" {
		t.Fatalf("expected normalized date, got %q err=%v", got, err)
	}
	for _, bad := range []string{"1370/07/31", "1370/13/01", "70/1/1", "1370-01-01", "+123/01/01", "1370/+1/01", "1370/01/-1"} {
		if _, err := checkFieldValue(date, bad); !errors.Is(err, domain.ErrInvalidFieldValue) {
			t.Fatalf("expected %q to be rejected, got %v", bad, err)
		}
	}
	if _, err := checkFieldValue(date, "1402/12/30"); err != nil {
		t.Fatalf("expected Esfand 30 accepted, got %v", err)
	}

	sel := domain.Field{ID: "sex", Type: domain.FieldSelect, Options: []domain.Option{{ID: "male"}}}
	if _, err := checkFieldValue(sel, "other"); !errors.Is(err, domain.ErrInvalidFieldValue) {
		t.Fatalf("expected unknown option rejected, got %v", err)
	}
	if got, err := checkFieldValue(sel, ""); err != nil || got != "" {
		t.Fatalf("expected empty select accepted, got %q err=%v", got, err)
	}
}
