package app

import (
	"fmt"

	"test-session-service/internal/domain"
)

// StepKind names a Step variant.
type StepKind string

const (
	StepProfile    StepKind = "profile"
	StepAllocation StepKind = "allocation"
	StepLegacy     StepKind = "legacy"
)

// Step is one screen of the questionnaire. The set of implementations is
// closed: ProfileStep, AllocationStep and LegacyStep.
type Step interface {
	Kind() StepKind
	isStep()
}

// ProfileStep collects the profile section fields.
type ProfileStep struct {
	Section domain.ProfileSection
}

// AllocationStep is one allocation block with the rules of its section.
type AllocationStep struct {
	Block domain.Block
	Rules domain.AllocationRules
}

// LegacyStep holds every flat question of a local test.
type LegacyStep struct {
	Questions []domain.LegacyQuestion
}

func (ProfileStep) Kind() StepKind    { return StepProfile }
func (AllocationStep) Kind() StepKind { return StepAllocation }
func (LegacyStep) Kind() StepKind     { return StepLegacy }

func (ProfileStep) isStep()    {}
func (AllocationStep) isStep() {}
func (LegacyStep) isStep()     {}

// BuildSteps derives the step sequence of a structured test: the first profile
// section, then one step per allocation block in schema order.
func BuildSteps(def domain.TestDefinition) ([]Step, error) {
	var profile *domain.ProfileSection
	var blocks []Step
	for _, section := range def.Sections {
		switch section.Type {
		case domain.SectionProfile:
			if profile == nil && section.Profile != nil {
				profile = section.Profile
			}
		case domain.SectionAllocation:
			if section.Allocation == nil {
				continue
			}
			for _, b := range section.Allocation.Blocks {
				blocks = append(blocks, AllocationStep{Block: b, Rules: section.Allocation.Rules})
			}
		default:
			return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSection, section.Type)
		}
	}
	if profile == nil || len(blocks) == 0 {
		return nil, domain.ErrIncompleteDefinition
	}
	return append([]Step{ProfileStep{Section: *profile}}, blocks...), nil
}

// LegacySteps wraps flat questions into the single legacy step.
func LegacySteps(questions []domain.LegacyQuestion) []Step {
	return []Step{LegacyStep{Questions: questions}}
}

// findAllocationStep returns the index and step for a block id.
func findAllocationStep(steps []Step, blockID string) (int, AllocationStep, bool) {
	for i, s := range steps {
		if as, ok := s.(AllocationStep); ok && as.Block.ID == blockID {
			return i, as, true
		}
	}
	return -1, AllocationStep{}, false
}

// findProfileStep returns the profile step of a structured sequence.
func findProfileStep(steps []Step) (ProfileStep, bool) {
	for _, s := range steps {
		if ps, ok := s.(ProfileStep); ok {
			return ps, true
		}
	}
	return ProfileStep{}, false
}

// findLegacyQuestion looks a question up in the legacy step.
func findLegacyQuestion(steps []Step, questionID string) (domain.LegacyQuestion, bool) {
	for _, s := range steps {
		ls, ok := s.(LegacyStep)
		if !ok {
			continue
		}
		for _, q := range ls.Questions {
			if q.ID == questionID {
				return q, true
			}
		}
	}
	return domain.LegacyQuestion{}, false
}
