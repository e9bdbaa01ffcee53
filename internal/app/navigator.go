package app

import "test-session-service/internal/domain"

// Navigator tracks the current position in a step sequence and gates
// forward movement on the current step's validation.
type Navigator struct {
	steps          []Step
	index          int
	showValidation bool
}

// NewNavigator clamps index into the sequence.
func NewNavigator(steps []Step, index int) *Navigator {
	n := &Navigator{steps: steps}
	n.index = n.clamp(index)
	return n
}

func (n *Navigator) clamp(i int) int {
	if i < 0 || len(n.steps) == 0 {
		return 0
	}
	if i >= len(n.steps) {
		return len(n.steps) - 1
	}
	return i
}

// Steps returns the derived sequence.
func (n *Navigator) Steps() []Step { return n.steps }

// Index is the current step position.
func (n *Navigator) Index() int { return n.index }

// Len is the number of steps.
func (n *Navigator) Len() int { return len(n.steps) }

// Current returns the current step, or nil for an empty sequence.
func (n *Navigator) Current() Step {
	if len(n.steps) == 0 {
		return nil
	}
	return n.steps[n.index]
}

// IsLast reports whether the current step is the final one.
func (n *Navigator) IsLast() bool {
	return n.index >= len(n.steps)-1
}

// ShowValidation reports whether a refused transition is pending display.
func (n *Navigator) ShowValidation() bool { return n.showValidation }

// CanAdvance validates only the current step's data.
func (n *Navigator) CanAdvance(sess *domain.Session) bool {
	return n.validateCurrent(sess) == nil
}

func (n *Navigator) validateCurrent(sess *domain.Session) error {
	step := n.Current()
	if step == nil {
		return &domain.ValidationError{StepIndex: 0}
	}
	return ValidateStep(n.index, step, sess)
}

// Next advances one step when the current step is complete. On failure it
// sets the validation flag and returns the *domain.ValidationError. At the
// last step a successful Next is a no-op.
func (n *Navigator) Next(sess *domain.Session) error {
	if err := n.validateCurrent(sess); err != nil {
		n.showValidation = true
		return err
	}
	n.showValidation = false
	n.index = n.clamp(n.index + 1)
	return nil
}

// Prev moves back one step without validation and clears the validation flag.
func (n *Navigator) Prev() {
	n.showValidation = false
	n.index = n.clamp(n.index - 1)
}

// Flag moves to step i and raises the validation flag.
func (n *Navigator) Flag(i int) {
	n.index = n.clamp(i)
	n.showValidation = true
}
