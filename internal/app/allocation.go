package app

import (
	"test-session-service/internal/domain"
)

// Allocation operations return the next state and never mutate their input.
// Operations that would break the block's budget are no-ops and return the
// input state unchanged (changed=false).

// SetSelected toggles an item. Deselecting forces the item's score to 0.
func SetSelected(block domain.Block, st domain.AllocationState, itemID string, selected bool) (domain.AllocationState, error) {
	if !block.HasItem(itemID) {
		return st, domain.ErrUnknownItem
	}
	next := st.Clone()
	next.Selected[itemID] = selected
	if !selected {
		next.Scores[itemID] = 0
	}
	return next, nil
}

// Increment adds one point to a selected item if max and the remaining budget allow it.
func Increment(block domain.Block, rules domain.AllocationRules, st domain.AllocationState, itemID string) (domain.AllocationState, bool, error) {
	if !block.HasItem(itemID) {
		return st, false, domain.ErrUnknownItem
	}
	limits := rules.Resolve()
	if !st.Selected[itemID] {
		return st, false, nil
	}
	cur := st.Scores[itemID]
	if cur >= limits.Max || Remaining(rules, st) <= 0 {
		return st, false, nil
	}
	next := st.Clone()
	next.Scores[itemID] = cur + 1
	return next, true, nil
}

// Decrement removes one point from a selected item unless it is already at min.
func Decrement(block domain.Block, rules domain.AllocationRules, st domain.AllocationState, itemID string) (domain.AllocationState, bool, error) {
	if !block.HasItem(itemID) {
		return st, false, domain.ErrUnknownItem
	}
	limits := rules.Resolve()
	if !st.Selected[itemID] {
		return st, false, nil
	}
	cur := st.Scores[itemID]
	if cur <= limits.Min {
		return st, false, nil
	}
	next := st.Clone()
	next.Scores[itemID] = cur - 1
	return next, true, nil
}

// Remaining is the unallocated part of the block's budget.
func Remaining(rules domain.AllocationRules, st domain.AllocationState) int {
	return rules.Resolve().Sum - st.Sum()
}

// normalizeAllocation fills missing items, zeroes unselected scores and
// clamps selected scores to [min, max] so a restored envelope satisfies the
// same invariants as a live one.
func normalizeAllocation(block domain.Block, rules domain.AllocationRules, st domain.AllocationState) domain.AllocationState {
	limits := rules.Resolve()
	next := domain.NewAllocationState(block)
	for _, it := range block.Items {
		if !st.Selected[it.ID] {
			continue
		}
		score := st.Scores[it.ID]
		if score < limits.Min {
			score = limits.Min
		}
		if score > limits.Max {
			score = limits.Max
		}
		next.Selected[it.ID] = true
		next.Scores[it.ID] = score
	}
	return next
}
