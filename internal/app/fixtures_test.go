package app

import (
	"sync"
	"time"

	"test-session-service/internal/domain"
)

func intPtr(v int) *int { return &v }

func threeItemBlock(id string) domain.Block {
	return domain.Block{ID: id, Items: []domain.Item{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}}}
}

func sampleDefinition() domain.TestDefinition {
	return domain.TestDefinition{
		Title: "Belbin",
		Sections: []domain.Section{
			{Type: domain.SectionProfile, Profile: &domain.ProfileSection{Fields: []domain.Field{
				{ID: "firstName", Type: domain.FieldText, Required: true},
				{ID: "sex", Type: domain.FieldSelect, Required: true, Options: []domain.Option{{ID: "male"}, {ID: "female"}}},
				{ID: "birthDateJalali", Type: domain.FieldJalaliDate},
			}}},
			{Type: domain.SectionAllocation, Allocation: &domain.AllocationSection{
				Rules:  domain.AllocationRules{Sum: intPtr(10), RequireSelection: true},
				Blocks: []domain.Block{threeItemBlock("b1"), threeItemBlock("b2")},
			}},
		},
	}
}

func emptySession(version int) *domain.Session {
	return &domain.Session{
		Version:   version,
		Profile:   map[string]string{},
		Belbin:    map[string]domain.AllocationState{},
		Answers:   map[string]domain.Answer{},
		Responses: map[string]any{},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
