package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Session schema generations. V1 carries flat answers, V2 the structured
// profile and per-block allocations.
const (
	SessionV1 = 1
	SessionV2 = 2
)

// Session is the in-memory aggregate of one attempt, whichever version it
// was persisted as.
type Session struct {
	Version   int
	TestID    string
	Meta      SessionMeta
	UI        SessionUI
	Profile   map[string]string
	Belbin    map[string]AllocationState
	Answers   map[string]Answer
	Responses map[string]any
}

type SessionMeta struct {
	StartedAt    time.Time  `json:"startedAt"`
	ActiveTimeMs int64      `json:"activeTimeMs"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
}

type SessionUI struct {
	StepIndex int `json:"stepIndex"`
}

// AllocationState is the respondent's allocation for one block.
type AllocationState struct {
	Selected map[string]bool `json:"selected"`
	Scores   map[string]int  `json:"scores"`
}

// NewAllocationState returns an all-unselected, all-zero state for the block.
func NewAllocationState(block Block) AllocationState {
	st := AllocationState{
		Selected: make(map[string]bool, len(block.Items)),
		Scores:   make(map[string]int, len(block.Items)),
	}
	for _, it := range block.Items {
		st.Selected[it.ID] = false
		st.Scores[it.ID] = 0
	}
	return st
}

// Clone returns a deep copy.
func (a AllocationState) Clone() AllocationState {
	out := AllocationState{
		Selected: make(map[string]bool, len(a.Selected)),
		Scores:   make(map[string]int, len(a.Scores)),
	}
	for k, v := range a.Selected {
		out.Selected[k] = v
	}
	for k, v := range a.Scores {
		out.Scores[k] = v
	}
	return out
}

// Sum adds the scores of selected items.
func (a AllocationState) Sum() int {
	total := 0
	for id, score := range a.Scores {
		if a.Selected[id] {
			total += score
		}
	}
	return total
}

// AnySelected reports whether at least one item is selected.
func (a AllocationState) AnySelected() bool {
	for _, v := range a.Selected {
		if v {
			return true
		}
	}
	return false
}

// Answer is a legacy answer: a single option id or a list of them.
type Answer struct {
	Multi  bool
	Single string
	Values []string
}

// Empty reports whether the answer counts as unanswered.
func (a Answer) Empty() bool {
	if a.Multi {
		return len(a.Values) == 0
	}
	return strings.TrimSpace(a.Single) == ""
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Multi {
		values := a.Values
		if values == nil {
			values = []string{}
		}
		return json.Marshal(values)
	}
	return json.Marshal(a.Single)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var values []string
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return err
		}
		*a = Answer{Multi: true, Values: values}
		return nil
	}
	var single string
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	*a = Answer{Single: single}
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	out := &Session{
		Version: s.Version,
		TestID:  s.TestID,
		Meta:    s.Meta,
		UI:      s.UI,
	}
	if s.Meta.SubmittedAt != nil {
		at := *s.Meta.SubmittedAt
		out.Meta.SubmittedAt = &at
	}
	if s.Profile != nil {
		out.Profile = make(map[string]string, len(s.Profile))
		for k, v := range s.Profile {
			out.Profile[k] = v
		}
	}
	if s.Belbin != nil {
		out.Belbin = make(map[string]AllocationState, len(s.Belbin))
		for k, v := range s.Belbin {
			out.Belbin[k] = v.Clone()
		}
	}
	if s.Answers != nil {
		out.Answers = make(map[string]Answer, len(s.Answers))
		for k, v := range s.Answers {
			if v.Values != nil {
				v.Values = append([]string(nil), v.Values...)
			}
			out.Answers[k] = v
		}
	}
	if s.Responses != nil {
		out.Responses = make(map[string]any, len(s.Responses))
		for k, v := range s.Responses {
			out.Responses[k] = v
		}
	}
	return out
}

type envelopeHeader struct {
	Version int `json:"version"`
}

// sessionV1 is the flat-answers wire form.
type sessionV1 struct {
	Version int               `json:"version"`
	TestID  string            `json:"testId,omitempty"`
	Meta    *SessionMeta      `json:"meta,omitempty"`
	UI      *SessionUI        `json:"ui,omitempty"`
	Answers map[string]Answer `json:"answers"`
}

// sessionV2 is the structured wire form.
type sessionV2 struct {
	Version   int                        `json:"version"`
	TestID    string                     `json:"testId"`
	Meta      SessionMeta                `json:"meta"`
	UI        SessionUI                  `json:"ui"`
	Profile   map[string]string          `json:"profile"`
	Belbin    map[string]AllocationState `json:"belbin"`
	Responses map[string]any             `json:"responses"`
}

// EncodeSession serializes the full envelope in the wire form of its version.
func EncodeSession(s *Session) ([]byte, error) {
	switch s.Version {
	case SessionV1:
		meta, ui := s.Meta, s.UI
		answers := s.Answers
		if answers == nil {
			answers = map[string]Answer{}
		}
		return json.Marshal(sessionV1{
			Version: SessionV1,
			TestID:  s.TestID,
			Meta:    &meta,
			UI:      &ui,
			Answers: answers,
		})
	case SessionV2:
		return json.Marshal(sessionV2{
			Version:   SessionV2,
			TestID:    s.TestID,
			Meta:      s.Meta,
			UI:        s.UI,
			Profile:   s.Profile,
			Belbin:    s.Belbin,
			Responses: s.Responses,
		})
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
}

// DecodeSession parses a persisted envelope and migrates it to the current
// in-memory shape. Any failure wraps ErrCorruptSession.
func DecodeSession(raw []byte) (*Session, error) {
	var head envelopeHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	switch head.Version {
	case SessionV1:
		var v1 sessionV1
		if err := json.Unmarshal(raw, &v1); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
		}
		return migrateV1(v1), nil
	case SessionV2:
		var v2 sessionV2
		if err := json.Unmarshal(raw, &v2); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
		}
		return fromV2(v2), nil
	default:
		return nil, fmt.Errorf("%w: %w: %d", ErrCorruptSession, ErrUnsupportedVersion, head.Version)
	}
}

func migrateV1(v1 sessionV1) *Session {
	s := &Session{
		Version: SessionV1,
		TestID:  v1.TestID,
		Answers: v1.Answers,
	}
	if s.Answers == nil {
		s.Answers = map[string]Answer{}
	}
	if v1.Meta != nil {
		s.Meta = *v1.Meta
	}
	if v1.UI != nil {
		s.UI = *v1.UI
	}
	return s
}

func fromV2(v2 sessionV2) *Session {
	s := &Session{
		Version:   SessionV2,
		TestID:    v2.TestID,
		Meta:      v2.Meta,
		UI:        v2.UI,
		Profile:   v2.Profile,
		Belbin:    v2.Belbin,
		Responses: v2.Responses,
	}
	if s.Profile == nil {
		s.Profile = map[string]string{}
	}
	if s.Belbin == nil {
		s.Belbin = map[string]AllocationState{}
	}
	if s.Responses == nil {
		s.Responses = map[string]any{}
	}
	return s
}
