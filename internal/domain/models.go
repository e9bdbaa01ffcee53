package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefinitionSource tells where a test's section/question schema comes from.
type DefinitionSource string

const (
	SourceLocal  DefinitionSource = "local"
	SourceRemote DefinitionSource = "remote"
)

// TestInfo is the catalog entry for a test.
type TestInfo struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Description      string           `json:"description,omitempty"`
	Price            int64            `json:"price,omitempty"`
	DefinitionSource DefinitionSource `json:"definitionSource"`
	// SubmissionKey groups allocation scores in the submitted answers; defaults to the upper-cased ID.
	SubmissionKey string `json:"submissionKey,omitempty"`
	// Definition is a statically bundled schema for local structured tests.
	Definition *TestDefinition `json:"definition,omitempty"`
	// Questions drives the legacy flat-question mode.
	Questions []LegacyQuestion `json:"questions,omitempty"`
}

// IsRemote reports whether the schema must be fetched after access is granted.
func (t TestInfo) IsRemote() bool {
	return t.DefinitionSource == SourceRemote
}

// IsLegacy reports whether the test runs in flat-question mode.
func (t TestInfo) IsLegacy() bool {
	return !t.IsRemote() && t.Definition == nil
}

// GroupKey returns the key used for allocation scores in the submission payload.
func (t TestInfo) GroupKey() string {
	if t.SubmissionKey != "" {
		return t.SubmissionKey
	}
	return strings.ToUpper(t.ID)
}

// Public strips everything but the public-facing metadata.
func (t TestInfo) Public() TestInfo {
	return TestInfo{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Price:            t.Price,
		DefinitionSource: t.DefinitionSource,
	}
}

// TestDefinition is the section schema of a structured test.
type TestDefinition struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections"`
}

// SectionType discriminates Section variants.
type SectionType string

const (
	SectionProfile    SectionType = "profile"
	SectionAllocation SectionType = "belbin_allocation"
)

// Section is a tagged variant: exactly one of Profile or Allocation is set,
// matching Type.
type Section struct {
	Type       SectionType
	Profile    *ProfileSection
	Allocation *AllocationSection
}

type sectionHeader struct {
	Type SectionType `json:"type"`
}

func (s *Section) UnmarshalJSON(data []byte) error {
	var head sectionHeader
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case SectionProfile:
		var p ProfileSection
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("profile section: %w", err)
		}
		*s = Section{Type: head.Type, Profile: &p}
	case SectionAllocation:
		var a AllocationSection
		if err := json.Unmarshal(data, &a); err != nil {
			return fmt.Errorf("allocation section: %w", err)
		}
		*s = Section{Type: head.Type, Allocation: &a}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSection, head.Type)
	}
	return nil
}

func (s Section) MarshalJSON() ([]byte, error) {
	switch s.Type {
	case SectionProfile:
		if s.Profile == nil {
			return nil, fmt.Errorf("%w: empty profile section", ErrUnknownSection)
		}
		return json.Marshal(struct {
			Type SectionType `json:"type"`
			ProfileSection
		}{s.Type, *s.Profile})
	case SectionAllocation:
		if s.Allocation == nil {
			return nil, fmt.Errorf("%w: empty allocation section", ErrUnknownSection)
		}
		return json.Marshal(struct {
			Type SectionType `json:"type"`
			AllocationSection
		}{s.Type, *s.Allocation})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, s.Type)
	}
}

// FieldType enumerates profile field kinds.
type FieldType string

const (
	FieldText       FieldType = "text"
	FieldSelect     FieldType = "select"
	FieldJalaliDate FieldType = "jalali-date"
)

// ProfileSection collects the respondent's demographic fields.
type ProfileSection struct {
	ID           string   `json:"id,omitempty"`
	Title        string   `json:"title,omitempty"`
	Description  string   `json:"description,omitempty"`
	Fields       []Field  `json:"fields"`
	LockedFields []string `json:"lockedFields,omitempty"`
}

// Field returns the field with the given id.
func (p ProfileSection) Field(id string) (Field, bool) {
	for _, f := range p.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// IsLocked reports whether a field is read-only for the respondent.
func (p ProfileSection) IsLocked(id string) bool {
	for _, l := range p.LockedFields {
		if l == id {
			return true
		}
	}
	f, ok := p.Field(id)
	return ok && f.Locked
}

type Field struct {
	ID       string    `json:"id"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Locked   bool      `json:"locked,omitempty"`
	Options  []Option  `json:"options,omitempty"`
}

// Option is a selectable value for select fields and legacy questions.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AllocationSection holds fixed-point allocation blocks sharing one rule set.
type AllocationSection struct {
	ID     string          `json:"id,omitempty"`
	Title  string          `json:"title,omitempty"`
	Rules  AllocationRules `json:"rules"`
	Blocks []Block         `json:"blocks"`
}

type Block struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Stem  string `json:"stem,omitempty"`
	Items []Item `json:"items"`
}

// HasItem reports whether itemID belongs to the block.
func (b Block) HasItem(itemID string) bool {
	for _, it := range b.Items {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

type Item struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AllocationRules are the budget constraints of an allocation block.
// Nil values fall back to the defaults applied by Resolve.
type AllocationRules struct {
	Sum              *int `json:"sum,omitempty"`
	Min              *int `json:"min,omitempty"`
	Max              *int `json:"max,omitempty"`
	RequireSelection bool `json:"requireSelection,omitempty"`
}

// DefaultAllocationSum is the point budget used when rules omit sum.
const DefaultAllocationSum = 10

// Limits are resolved allocation rules.
type Limits struct {
	Sum              int
	Min              int
	Max              int
	RequireSelection bool
}

// Resolve applies defaults: sum=10, min=0, max=sum.
func (r AllocationRules) Resolve() Limits {
	l := Limits{Sum: DefaultAllocationSum, RequireSelection: r.RequireSelection}
	if r.Sum != nil {
		l.Sum = *r.Sum
	}
	if r.Min != nil {
		l.Min = *r.Min
	}
	l.Max = l.Sum
	if r.Max != nil {
		l.Max = *r.Max
	}
	return l
}

// QuestionType is the answer arity of a legacy question.
type QuestionType string

const (
	QuestionSingle QuestionType = "single"
	QuestionMulti  QuestionType = "multi"
)

// LegacyQuestion is a flat multiple-choice question.
type LegacyQuestion struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type,omitempty"`
	Required    *bool        `json:"required,omitempty"`
	Description string       `json:"description,omitempty"`
	Options     []Option     `json:"options"`
}

// IsMulti treats "multi" and "multi-choice" as multi-select; anything else is single.
func (q LegacyQuestion) IsMulti() bool {
	return q.Type == QuestionMulti || q.Type == "multi-choice"
}

// IsRequired defaults to true.
func (q LegacyQuestion) IsRequired() bool {
	return q.Required == nil || *q.Required
}

// HasOption reports whether optionID is a valid choice.
func (q LegacyQuestion) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// DefinitionBundle is a fetched definition plus the respondent's prefill values.
type DefinitionBundle struct {
	Definition TestDefinition
	Prefill    map[string]string
}
