package domain

import (
	"fmt"
	"time"
)

type PendingKind string

const (
	PendingClarificationKind PendingKind = "clarification"
	PendingEntityPickerKind  PendingKind = "entity_picker"
)

// PendingSchemaVersion is bumped whenever the persisted shape of PendingInteraction changes.
const PendingSchemaVersion = 1

// PendingInteraction is the single interruption slot of a conversation. Exactly one of
// Clarification or EntityPicker is set, matching Kind.
type PendingInteraction struct {
	Version       int                   `json:"version"`
	Kind          PendingKind           `json:"kind"`
	Clarification *PendingClarification `json:"clarification,omitempty"`
	EntityPicker  *PendingEntityPicker  `json:"entity_picker,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

type PendingClarification struct {
	ID          string         `json:"id"`
	Tool        string         `json:"tool"`
	MissingArgs []string       `json:"missing_args"`
	Question    string         `json:"question"`
	Args        map[string]any `json:"args"`
	// Continuation holds the plan steps that follow the interrupted one.
	Continuation *PlanContinuation `json:"continuation,omitempty"`
}

type PlanContinuation struct {
	Steps           []PlanStep `json:"steps"`
	CompletedDrafts []string   `json:"completed_drafts,omitempty"`
	StepOffset      int        `json:"step_offset"`
}

type Candidate struct {
	ID       string         `json:"id"`
	EntityID string         `json:"entity_id"`
	Label    string         `json:"label"`
	Summary  map[string]any `json:"summary,omitempty"`
}

type PendingEntityPicker struct {
	ID         string         `json:"id"`
	Tool       string         `json:"tool"`
	ArgName    string         `json:"arg_name"`
	BaseArgs   map[string]any `json:"base_args,omitempty"`
	Prompt     string         `json:"prompt"`
	Candidates []Candidate    `json:"candidates"`
}

func NewClarificationInteraction(c PendingClarification, now time.Time) PendingInteraction {
	return PendingInteraction{
		Version:       PendingSchemaVersion,
		Kind:          PendingClarificationKind,
		Clarification: &c,
		CreatedAt:     now,
	}
}

func NewEntityPickerInteraction(p PendingEntityPicker, now time.Time) PendingInteraction {
	return PendingInteraction{
		Version:      PendingSchemaVersion,
		Kind:         PendingEntityPickerKind,
		EntityPicker: &p,
		CreatedAt:    now,
	}
}

// ID returns the correlation id of whichever interruption is stored.
func (p *PendingInteraction) ID() string {
	if p == nil {
		return ""
	}
	switch p.Kind {
	case PendingClarificationKind:
		if p.Clarification != nil {
			return p.Clarification.ID
		}
	case PendingEntityPickerKind:
		if p.EntityPicker != nil {
			return p.EntityPicker.ID
		}
	}
	return ""
}

func (p *PendingInteraction) Validate() error {
	if p == nil {
		return fmt.Errorf("pending interaction is nil")
	}
	if p.Version <= 0 || p.Version > PendingSchemaVersion {
		return fmt.Errorf("unsupported pending interaction version %d", p.Version)
	}
	switch p.Kind {
	case PendingClarificationKind:
		if p.Clarification == nil || p.EntityPicker != nil {
			return fmt.Errorf("clarification interaction must carry only a clarification")
		}
		if p.Clarification.ID == "" || p.Clarification.Tool == "" {
			return fmt.Errorf("clarification requires id and tool")
		}
		if len(p.Clarification.MissingArgs) == 0 {
			return fmt.Errorf("clarification requires at least one missing argument")
		}
	case PendingEntityPickerKind:
		if p.EntityPicker == nil || p.Clarification != nil {
			return fmt.Errorf("entity picker interaction must carry only an entity picker")
		}
		if p.EntityPicker.ID == "" || p.EntityPicker.Tool == "" {
			return fmt.Errorf("entity picker requires id and tool")
		}
		if len(p.EntityPicker.Candidates) < 2 {
			return fmt.Errorf("entity picker requires at least two candidates")
		}
	default:
		return fmt.Errorf("unknown pending interaction kind %q", p.Kind)
	}
	return nil
}

// CanReplace enforces the single-slot rule: a new interaction may only replace a stale
// one of the same kind.
func CanReplace(current *PendingInteraction, next PendingInteraction) error {
	if current == nil || current.Kind == next.Kind {
		return nil
	}
	return WrapError(ErrPendingConflict, "replace pending interaction",
		fmt.Errorf("stored %s would be discarded by %s", current.Kind, next.Kind))
}

func (p *PendingEntityPicker) Candidate(candidateID string) (Candidate, bool) {
	for _, c := range p.Candidates {
		if c.ID == candidateID {
			return c, true
		}
	}
	return Candidate{}, false
}
