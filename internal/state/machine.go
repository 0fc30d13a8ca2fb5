// Package state implements the URL lifecycle state machine: legal status
// transitions and the guard predicates every mutating operation must pass.
package state

import (
	"fmt"

	"github.com/citepipe/citepipe/internal/citation"
)

// Operation names a guarded mutating operation.
type Operation string

// Guarded operations.
const (
	OpProcess   Operation = "process"
	OpLink      Operation = "link"
	OpUnlink    Operation = "unlink"
	OpSetIntent Operation = "set_intent"
	OpReset     Operation = "reset"
	OpIgnore    Operation = "ignore"
	OpArchive   Operation = "archive"
	OpRepair    Operation = "repair"
)

// GuardError reports a refused operation. Guard failures are validation
// errors: they are returned synchronously and change nothing.
type GuardError struct {
	Op   Operation
	Rule string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("operation %s refused: %s", e.Op, e.Rule)
}

// transitions is the legal status graph. Anything absent is illegal.
var transitions = map[citation.ProcessingStatus][]citation.ProcessingStatus{
	citation.StatusNotStarted: {
		citation.StatusProcessingExtern,
		citation.StatusProcessingContent,
		citation.StatusProcessingAI,
		citation.StatusStoredCustom,
		citation.StatusExhausted,
		citation.StatusIgnored,
		citation.StatusArchived,
	},
	citation.StatusProcessingExtern: {
		citation.StatusStored,
		citation.StatusStoredIncomplete,
		citation.StatusAwaitingSelection,
		citation.StatusAwaitingMetadata,
		citation.StatusProcessingContent,
		citation.StatusProcessingAI,
		citation.StatusExhausted,
		citation.StatusNotStarted,
	},
	citation.StatusProcessingContent: {
		citation.StatusStored,
		citation.StatusStoredIncomplete,
		citation.StatusAwaitingSelection,
		citation.StatusAwaitingMetadata,
		citation.StatusProcessingExtern,
		citation.StatusProcessingAI,
		citation.StatusExhausted,
		citation.StatusNotStarted,
	},
	citation.StatusProcessingAI: {
		citation.StatusStored,
		citation.StatusStoredIncomplete,
		citation.StatusAwaitingMetadata,
		citation.StatusExhausted,
		citation.StatusNotStarted,
	},
	citation.StatusAwaitingSelection: {
		citation.StatusProcessingExtern,
		citation.StatusStoredCustom,
		citation.StatusExhausted,
		citation.StatusIgnored,
		citation.StatusArchived,
		citation.StatusNotStarted,
	},
	citation.StatusAwaitingMetadata: {
		citation.StatusStored,
		citation.StatusStoredIncomplete,
		citation.StatusStoredCustom,
		citation.StatusIgnored,
		citation.StatusArchived,
		citation.StatusNotStarted,
	},
	citation.StatusStored: {
		citation.StatusStoredIncomplete,
		citation.StatusNotStarted,
	},
	citation.StatusStoredIncomplete: {
		citation.StatusStored,
		citation.StatusNotStarted,
	},
	citation.StatusStoredCustom: {
		citation.StatusNotStarted,
	},
	citation.StatusExhausted: {
		citation.StatusNotStarted,
		citation.StatusStoredCustom,
		citation.StatusIgnored,
		citation.StatusArchived,
	},
	citation.StatusIgnored: {
		citation.StatusNotStarted,
	},
	citation.StatusArchived: {
		citation.StatusNotStarted,
	},
}

// Machine validates transitions and guards operations. It holds no mutable
// state; the entity row is the unit of truth.
type Machine struct{}

// NewMachine returns the lifecycle state machine.
func NewMachine() *Machine { return &Machine{} }

// CanTransition reports whether from -> to is a legal status change.
func (m *Machine) CanTransition(from, to citation.ProcessingStatus) bool {
	if from == to {
		return true
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Guard evaluates the predicate for op against the entity's current state
// and user intent. A nil return means the operation may proceed.
func (m *Machine) Guard(op Operation, e citation.URLEntity) error {
	switch op {
	case OpProcess:
		if e.ProcessingStatus.InFlight() {
			return &GuardError{Op: op, Rule: "a processing stage is already in flight"}
		}
		if e.Linked() {
			return &GuardError{Op: op, Rule: "already linked to an external item"}
		}
		switch e.UserIntent {
		case citation.IntentIgnore, citation.IntentArchive:
			return &GuardError{Op: op, Rule: fmt.Sprintf("user intent %q blocks automated processing", e.UserIntent)}
		case citation.IntentManualOnly:
			return &GuardError{Op: op, Rule: "user intent manual_only blocks automated processing"}
		}
		switch e.ProcessingStatus {
		case citation.StatusExhausted:
			return &GuardError{Op: op, Rule: "processing exhausted; reset before retrying"}
		case citation.StatusIgnored, citation.StatusArchived:
			return &GuardError{Op: op, Rule: fmt.Sprintf("status %q blocks processing", e.ProcessingStatus)}
		case citation.StatusAwaitingSelection, citation.StatusAwaitingMetadata:
			return &GuardError{Op: op, Rule: "awaiting user input"}
		}
		return nil

	case OpLink:
		if e.Linked() {
			return &GuardError{Op: op, Rule: "already linked to an external item"}
		}
		if e.UserIntent == citation.IntentIgnore || e.UserIntent == citation.IntentArchive {
			return &GuardError{Op: op, Rule: fmt.Sprintf("user intent %q blocks linking", e.UserIntent)}
		}
		if e.ProcessingStatus.InFlight() {
			return &GuardError{Op: op, Rule: "a processing stage is in flight"}
		}
		return nil

	case OpUnlink:
		if !e.Linked() {
			return &GuardError{Op: op, Rule: "not linked to an external item"}
		}
		if e.ProcessingStatus.InFlight() {
			return &GuardError{Op: op, Rule: "a processing stage is in flight"}
		}
		return nil

	case OpSetIntent:
		if e.ProcessingStatus.InFlight() {
			return &GuardError{Op: op, Rule: "a processing stage is in flight"}
		}
		return nil

	case OpReset:
		if e.ProcessingStatus.InFlight() {
			return &GuardError{Op: op, Rule: "a processing stage is in flight"}
		}
		if e.Linked() {
			return &GuardError{Op: op, Rule: "linked to an external item; unlink before resetting"}
		}
		return nil

	case OpIgnore, OpArchive:
		if e.ProcessingStatus.InFlight() {
			return &GuardError{Op: op, Rule: "a processing stage is in flight"}
		}
		if e.Linked() {
			return &GuardError{Op: op, Rule: "linked to an external item; unlink first"}
		}
		return nil

	case OpRepair:
		return nil
	}
	return &GuardError{Op: op, Rule: "unknown operation"}
}

// CheckTransition returns a GuardError when from -> to is illegal.
func (m *Machine) CheckTransition(op Operation, from, to citation.ProcessingStatus) error {
	if !m.CanTransition(from, to) {
		return &GuardError{Op: op, Rule: fmt.Sprintf("illegal transition %s -> %s", from, to)}
	}
	return nil
}
