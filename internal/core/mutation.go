package core

import (
	"tasklist/internal/cache"
	"tasklist/pkg/domain"
)

// MutationKind names the three optimistic operations.
type MutationKind string

const (
	KindInsert      MutationKind = "insert"
	KindUpdateField MutationKind = "update_field"
	KindDelete      MutationKind = "delete"
)

// MutationState tracks one mutation: Idle -> SpeculativeApplied -> Reconciled
// or RolledBack. Both end states are terminal.
type MutationState string

const (
	StateIdle               MutationState = "idle"
	StateSpeculativeApplied MutationState = "speculative_applied"
	StateReconciled         MutationState = "reconciled"
	StateRolledBack         MutationState = "rolled_back"
)

// Terminal reports whether the state is an end state.
func (s MutationState) Terminal() bool {
	return s == StateReconciled || s == StateRolledBack
}

// MutationContext carries the rollback basis of one in-flight mutation. It is
// owned by the Coordinator call that created it and dropped on settle.
type MutationContext struct {
	Kind      MutationKind
	Key       cache.Key
	Principal domain.Principal
	Target    string
	Text      string
	Fields    domain.Fields
	State     MutationState

	// Previous is the snapshot visible when the mutation was issued.
	// HadPrevious is false when the key had never been loaded.
	Previous    cache.Snapshot
	HadPrevious bool
}

func (m *MutationContext) operation() string {
	return string(m.Kind)
}
