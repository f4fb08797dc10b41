// Package statemachine holds the per-entity status lattices and the transition
// engine that validates and applies status changes. The lattices are fixed
// tables of legal (current, requested) pairs; feature services attach payload
// validation and side effects when they run a transition through the engine.
package statemachine

import (
	id "realhub/pkg/domain"
	dErrors "realhub/pkg/domain-errors"
)

// Status is an entity status value. Each entity kind draws from its own
// enumerated subset; the lattice enforces membership.
type Status string

// Lattice is the fixed set of legal transitions for one entity kind. Terminal
// states simply have no outgoing edges.
type Lattice struct {
	kind    id.EntityKind
	allowed map[Status]map[Status]bool
}

// NewLattice builds a lattice from adjacency rows. States that only appear as
// targets are terminal.
func NewLattice(kind id.EntityKind, rows map[Status][]Status) Lattice {
	allowed := make(map[Status]map[Status]bool, len(rows))
	for from, targets := range rows {
		set := make(map[Status]bool, len(targets))
		for _, to := range targets {
			set[to] = true
		}
		allowed[from] = set
	}
	return Lattice{kind: kind, allowed: allowed}
}

func (l Lattice) Kind() id.EntityKind { return l.kind }

// CanTransition reports whether requested is reachable from current in one step.
func (l Lattice) CanTransition(current, requested Status) bool {
	return l.allowed[current][requested]
}

// Validate returns a CodeInvalidTransition error when requested is not in the
// allowed target set for current.
func (l Lattice) Validate(current, requested Status) error {
	if !l.CanTransition(current, requested) {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"%s cannot move from %s to %s", l.kind, current, requested)
	}
	return nil
}

// Targets returns the allowed target set for current, for diagnostics.
func (l Lattice) Targets(current Status) []Status {
	targets := make([]Status, 0, len(l.allowed[current]))
	for to := range l.allowed[current] {
		targets = append(targets, to)
	}
	return targets
}
