// Package transition implements the status transition tables that gate every
// Route and Delivery status change. A table is a static adjacency map; any
// (current, target) pair absent from the map is invalid, including
// self-transitions. A no-op "change" would still append a history row and
// fire notifications, so callers with nothing to change must not call the
// transition path at all.
package transition

import (
	"fmt"
	"sort"
	"strings"

	dErrors "lastmile/pkg/domain-errors"
)

// Status constrains table keys to string-backed status enums.
type Status interface {
	~string
}

// Table maps each status to the set of statuses it may legally move to.
// Statuses with no outgoing edges are terminal.
type Table[S Status] map[S][]S

// IsValid reports whether current → target is a legal edge.
func (t Table[S]) IsValid(current, target S) bool {
	for _, s := range t[current] {
		if s == target {
			return true
		}
	}
	return false
}

// ValidFrom returns the sorted set of statuses reachable from current.
// Terminal statuses return an empty slice.
func (t Table[S]) ValidFrom(current S) []S {
	out := append([]S(nil), t[current]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminal reports whether current has no outgoing edges.
func (t Table[S]) IsTerminal(current S) bool {
	return len(t[current]) == 0
}

// Known reports whether the status appears in the table at all, as either a
// source or a target. Used to reject unrecognized status strings at the
// boundary before any legality check runs.
func (t Table[S]) Known(status S) bool {
	if _, ok := t[status]; ok {
		return true
	}
	for _, targets := range t {
		for _, s := range targets {
			if s == status {
				return true
			}
		}
	}
	return false
}

// Validate returns nil when current → target is legal, and otherwise a
// validation error naming the current status, the requested status, and the
// allowed set. It never mutates anything.
func (t Table[S]) Validate(entity string, current, target S) error {
	if t.IsValid(current, target) {
		return nil
	}
	allowed := t.ValidFrom(current)
	if len(allowed) == 0 {
		return dErrors.Newf(dErrors.CodeValidation,
			"%s status %q is terminal, cannot transition to %q", entity, current, target)
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return dErrors.New(dErrors.CodeValidation, fmt.Sprintf(
		"%s cannot transition from %q to %q, allowed: %s",
		entity, current, target, strings.Join(names, ", ")))
}
