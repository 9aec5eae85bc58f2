package types

import (
	"errors"
	"fmt"
)

// Reference errors.
var (
	ErrReferenceBroken = errors.New("reference matches no row")
	ErrNoField         = errors.New("field not available on resolved value")
)

// Reference stands in for a related entity that has not been loaded yet.
// It carries the target role and a scope identifying the row, and
// resolves with exactly one query on first access. Once resolved (or
// directly set) it is a transparent stand-in for the loaded value and
// never queries again.
type Reference struct {
	role      string
	scope     Row
	selection Selection
	hydrator  Hydrator
	target    any

	resolved bool
	value    any
}

// NewReference builds an unresolved reference to role, identified by
// scope (for example a primary-key equality filter). If target is
// non-nil, resolution hydrates it in place through hydrator and the
// reference collapses into it; otherwise the raw row is the value.
func NewReference(role string, scope Row, selection Selection, hydrator Hydrator, target any) *Reference {
	return &Reference{
		role:      role,
		scope:     scope.Clone(),
		selection: selection,
		hydrator:  hydrator,
		target:    target,
	}
}

// Role returns the referenced entity role.
func (r *Reference) Role() string { return r.role }

// Scope returns a copy of the identifying filter.
func (r *Reference) Scope() Row { return r.scope.Clone() }

// Resolved reports whether the reference has collapsed into a value. The
// flag flips at most once.
func (r *Reference) Resolved() bool { return r.resolved }

// Resolve loads the referenced row on first call and memoizes the result;
// later calls return the same value without querying. A reference whose
// scope matches no row surfaces ErrReferenceBroken and stays unresolved,
// so a retry is possible.
func (r *Reference) Resolve() (any, error) {
	if r.resolved {
		return r.value, nil
	}
	if r.selection == nil {
		return nil, ErrNoSelection
	}
	row, err := r.selection.SelectOne(r.role, r.scope)
	if err != nil {
		return nil, fmt.Errorf("resolving %s reference: %w", r.role, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: role %s", ErrReferenceBroken, r.role)
	}
	if r.target != nil && r.hydrator != nil {
		if err := r.hydrator.Hydrate(r.target, row); err != nil {
			return nil, fmt.Errorf("hydrating %s reference: %w", r.role, err)
		}
		r.value = r.target
	} else {
		r.value = row
	}
	r.resolved = true
	return r.value, nil
}

// Get resolves the reference if needed and returns the value.
func (r *Reference) Get() (any, error) {
	return r.Resolve()
}

// Field resolves the reference if needed and returns the named column of
// the resolved value. Hydrated struct targets are read through Get
// instead; Field serves row-valued references.
func (r *Reference) Field(name string) (any, error) {
	value, err := r.Resolve()
	if err != nil {
		return nil, err
	}
	switch v := value.(type) {
	case Row:
		return v[name], nil
	case *Row:
		return (*v)[name], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoField, name)
	}
}

// Set replaces the reference's value directly, bypassing resolution: no
// query is ever issued for a reference pointed at nil or at an already
// loaded or new entity.
func (r *Reference) Set(value any) {
	r.value = value
	r.resolved = true
}
