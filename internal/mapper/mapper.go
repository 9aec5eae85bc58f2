// Package mapper implements command building for one entity role: it
// classifies an entity's persistence status, diffs its columns against
// the last synced snapshot, and queues the insert, update, or delete that
// brings the database in line, wiring forward-links so primary keys
// assigned at execution time reach the commands and states that need
// them.
package mapper

import (
	"fmt"
	"reflect"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// defaultPrimaryKey is used when the config names no primary-key column.
const defaultPrimaryKey = "id"

// Mapper queues deferred writes for one entity role.
type Mapper struct {
	source types.Source
	pk     string
	fetch  types.Fetcher
	cast   types.Typecast
	keys   types.KeyGenerator
}

// New builds a mapper from the given capabilities. A missing source or
// fetcher is a configuration error, fatal at construction.
func New(cfg types.MapperConfig) (*Mapper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pk := cfg.PrimaryKey
	if pk == "" {
		pk = defaultPrimaryKey
	}
	return &Mapper{
		source: cfg.Source,
		pk:     pk,
		fetch:  cfg.Fetcher,
		cast:   cfg.Cast,
		keys:   cfg.Keys,
	}, nil
}

// PrimaryKey returns the primary-key column name.
func (m *Mapper) PrimaryKey() string { return m.pk }

// columns extracts the entity's current column values and applies the
// typecast when one is configured.
func (m *Mapper) columns(entity any) (types.Row, error) {
	cols, err := m.fetch.FetchColumns(entity)
	if err != nil {
		return nil, fmt.Errorf("fetching columns: %w", err)
	}
	if m.cast == nil {
		return cols, nil
	}
	cast, err := m.cast.Cast(cols, m.source.Database())
	if err != nil {
		return nil, fmt.Errorf("casting columns: %w", err)
	}
	return cast, nil
}

// QueueStore queues the write that persists the entity's current
// columns.
//
// A new entity yields an insert. A tracked entity with no live command
// yields an update. A tracked entity already carrying an update or split
// yields that same command unchanged: repeated store calls in one unit of
// work are safe no-ops. A tracked entity carrying any other pending
// command (a not-yet-executed insert) yields a split chaining the update
// after it, so the update never races a still-unassigned primary key.
func (m *Mapper) QueueStore(entity any, state *types.EntityState) (*types.Command, error) {
	if state.Status == types.StatusNew {
		return m.queueInsert(entity, state)
	}
	last := state.Command
	if last == nil {
		return m.queueUpdate(entity, state)
	}
	if last.Op == types.OpUpdate || last.Op == types.OpSplit {
		return last, nil
	}
	update, err := m.queueUpdate(entity, state)
	if err != nil {
		return nil, err
	}
	split := types.NewSplit(last, update)
	state.Command = split
	return split, nil
}

// QueueDelete queues an unconditional delete of the entity's row. The
// delete waits on the primary key, which may still be pending from an
// unexecuted insert, and releases one claim on the entity.
func (m *Mapper) QueueDelete(_ any, state *types.EntityState) (*types.Command, error) {
	cmd := types.NewDelete(m.source.Database(), m.source.Table())
	state.Status = types.StatusScheduledDelete
	state.DecClaim()
	err := state.Forward(types.ForwardLink{
		SourceField: m.pk,
		Target:      cmd,
		TargetField: m.pk,
		Kind:        types.LinkScope,
		Required:    true,
	})
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// queueInsert builds the insert for a new entity. The primary key is
// included in the payload iff the key generator produced one; otherwise
// the column is omitted and the database assigns it. Either way the key
// forwards into the state once the insert executes.
func (m *Mapper) queueInsert(entity any, state *types.EntityState) (*types.Command, error) {
	cols, err := m.columns(entity)
	if err != nil {
		return nil, err
	}

	payload := cols.Clone()
	sourceField := types.SourceGenerated
	key, generated := any(nil), false
	if m.keys != nil {
		key, generated = m.keys.GenerateKey()
	}
	if generated {
		payload[m.pk] = key
		sourceField = m.pk
	} else {
		delete(payload, m.pk)
	}

	cmd := types.NewInsert(m.source.Database(), m.source.Table(), payload)
	err = cmd.Forward(types.ForwardLink{
		SourceField: sourceField,
		Target:      state,
		TargetField: m.pk,
		Kind:        types.LinkPayload,
	})
	if err != nil {
		return nil, err
	}

	state.Status = types.StatusScheduledInsert
	state.Data = payload.Clone() // pre-primary-key snapshot
	state.Command = cmd
	return cmd, nil
}

// queueUpdate builds an update carrying exactly the columns whose current
// value no longer compares equal to the synced baseline. The primary key
// never appears in the payload; it reaches the update's scope through a
// required forward-link from the state, so the update stays blocked until
// the key is known.
//
// The baseline narrows to the changed subset afterwards; see DESIGN.md.
func (m *Mapper) queueUpdate(entity any, state *types.EntityState) (*types.Command, error) {
	cols, err := m.columns(entity)
	if err != nil {
		return nil, err
	}

	changes := types.Row{}
	for column, value := range cols {
		if column == m.pk {
			continue
		}
		base, known := state.Data[column]
		if !known || !equalValue(value, base) {
			changes[column] = value
		}
	}

	cmd := types.NewUpdate(m.source.Database(), m.source.Table(), changes)
	state.Status = types.StatusScheduledUpdate

	// Narrow the baseline to the changed subset, but keep the primary key
	// when it is already assigned: the key is the entity's identity, not a
	// diff contribution, and the scope link below reads it from Data.
	baseline := changes.Clone()
	if key, known := state.Data[m.pk]; known {
		baseline[m.pk] = key
	}
	state.Data = baseline
	state.Command = cmd
	err = state.Forward(types.ForwardLink{
		SourceField: m.pk,
		Target:      cmd,
		TargetField: m.pk,
		Kind:        types.LinkScope,
		Required:    true,
	})
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

// equalValue compares column values by value, not identity.
func equalValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
