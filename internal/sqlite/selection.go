package sqlite

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// Selection implements types.Selection over the executor's databases.
// Roles are bound to sources; SelectOne loads at most one raw row for a
// role, filtered by the caller's scope plus the source's default select
// constraint.
type Selection struct {
	exec    *Executor
	sources map[string]types.Source
}

// NewSelection creates a selection reading through the executor's
// registered databases.
func NewSelection(exec *Executor) *Selection {
	return &Selection{exec: exec, sources: make(map[string]types.Source)}
}

// Bind associates a role with its source. Rebinding replaces the source.
func (s *Selection) Bind(role string, source types.Source) {
	s.sources[role] = source
}

// SelectOne loads the single row matching scope for the role. Columns the
// scope does not cover are defaulted from the source's select constraint.
// Returns (nil, nil) when no row matches; the reference layer owns the
// integrity error.
func (s *Selection) SelectOne(role string, scope types.Row) (types.Row, error) {
	source, ok := s.sources[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownRole, role)
	}
	db, err := s.exec.DB(source.Database())
	if err != nil {
		return nil, err
	}

	filter := scope.Clone()
	if defaults, ok := source.Constrain(types.ConstrainSelect); ok {
		for col, val := range defaults {
			if !filter.Has(col) {
				filter[col] = val
			}
		}
	}

	query := "SELECT * FROM " + source.Table()
	var args []any
	if len(filter) > 0 {
		conditions := make([]string, 0, len(filter))
		for _, col := range sortedColumns(filter) {
			conditions = append(conditions, col+" = ?")
			args = append(args, filter[col])
		}
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " LIMIT 1"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", role, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading %s columns: %w", role, err)
	}
	values := make([]any, len(columns))
	scans := make([]any, len(columns))
	for i := range values {
		scans[i] = &values[i]
	}
	if err := rows.Scan(scans...); err != nil {
		return nil, fmt.Errorf("scanning %s row: %w", role, err)
	}

	row := make(types.Row, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, rows.Err()
}

// MapHydrator populates *types.Row targets in place, replacing their
// contents with the loaded row. It serves row-shaped entities; struct
// entities bring their own Hydrator.
type MapHydrator struct{}

// Hydrate replaces the target row's contents with row's.
func (MapHydrator) Hydrate(target any, row types.Row) error {
	dst, ok := target.(*types.Row)
	if !ok {
		return fmt.Errorf("hydrate target must be *types.Row, got %T", target)
	}
	if *dst == nil {
		*dst = types.Row{}
	}
	for col := range *dst {
		delete(*dst, col)
	}
	for col, val := range row {
		(*dst)[col] = val
	}
	return nil
}
