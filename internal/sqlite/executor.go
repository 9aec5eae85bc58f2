// Package sqlite provides the reference execution layer for Loom
// commands over database/sql with the modernc.org/sqlite driver: an
// executor that dispatches commands in creation order and applies
// forward-links as values become available, and a selection that loads
// single rows for lazy references.
package sqlite

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/loom/pkg/types"
)

// Executor executes Loom commands against registered databases. Commands
// are dispatched in the order given; forward-links fan out immediately
// after each execution, so a command built later in the same unit of work
// is ready by the time it is reached.
type Executor struct {
	dbs map[string]*sql.DB
}

// NewExecutor creates an executor with no databases registered.
func NewExecutor() *Executor {
	return &Executor{dbs: make(map[string]*sql.DB)}
}

// Open opens (or creates) a SQLite database at path and registers it
// under name.
func (e *Executor) Open(name, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening database %s: %w", name, err)
	}
	e.dbs[name] = db
	return nil
}

// Register registers an already-open database handle under name.
func (e *Executor) Register(name string, db *sql.DB) {
	e.dbs[name] = db
}

// Close closes all registered databases. Idempotent.
func (e *Executor) Close() error {
	for name, db := range e.dbs {
		if err := db.Close(); err != nil {
			return fmt.Errorf("closing database %s: %w", name, err)
		}
		delete(e.dbs, name)
	}
	return nil
}

// DB returns the registered handle for name.
func (e *Executor) DB(name string) (*sql.DB, error) {
	db, ok := e.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownDatabase, name)
	}
	return db, nil
}

// Run executes commands in order, failing fast on the first error. The
// failed command and the remainder are marked failed.
func (e *Executor) Run(commands []*types.Command) error {
	for i, cmd := range commands {
		if err := e.Execute(cmd); err != nil {
			for _, rest := range commands[i:] {
				rest.Fail()
			}
			return err
		}
	}
	return nil
}

// Execute dispatches one command. Splits run their parts in sequence;
// updates and deletes refuse to run while required scope fields are
// outstanding. Completion fans out the command's forward-links, including
// the generated row id for inserts.
func (e *Executor) Execute(cmd *types.Command) error {
	switch cmd.Op {
	case types.OpSplit:
		if err := e.Execute(cmd.First); err != nil {
			return err
		}
		return e.Execute(cmd.Second)
	case types.OpInsert:
		return e.executeInsert(cmd)
	case types.OpUpdate:
		return e.executeUpdate(cmd)
	case types.OpDelete:
		return e.executeDelete(cmd)
	default:
		return fmt.Errorf("%w: %s", types.ErrInvalidOp, cmd.Op)
	}
}

func (e *Executor) executeInsert(cmd *types.Command) error {
	db, err := e.DB(cmd.Database)
	if err != nil {
		return err
	}

	columns := sortedColumns(cmd.Payload)
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		placeholders[i] = "?"
		args[i] = cmd.Payload[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		cmd.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	result, err := db.Exec(query, args...)
	if err != nil {
		cmd.Fail()
		return fmt.Errorf("inserting into %s: %w", cmd.Table, err)
	}

	var generated any
	if id, err := result.LastInsertId(); err == nil {
		generated = id
	}
	return cmd.Complete(generated)
}

func (e *Executor) executeUpdate(cmd *types.Command) error {
	if !cmd.Ready() {
		return fmt.Errorf("%w: update on %s", types.ErrCommandBlocked, cmd.Table)
	}
	// An empty payload is a valid no-op write; it completes without
	// touching the database so its links still fan out.
	if len(cmd.Payload) == 0 {
		return cmd.Complete(nil)
	}

	db, err := e.DB(cmd.Database)
	if err != nil {
		return err
	}

	columns := sortedColumns(cmd.Payload)
	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+len(cmd.Scope))
	for i, col := range columns {
		sets[i] = col + " = ?"
		args = append(args, cmd.Payload[col])
	}
	where, whereArgs, err := scopeClause(cmd)
	if err != nil {
		return err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		cmd.Table, strings.Join(sets, ", "), where)
	if _, err := db.Exec(query, args...); err != nil {
		cmd.Fail()
		return fmt.Errorf("updating %s: %w", cmd.Table, err)
	}
	return cmd.Complete(nil)
}

func (e *Executor) executeDelete(cmd *types.Command) error {
	if !cmd.Ready() {
		return fmt.Errorf("%w: delete on %s", types.ErrCommandBlocked, cmd.Table)
	}
	db, err := e.DB(cmd.Database)
	if err != nil {
		return err
	}

	where, args, err := scopeClause(cmd)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", cmd.Table, where)
	if _, err := db.Exec(query, args...); err != nil {
		cmd.Fail()
		return fmt.Errorf("deleting from %s: %w", cmd.Table, err)
	}
	return cmd.Complete(nil)
}

// scopeClause renders a command's scope as a WHERE clause. An empty scope
// would address every row in the table and is refused.
func scopeClause(cmd *types.Command) (string, []any, error) {
	if len(cmd.Scope) == 0 {
		return "", nil, fmt.Errorf("unscoped %s on %s", cmd.Op, cmd.Table)
	}
	columns := sortedColumns(cmd.Scope)
	conditions := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		conditions[i] = col + " = ?"
		args[i] = cmd.Scope[col]
	}
	return strings.Join(conditions, " AND "), args, nil
}

// sortedColumns returns the row's column names in deterministic order.
func sortedColumns(r types.Row) []string {
	columns := make([]string, 0, len(r))
	for col := range r {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}
