// Apply command: reads change records and flushes them through the
// mapper and executor as one unit of work.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/loom/internal/sqlite"
	"github.com/mesh-intelligence/loom/pkg/mapper"
	"github.com/mesh-intelligence/loom/pkg/types"
)

// changeRecord is one JSON line of the apply input.
type changeRecord struct {
	Table string    `json:"table"`
	Op    string    `json:"op"` // "store" or "delete"
	Row   types.Row `json:"row"`
}

var applyCmd = &cobra.Command{
	Use:   "apply <changes-file>",
	Short: "Apply change records to the configured database",
	Long: `Apply reads JSON-lines change records ({"table": ..., "op": "store"|"delete",
"row": {...}}), queues them through per-table mappers, and executes the
resulting commands in dependency order against the configured SQLite
database. Rows carrying a primary key are diffed against the stored row;
rows without one are inserted.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

// applier holds the unit of work built up while reading change records.
type applier struct {
	exec      *sqlite.Executor
	selection *sqlite.Selection
	pk        string
	keys      types.KeyGenerator

	mappers  map[string]types.Mapper
	states   map[string]*types.EntityState
	commands []*types.Command
	synced   []*types.EntityState
}

func runApply(cmd *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open changes: %w", err)
	}
	defer file.Close()

	exec := sqlite.NewExecutor()
	if err := exec.Open("main", databasePath()); err != nil {
		return err
	}
	defer exec.Close()

	a := &applier{
		exec:      exec,
		selection: sqlite.NewSelection(exec),
		pk:        config.GetString(cfgKeyPrimaryKey),
		mappers:   make(map[string]types.Mapper),
		states:    make(map[string]*types.EntityState),
	}
	if config.GetString(cfgKeyKeys) == "uuid" {
		a.keys = types.UUIDKeys{}
	}

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec changeRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := a.queue(rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read changes: %w", err)
	}

	if err := a.exec.Run(a.commands); err != nil {
		return err
	}
	for _, state := range a.synced {
		state.Synced(state.Data)
	}

	fmt.Printf("Applied %d commands from %d change records\n", len(a.commands), line)
	return nil
}

// queue routes one change record through its table's mapper.
func (a *applier) queue(rec changeRecord) error {
	if rec.Table == "" {
		return fmt.Errorf("change record has no table")
	}
	m, err := a.mapperFor(rec.Table)
	if err != nil {
		return err
	}
	state, fresh, err := a.stateFor(rec.Table, rec.Row)
	if err != nil {
		return err
	}

	var cmd *types.Command
	switch rec.Op {
	case "store":
		cmd, err = m.QueueStore(rec.Row, state)
	case "delete":
		cmd, err = m.QueueDelete(rec.Row, state)
	default:
		return fmt.Errorf("unknown op %q", rec.Op)
	}
	if err != nil {
		return err
	}

	// A merged command (repeated store, or a split replacing a pending
	// insert) is already queued; only genuinely new units are appended.
	if fresh || !containsCommand(a.commands, cmd) {
		a.commands = replaceCommand(a.commands, cmd)
	}
	if rec.Op == "store" {
		a.synced = appendState(a.synced, state)
	}
	return nil
}

// mapperFor returns the table's mapper, building and binding it on first
// use.
func (a *applier) mapperFor(table string) (types.Mapper, error) {
	if m, ok := a.mappers[table]; ok {
		return m, nil
	}
	source := types.TableSource{DB: "main", Name: table}
	m, err := mapper.New(types.MapperConfig{
		Source:     source,
		PrimaryKey: a.pk,
		Fetcher: types.FetchFunc(func(entity any) (types.Row, error) {
			row, ok := entity.(types.Row)
			if !ok {
				return nil, fmt.Errorf("entity is %T, want row", entity)
			}
			return row.Clone(), nil
		}),
		Keys: a.keys,
	})
	if err != nil {
		return nil, err
	}
	a.mappers[table] = m
	a.selection.Bind(table, source)
	return m, nil
}

// stateFor returns the entity state for a row, keyed by table and primary
// key. Keyed rows are diffed against the stored row when one exists;
// unkeyed rows are new entities. fresh reports a state not seen before in
// this unit of work.
func (a *applier) stateFor(table string, row types.Row) (*types.EntityState, bool, error) {
	key, keyed := row[a.pk]
	if !keyed {
		return types.NewEntityState(), true, nil
	}

	id := fmt.Sprintf("%s/%v", table, key)
	if state, ok := a.states[id]; ok {
		return state, false, nil
	}

	stored, err := a.selection.SelectOne(table, types.Row{a.pk: key})
	if err != nil {
		return nil, false, err
	}
	var state *types.EntityState
	if stored == nil {
		state = types.NewEntityState()
	} else {
		state = types.LoadedEntityState(stored)
	}
	a.states[id] = state
	return state, true, nil
}

// replaceCommand swaps the state's previous command for cmd when a merge
// replaced it (split), otherwise appends cmd.
func replaceCommand(commands []*types.Command, cmd *types.Command) []*types.Command {
	if cmd.Op == types.OpSplit {
		for i, queued := range commands {
			if queued == cmd.First {
				commands[i] = cmd
				return commands
			}
		}
	}
	return append(commands, cmd)
}

func containsCommand(commands []*types.Command, cmd *types.Command) bool {
	for _, queued := range commands {
		if queued == cmd {
			return true
		}
	}
	return false
}

func appendState(states []*types.EntityState, state *types.EntityState) []*types.EntityState {
	for _, s := range states {
		if s == state {
			return states
		}
	}
	return append(states, state)
}
