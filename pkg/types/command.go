package types

import "errors"

// Command operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpSplit  = "split"
)

// Command execution statuses. A command starts pending, becomes blocked
// while required scope fields are outstanding, ready once all are
// delivered, and executed or failed exactly once.
const (
	CommandPending  = "pending"
	CommandBlocked  = "blocked"
	CommandReady    = "ready"
	CommandExecuted = "executed"
	CommandFailed   = "failed"
)

// Command execution errors.
var (
	ErrCommandBlocked  = errors.New("command has unresolved required scope fields")
	ErrAlreadyExecuted = errors.New("command already executed")
	ErrInvalidOp       = errors.New("invalid command operation")
)

// Command is a deferred database write addressed to a database and table.
// Inserts and updates carry a column payload; updates and deletes carry a
// scope identifying the target row. Splits wrap two dependent commands
// against the same entity and expose no payload of their own.
type Command struct {
	Op       string
	Database string
	Table    string
	Payload  Row
	Scope    Row

	// Split parts. Second is a continuation of First and must execute
	// after it.
	First  *Command
	Second *Command

	links    []ForwardLink
	awaiting map[string]bool
	status   string
}

// NewInsert builds an insert command with the given payload.
func NewInsert(database, table string, payload Row) *Command {
	return &Command{
		Op:       OpInsert,
		Database: database,
		Table:    table,
		Payload:  payload,
		Scope:    Row{},
		status:   CommandPending,
	}
}

// NewUpdate builds an update command with the given payload. The scope is
// filled by forward-links before execution.
func NewUpdate(database, table string, payload Row) *Command {
	return &Command{
		Op:       OpUpdate,
		Database: database,
		Table:    table,
		Payload:  payload,
		Scope:    Row{},
		status:   CommandPending,
	}
}

// NewDelete builds a delete command. The scope is filled by forward-links
// before execution.
func NewDelete(database, table string) *Command {
	return &Command{
		Op:       OpDelete,
		Database: database,
		Table:    table,
		Payload:  Row{},
		Scope:    Row{},
		status:   CommandPending,
	}
}

// NewSplit wraps two commands as one dependency-ordered unit. Second is a
// continuation of First against the same entity; executors dispatch the
// parts in sequence.
func NewSplit(first, second *Command) *Command {
	return &Command{
		Op:     OpSplit,
		First:  first,
		Second: second,
	}
}

// Status returns the command's execution status. A split reports failure
// if either part failed, executed once both parts executed, and its first
// part's status otherwise.
func (c *Command) Status() string {
	if c.Op == OpSplit {
		if c.First.Status() == CommandFailed || c.Second.Status() == CommandFailed {
			return CommandFailed
		}
		if c.First.Status() != CommandExecuted {
			return c.First.Status()
		}
		return c.Second.Status()
	}
	if c.status == CommandBlocked && len(c.awaiting) == 0 {
		return CommandReady
	}
	return c.status
}

// Ready reports whether every required scope field has been supplied.
// Commands with no required fields are ready immediately. A split is ready
// when its first part is.
func (c *Command) Ready() bool {
	if c.Op == OpSplit {
		return c.First.Ready()
	}
	switch c.status {
	case CommandExecuted, CommandFailed:
		return false
	}
	return len(c.awaiting) == 0
}

// Await marks field as a required input; the command refuses to execute
// until the field is received.
func (c *Command) Await(field string) {
	if c.awaiting == nil {
		c.awaiting = make(map[string]bool)
	}
	c.awaiting[field] = true
	if c.status == CommandPending {
		c.status = CommandBlocked
	}
}

// Receive stores a delivered value and clears any Await on the field.
// Kind selects payload or scope. Receiving the last awaited field flips a
// blocked command to ready.
func (c *Command) Receive(field, kind string, value any) error {
	if c.Op == OpSplit {
		return ErrLinkTarget
	}
	switch kind {
	case LinkPayload:
		if c.Payload == nil {
			c.Payload = Row{}
		}
		c.Payload[field] = value
	case LinkScope:
		if c.Scope == nil {
			c.Scope = Row{}
		}
		c.Scope[field] = value
	default:
		return ErrLinkKind
	}
	delete(c.awaiting, field)
	if c.status == CommandBlocked && len(c.awaiting) == 0 {
		c.status = CommandReady
	}
	return nil
}

// Forward registers a forward-link fanned out on completion. Required
// links immediately mark the target as awaiting the field.
func (c *Command) Forward(l ForwardLink) error {
	if l.Target == nil {
		return ErrLinkTarget
	}
	if l.Required {
		l.Target.Await(l.TargetField)
	}
	c.links = append(c.links, l)
	return nil
}

// Complete marks the command executed and fans out its forward-links,
// pushing payload values (or the generated value for SourceGenerated
// links) into their targets. Completing twice or while blocked is an
// orchestrator invariant violation. Splits are completed through their
// parts, never directly.
func (c *Command) Complete(generated any) error {
	if c.Op == OpSplit {
		return ErrInvalidOp
	}
	switch c.Status() {
	case CommandExecuted:
		return ErrAlreadyExecuted
	case CommandBlocked:
		return ErrCommandBlocked
	}
	c.status = CommandExecuted
	for _, l := range c.links {
		if err := l.deliver(c.Payload, generated); err != nil {
			return err
		}
	}
	return nil
}

// Fail marks the command failed. Failed commands never fan out values.
func (c *Command) Fail() {
	if c.Op == OpSplit {
		c.First.Fail()
		c.Second.Fail()
		return
	}
	c.status = CommandFailed
}
