package types

import (
	"errors"

	"github.com/google/uuid"
)

// ConstrainSelect names the default constraint a selection applies to
// reads when the caller's scope does not already cover its columns.
const ConstrainSelect = "select"

// Capability and configuration errors.
var (
	ErrNoSource        = errors.New("mapper requires a source")
	ErrNoFetcher       = errors.New("mapper requires a column fetcher")
	ErrNoSelection     = errors.New("reference has no selection capability")
	ErrUnknownRole     = errors.New("unknown role")
	ErrUnknownDatabase = errors.New("unknown database")
)

// Source describes where an entity role is stored: an opaque database
// identifier, a table name, and named default constraints for query
// scoping.
type Source interface {
	Database() string
	Table() string

	// Constrain returns the named default constraint, if defined.
	Constrain(name string) (Row, bool)
}

// TableSource is the plain Source implementation: a database identifier,
// a table name, and optional named constraints.
type TableSource struct {
	DB          string
	Name        string
	Constraints map[string]Row
}

func (t TableSource) Database() string { return t.DB }
func (t TableSource) Table() string    { return t.Name }

func (t TableSource) Constrain(name string) (Row, bool) {
	c, ok := t.Constraints[name]
	return c, ok
}

// Fetcher extracts an entity's current column values. Implemented per
// entity kind; the core never inspects entities itself.
type Fetcher interface {
	FetchColumns(entity any) (Row, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(entity any) (Row, error)

func (f FetchFunc) FetchColumns(entity any) (Row, error) { return f(entity) }

// Typecast converts column values into database representation before a
// command is built. Absence means pass-through.
type Typecast interface {
	Cast(columns Row, database string) (Row, error)
}

// KeyGenerator supplies explicit primary keys. Returning ok == false
// defers to the database (autoincrement).
type KeyGenerator interface {
	GenerateKey() (value any, ok bool)
}

// KeyFunc adapts a function to the KeyGenerator interface.
type KeyFunc func() (any, bool)

func (f KeyFunc) GenerateKey() (any, bool) { return f() }

// UUIDKeys generates UUID v7 primary keys.
type UUIDKeys struct{}

// GenerateKey returns a new UUID v7 string, falling back to UUID v4 if v7
// generation fails.
func (UUIDKeys) GenerateKey() (any, bool) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String(), true
	}
	return id.String(), true
}

// Selection loads at most one raw row for a role, filtered by scope.
// Returns (nil, nil) when no row matches; missing rows are the caller's
// concern.
type Selection interface {
	SelectOne(role string, scope Row) (Row, error)
}

// Hydrator populates an object in place from raw row data.
type Hydrator interface {
	Hydrate(target any, row Row) error
}

// Mapper queues deferred writes for one entity role. Implementations live
// in internal/mapper; construct one through pkg/mapper.
type Mapper interface {
	// QueueStore queues the insert or update needed to persist the
	// entity's current columns, updating state in place. Repeated calls
	// without intervening execution are safe no-ops returning the same
	// command.
	QueueStore(entity any, state *EntityState) (*Command, error)

	// QueueDelete queues an unconditional delete of the entity's row,
	// blocked until the primary key is known.
	QueueDelete(entity any, state *EntityState) (*Command, error)

	// PrimaryKey returns the primary-key column name.
	PrimaryKey() string
}

// MapperConfig carries the capabilities a mapper is built from. Source
// and Fetcher are required; Cast and Keys are optional (pass-through
// casting, autoincrement keys).
type MapperConfig struct {
	Source     Source
	PrimaryKey string // defaults to "id"
	Fetcher    Fetcher
	Cast       Typecast
	Keys       KeyGenerator
}

// Validate checks that the config names the required capabilities.
func (c MapperConfig) Validate() error {
	if c.Source == nil {
		return ErrNoSource
	}
	if c.Fetcher == nil {
		return ErrNoFetcher
	}
	return nil
}
