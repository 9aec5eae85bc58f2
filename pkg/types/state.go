package types

// Entity statuses. An entity progresses from new through the scheduled
// statuses to synced; transitions are driven by the mapper, never by the
// state itself.
const (
	StatusNew             = "new"
	StatusScheduledInsert = "scheduled_insert"
	StatusScheduledUpdate = "scheduled_update"
	StatusScheduledDelete = "scheduled_delete"
	StatusSynced          = "synced"
)

// validStatuses is the set of recognized entity status values.
var validStatuses = map[string]bool{
	StatusNew:             true,
	StatusScheduledInsert: true,
	StatusScheduledUpdate: true,
	StatusScheduledDelete: true,
	StatusSynced:          true,
}

// IsValidStatus reports whether status is a recognized entity status.
func IsValidStatus(status string) bool {
	return validStatuses[status]
}

// EntityState is the per-entity bookkeeping record: persistence status,
// the last-synchronized column snapshot used as the diff baseline, the
// command currently responsible for the entity (at most one, composite
// via split), and a claim count of relations still awaiting the entity's
// primary key.
//
// A state is both a forward-link consumer (a generated key lands in Data)
// and a producer (its columns forward into dependent commands' scope; a
// column already in Data is delivered immediately, the rest on arrival).
type EntityState struct {
	Status  string
	Data    Row
	Command *Command
	Claims  int

	// Outbound links waiting on columns not yet present in Data.
	links []ForwardLink
}

// NewEntityState returns the state of an entity never seen by the
// database.
func NewEntityState() *EntityState {
	return &EntityState{Status: StatusNew, Data: Row{}}
}

// LoadedEntityState returns the state of an entity freshly hydrated from
// the database, with data as the synced baseline.
func LoadedEntityState(data Row) *EntityState {
	return &EntityState{Status: StatusSynced, Data: data.Clone()}
}

// IncClaim records one more relation awaiting this entity's primary key.
func (s *EntityState) IncClaim() {
	s.Claims++
}

// DecClaim releases one claim. The count never goes below zero.
func (s *EntityState) DecClaim() {
	if s.Claims > 0 {
		s.Claims--
	}
}

// Await satisfies Consumer. States are never blocked; delivery order is
// carried by the commands that depend on them.
func (s *EntityState) Await(string) {}

// Receive stores a delivered column value in Data and flushes any of the
// state's own outbound links waiting on that column.
func (s *EntityState) Receive(field, _ string, value any) error {
	if s.Data == nil {
		s.Data = Row{}
	}
	s.Data[field] = value
	return s.flush(field)
}

// Forward registers an outbound link from one of the state's columns. If
// the column is already known the value is delivered immediately;
// otherwise delivery happens when the column arrives (for example when a
// pending insert forwards its generated key). Required links mark the
// target as awaiting either way.
func (s *EntityState) Forward(l ForwardLink) error {
	if l.Target == nil {
		return ErrLinkTarget
	}
	if l.Required {
		l.Target.Await(l.TargetField)
	}
	if value, ok := s.Data[l.SourceField]; ok {
		return l.Target.Receive(l.TargetField, l.Kind, value)
	}
	s.links = append(s.links, l)
	return nil
}

// flush delivers queued outbound links sourced from field.
func (s *EntityState) flush(field string) error {
	remaining := s.links[:0]
	var firstErr error
	for _, l := range s.links {
		if l.SourceField != field {
			remaining = append(remaining, l)
			continue
		}
		if err := l.Target.Receive(l.TargetField, l.Kind, s.Data[field]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.links = remaining
	return firstErr
}

// Synced records a completed flush: status synced, data as the new
// baseline, no live command.
func (s *EntityState) Synced(data Row) {
	s.Status = StatusSynced
	s.Data = data.Clone()
	s.Command = nil
}
