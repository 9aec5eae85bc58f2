package types

import "errors"

// Link kinds. A forwarded value lands either in the consumer's payload
// (a column to write) or in its scope (a WHERE identity field).
const (
	LinkPayload = "payload"
	LinkScope   = "scope"
)

// SourceGenerated selects the value produced at execution time (for
// example an autoincrement id) instead of a payload column.
const SourceGenerated = "<generated>"

// Forward-link errors.
var (
	ErrLinkTarget = errors.New("forward-link target missing or incompatible")
	ErrLinkKind   = errors.New("unknown forward-link kind")
)

// Consumer is anything a forward-link can deliver a value into: another
// command's payload or scope, or an entity state's column snapshot.
type Consumer interface {
	// Await marks field as required before the consumer may proceed.
	Await(field string)

	// Receive stores the delivered value under field. Kind selects the
	// destination (LinkPayload or LinkScope) and clears any Await on the
	// field. Values are delivered at most once per link.
	Receive(field, kind string, value any) error
}

// ForwardLink declares that a value produced by one side becomes available
// to a consumer once the producer has it. Required links block the
// consumer until delivery.
type ForwardLink struct {
	SourceField string   // column on the producer, or SourceGenerated
	Target      Consumer // where the value is pushed
	TargetField string   // field on the consumer
	Kind        string   // LinkPayload or LinkScope
	Required    bool     // consumer must not execute before delivery
}

// deliver pushes the link's value, read from source (or the generated
// value when SourceField is SourceGenerated), into the target.
func (l ForwardLink) deliver(source Row, generated any) error {
	if l.Target == nil {
		return ErrLinkTarget
	}
	value := generated
	if l.SourceField != SourceGenerated {
		value = source[l.SourceField]
	}
	return l.Target.Receive(l.TargetField, l.Kind, value)
}
