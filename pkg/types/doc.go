// Package types defines the Loom persistence data model: column rows,
// per-entity synchronization state, deferred write commands with
// forward-linked value propagation, lazy references, capability interfaces,
// and standard errors.
//
// The package owns no SQL or connectivity. Commands and states are plain
// objects handed to an external executor; the capability interfaces
// (Source, Fetcher, Typecast, KeyGenerator, Selection, Hydrator) are the
// only seams to the surrounding database machinery.
package types
