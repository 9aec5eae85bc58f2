package types

// Row maps column names to values. Rows carry command payloads, scope
// filters, and entity snapshots; values are whatever the driver layer
// accepts for the column.
type Row map[string]any

// Clone returns a shallow copy of the row. A nil row clones to an empty,
// writable row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Has reports whether the row carries a value for the column.
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}
