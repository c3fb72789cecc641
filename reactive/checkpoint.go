package reactive

import "encoding/json"

// Batch is what a replica hands its Checkpointer after applying one entry.
type Batch struct {
	Position  string
	Changes   []Change
	Sequences map[TableName]uint64 // next internal id per table
}

// Checkpointer persists the state of a replica so that a restart resumes from
// the last applied position instead of replaying the whole log.
type Checkpointer interface {
	// Restore feeds every stored row to fn and returns the position and id
	// sequences the rows were committed at. A fresh checkpoint returns "".
	Restore(fn func(table TableName, row json.RawMessage) error) (string, map[TableName]uint64, error)

	// Commit persists the effects of one applied entry.
	Commit(b Batch) error
}
