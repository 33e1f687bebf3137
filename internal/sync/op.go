// Package sync implements the offline-first mutation engine: optimistic
// local application, the persisted pending-operation queue, and the
// reconciler that replays queued operations against the server when
// connectivity returns.
package sync

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"dayplan/backend"
)

// OpKind tags a pending operation variant.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Op is one queued mutation intent. Operations are appended in the order
// the user performed them and replayed in that same order.
type Op struct {
	// ID is a ULID: unique and sortable by creation time.
	ID   string `json:"id"`
	Kind OpKind `json:"kind"`

	// Task carries the full placeholder task for a create.
	Task *backend.Task `json:"task,omitempty"`

	// Target addresses the task for update/delete.
	Target backend.ID `json:"target,omitempty"`

	// Patch carries the partial field-change set for an update.
	Patch *backend.Patch `json:"patch,omitempty"`
}

// NewCreateOp wraps a placeholder task in a create operation.
func NewCreateOp(task backend.Task) Op {
	return Op{ID: ulid.Make().String(), Kind: OpCreate, Task: &task}
}

// NewUpdateOp wraps a partial change in an update operation.
func NewUpdateOp(target backend.ID, patch backend.Patch) Op {
	return Op{ID: ulid.Make().String(), Kind: OpUpdate, Target: target, Patch: &patch}
}

// NewDeleteOp wraps a target in a delete operation.
func NewDeleteOp(target backend.ID) Op {
	return Op{ID: ulid.Make().String(), Kind: OpDelete, Target: target}
}

// Encode serializes the operation for queue persistence.
func (op Op) Encode() ([]byte, error) {
	return json.Marshal(op)
}

// DecodeOp deserializes a persisted operation.
func DecodeOp(data []byte) (Op, error) {
	var op Op
	if err := json.Unmarshal(data, &op); err != nil {
		return Op{}, fmt.Errorf("failed to decode queued operation: %w", err)
	}
	switch op.Kind {
	case OpCreate:
		if op.Task == nil {
			return Op{}, fmt.Errorf("create operation %s has no task", op.ID)
		}
	case OpUpdate:
		if op.Patch == nil {
			return Op{}, fmt.Errorf("update operation %s has no patch", op.ID)
		}
	case OpDelete:
	default:
		return Op{}, fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return op, nil
}

// retarget returns a copy of the operation addressing a new id. Used
// when a replayed create resolves a placeholder to a server id.
func (op Op) retarget(id backend.ID) Op {
	op.Target = id
	return op
}
