package model

import "github.com/google/uuid"

type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// ChangeEvent announces that a row changed. It carries identity only; consumers
// fetch the row themselves. Delivery is at-least-once with no cross-table ordering.
type ChangeEvent struct {
	Table     string    `json:"table"`
	Operation Operation `json:"operation"`
	RowID     uuid.UUID `json:"row_id"`
	// PostID is set for reaction deletes, whose row is gone by the time the event is read.
	PostID *uuid.UUID `json:"post_id,omitempty"`
}
