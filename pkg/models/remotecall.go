package models

import (
	"time"

	"github.com/google/uuid"
)

// RemoteSystem identifies which collaborator a logged call went to.
type RemoteSystem string

const (
	RemoteSystemPlanner RemoteSystem = "planner"
	RemoteSystemErp     RemoteSystem = "erp"
)

// RemoteCall is an audit record of one call to a remote system. Calls whose
// planner confirmation failed after an ERP success are marked RetryRequired
// so the discrepancy can be reconciled manually; the line-level R5 flag
// points reviewers here.
type RemoteCall struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	SoNo          string       `db:"so_no" json:"so_no"`
	System        RemoteSystem `db:"system" json:"system"`
	Operation     string       `db:"operation" json:"operation"`
	HeaderCode    string       `db:"header_code" json:"header_code"`
	Success       bool         `db:"success" json:"success"`
	RetryRequired bool         `db:"retry_required" json:"retry_required"`
	ErrorMessage  *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// TableName returns the database table name
func (RemoteCall) TableName() string {
	return "remote_calls"
}
