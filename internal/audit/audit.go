// Package audit records before/after snapshots of admin mutations.
package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

type Action string

const (
	ActionCreate       Action = "CREATE"
	ActionUpdate       Action = "UPDATE"
	ActionDelete       Action = "DELETE"
	ActionAdjustStock  Action = "ADJUST_STOCK"
	ActionCreateUser   Action = "CREATE_USER"
	ActionUpdateUser   Action = "UPDATE_USER"
	ActionDeleteUser   Action = "DELETE_USER"
	ActionChangeEmail  Action = "CHANGE_EMAIL"
	ActionChangePhone  Action = "CHANGE_PHONE"
	ActionMarkPaid     Action = "MARK_PAID"
	ActionVoid         Action = "VOID"
	ActionStatusChange Action = "STATUS_CHANGE"
)

// Snapshot is implemented by the per-entity snapshot types. Each mutating
// operation builds its own before/after values; nothing is reflected.
type Snapshot interface {
	ModelName() string
	ObjectID() string
}

type Entry struct {
	ID        int64           `json:"id"`
	UserID    *int64          `json:"user_id,omitempty"`
	Action    Action          `json:"action"`
	ModelName string          `json:"model_name"`
	ObjectID  string          `json:"object_id"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEntry builds an entry from snapshots; either side may be nil (create/delete).
func NewEntry(actor *int64, action Action, before, after Snapshot) (Entry, error) {
	ref := after
	if ref == nil {
		ref = before
	}
	if ref == nil {
		return Entry{}, fmt.Errorf("audit %s: no snapshot", action)
	}
	e := Entry{UserID: actor, Action: action, ModelName: ref.ModelName(), ObjectID: ref.ObjectID()}
	var err error
	if before != nil {
		if e.Before, err = json.Marshal(before); err != nil {
			return Entry{}, fmt.Errorf("audit before: %w", err)
		}
	}
	if after != nil {
		if e.After, err = json.Marshal(after); err != nil {
			return Entry{}, fmt.Errorf("audit after: %w", err)
		}
	}
	return e, nil
}

// Filter narrows listings and audit reports. Zero values mean "any".
type Filter struct {
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
	Action    Action     `json:"action,omitempty"`
	ModelName string     `json:"model_name,omitempty"`
	UserID    *int64     `json:"user_id,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}
