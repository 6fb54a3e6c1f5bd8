package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies which entity a queued mutation belongs to. The set is
// closed: the sync manager dispatches on it and every value must have a
// remote adapter.
type Kind string

const (
	KindVisit      Kind = "visit"
	KindChecklist  Kind = "installation_checklist"
	KindLeadNote   Kind = "lead_note"
	KindClientNote Kind = "client_note"
)

// KindOrder is the fixed order in which kinds are drained during a sync pass.
var KindOrder = []Kind{KindVisit, KindChecklist, KindLeadNote, KindClientNote}

// IsValid reports whether k is a member of the closed kind set.
func (k Kind) IsValid() bool {
	switch k {
	case KindVisit, KindChecklist, KindLeadNote, KindClientNote:
		return true
	}
	return false
}

// IsNote reports whether the kind is an append-only note (always POSTed,
// parent id required).
func (k Kind) IsNote() bool {
	return k == KindLeadNote || k == KindClientNote
}

// ItemStatus is the lifecycle state of a queued item. Synced items are
// removed from the queue rather than retained, so there is no terminal
// "synced" value here.
type ItemStatus string

const (
	StatusPending ItemStatus = "pending"
	StatusSyncing ItemStatus = "syncing"
	StatusFailed  ItemStatus = "failed"
)

// QueuedItem is one pending offline write awaiting transmission.
type QueuedItem struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	ParentID  string          `json:"parent_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Status    ItemStatus      `json:"status"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ItemUpdate carries the mutable fields of a queued item. Nil fields are
// left untouched by Queue.Update.
type ItemUpdate struct {
	Status   *ItemStatus
	Attempts *int
	Error    *string
}

// String returns the JSON representation of the item, used in logs and
// diagnostics.
func (i *QueuedItem) String() string {
	data, err := json.Marshal(i)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal queued item: %v"}`, err)
	}
	return string(data)
}
