package models

import (
	"encoding/json"
	"time"
)

// EntityType names an audited, indexed entity
type EntityType string

const (
	EntityArticle  EntityType = "article"
	EntityCategory EntityType = "category"
	EntityTag      EntityType = "tag"
)

// EntityTypes lists every entity type in reindex order
var EntityTypes = []EntityType{EntityArticle, EntityCategory, EntityTag}

// AuditAction is the kind of mutation recorded in a log row
type AuditAction string

const (
	ActionCreate     AuditAction = "CREATE"
	ActionUpdate     AuditAction = "UPDATE"
	ActionSoftDelete AuditAction = "SOFT_DELETE"
	ActionRestore    AuditAction = "RESTORE"
	ActionDelete     AuditAction = "DELETE"
)

// AuditEntry is one append-only change record. Snapshots are stored as
// opaque JSON and never interpreted.
type AuditEntry struct {
	ID        int64           `json:"id" db:"id"`
	Entity    EntityType      `json:"entity" db:"-"`
	TargetID  int64           `json:"target_id" db:"target_id"`
	Action    AuditAction     `json:"action" db:"action"`
	ChangedBy int64           `json:"changed_by" db:"changed_by"`
	ChangedAt time.Time       `json:"changed_at" db:"changed_at"`
	OldData   json.RawMessage `json:"old_data" db:"old_data"`
	NewData   json.RawMessage `json:"new_data" db:"new_data"`
}
