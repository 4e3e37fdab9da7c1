package model

import "time"

// AuditEntry captures an operation against the fleet: an import run, a key
// rotation, an export, an identity removal.
type AuditEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"` // import/rotate/export/remove
	Target    string    `json:"target"` // permanent GUID or source label
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
