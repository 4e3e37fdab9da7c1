package model

import "time"

// EntityKind classifies what a config file describes.
type EntityKind string

const (
	KindCoordinationServer EntityKind = "coordination-server"
	KindSubnetRouter       EntityKind = "subnet-router"
	KindRemote             EntityKind = "remote"
)

// Identity binds a logical peer to its current key. PermanentGuid is the
// first public key ever observed for the peer and never changes afterwards;
// comments and firewall associations reference it, not the live key.
type Identity struct {
	PermanentGuid    string     `json:"permanentGuid"`
	CurrentPublicKey string     `json:"currentPublicKey"`
	Hostname         string     `json:"hostname"`
	Kind             EntityKind `json:"kind"`
	FirstSeen        time.Time  `json:"firstSeen"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// RotationEvent records one key rotation. Append-only; the history is the
// audit trail for how CurrentPublicKey got to its present value.
type RotationEvent struct {
	EntityGuid string    `json:"entityGuid"`
	OldKey     string    `json:"oldKey"`
	NewKey     string    `json:"newKey"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
