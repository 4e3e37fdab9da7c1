package store

import "wg-fleet/pkg/model"

// IdentityStore is the persistence boundary for the identity ledger and the
// semantic device models. Implementations: memory (dev/tests), SQLite, and
// Consul KV behind the consul build tag.
type IdentityStore interface {
	GetIdentity(guid string) (model.Identity, bool, error)
	FindByCurrentKey(key string) (model.Identity, bool, error)
	UpsertIdentity(model.Identity) error
	// DeleteIdentity removes the identity and cascades: its rotation history,
	// stored comments, firewall-rule associations and the device model go
	// with it.
	DeleteIdentity(guid string) error
	ListIdentities() ([]model.Identity, error)

	AppendRotation(model.RotationEvent) error
	ListRotationHistory(guid string) ([]model.RotationEvent, error)

	SaveDevice(guid string, d model.Device) error
	GetDevice(guid string) (model.Device, bool, error)

	AppendAudit(model.AuditEntry) error
	ListAudit(limit int) ([]model.AuditEntry, error)

	// Transact runs fn against a transactional view of the store. If fn
	// returns an error nothing it wrote is kept; an import either lands
	// whole or leaves the store untouched.
	Transact(fn func(IdentityStore) error) error
}

// NewMemory is a helper to construct the in-memory implementation without
// importing it directly.
func NewMemory() IdentityStore {
	return NewMemoryStore()
}
