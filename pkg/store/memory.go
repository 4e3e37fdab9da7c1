package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"wg-fleet/pkg/model"
)

// MemoryStore is a simple in-memory implementation, intended for dev and
// tests. Transact clones the maps, runs against the clone and swaps it in on
// success, which gives the same all-or-nothing behavior as a real database.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]model.Identity
	byCurrent  map[string]string // current key -> guid
	rotations  map[string][]model.RotationEvent
	devices    map[string]model.Device
	audit      []model.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]model.Identity),
		byCurrent:  make(map[string]string),
		rotations:  make(map[string][]model.RotationEvent),
		devices:    make(map[string]model.Device),
	}
}

func (m *MemoryStore) GetIdentity(guid string) (model.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.identities[guid]
	return id, ok, nil
}

func (m *MemoryStore) FindByCurrentKey(key string) (model.Identity, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	guid, ok := m.byCurrent[key]
	if !ok {
		return model.Identity{}, false, nil
	}
	return m.identities[guid], true, nil
}

func (m *MemoryStore) UpsertIdentity(id model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.identities[id.PermanentGuid]; ok {
		delete(m.byCurrent, old.CurrentPublicKey)
	}
	m.identities[id.PermanentGuid] = id
	m.byCurrent[id.CurrentPublicKey] = id.PermanentGuid
	return nil
}

func (m *MemoryStore) DeleteIdentity(guid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.identities[guid]
	if !ok {
		return fmt.Errorf("identity %s not found", guid)
	}
	delete(m.byCurrent, id.CurrentPublicKey)
	delete(m.identities, guid)
	delete(m.rotations, guid)
	delete(m.devices, guid)
	return nil
}

func (m *MemoryStore) ListIdentities() ([]model.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Identity, 0, len(m.identities))
	for _, id := range m.identities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermanentGuid < out[j].PermanentGuid })
	return out, nil
}

func (m *MemoryStore) AppendRotation(ev model.RotationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.rotations[ev.EntityGuid] = append(m.rotations[ev.EntityGuid], ev)
	return nil
}

func (m *MemoryStore) ListRotationHistory(guid string) ([]model.RotationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.rotations[guid]
	out := make([]model.RotationEvent, len(hist))
	copy(out, hist)
	return out, nil
}

func (m *MemoryStore) SaveDevice(guid string, d model.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[guid] = d
	return nil
}

func (m *MemoryStore) GetDevice(guid string) (model.Device, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[guid]
	return d, ok, nil
}

func (m *MemoryStore) AppendAudit(entry model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *MemoryStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.AuditEntry, len(m.audit))
	copy(out, m.audit)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Transact runs fn against a deep copy and swaps the copy in only if fn
// succeeds.
func (m *MemoryStore) Transact(fn func(IdentityStore) error) error {
	m.mu.Lock()
	clone := m.cloneLocked()
	m.mu.Unlock()

	if err := fn(clone); err != nil {
		return err
	}

	m.mu.Lock()
	m.identities = clone.identities
	m.byCurrent = clone.byCurrent
	m.rotations = clone.rotations
	m.devices = clone.devices
	m.audit = clone.audit
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) cloneLocked() *MemoryStore {
	c := NewMemoryStore()
	for k, v := range m.identities {
		c.identities[k] = v
	}
	for k, v := range m.byCurrent {
		c.byCurrent[k] = v
	}
	for k, v := range m.rotations {
		hist := make([]model.RotationEvent, len(v))
		copy(hist, v)
		c.rotations[k] = hist
	}
	for k, v := range m.devices {
		c.devices[k] = v
	}
	c.audit = append(c.audit, m.audit...)
	return c
}
