//go:build consul

package store

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	consulapi "github.com/hashicorp/consul/api"

	"wg-fleet/pkg/model"
)

// ConsulStore is a Consul-KV-backed IdentityStore for fleets that already
// run Consul. KV has no transactions spanning our whole import, so Transact
// falls back to running fn directly; the SQLite backend is the one to use
// when atomic imports matter.
type ConsulStore struct {
	cli *consulapi.Client
}

const (
	identityPrefix = "wg-fleet/identities/"
	rotationPrefix = "wg-fleet/rotations/"
	devicePrefix   = "wg-fleet/devices/"
	auditPrefix    = "wg-fleet/audit/"
	importLockKey  = "wg-fleet/locks/import"
)

// NewConsulStore creates a Consul-backed store (requires build tag consul).
func NewConsulStore(addr string) IdentityStore {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		log.Printf("consul client init failed: %v", err)
	}
	return &ConsulStore{cli: cli}
}

func (s *ConsulStore) getJSON(key string, out any) (bool, error) {
	if s.cli == nil {
		return false, fmt.Errorf("consul client not configured")
	}
	kv, _, err := s.cli.KV().Get(key, nil)
	if err != nil || kv == nil {
		return false, err
	}
	return true, json.Unmarshal(kv.Value, out)
}

func (s *ConsulStore) putJSON(key string, v any) error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.cli.KV().Put(&consulapi.KVPair{Key: key, Value: b}, nil)
	return err
}

func (s *ConsulStore) GetIdentity(guid string) (model.Identity, bool, error) {
	var id model.Identity
	ok, err := s.getJSON(identityPrefix+guid, &id)
	return id, ok, err
}

func (s *ConsulStore) FindByCurrentKey(key string) (model.Identity, bool, error) {
	ids, err := s.ListIdentities()
	if err != nil {
		return model.Identity{}, false, err
	}
	for _, id := range ids {
		if id.CurrentPublicKey == key {
			return id, true, nil
		}
	}
	return model.Identity{}, false, nil
}

func (s *ConsulStore) UpsertIdentity(id model.Identity) error {
	if id.FirstSeen.IsZero() {
		id.FirstSeen = time.Now()
	}
	id.UpdatedAt = time.Now()
	return s.putJSON(identityPrefix+id.PermanentGuid, id)
}

func (s *ConsulStore) DeleteIdentity(guid string) error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	// cascade: rotations, device doc and the identity itself
	if _, err := s.cli.KV().DeleteTree(rotationPrefix+guid+"/", nil); err != nil {
		return err
	}
	if _, err := s.cli.KV().Delete(devicePrefix+guid, nil); err != nil {
		return err
	}
	_, err := s.cli.KV().Delete(identityPrefix+guid, nil)
	return err
}

func (s *ConsulStore) ListIdentities() ([]model.Identity, error) {
	if s.cli == nil {
		return nil, fmt.Errorf("consul client not configured")
	}
	pairs, _, err := s.cli.KV().List(identityPrefix, nil)
	if err != nil {
		return nil, err
	}
	var out []model.Identity
	for _, p := range pairs {
		var id model.Identity
		if err := json.Unmarshal(p.Value, &id); err == nil {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermanentGuid < out[j].PermanentGuid })
	return out, nil
}

func (s *ConsulStore) AppendRotation(ev model.RotationEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	key := fmt.Sprintf("%s%s/%d", rotationPrefix, ev.EntityGuid, ev.Timestamp.UnixNano())
	return s.putJSON(key, ev)
}

func (s *ConsulStore) ListRotationHistory(guid string) ([]model.RotationEvent, error) {
	if s.cli == nil {
		return nil, fmt.Errorf("consul client not configured")
	}
	pairs, _, err := s.cli.KV().List(rotationPrefix+guid+"/", nil)
	if err != nil {
		return nil, err
	}
	var out []model.RotationEvent
	for _, p := range pairs {
		var ev model.RotationEvent
		if err := json.Unmarshal(p.Value, &ev); err == nil {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *ConsulStore) SaveDevice(guid string, d model.Device) error {
	return s.putJSON(devicePrefix+guid, encodeDevice(d))
}

func (s *ConsulStore) GetDevice(guid string) (model.Device, bool, error) {
	var doc deviceDoc
	ok, err := s.getJSON(devicePrefix+guid, &doc)
	if !ok || err != nil {
		return model.Device{}, ok, err
	}
	return doc.decode(), true, nil
}

func (s *ConsulStore) AppendAudit(entry model.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	key := fmt.Sprintf("%s%d-%s", auditPrefix, entry.Timestamp.UnixNano(), entry.Target)
	return s.putJSON(key, entry)
}

func (s *ConsulStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	if s.cli == nil {
		return nil, fmt.Errorf("consul client not configured")
	}
	pairs, _, err := s.cli.KV().List(auditPrefix, nil)
	if err != nil {
		return nil, err
	}
	var out []model.AuditEntry
	for _, p := range pairs {
		var e model.AuditEntry
		if err := json.Unmarshal(p.Value, &e); err == nil {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Transact takes a Consul session lock on the import key so two importers
// cannot interleave, then runs fn against the live store. Writes are not
// rolled back on failure; KV offers no multi-key transaction of this size.
func (s *ConsulStore) Transact(fn func(IdentityStore) error) error {
	if s.cli == nil {
		return fmt.Errorf("consul client not configured")
	}
	lock, err := s.cli.LockKey(importLockKey)
	if err != nil {
		return fmt.Errorf("consul lock: %w", err)
	}
	if _, err := lock.Lock(nil); err != nil {
		return fmt.Errorf("consul lock acquire: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	return fn(s)
}
