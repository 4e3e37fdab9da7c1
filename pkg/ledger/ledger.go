package ledger

import (
	"fmt"
	"sync"
	"time"

	"wg-fleet/pkg/keys"
	"wg-fleet/pkg/model"
	"wg-fleet/pkg/store"
)

// ConflictError means an import would bind two permanent identities to one
// public key, or one key to two identities. Fatal for the affected entity;
// the whole batch stops because downstream data would be ambiguous.
type ConflictError struct {
	Key  string
	Guid string
	Msg  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("identity conflict for key %s: %s", shortKey(e.Key), e.Msg)
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12] + "..."
	}
	return k
}

// Ledger owns the permanentGuid -> current key mapping and the append-only
// rotation history. It is the only component that mutates CurrentPublicKey;
// everything else treats Identity as read-only. The mutex is the
// single-writer discipline: one import run at a time per ledger handle.
type Ledger struct {
	mu    sync.Mutex
	store store.IdentityStore
}

func New(s store.IdentityStore) *Ledger {
	return &Ledger{store: s}
}

// Store exposes the backing store for read-side consumers (export, history).
func (l *Ledger) Store() store.IdentityStore { return l.store }

// Exclusive holds the single-writer lock while fn runs against a
// transactional view of the store. One import run = one Exclusive call:
// either everything it wrote lands, or the store is left untouched.
func (l *Ledger) Exclusive(fn func(tx *Txn) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Transact(func(s store.IdentityStore) error {
		return fn(&Txn{store: s})
	})
}

// Txn is the ledger's view inside one Exclusive run.
type Txn struct {
	store store.IdentityStore
}

// AssignIdentity resolves an observed public key to an Identity.
//
//   - Key already current for an identity: return it unchanged.
//   - explicitGuid supplied (manual re-association after an out-of-band
//     rotation): update that identity's current key and append a rotation.
//   - Otherwise the key starts a brand-new identity whose permanentGuid is
//     the key itself.
func (t *Txn) AssignIdentity(observedKey, hostnameHint string, kind model.EntityKind, explicitGuid string) (model.Identity, error) {
	if err := keys.Validate(observedKey); err != nil {
		return model.Identity{}, fmt.Errorf("observed public key: %w", err)
	}

	if id, ok, err := t.store.FindByCurrentKey(observedKey); err != nil {
		return model.Identity{}, fmt.Errorf("lookup by current key: %w", err)
	} else if ok {
		if explicitGuid != "" && explicitGuid != id.PermanentGuid {
			return model.Identity{}, &ConflictError{Key: observedKey, Guid: explicitGuid,
				Msg: fmt.Sprintf("key is already bound to identity %s", shortKey(id.PermanentGuid))}
		}
		return id, nil
	}

	if explicitGuid != "" {
		id, ok, err := t.store.GetIdentity(explicitGuid)
		if err != nil {
			return model.Identity{}, fmt.Errorf("lookup identity %s: %w", shortKey(explicitGuid), err)
		}
		if !ok {
			return model.Identity{}, &ConflictError{Key: observedKey, Guid: explicitGuid,
				Msg: "explicit permanent identity does not exist"}
		}
		return t.rotate(id, observedKey, "manual re-association on import")
	}

	// A new identity whose guid collides with an existing one means the key
	// was rotated away earlier; creating a second identity under the same
	// guid would clobber the first.
	if _, ok, err := t.store.GetIdentity(observedKey); err != nil {
		return model.Identity{}, fmt.Errorf("lookup identity: %w", err)
	} else if ok {
		return model.Identity{}, &ConflictError{Key: observedKey, Guid: observedKey,
			Msg: "key is the permanent identity of an already-rotated peer; supply the permanent identity explicitly"}
	}

	hostname := hostnameHint
	if hostname == "" {
		hostname = observedKey
	}
	id := model.Identity{
		PermanentGuid:    observedKey,
		CurrentPublicKey: observedKey,
		Hostname:         hostname,
		Kind:             kind,
		FirstSeen:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	if err := t.store.UpsertIdentity(id); err != nil {
		return model.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return id, nil
}

// Rotate replaces the current key of an existing identity and appends the
// rotation event.
func (t *Txn) Rotate(guid, newKey, reason string) (model.Identity, error) {
	if err := keys.Validate(newKey); err != nil {
		return model.Identity{}, fmt.Errorf("new public key: %w", err)
	}
	id, ok, err := t.store.GetIdentity(guid)
	if err != nil {
		return model.Identity{}, fmt.Errorf("lookup identity: %w", err)
	}
	if !ok {
		return model.Identity{}, fmt.Errorf("identity %s not found", shortKey(guid))
	}
	if id.CurrentPublicKey == newKey {
		return id, nil
	}
	if other, ok, err := t.store.FindByCurrentKey(newKey); err != nil {
		return model.Identity{}, fmt.Errorf("lookup by current key: %w", err)
	} else if ok && other.PermanentGuid != guid {
		return model.Identity{}, &ConflictError{Key: newKey, Guid: guid,
			Msg: fmt.Sprintf("key is already current for identity %s", shortKey(other.PermanentGuid))}
	}
	if reason == "" {
		reason = "key rotation"
	}
	return t.rotate(id, newKey, reason)
}

func (t *Txn) rotate(id model.Identity, newKey, reason string) (model.Identity, error) {
	ev := model.RotationEvent{
		EntityGuid: id.PermanentGuid,
		OldKey:     id.CurrentPublicKey,
		NewKey:     newKey,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
	id.CurrentPublicKey = newKey
	id.UpdatedAt = ev.Timestamp
	if err := t.store.UpsertIdentity(id); err != nil {
		return model.Identity{}, fmt.Errorf("update identity: %w", err)
	}
	if err := t.store.AppendRotation(ev); err != nil {
		return model.Identity{}, fmt.Errorf("append rotation: %w", err)
	}
	return id, nil
}

// SetHostname records a hostname learned from a classified comment. The
// permanent identity itself never changes.
func (t *Txn) SetHostname(guid, hostname string) error {
	if hostname == "" {
		return nil
	}
	id, ok, err := t.store.GetIdentity(guid)
	if err != nil || !ok {
		return err
	}
	if id.Hostname == hostname {
		return nil
	}
	id.Hostname = hostname
	return t.store.UpsertIdentity(id)
}

// Store gives fn-level access to the transactional store for callers that
// persist more than identities during the run (device models, audit).
func (t *Txn) Store() store.IdentityStore { return t.store }

// Rotate is the one-shot form of Txn.Rotate for callers outside an import
// run (the rotation API endpoint, the CLI).
func (l *Ledger) Rotate(guid, newKey, reason string) (model.Identity, error) {
	var id model.Identity
	err := l.Exclusive(func(tx *Txn) error {
		var err error
		id, err = tx.Rotate(guid, newKey, reason)
		return err
	})
	return id, err
}

// History lists the rotation events for one identity, oldest first.
func (l *Ledger) History(guid string) ([]model.RotationEvent, error) {
	return l.store.ListRotationHistory(guid)
}

// Get returns one identity by permanent GUID.
func (l *Ledger) Get(guid string) (model.Identity, bool, error) {
	return l.store.GetIdentity(guid)
}
