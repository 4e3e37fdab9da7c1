package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"wg-fleet/pkg/model"
)

// SQLiteStore persists the ledger in a local SQLite file. Comments and
// firewall-rule associations hang off the identity row with ON DELETE
// CASCADE, so removing an identity removes everything that referenced it.
type SQLiteStore struct {
	db *sql.DB
	tx *sql.Tx // non-nil inside Transact
}

const schema = `
CREATE TABLE IF NOT EXISTS identities(
	guid TEXT PRIMARY KEY,
	current_key TEXT UNIQUE NOT NULL,
	hostname TEXT NOT NULL,
	kind TEXT NOT NULL,
	first_seen INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS rotations(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT NOT NULL REFERENCES identities(guid) ON DELETE CASCADE,
	old_key TEXT NOT NULL,
	new_key TEXT NOT NULL,
	reason TEXT,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rotations_guid ON rotations(guid);
CREATE TABLE IF NOT EXISTS devices(
	guid TEXT PRIMARY KEY REFERENCES identities(guid) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	doc TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS comments(
	guid TEXT NOT NULL REFERENCES identities(guid) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	category TEXT NOT NULL,
	text TEXT NOT NULL,
	role_tag TEXT,
	rationale_target TEXT,
	guid_ref TEXT
);
CREATE INDEX IF NOT EXISTS idx_comments_guid ON comments(guid);
CREATE TABLE IF NOT EXISTS rules(
	guid TEXT NOT NULL REFERENCES identities(guid) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	pattern TEXT NOT NULL,
	scope TEXT NOT NULL,
	rationale TEXT,
	up TEXT NOT NULL,
	down TEXT,
	vars TEXT
);
CREATE INDEX IF NOT EXISTS idx_rules_guid ON rules(guid);
CREATE TABLE IF NOT EXISTS audit(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor TEXT,
	action TEXT,
	target TEXT,
	detail TEXT,
	ts INTEGER NOT NULL
);`

// NewSQLiteStore opens (creating if needed) the ledger database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000&_pragma=foreign_keys=1"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) exec(query string, args ...any) (sql.Result, error) {
	if s.tx != nil {
		return s.tx.Exec(query, args...)
	}
	return s.db.Exec(query, args...)
}

func (s *SQLiteStore) query(query string, args ...any) (*sql.Rows, error) {
	if s.tx != nil {
		return s.tx.Query(query, args...)
	}
	return s.db.Query(query, args...)
}

func (s *SQLiteStore) queryRow(query string, args ...any) *sql.Row {
	if s.tx != nil {
		return s.tx.QueryRow(query, args...)
	}
	return s.db.QueryRow(query, args...)
}

func scanIdentity(row interface{ Scan(...any) error }) (model.Identity, error) {
	var id model.Identity
	var firstSeen, updatedAt int64
	err := row.Scan(&id.PermanentGuid, &id.CurrentPublicKey, &id.Hostname, &id.Kind, &firstSeen, &updatedAt)
	if err != nil {
		return model.Identity{}, err
	}
	id.FirstSeen = time.Unix(firstSeen, 0)
	id.UpdatedAt = time.Unix(updatedAt, 0)
	return id, nil
}

func (s *SQLiteStore) GetIdentity(guid string) (model.Identity, bool, error) {
	row := s.queryRow(`SELECT guid, current_key, hostname, kind, first_seen, updated_at FROM identities WHERE guid=?`, guid)
	id, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return model.Identity{}, false, nil
	}
	if err != nil {
		return model.Identity{}, false, err
	}
	return id, true, nil
}

func (s *SQLiteStore) FindByCurrentKey(key string) (model.Identity, bool, error) {
	row := s.queryRow(`SELECT guid, current_key, hostname, kind, first_seen, updated_at FROM identities WHERE current_key=?`, key)
	id, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return model.Identity{}, false, nil
	}
	if err != nil {
		return model.Identity{}, false, err
	}
	return id, true, nil
}

func (s *SQLiteStore) UpsertIdentity(id model.Identity) error {
	if id.FirstSeen.IsZero() {
		id.FirstSeen = time.Now()
	}
	id.UpdatedAt = time.Now()
	_, err := s.exec(`INSERT INTO identities(guid, current_key, hostname, kind, first_seen, updated_at)
		VALUES(?,?,?,?,?,?)
		ON CONFLICT(guid) DO UPDATE SET current_key=excluded.current_key, hostname=excluded.hostname,
			kind=excluded.kind, updated_at=excluded.updated_at`,
		id.PermanentGuid, id.CurrentPublicKey, id.Hostname, string(id.Kind), id.FirstSeen.Unix(), id.UpdatedAt.Unix())
	return err
}

func (s *SQLiteStore) DeleteIdentity(guid string) error {
	res, err := s.exec(`DELETE FROM identities WHERE guid=?`, guid)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("identity %s not found", guid)
	}
	return nil
}

func (s *SQLiteStore) ListIdentities() ([]model.Identity, error) {
	rows, err := s.query(`SELECT guid, current_key, hostname, kind, first_seen, updated_at FROM identities ORDER BY guid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendRotation(ev model.RotationEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	_, err := s.exec(`INSERT INTO rotations(guid, old_key, new_key, reason, ts) VALUES(?,?,?,?,?)`,
		ev.EntityGuid, ev.OldKey, ev.NewKey, ev.Reason, ev.Timestamp.Unix())
	return err
}

func (s *SQLiteStore) ListRotationHistory(guid string) ([]model.RotationEvent, error) {
	rows, err := s.query(`SELECT guid, old_key, new_key, reason, ts FROM rotations WHERE guid=? ORDER BY id`, guid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RotationEvent
	for rows.Next() {
		var ev model.RotationEvent
		var ts int64
		if err := rows.Scan(&ev.EntityGuid, &ev.OldKey, &ev.NewKey, &ev.Reason, &ts); err != nil {
			return nil, err
		}
		ev.Timestamp = time.Unix(ts, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SaveDevice stores the full semantic model as a document plus normalized
// comment and rule rows per peer, so ordering survives and cascade deletes
// work at the row level. Keys live in the stored document; they only get
// stripped at the API boundary.
func (s *SQLiteStore) SaveDevice(guid string, d model.Device) error {
	doc, err := json.Marshal(encodeDevice(d))
	if err != nil {
		return fmt.Errorf("marshal device: %w", err)
	}
	if _, err := s.exec(`INSERT INTO devices(guid, kind, doc) VALUES(?,?,?)
		ON CONFLICT(guid) DO UPDATE SET kind=excluded.kind, doc=excluded.doc`,
		guid, string(d.Kind), string(doc)); err != nil {
		return err
	}
	for _, p := range d.Peers {
		if err := s.replacePeerRows(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) replacePeerRows(p model.PeerSection) error {
	if _, err := s.exec(`DELETE FROM comments WHERE guid=?`, p.PermanentGuid); err != nil {
		return err
	}
	for i, c := range p.Comments {
		if _, err := s.exec(`INSERT INTO comments(guid, position, category, text, role_tag, rationale_target, guid_ref)
			VALUES(?,?,?,?,?,?,?)`,
			p.PermanentGuid, i, string(c.Category), c.Text, c.RoleTag, c.RationaleTarget, c.GuidReference); err != nil {
			return err
		}
	}
	return nil
}

// SaveRules stores the firewall associations for one identity, replacing any
// previous rows.
func (s *SQLiteStore) SaveRules(guid string, pairs []model.CommandPair, singletons []model.CommandSingleton) error {
	if _, err := s.exec(`DELETE FROM rules WHERE guid=?`, guid); err != nil {
		return err
	}
	pos := 0
	insert := func(pattern string, scope model.RuleScope, rationale string, up, down []string, vars map[string]string) error {
		upDoc, _ := json.Marshal(up)
		downDoc, _ := json.Marshal(down)
		varsDoc, _ := json.Marshal(vars)
		_, err := s.exec(`INSERT INTO rules(guid, position, pattern, scope, rationale, up, down, vars) VALUES(?,?,?,?,?,?,?,?)`,
			guid, pos, pattern, string(scope), rationale, string(upDoc), string(downDoc), string(varsDoc))
		pos++
		return err
	}
	for _, sg := range singletons {
		if err := insert(sg.PatternName, sg.Scope, sg.Rationale, sg.UpCommands, nil, sg.Variables); err != nil {
			return err
		}
	}
	for _, p := range pairs {
		if err := insert(p.PatternName, p.Scope, p.Rationale, p.UpCommands, p.DownCommands, p.Variables); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetDevice(guid string) (model.Device, bool, error) {
	var doc string
	err := s.queryRow(`SELECT doc FROM devices WHERE guid=?`, guid).Scan(&doc)
	if err == sql.ErrNoRows {
		return model.Device{}, false, nil
	}
	if err != nil {
		return model.Device{}, false, err
	}
	var stored deviceDoc
	if err := json.Unmarshal([]byte(doc), &stored); err != nil {
		return model.Device{}, false, fmt.Errorf("unmarshal device: %w", err)
	}
	return stored.decode(), true, nil
}

func (s *SQLiteStore) AppendAudit(entry model.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.exec(`INSERT INTO audit(actor, action, target, detail, ts) VALUES(?,?,?,?,?)`,
		entry.Actor, entry.Action, entry.Target, entry.Detail, entry.Timestamp.Unix())
	return err
}

func (s *SQLiteStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(`SELECT actor, action, target, detail, ts FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var ts int64
		if err := rows.Scan(&e.Actor, &e.Action, &e.Target, &e.Detail, &ts); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Transact wraps fn in a database transaction; fn gets a tx-bound view of
// the same store.
func (s *SQLiteStore) Transact(fn func(IdentityStore) error) error {
	if s.tx != nil {
		return fn(s) // already inside a transaction
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	bound := &SQLiteStore{db: s.db, tx: tx}
	if err := fn(bound); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
