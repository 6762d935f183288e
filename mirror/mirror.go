// Package mirror is the client-side replica used while the server is
// unreachable. It keeps a copy of complaint records, a FIFO queue of writes
// made offline and a log of queued writes the server later rejected.
package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// LocalPrefix marks ids minted offline; the server never issues them.
const LocalPrefix = "local-"

var ErrNotFound = errors.New("mirror: not found")

// OpKind names a queued write.
type OpKind string

const (
	OpCreateComplaint OpKind = "create_complaint"
	OpUpdateComplaint OpKind = "update_complaint"
	OpUpdateLocation  OpKind = "update_location"
)

// Record is one replicated complaint. Body holds the JSON the server
// returned, or the local approximation of it.
type Record struct {
	ID         string
	AssignedTo string
	Status     string
	Body       json.RawMessage
	Local      bool
	UpdatedAt  time.Time
}

// Op is a write waiting to be replayed against the server.
type Op struct {
	Seq       int64
	Kind      OpKind
	TargetID  string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Rejection is a queued write the server refused.
type Rejection struct {
	Op
	Status     int
	Message    string
	RejectedAt time.Time
}

type Mirror struct {
	db  *sql.DB
	now func() time.Time
}

// NewLocalID returns a fresh offline id.
func NewLocalID() string {
	return LocalPrefix + uuid.NewString()
}

func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}

// Open opens (and migrates) the replica at path.
func Open(ctx context.Context, path string) (*Mirror, error) {
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	// One connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("mirror pragma: %w", err)
		}
	}
	m := &Mirror{db: db, now: time.Now}
	if err := m.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) Close() error {
	return m.db.Close()
}

func (m *Mirror) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			k TEXT PRIMARY KEY,
			v TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS complaints (
			id TEXT PRIMARY KEY,
			assigned_to TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			local INTEGER NOT NULL DEFAULT 0,
			updated_at_unixms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_complaints_assigned ON complaints(assigned_to, updated_at_unixms);`,
		`CREATE TABLE IF NOT EXISTS pending_ops (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			target_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rejected_ops (
			seq INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			target_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			created_at_unixms INTEGER NOT NULL,
			status INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			rejected_at_unixms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := m.db.ExecContext(ctx, st); err != nil {
			return fmt.Errorf("migrate mirror: %w", err)
		}
	}
	return nil
}

func unixMs(t time.Time) int64 { return t.UnixMilli() }
func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// GetMeta returns the stored value and whether it exists.
func (m *Mirror) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := m.db.QueryRowContext(ctx, `SELECT v FROM meta WHERE k = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (m *Mirror) SetMeta(ctx context.Context, key, value string) error {
	_, err := m.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta(k, v) VALUES(?, ?)`, key, value)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putRecord(ctx context.Context, ex execer, r Record) error {
	local := 0
	if r.Local {
		local = 1
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO complaints(id, assigned_to, status, body, local, updated_at_unixms)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			assigned_to = excluded.assigned_to,
			status = excluded.status,
			body = excluded.body,
			local = excluded.local,
			updated_at_unixms = excluded.updated_at_unixms`,
		r.ID, r.AssignedTo, r.Status, string(r.Body), local, unixMs(r.UpdatedAt))
	return err
}

// PutComplaint inserts or overwrites a record. Last write wins.
func (m *Mirror) PutComplaint(ctx context.Context, r Record) error {
	if r.ID == "" {
		return errors.New("mirror: record without id")
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = m.now()
	}
	if err := putRecord(ctx, m.db, r); err != nil {
		return fmt.Errorf("put complaint: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		r     Record
		body  string
		local int
		ms    int64
	)
	if err := s.Scan(&r.ID, &r.AssignedTo, &r.Status, &body, &local, &ms); err != nil {
		return Record{}, err
	}
	r.Body = json.RawMessage(body)
	r.Local = local == 1
	r.UpdatedAt = fromMs(ms)
	return r, nil
}

const recordColumns = `id, assigned_to, status, body, local, updated_at_unixms`

func (m *Mirror) GetComplaint(ctx context.Context, id string) (Record, error) {
	row := m.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM complaints WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get complaint: %w", err)
	}
	return r, nil
}

// ListComplaints returns records newest first. Empty filters match all.
func (m *Mirror) ListComplaints(ctx context.Context, assignedTo, status string) ([]Record, error) {
	q := `SELECT ` + recordColumns + ` FROM complaints WHERE 1 = 1`
	var args []any
	if assignedTo != "" {
		q += ` AND assigned_to = ?`
		args = append(args, assignedTo)
	}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY updated_at_unixms DESC, id`

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list complaints: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (m *Mirror) DeleteComplaint(ctx context.Context, id string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM complaints WHERE id = ?`, id)
	return err
}

// Rekey replaces the record stored under oldID with r, and points queued
// writes that targeted oldID at r.ID.
func (m *Mirror) Rekey(ctx context.Context, oldID string, r Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = m.now()
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM complaints WHERE id = ?`, oldID); err != nil {
		return fmt.Errorf("rekey delete: %w", err)
	}
	if err := putRecord(ctx, tx, r); err != nil {
		return fmt.Errorf("rekey put: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pending_ops SET target_id = ? WHERE target_id = ?`, r.ID, oldID); err != nil {
		return fmt.Errorf("rekey ops: %w", err)
	}
	return tx.Commit()
}

// ReplaceAssigned makes the server's task list authoritative for
// assignedTo. Records with pending local writes are kept.
func (m *Mirror) ReplaceAssigned(ctx context.Context, assignedTo string, records []Record) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM complaints
		WHERE assigned_to = ? AND local = 0
		  AND id NOT IN (SELECT target_id FROM pending_ops)`, assignedTo)
	if err != nil {
		return fmt.Errorf("clear assigned: %w", err)
	}

	pending := map[string]bool{}
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT target_id FROM pending_ops`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		pending[id] = true
	}
	rows.Close()

	now := m.now()
	for _, r := range records {
		if pending[r.ID] {
			continue
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		if err := putRecord(ctx, tx, r); err != nil {
			return fmt.Errorf("refresh assigned: %w", err)
		}
	}
	return tx.Commit()
}

// Enqueue appends a write to the pending queue.
func (m *Mirror) Enqueue(ctx context.Context, kind OpKind, targetID string, payload any) (Op, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Op{}, fmt.Errorf("encode op: %w", err)
	}
	op := Op{Kind: kind, TargetID: targetID, Payload: raw, CreatedAt: m.now().UTC()}
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO pending_ops(kind, target_id, payload, created_at_unixms) VALUES(?, ?, ?, ?)`,
		string(kind), targetID, string(raw), unixMs(op.CreatedAt))
	if err != nil {
		return Op{}, fmt.Errorf("enqueue: %w", err)
	}
	if op.Seq, err = res.LastInsertId(); err != nil {
		return Op{}, err
	}
	return op, nil
}

// Pending returns queued writes oldest first.
func (m *Mirror) Pending(ctx context.Context) ([]Op, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT seq, kind, target_id, payload, created_at_unixms FROM pending_ops ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("pending: %w", err)
	}
	defer rows.Close()

	out := []Op{}
	for rows.Next() {
		var (
			op      Op
			kind    string
			payload string
			ms      int64
		)
		if err := rows.Scan(&op.Seq, &kind, &op.TargetID, &payload, &ms); err != nil {
			return nil, err
		}
		op.Kind = OpKind(kind)
		op.Payload = json.RawMessage(payload)
		op.CreatedAt = fromMs(ms)
		out = append(out, op)
	}
	return out, rows.Err()
}

// Ack removes a replayed write.
func (m *Mirror) Ack(ctx context.Context, seq int64) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM pending_ops WHERE seq = ?`, seq)
	return err
}

// Reject moves a write from the queue to the rejection log.
func (m *Mirror) Reject(ctx context.Context, op Op, status int, message string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO rejected_ops(seq, kind, target_id, payload, created_at_unixms, status, message, rejected_at_unixms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		op.Seq, string(op.Kind), op.TargetID, string(op.Payload), unixMs(op.CreatedAt), status, message, unixMs(m.now()))
	if err != nil {
		return fmt.Errorf("reject: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_ops WHERE seq = ?`, op.Seq); err != nil {
		return fmt.Errorf("reject dequeue: %w", err)
	}
	return tx.Commit()
}

// Rejections lists refused writes oldest first.
func (m *Mirror) Rejections(ctx context.Context) ([]Rejection, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT seq, kind, target_id, payload, created_at_unixms, status, message, rejected_at_unixms
		FROM rejected_ops ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("rejections: %w", err)
	}
	defer rows.Close()

	out := []Rejection{}
	for rows.Next() {
		var (
			r                Rejection
			kind, payload    string
			createdMs, rejMs int64
		)
		if err := rows.Scan(&r.Seq, &kind, &r.TargetID, &payload, &createdMs, &r.Status, &r.Message, &rejMs); err != nil {
			return nil, err
		}
		r.Kind = OpKind(kind)
		r.Payload = json.RawMessage(payload)
		r.CreatedAt = fromMs(createdMs)
		r.RejectedAt = fromMs(rejMs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasPending reports whether a queued write targets id.
func (m *Mirror) HasPending(ctx context.Context, id string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_ops WHERE target_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has pending: %w", err)
	}
	return n > 0, nil
}
