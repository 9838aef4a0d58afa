package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gowa-hub/internal/model"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Open picks the adapter from the DSN: postgres:// URLs use lib/pq, a bare
// "memory" DSN keeps everything in process, anything else is treated as a
// sqlite file path.
func Open(dsn string) (Store, error) {
	if dsn == "" || dsn == "memory" || dsn == "memory://" {
		return NewMemory(), nil
	}

	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "postgres"
	} else if !strings.Contains(dsn, "?") {
		// WAL mode for concurrent readers while the manager writes.
		dsn += "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &sqlStore{db: db, pg: driver == "postgres"}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

type sqlStore struct {
	db *sql.DB
	pg bool
}

func (s *sqlStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		status           TEXT NOT NULL,
		qr_payload       TEXT NOT NULL DEFAULT '',
		phone            TEXT NOT NULL DEFAULT '',
		credentials_key  TEXT NOT NULL DEFAULT '',
		last_error       TEXT NOT NULL DEFAULT '',
		created_at       BIGINT NOT NULL,
		connected_at     BIGINT,
		last_activity_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS messages (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL,
		from_addr   TEXT NOT NULL DEFAULT '',
		to_addr     TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL,
		status      TEXT NOT NULL,
		timestamp   BIGINT NOT NULL,
		external_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_external ON messages(external_id);
	CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

	CREATE TABLE IF NOT EXISTS webhooks (
		id                TEXT PRIMARY KEY,
		session_id        TEXT NOT NULL,
		url               TEXT NOT NULL,
		events            TEXT NOT NULL,
		secret            TEXT NOT NULL DEFAULT '',
		is_active         INTEGER NOT NULL DEFAULT 1,
		trigger_count     BIGINT NOT NULL DEFAULT 0,
		last_triggered_at BIGINT,
		last_error        TEXT NOT NULL DEFAULT '',
		created_at        BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_webhooks_session ON webhooks(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// rebind converts ? placeholders to the $n form lib/pq wants. Queries are
// written once with ?; sqlite takes them as-is.
func (s *sqlStore) rebind(query string) string {
	if !s.pg {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nanosOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeFromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

// ---------- sessions ----------

func (s *sqlStore) SaveSession(ctx context.Context, sess *model.Session) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, name, status, qr_payload, phone, credentials_key, last_error, created_at, connected_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			qr_payload = excluded.qr_payload,
			phone = excluded.phone,
			credentials_key = excluded.credentials_key,
			last_error = excluded.last_error,
			connected_at = excluded.connected_at,
			last_activity_at = excluded.last_activity_at`),
		sess.ID, sess.Name, string(sess.Status), sess.QRPayload, sess.Phone, sess.CredentialsKey, sess.LastError,
		sess.CreatedAt.UnixNano(), nanosOrNil(sess.ConnectedAt), sess.LastActivityAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *sqlStore) scanSession(row interface{ Scan(...interface{}) error }) (*model.Session, error) {
	var sess model.Session
	var status string
	var createdAt, lastActivity int64
	var connectedAt sql.NullInt64
	err := row.Scan(&sess.ID, &sess.Name, &status, &sess.QRPayload, &sess.Phone, &sess.CredentialsKey,
		&sess.LastError, &createdAt, &connectedAt, &lastActivity)
	if err != nil {
		return nil, err
	}
	sess.Status = model.SessionStatus(status)
	sess.CreatedAt = time.Unix(0, createdAt).UTC()
	sess.ConnectedAt = timeFromNanos(connectedAt)
	sess.LastActivityAt = time.Unix(0, lastActivity).UTC()
	return &sess, nil
}

const sessionCols = `id, name, status, qr_payload, phone, credentials_key, last_error, created_at, connected_at, last_activity_at`

func (s *sqlStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+sessionCols+` FROM sessions WHERE id = ?`), id)
	sess, err := s.scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *sqlStore) GetSessions(ctx context.Context) ([]*model.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionCols+` FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	defer rows.Close()

	var out []*model.Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete session: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM webhooks WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.rebind(q), id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return tx.Commit()
}

// ---------- messages ----------

func (s *sqlStore) SaveMessage(ctx context.Context, m *model.Message) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO messages (id, session_id, from_addr, to_addr, content, type, status, timestamp, external_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status`),
		m.ID, m.SessionID, m.From, m.To, m.Content, string(m.Type), string(m.Status),
		m.Timestamp.UnixNano(), m.ExternalID)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (s *sqlStore) GetMessages(ctx context.Context, sessionID string, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, session_id, from_addr, to_addr, content, type, status, timestamp, external_id FROM messages`
	args := []interface{}{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var typ, status string
		var ts int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.From, &m.To, &m.Content, &typ, &status, &ts, &m.ExternalID); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = model.MessageType(typ)
		m.Status = model.MessageStatus(status)
		m.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}

// UpdateMessageStatus advances a message by its external id. The rank guard
// in the WHERE clause keeps the status monotonic even under concurrent
// acks; a miss (no such id, or a backward/terminal move) affects zero rows.
func (s *sqlStore) UpdateMessageStatus(ctx context.Context, externalID string, status model.MessageStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE messages SET status = ?
		WHERE external_id = ? AND external_id != '' AND status != 'failed'
		AND (CASE status WHEN 'pending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE -1 END)
		  < (CASE ? WHEN 'pending' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 WHEN 'failed' THEN 9 ELSE -1 END)`),
		string(status), externalID, string(status))
	if err != nil {
		return false, fmt.Errorf("update message status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ---------- webhooks ----------

func (s *sqlStore) SaveWebhook(ctx context.Context, w *model.Webhook) error {
	events, err := json.Marshal(w.Events)
	if err != nil {
		return fmt.Errorf("marshal webhook events: %w", err)
	}
	active := 0
	if w.IsActive {
		active = 1
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO webhooks (id, session_id, url, events, secret, is_active, trigger_count, last_triggered_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			url = excluded.url,
			events = excluded.events,
			secret = excluded.secret,
			is_active = excluded.is_active`),
		w.ID, w.SessionID, w.URL, string(events), w.Secret, active,
		w.TriggerCount, nanosOrNil(w.LastTriggeredAt), w.LastError, w.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save webhook: %w", err)
	}
	return nil
}

const webhookCols = `id, session_id, url, events, secret, is_active, trigger_count, last_triggered_at, last_error, created_at`

func (s *sqlStore) scanWebhook(row interface{ Scan(...interface{}) error }) (*model.Webhook, error) {
	var w model.Webhook
	var events string
	var active int64
	var createdAt int64
	var lastTriggered sql.NullInt64
	err := row.Scan(&w.ID, &w.SessionID, &w.URL, &events, &w.Secret, &active,
		&w.TriggerCount, &lastTriggered, &w.LastError, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(events), &w.Events); err != nil {
		return nil, fmt.Errorf("unmarshal webhook events: %w", err)
	}
	w.IsActive = active != 0
	w.LastTriggeredAt = timeFromNanos(lastTriggered)
	w.CreatedAt = time.Unix(0, createdAt).UTC()
	return &w, nil
}

func (s *sqlStore) GetWebhook(ctx context.Context, id string) (*model.Webhook, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+webhookCols+` FROM webhooks WHERE id = ?`), id)
	w, err := s.scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

func (s *sqlStore) GetWebhooks(ctx context.Context, sessionID string) ([]*model.Webhook, error) {
	query := `SELECT ` + webhookCols + ` FROM webhooks`
	args := []interface{}{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("get webhooks: %w", err)
	}
	defer rows.Close()

	var out []*model.Webhook
	for rows.Next() {
		w, err := s.scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *sqlStore) DeleteWebhook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM webhooks WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery is a single read-modify-write in SQL, so concurrent
// deliveries to the same webhook cannot lose counter updates.
func (s *sqlStore) RecordDelivery(ctx context.Context, id string, at time.Time, deliveryErr string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE webhooks SET
			trigger_count = trigger_count + 1,
			last_triggered_at = ?,
			last_error = ?
		WHERE id = ?`),
		at.UnixNano(), deliveryErr, id)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

var _ Store = (*sqlStore)(nil)
