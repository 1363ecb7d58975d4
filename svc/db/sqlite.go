package db

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"punt/pkg/domain"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 100
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	// DSN options apply to every pooled connection; pragmas issued later
	// only reach whichever connection ran them.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	case circuitHalfOpen:
		return nil
	default:
		return nil
	}
}

func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}

func (s *SQLite) migrate() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return errors.Wrap(err, "enable foreign keys")
	}
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		delete_key TEXT NOT NULL,
		burn_after_read INTEGER NOT NULL DEFAULT 0,
		is_private INTEGER NOT NULL DEFAULT 0,
		view_key TEXT,
		owner_id TEXT,
		language TEXT,
		creator_addr TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes(expires_at);
	CREATE INDEX IF NOT EXISTS idx_pastes_owner ON pastes(owner_id);

	CREATE TABLE IF NOT EXISTS quota_counters (
		bucket TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_quota_expires_at ON quota_counters(expires_at);

	CREATE TABLE IF NOT EXISTS api_tokens (
		id TEXT PRIMARY KEY,
		token_hash TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_used_at INTEGER,
		expires_at INTEGER,
		revoked INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_api_tokens_owner ON api_tokens(owner_id);

	CREATE TABLE IF NOT EXISTS device_codes (
		code TEXT PRIMARY KEY,
		owner_id TEXT,
		token TEXT,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		approved INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_device_codes_expires_at ON device_codes(expires_at);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		paste_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		reporter_addr TEXT,
		created_at INTEGER NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// -- pastes --

func (s *SQLite) CreatePaste(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (id, content, created_at, expires_at, views, delete_key, burn_after_read, is_private, view_key, owner_id, language, creator_addr)
	VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(queryCtx, q,
		p.ID, p.Content, p.CreatedAt, p.ExpiresAt, p.DeleteKey,
		boolInt(p.BurnAfterRead), boolInt(p.IsPrivate),
		nullStr(p.ViewKey), nullStr(p.OwnerID), nullStr(p.Language), nullStr(p.CreatorAddr),
	)
	s.recordError(err)
	return errors.Wrap(err, "db create paste")
}

// GetPaste returns nil for rows that are expired but not yet swept; an
// expired paste is indistinguishable from an absent one.
func (s *SQLite) GetPaste(ctx context.Context, id string, now int64) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, content, created_at, expires_at, views, delete_key, burn_after_read, is_private, view_key, owner_id, language, creator_addr
	FROM pastes WHERE id = ? AND expires_at > ?
	`
	p, err := scanPaste(s.db.QueryRowContext(queryCtx, q, id, now))
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get paste")
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaste(row rowScanner) (*domain.Paste, error) {
	var p domain.Paste
	var burn, private int
	var viewKey, ownerID, language, creatorAddr sql.NullString
	err := row.Scan(
		&p.ID, &p.Content, &p.CreatedAt, &p.ExpiresAt, &p.Views, &p.DeleteKey,
		&burn, &private, &viewKey, &ownerID, &language, &creatorAddr,
	)
	if err != nil {
		return nil, err
	}
	p.BurnAfterRead = burn == 1
	p.IsPrivate = private == 1
	p.ViewKey = viewKey.String
	p.OwnerID = ownerID.String
	p.Language = language.String
	p.CreatorAddr = creatorAddr.String
	return &p, nil
}

func (s *SQLite) PasteExists(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var one int
	err := s.db.QueryRowContext(queryCtx, `SELECT 1 FROM pastes WHERE id = ? LIMIT 1`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return one == 1, nil
}

// FirstView atomically claims the first view of a burn-after-read paste.
// The conditional update is a single round trip: of N concurrent callers
// exactly one sees rowsAffected == 1.
func (s *SQLite) FirstView(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `UPDATE pastes SET views = views + 1 WHERE id = ? AND views = 0`, id)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "first view claim")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "first view rows")
	}
	return n == 1, nil
}

func (s *SQLite) IncrViews(ctx context.Context, id string) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx, `UPDATE pastes SET views = views + 1 WHERE id = ?`, id)
	s.recordError(err)
	return errors.Wrap(err, "incr views")
}

func (s *SQLite) DeletePaste(ctx context.Context, id string) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx, `DELETE FROM pastes WHERE id = ?`, id)
	s.recordError(err)
	return errors.Wrap(err, "delete paste")
}

// DeletePasteWithKey removes the row only when the delete key matches, in
// one conditional statement so the check and the delete cannot interleave.
func (s *SQLite) DeletePasteWithKey(ctx context.Context, id, deleteKey string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM pastes WHERE id = ? AND delete_key = ?`, id, deleteKey)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "delete paste with key")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete paste rows")
	}
	return n == 1, nil
}

func (s *SQLite) DeleteOwnedPaste(ctx context.Context, id, ownerID string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM pastes WHERE id = ? AND owner_id = ?`, id, ownerID)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "delete owned paste")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete owned rows")
	}
	return n == 1, nil
}

// ExtendPaste adds to expires_at unconditionally; the creation-time ceiling
// deliberately does not apply to extensions.
func (s *SQLite) ExtendPaste(ctx context.Context, id, ownerID string, extraSeconds int64) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx,
		`UPDATE pastes SET expires_at = expires_at + ? WHERE id = ? AND owner_id = ?`,
		extraSeconds, id, ownerID)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "extend paste")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "extend paste rows")
	}
	return n == 1, nil
}

func (s *SQLite) ListOwnedPastes(ctx context.Context, ownerID string, now int64) ([]domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, content, created_at, expires_at, views, delete_key, burn_after_read, is_private, view_key, owner_id, language, creator_addr
	FROM pastes WHERE owner_id = ? AND expires_at > ? ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(queryCtx, q, ownerID, now)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "list owned pastes")
	}
	defer rows.Close()
	var pastes []domain.Paste
	for rows.Next() {
		p, err := scanPaste(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan owned paste")
		}
		pastes = append(pastes, *p)
	}
	return pastes, errors.Wrap(rows.Err(), "list owned pastes")
}

func (s *SQLite) OwnerStats(ctx context.Context, ownerID string, now int64) (*domain.OwnerStats, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(views), 0)
	FROM pastes WHERE owner_id = ?
	`
	var st domain.OwnerStats
	err := s.db.QueryRowContext(queryCtx, q, now, ownerID).Scan(&st.TotalPastes, &st.ActivePastes, &st.TotalViews)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "owner stats")
	}
	return &st, nil
}

func (s *SQLite) SweepPastes(ctx context.Context, now int64) (int64, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM pastes WHERE expires_at <= ?`, now)
	s.recordError(err)
	if err != nil {
		return 0, errors.Wrap(err, "sweep pastes")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// -- quota counters --

func (s *SQLite) CounterGet(ctx context.Context, bucket string) (int, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var count int
	err := s.db.QueryRowContext(queryCtx, `SELECT count FROM quota_counters WHERE bucket = ?`, bucket).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	s.recordError(err)
	if err != nil {
		return 0, errors.Wrap(err, "counter get")
	}
	return count, nil
}

// CounterIncr is an atomic insert-or-increment; the first write of a window
// creates the bucket at 1.
func (s *SQLite) CounterIncr(ctx context.Context, bucket string, expiresAt int64) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO quota_counters (bucket, count, expires_at) VALUES (?, 1, ?)
	ON CONFLICT(bucket) DO UPDATE SET count = count + 1
	`
	_, err := s.db.ExecContext(queryCtx, q, bucket, expiresAt)
	s.recordError(err)
	return errors.Wrap(err, "counter incr")
}

func (s *SQLite) SweepCounters(ctx context.Context, now int64) (int64, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM quota_counters WHERE expires_at <= ?`, now)
	s.recordError(err)
	if err != nil {
		return 0, errors.Wrap(err, "sweep counters")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// -- api tokens --

func (s *SQLite) CredentialInsert(ctx context.Context, c *domain.Credential) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO api_tokens (id, token_hash, owner_id, name, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	var expires any
	if c.ExpiresAt > 0 {
		expires = c.ExpiresAt
	}
	_, err := s.db.ExecContext(queryCtx, q, c.ID, c.TokenHash, c.OwnerID, c.Name, c.CreatedAt, expires)
	s.recordError(err)
	return errors.Wrap(err, "insert credential")
}

func (s *SQLite) CredentialByHash(ctx context.Context, tokenHash string) (*domain.Credential, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, token_hash, owner_id, name, created_at, last_used_at, expires_at, revoked
	FROM api_tokens WHERE token_hash = ?
	`
	c, err := scanCredential(s.db.QueryRowContext(queryCtx, q, tokenHash))
	if err == sql.ErrNoRows {
		return nil, domain.ErrTokenNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "credential by hash")
	}
	return c, nil
}

func scanCredential(row rowScanner) (*domain.Credential, error) {
	var c domain.Credential
	var lastUsed, expires sql.NullInt64
	var revoked int
	err := row.Scan(&c.ID, &c.TokenHash, &c.OwnerID, &c.Name, &c.CreatedAt, &lastUsed, &expires, &revoked)
	if err != nil {
		return nil, err
	}
	c.LastUsedAt = lastUsed.Int64
	c.ExpiresAt = expires.Int64
	c.Revoked = revoked == 1
	return &c, nil
}

func (s *SQLite) CredentialTouch(ctx context.Context, id string, now int64) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx, `UPDATE api_tokens SET last_used_at = ? WHERE id = ?`, now, id)
	s.recordError(err)
	return errors.Wrap(err, "touch credential")
}

// CredentialRevoke is one-way and owner-scoped.
func (s *SQLite) CredentialRevoke(ctx context.Context, id, ownerID string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx,
		`UPDATE api_tokens SET revoked = 1 WHERE id = ? AND owner_id = ? AND revoked = 0`, id, ownerID)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "revoke credential")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "revoke credential rows")
	}
	return n == 1, nil
}

func (s *SQLite) CredentialList(ctx context.Context, ownerID string) ([]domain.Credential, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, token_hash, owner_id, name, created_at, last_used_at, expires_at, revoked
	FROM api_tokens WHERE owner_id = ? AND revoked = 0 ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(queryCtx, q, ownerID)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "list credentials")
	}
	defer rows.Close()
	var creds []domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan credential")
		}
		creds = append(creds, *c)
	}
	return creds, errors.Wrap(rows.Err(), "list credentials")
}

// -- device codes --

func (s *SQLite) DeviceInsert(ctx context.Context, code string, createdAt, expiresAt int64) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx,
		`INSERT INTO device_codes (code, created_at, expires_at) VALUES (?, ?, ?)`,
		code, createdAt, expiresAt)
	s.recordError(err)
	return errors.Wrap(err, "insert device code")
}

func (s *SQLite) DeviceGet(ctx context.Context, code string) (*domain.DeviceCode, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `SELECT code, owner_id, token, created_at, expires_at, approved FROM device_codes WHERE code = ?`
	var dc domain.DeviceCode
	var ownerID, token sql.NullString
	var approved int
	err := s.db.QueryRowContext(queryCtx, q, code).Scan(
		&dc.Code, &ownerID, &token, &dc.CreatedAt, &dc.ExpiresAt, &approved)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCodeNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "get device code")
	}
	dc.OwnerID = ownerID.String
	dc.Token = token.String
	dc.Approved = approved == 1
	return &dc, nil
}

// DeviceApprove flips the code to approved and stages the plaintext token
// for the polling client. The approved=0 guard makes double approval lose
// deterministically instead of silently succeeding.
func (s *SQLite) DeviceApprove(ctx context.Context, code, ownerID, token string, now int64) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx,
		`UPDATE device_codes SET approved = 1, owner_id = ?, token = ? WHERE code = ? AND approved = 0 AND expires_at > ?`,
		ownerID, token, code, now)
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "approve device code")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "approve device rows")
	}
	return n == 1, nil
}

// DeviceConsume removes an approved code and returns its staged token in a
// single round trip. Exactly one concurrent poll can win; everyone else
// finds no row.
func (s *SQLite) DeviceConsume(ctx context.Context, code string) (string, bool, error) {
	if err := s.checkCircuit(); err != nil {
		return "", false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var token string
	err := s.db.QueryRowContext(queryCtx,
		`DELETE FROM device_codes WHERE code = ? AND approved = 1 AND token IS NOT NULL RETURNING token`,
		code).Scan(&token)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	s.recordError(err)
	if err != nil {
		return "", false, errors.Wrap(err, "consume device code")
	}
	return token, true, nil
}

func (s *SQLite) SweepDeviceCodes(ctx context.Context, now int64) (int64, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM device_codes WHERE expires_at <= ?`, now)
	s.recordError(err)
	if err != nil {
		return 0, errors.Wrap(err, "sweep device codes")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// -- abuse reports --

func (s *SQLite) ReportInsert(ctx context.Context, pasteID, reason, reporterAddr string, now int64) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx,
		`INSERT INTO reports (paste_id, reason, reporter_addr, created_at) VALUES (?, ?, ?, ?)`,
		pasteID, reason, nullStr(reporterAddr), now)
	s.recordError(err)
	return errors.Wrap(err, "insert report")
}

func (s *SQLite) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
