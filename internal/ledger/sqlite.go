package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"volowatch/internal/activity"
	logx "volowatch/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

type sqliteStore struct {
	db     *sql.DB
	log    logx.Logger
	closed atomic.Bool
	now    func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ledger path is required for sqlite driver")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, storeErr("open", "", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeErr("open", "", err)
	}
	// One worker writes; a single connection also keeps pragmas in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, storeErr("open", "", err)
	}
	applyOptionalPragmas(db, log, optionalPragmas)

	st := &sqliteStore{db: db, log: log, now: time.Now}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, storeErr("migrate", "", err)
	}
	log.Debug("ledger opened", logx.String("path", path))
	return st, nil
}

// optionalPragmas tune durability and concurrency. The ledger still works
// without them (e.g. WAL is unavailable on some network filesystems).
var optionalPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
}

func applyOptionalPragmas(db *sql.DB, log logx.Logger, pragmas []string) {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			log.Debug("sqlite pragma not applied", logx.String("pragma", p), logx.Err(err))
		}
	}
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) check(op, id string) error {
	if s == nil || s.db == nil || s.closed.Load() {
		return storeErr(op, id, ErrClosed)
	}
	return nil
}

func (s *sqliteStore) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func (s *sqliteStore) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	if err := s.check("known_ids", ""); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM seen_activities`)
	if err != nil {
		return nil, storeErr("known_ids", "", err)
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("known_ids", "", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("known_ids", "", err)
	}
	return out, nil
}

func (s *sqliteStore) UpsertNew(ctx context.Context, a activity.Activity) (err error) {
	if err := s.check("upsert", a.ID); err != nil {
		return err
	}
	if a.ID == "" {
		return storeErr("upsert", "", errors.New("empty activity id"))
	}
	now := s.stamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("upsert", a.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// A re-insert keeps first_seen_at and notified; only the snapshot moves.
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO seen_activities(id, sport, name, date, venue, spots_available, first_seen_at, last_seen_at, notified)
		 VALUES(?,?,?,?,?,?,?,?,0)
		 ON CONFLICT(id) DO UPDATE SET
		   sport=excluded.sport, name=excluded.name, date=excluded.date, venue=excluded.venue,
		   spots_available=excluded.spots_available, last_seen_at=excluded.last_seen_at`,
		a.ID, nullStr(a.Sport), nullStr(a.Name), nullStr(a.Date), nullStr(a.Venue), nullInt(a.SpotsAvailable), now, now,
	); err != nil {
		return storeErr("upsert", a.ID, err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO activity_log(activity_id, event_type, details, created_at) VALUES(?,?,?,?)`,
		a.ID, EventNew, a.Details(), now,
	); err != nil {
		return storeErr("upsert", a.ID, err)
	}
	if err = tx.Commit(); err != nil {
		return storeErr("upsert", a.ID, err)
	}
	return nil
}

func (s *sqliteStore) TouchExisting(ctx context.Context, id string, spots *int) error {
	if err := s.check("touch", id); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE seen_activities SET spots_available = ?, last_seen_at = ? WHERE id = ?`,
		nullInt(spots), s.stamp(), id,
	)
	if err != nil {
		return storeErr("touch", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("touch", id, err)
	}
	if n == 0 {
		return storeErr("touch", id, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) MarkNotified(ctx context.Context, ids []string) (err error) {
	if err := s.check("mark_notified", ""); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("mark_notified", "", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `UPDATE seen_activities SET notified = 1 WHERE id = ?`)
	if err != nil {
		return storeErr("mark_notified", "", err)
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err = stmt.ExecContext(ctx, id); err != nil {
			return storeErr("mark_notified", id, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return storeErr("mark_notified", "", err)
	}
	return nil
}

const recordColumns = `id, sport, name, date, venue, spots_available, first_seen_at, last_seen_at, notified`

func (s *sqliteStore) Get(ctx context.Context, id string) (SeenRecord, error) {
	if err := s.check("get", id); err != nil {
		return SeenRecord{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM seen_activities WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SeenRecord{}, storeErr("get", id, ErrNotFound)
	}
	if err != nil {
		return SeenRecord{}, storeErr("get", id, err)
	}
	return rec, nil
}

func (s *sqliteStore) List(ctx context.Context, opt ListOptions) ([]SeenRecord, error) {
	if err := s.check("list", ""); err != nil {
		return nil, err
	}
	q := `SELECT ` + recordColumns + ` FROM seen_activities`
	if opt.PendingOnly {
		q += ` WHERE notified = 0`
	}
	q += ` ORDER BY first_seen_at, id`
	args := []any{}
	if opt.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opt.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("list", "", err)
	}
	defer rows.Close()

	var out []SeenRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr("list", "", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", "", err)
	}
	return out, nil
}

func (s *sqliteStore) Logs(ctx context.Context, opt LogOptions) ([]LogEntry, error) {
	if err := s.check("logs", opt.ActivityID); err != nil {
		return nil, err
	}
	q := `SELECT id, activity_id, event_type, details, created_at FROM activity_log`
	args := []any{}
	if opt.ActivityID != "" {
		q += ` WHERE activity_id = ?`
		args = append(args, opt.ActivityID)
	}
	q += ` ORDER BY id`
	if opt.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, opt.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storeErr("logs", opt.ActivityID, err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e       LogEntry
			details sql.NullString
			created sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ActivityID, &e.EventType, &details, &created); err != nil {
			return nil, storeErr("logs", opt.ActivityID, err)
		}
		e.Details = details.String
		e.CreatedAt = parseStamp(created.String)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("logs", opt.ActivityID, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (SeenRecord, error) {
	var (
		rec                      SeenRecord
		sport, name, date, venue sql.NullString
		spots                    sql.NullInt64
		first, last              sql.NullString
		notified                 sql.NullInt64
	)
	if err := sc.Scan(&rec.ID, &sport, &name, &date, &venue, &spots, &first, &last, &notified); err != nil {
		return SeenRecord{}, err
	}
	rec.Sport, rec.Name, rec.Date, rec.Venue = sport.String, name.String, date.String, venue.String
	if spots.Valid {
		v := int(spots.Int64)
		rec.SpotsAvailable = &v
	}
	rec.FirstSeenAt = parseStamp(first.String)
	rec.LastSeenAt = parseStamp(last.String)
	rec.Notified = notified.Valid && notified.Int64 != 0
	return rec, nil
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
