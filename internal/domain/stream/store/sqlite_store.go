package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/liveforge/streamctl/internal/domain/stream/lifecycle"
	"github.com/liveforge/streamctl/internal/domain/stream/model"
	"github.com/liveforge/streamctl/internal/log"
	"github.com/liveforge/streamctl/internal/persistence/sqlite"
)

const schemaVersion = 1

// SqliteStore implements SessionStore directly, and backs the TriggerStore,
// KeyStore, AssetStore and PlaylistStore views returned by Triggers(),
// Keys(), Assets() and Playlists(), over a single SQLite database, mirroring the teacher's
// single-file-per-aggregate-root persistence package.
type SqliteStore struct {
	DB    *sql.DB
	clock Clock
}

// NewSqliteStore opens dbPath and applies the schema migration.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	s := &SqliteStore{DB: db, clock: SystemClock}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	schema := `
	CREATE TABLE IF NOT EXISTS stream_keys (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		token TEXT NOT NULL,
		active INTEGER NOT NULL,
		created_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		source TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playlists (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS playlist_items (
		playlist_id TEXT NOT NULL REFERENCES playlists(id),
		position INTEGER NOT NULL,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		PRIMARY KEY (playlist_id, position)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		stream_key_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		asset_id TEXT,
		playlist_id TEXT,
		background_asset_id TEXT,
		ambient_asset_id TEXT,
		ambient_volume REAL NOT NULL DEFAULT 0,
		loop INTEGER NOT NULL,
		max_duration_hours INTEGER NOT NULL,
		status TEXT NOT NULL,
		encoder_pid INTEGER NOT NULL DEFAULT 0,
		start_time_ms INTEGER NOT NULL,
		end_time_ms INTEGER,
		restart_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_key_status ON sessions(stream_key_id, status);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

	CREATE TABLE IF NOT EXISTS scheduled_triggers (
		id TEXT PRIMARY KEY,
		stream_key_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		asset_id TEXT,
		playlist_id TEXT,
		background_asset_id TEXT,
		ambient_asset_id TEXT,
		ambient_volume REAL NOT NULL DEFAULT 0,
		loop INTEGER NOT NULL,
		max_duration_hours INTEGER NOT NULL,
		scheduled_time_ms INTEGER NOT NULL,
		recurrence TEXT NOT NULL,
		status TEXT NOT NULL,
		job_id TEXT NOT NULL DEFAULT '',
		spawned_session_id TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_triggers_status_time ON scheduled_triggers(status, scheduled_time_ms);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Session CRUD ---

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func timeToMs(t time.Time) int64 {
	return t.UnixMilli()
}

func contentFromColumns(mode string, assetID, playlistID, backgroundAssetID, ambientAssetID sql.NullString, ambientVolume float64) model.SessionContent {
	switch model.SessionMode(mode) {
	case model.ModeSingle:
		return model.NewSingleContent(assetID.String)
	case model.ModeMusicPlaylist:
		return model.NewMusicPlaylistContent(backgroundAssetID.String, playlistID.String, ambientAssetID.String, ambientVolume)
	default:
		return model.NewPlaylistContent(playlistID.String)
	}
}

func contentColumns(content model.SessionContent) (assetID, playlistID, backgroundAssetID, ambientAssetID sql.NullString, ambientVolume float64) {
	if id, ok := content.AssetID(); ok {
		assetID = sql.NullString{String: id, Valid: true}
	}
	if id, ok := content.PlaylistID(); ok {
		playlistID = sql.NullString{String: id, Valid: true}
	}
	if id, ok := content.BackgroundAssetID(); ok {
		backgroundAssetID = sql.NullString{String: id, Valid: true}
	}
	if id, ok := content.AmbientAssetID(); ok {
		ambientAssetID = sql.NullString{String: id, Valid: true}
	}
	ambientVolume = content.AmbientVolume()
	return
}

func (s *SqliteStore) scanSession(row interface{ Scan(...any) error }) (model.Session, error) {
	var (
		sess              model.Session
		mode              string
		assetID           sql.NullString
		playlistID        sql.NullString
		backgroundAssetID sql.NullString
		ambientAssetID    sql.NullString
		ambientVolume     float64
		loop              int
		startMs           int64
		endMs             sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.StreamKeyID, &mode, &assetID, &playlistID,
		&backgroundAssetID, &ambientAssetID, &ambientVolume, &loop,
		&sess.MaxDurationHours, &sess.Status, &sess.EncoderPID, &startMs, &endMs,
		&sess.RestartCount, &sess.LastError); err != nil {
		return model.Session{}, err
	}
	sess.Content = contentFromColumns(mode, assetID, playlistID, backgroundAssetID, ambientAssetID, ambientVolume)
	sess.Loop = loop != 0
	sess.StartTime = msToTime(startMs)
	if endMs.Valid {
		end := msToTime(endMs.Int64)
		sess.EndTime = &end
	}
	return sess, nil
}

const sessionColumns = `id, stream_key_id, mode, asset_id, playlist_id, background_asset_id, ambient_asset_id, ambient_volume, loop, max_duration_hours, status, encoder_pid, start_time_ms, end_time_ms, restart_count, last_error`

func (s *SqliteStore) CreateStarting(ctx context.Context, sess *model.Session) error {
	sess.Status = model.SessionStarting
	sess.StartTime = s.clock.Now()

	assetID, playlistID, backgroundAssetID, ambientAssetID, ambientVolume := contentColumns(sess.Content)

	loop := 0
	if sess.Loop {
		loop = 1
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StreamKeyID, string(sess.Content.Mode()), assetID, playlistID,
		backgroundAssetID, ambientAssetID, ambientVolume, loop,
		sess.MaxDurationHours, sess.Status, sess.EncoderPID, timeToMs(sess.StartTime), nil,
		sess.RestartCount, sess.LastError,
	)
	return err
}

// transition loads the row, applies ev via the lifecycle package, and writes
// the new status/pid/end_time back — all inside one transaction, so the
// from-state assertion and the write are atomic.
func (s *SqliteStore) transition(ctx context.Context, id string, ev lifecycle.EventKind, mutate func(*model.Session)) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := s.scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrMissingSession
		}
		return err
	}

	now := s.clock.Now()
	if mutate != nil {
		mutate(&sess)
	}
	if _, err := lifecycle.Dispatch(&sess, ev, now); err != nil {
		log.WithComponent("session-store").Warn().
			Str(log.FieldSessionID, id).Str(log.FieldOldState, string(sess.Status)).
			Msg("rejected illegal session transition")
		return err
	}

	var endMs sql.NullInt64
	if sess.EndTime != nil {
		endMs = sql.NullInt64{Int64: timeToMs(*sess.EndTime), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sessions SET status = ?, encoder_pid = ?, end_time_ms = ?, restart_count = ?, last_error = ?
		WHERE id = ?`,
		sess.Status, sess.EncoderPID, endMs, sess.RestartCount, sess.LastError, id,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) MarkRunning(ctx context.Context, id string, pid int) error {
	// A `starting` session reaches `running` via EvSpawnSucceeded; a
	// `recovering` one via EvRestartSucceeded. Try the common case first and
	// fall back so callers don't need to know which path a session is on.
	setPID := func(sess *model.Session) { sess.EncoderPID = pid }
	err := s.transition(ctx, id, lifecycle.EvSpawnSucceeded, setPID)
	if errors.Is(err, model.ErrIllegalTransition) {
		return s.transition(ctx, id, lifecycle.EvRestartSucceeded, setPID)
	}
	return err
}

func (s *SqliteStore) MarkRecovering(ctx context.Context, id string, reason string) error {
	return s.transition(ctx, id, lifecycle.EvLivenessLost, func(sess *model.Session) {
		sess.LastError = reason
	})
}

func (s *SqliteStore) MarkStopped(ctx context.Context, id string) error {
	return s.transition(ctx, id, lifecycle.EvStopRequested, nil)
}

func (s *SqliteStore) MarkFailed(ctx context.Context, id string, lastErr string) error {
	// A session in `starting` fails via EvSpawnFailed; one already `recovering`
	// exhausts retries via EvRestartsExhausted. Try both; the lifecycle table
	// rejects whichever doesn't apply to the row's current status.
	err := s.transition(ctx, id, lifecycle.EvSpawnFailed, func(sess *model.Session) { sess.LastError = lastErr })
	if errors.Is(err, model.ErrIllegalTransition) {
		return s.transition(ctx, id, lifecycle.EvRestartsExhausted, func(sess *model.Session) { sess.LastError = lastErr })
	}
	return err
}

func (s *SqliteStore) MarkInterrupted(ctx context.Context, id string) error {
	return s.transition(ctx, id, lifecycle.EvPidMissingOnBoot, nil)
}

func (s *SqliteStore) IncrementRestartCount(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE sessions SET restart_count = restart_count + 1 WHERE id = ?`, id)
	return err
}

func (s *SqliteStore) ResetRestartCount(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE sessions SET restart_count = 0 WHERE id = ?`, id)
	return err
}

func (s *SqliteStore) GetByID(ctx context.Context, id string) (model.Session, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := s.scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, model.ErrMissingSession
	}
	return sess, err
}

func (s *SqliteStore) queryActive(ctx context.Context, extraWhere string, args ...any) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE status IN (?, ?, ?)` + extraWhere
	allArgs := append([]any{model.SessionStarting, model.SessionRunning, model.SessionRecovering}, args...)
	rows, err := s.DB.QueryContext(ctx, query, allArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		sess, err := s.scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SqliteStore) ActiveSessions(ctx context.Context) ([]model.Session, error) {
	return s.queryActive(ctx, "")
}

func (s *SqliteStore) ActiveByStreamKey(ctx context.Context, streamKeyID string) ([]model.Session, error) {
	return s.queryActive(ctx, " AND stream_key_id = ?", streamKeyID)
}

func (s *SqliteStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE status IN (?, ?, ?)`,
		model.SessionStarting, model.SessionRunning, model.SessionRecovering).Scan(&n)
	return n, err
}
