package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

// --- KeyStore ---

func (s *SqliteStore) Create(ctx context.Context, key *model.StreamKey) error {
	key.CreatedAt = s.clock.Now()
	active := 0
	if key.Active {
		active = 1
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO stream_keys (id, name, token, active, created_at_ms)
		VALUES (?, ?, ?, ?, ?)`,
		key.ID, key.Name, key.Token, active, timeToMs(key.CreatedAt),
	)
	return err
}

func (s *SqliteStore) GetKeyByID(ctx context.Context, id string) (model.StreamKey, error) {
	var key model.StreamKey
	var active int
	var createdMs int64
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, token, active, created_at_ms FROM stream_keys WHERE id = ?`, id).
		Scan(&key.ID, &key.Name, &key.Token, &active, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StreamKey{}, model.ErrUnknownKey
	}
	if err != nil {
		return model.StreamKey{}, err
	}
	key.Active = active != 0
	key.CreatedAt = msToTime(createdMs)
	return key, nil
}

func (s *SqliteStore) ListKeys(ctx context.Context) ([]model.StreamKey, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, token, active, created_at_ms FROM stream_keys ORDER BY created_at_ms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StreamKey
	for rows.Next() {
		var key model.StreamKey
		var active int
		var createdMs int64
		if err := rows.Scan(&key.ID, &key.Name, &key.Token, &active, &createdMs); err != nil {
			return nil, err
		}
		key.Active = active != 0
		key.CreatedAt = msToTime(createdMs)
		out = append(out, key)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Deactivate(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE stream_keys SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrUnknownKey
	}
	return nil
}

// --- AssetStore ---

func (s *SqliteStore) CreateAsset(ctx context.Context, asset *model.Asset) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO assets (id, path, duration_seconds, source) VALUES (?, ?, ?, ?)`,
		asset.ID, asset.Path, asset.DurationSeconds, asset.Source,
	)
	return err
}

func (s *SqliteStore) GetAssetByID(ctx context.Context, id string) (model.Asset, error) {
	var asset model.Asset
	err := s.DB.QueryRowContext(ctx, `SELECT id, path, duration_seconds, source FROM assets WHERE id = ?`, id).
		Scan(&asset.ID, &asset.Path, &asset.DurationSeconds, &asset.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Asset{}, model.ErrUnknownAsset
	}
	return asset, err
}

func (s *SqliteStore) ListAssets(ctx context.Context) ([]model.Asset, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, path, duration_seconds, source FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Asset
	for rows.Next() {
		var asset model.Asset
		if err := rows.Scan(&asset.ID, &asset.Path, &asset.DurationSeconds, &asset.Source); err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, rows.Err()
}

func (s *SqliteStore) DeleteAsset(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrUnknownAsset
	}
	return nil
}

// --- PlaylistStore ---

func (s *SqliteStore) CreatePlaylist(ctx context.Context, playlist *model.Playlist) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO playlists (id, mode) VALUES (?, ?)`, playlist.ID, playlist.Mode); err != nil {
		return err
	}
	for i, assetID := range playlist.AssetIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO playlist_items (playlist_id, position, asset_id) VALUES (?, ?, ?)`,
			playlist.ID, i, assetID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SqliteStore) loadPlaylistItems(ctx context.Context, playlistID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT asset_id FROM playlist_items WHERE playlist_id = ? ORDER BY position`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SqliteStore) GetPlaylistByID(ctx context.Context, id string) (model.Playlist, error) {
	var playlist model.Playlist
	err := s.DB.QueryRowContext(ctx, `SELECT id, mode FROM playlists WHERE id = ?`, id).Scan(&playlist.ID, &playlist.Mode)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Playlist{}, model.ErrUnknownPlaylist
	}
	if err != nil {
		return model.Playlist{}, err
	}
	playlist.AssetIDs, err = s.loadPlaylistItems(ctx, id)
	return playlist, err
}

func (s *SqliteStore) ListPlaylists(ctx context.Context) ([]model.Playlist, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, mode FROM playlists ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var playlists []model.Playlist
	for rows.Next() {
		var playlist model.Playlist
		if err := rows.Scan(&playlist.ID, &playlist.Mode); err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range playlists {
		items, err := s.loadPlaylistItems(ctx, playlists[i].ID)
		if err != nil {
			return nil, err
		}
		playlists[i].AssetIDs = items
	}
	return playlists, nil
}

// --- TriggerStore ---

const triggerColumns = `id, stream_key_id, mode, asset_id, playlist_id, background_asset_id, ambient_asset_id, ambient_volume, loop, max_duration_hours, scheduled_time_ms, recurrence, status, job_id, spawned_session_id, error_message, created_at_ms, updated_at_ms`

func (s *SqliteStore) scanTrigger(row interface{ Scan(...any) error }) (model.ScheduledTrigger, error) {
	var (
		trig              model.ScheduledTrigger
		mode              string
		assetID           sql.NullString
		playlistID        sql.NullString
		backgroundAssetID sql.NullString
		ambientAssetID    sql.NullString
		ambientVolume     float64
		loop              int
		schedMs           int64
		createdMs         int64
		updatedMs         int64
	)
	if err := row.Scan(&trig.ID, &trig.StreamKeyID, &mode, &assetID, &playlistID,
		&backgroundAssetID, &ambientAssetID, &ambientVolume, &loop,
		&trig.MaxDurationHours, &schedMs, &trig.Recurrence, &trig.Status, &trig.JobID,
		&trig.SpawnedSessionID, &trig.ErrorMessage, &createdMs, &updatedMs); err != nil {
		return model.ScheduledTrigger{}, err
	}
	trig.Content = contentFromColumns(mode, assetID, playlistID, backgroundAssetID, ambientAssetID, ambientVolume)
	trig.Loop = loop != 0
	trig.ScheduledTime = msToTime(schedMs)
	trig.CreatedAt = msToTime(createdMs)
	trig.UpdatedAt = msToTime(updatedMs)
	return trig, nil
}

func (s *SqliteStore) CreateTrigger(ctx context.Context, trig *model.ScheduledTrigger) error {
	now := s.clock.Now()
	trig.CreatedAt = now
	trig.UpdatedAt = now
	if trig.Status == "" {
		trig.Status = model.TriggerPending
	}

	assetID, playlistID, backgroundAssetID, ambientAssetID, ambientVolume := contentColumns(trig.Content)
	loop := 0
	if trig.Loop {
		loop = 1
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO scheduled_triggers (`+triggerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trig.ID, trig.StreamKeyID, string(trig.Content.Mode()), assetID, playlistID,
		backgroundAssetID, ambientAssetID, ambientVolume, loop,
		trig.MaxDurationHours, timeToMs(trig.ScheduledTime), trig.Recurrence, trig.Status,
		trig.JobID, trig.SpawnedSessionID, trig.ErrorMessage, timeToMs(trig.CreatedAt), timeToMs(trig.UpdatedAt),
	)
	return err
}

func (s *SqliteStore) UpdateTrigger(ctx context.Context, trig *model.ScheduledTrigger) error {
	trig.UpdatedAt = s.clock.Now()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE scheduled_triggers SET
			scheduled_time_ms = ?, recurrence = ?, status = ?, job_id = ?,
			spawned_session_id = ?, error_message = ?, updated_at_ms = ?
		WHERE id = ?`,
		timeToMs(trig.ScheduledTime), trig.Recurrence, trig.Status, trig.JobID,
		trig.SpawnedSessionID, trig.ErrorMessage, timeToMs(trig.UpdatedAt), trig.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrMissingTrigger
	}
	return nil
}

func (s *SqliteStore) GetTriggerByID(ctx context.Context, id string) (model.ScheduledTrigger, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+triggerColumns+` FROM scheduled_triggers WHERE id = ?`, id)
	trig, err := s.scanTrigger(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduledTrigger{}, model.ErrMissingTrigger
	}
	return trig, err
}

func (s *SqliteStore) DeleteTrigger(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM scheduled_triggers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrMissingTrigger
	}
	return nil
}

func (s *SqliteStore) queryTriggers(ctx context.Context, where string, args ...any) ([]model.ScheduledTrigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM scheduled_triggers`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY scheduled_time_ms"

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduledTrigger
	for rows.Next() {
		trig, err := s.scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, trig)
	}
	return out, rows.Err()
}

func (s *SqliteStore) ListTriggers(ctx context.Context, status model.TriggerStatus, streamKeyID string) ([]model.ScheduledTrigger, error) {
	var clauses []string
	var args []any
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, status)
	}
	if streamKeyID != "" {
		clauses = append(clauses, "stream_key_id = ?")
		args = append(args, streamKeyID)
	}
	return s.queryTriggers(ctx, strings.Join(clauses, " AND "), args...)
}

func (s *SqliteStore) PendingTriggers(ctx context.Context) ([]model.ScheduledTrigger, error) {
	return s.queryTriggers(ctx, "status = ?", model.TriggerPending)
}

func (s *SqliteStore) RunningTriggers(ctx context.Context) ([]model.ScheduledTrigger, error) {
	return s.queryTriggers(ctx, "status = ?", model.TriggerRunning)
}
