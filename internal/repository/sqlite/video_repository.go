package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"blackframe/internal/dto"
	"blackframe/internal/model"
)

const videoColumns = `id, run_id, path, filename, filesize, mod_time, fps, frame_count, width, height,
	duration, sampled_frames, black_frames, status, error, scanned_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// VideoRepository implements repository.VideoRepository for SQLite.
type VideoRepository struct {
	db *DB
}

// NewVideoRepository creates a new SQLite video repository.
func NewVideoRepository(db *DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func scanVideo(row rowScanner) (*model.Video, error) {
	var v model.Video
	var modTime, scannedAt sql.NullTime
	err := row.Scan(&v.ID, &v.RunID, &v.Path, &v.Filename, &v.FileSize, &modTime, &v.FPS, &v.FrameCount,
		&v.Width, &v.Height, &v.Duration, &v.SampledFrames, &v.BlackFrames, &v.Status, &v.Error, &scannedAt)
	if err != nil {
		return nil, err
	}
	v.ModTime = modTime.Time
	v.ScannedAt = scannedAt.Time
	return &v, nil
}

// Upsert inserts the video or, when its path is already known, replaces the
// stored scan and drops the previous segments. It returns the video ID.
func (r *VideoRepository) Upsert(v *model.Video) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if v.ScannedAt.IsZero() {
		v.ScannedAt = time.Now()
	}

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(`SELECT id FROM videos WHERE path = ?`, v.Path).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		result, err := tx.Exec(`
			INSERT INTO videos (run_id, path, filename, filesize, mod_time, fps, frame_count, width, height,
				duration, sampled_frames, black_frames, status, error, scanned_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, v.RunID, v.Path, v.Filename, v.FileSize, v.ModTime.UTC(), v.FPS, v.FrameCount, v.Width, v.Height,
			v.Duration, v.SampledFrames, v.BlackFrames, v.Status, v.Error, v.ScannedAt.UTC())
		if err != nil {
			return 0, fmt.Errorf("failed to insert video: %w", err)
		}
		if id, err = result.LastInsertId(); err != nil {
			return 0, fmt.Errorf("failed to get last insert id: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up video: %w", err)
	default:
		if _, err := tx.Exec(`DELETE FROM segments WHERE video_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete old segments: %w", err)
		}
		if err := updateVideo(tx, id, v); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	v.ID = id
	return id, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func updateVideo(e execer, id int64, v *model.Video) error {
	_, err := e.Exec(`
		UPDATE videos SET run_id = ?, filename = ?, filesize = ?, mod_time = ?, fps = ?, frame_count = ?,
			width = ?, height = ?, duration = ?, sampled_frames = ?, black_frames = ?, status = ?, error = ?,
			scanned_at = ?
		WHERE id = ?
	`, v.RunID, v.Filename, v.FileSize, v.ModTime.UTC(), v.FPS, v.FrameCount, v.Width, v.Height,
		v.Duration, v.SampledFrames, v.BlackFrames, v.Status, v.Error, v.ScannedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update video: %w", err)
	}
	return nil
}

// Update overwrites a stored video with v.
func (r *VideoRepository) Update(v *model.Video) error {
	r.db.Lock()
	defer r.db.Unlock()

	return updateVideo(r.db.Conn(), v.ID, v)
}

// UpdateStatus changes the status (and error message) of a video.
func (r *VideoRepository) UpdateStatus(id int64, status, errMsg string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE videos SET status = ?, error = ? WHERE id = ?`, status, errMsg, id); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

// GetByID retrieves a video by its ID.
func (r *VideoRepository) GetByID(id int64) (*model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	v, err := scanVideo(r.db.Conn().QueryRow(`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

// GetByPath retrieves a video by its path.
func (r *VideoRepository) GetByPath(path string) (*model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	v, err := scanVideo(r.db.Conn().QueryRow(`SELECT `+videoColumns+` FROM videos WHERE path = ?`, path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return v, nil
}

func videoWhere(filter *dto.VideoFilters) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}

	if filter == nil {
		return where, args
	}
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, filter.Status)
	}
	if filter.RunID != "" {
		where += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	return where, args
}

// GetAll retrieves videos based on filter criteria, newest scans first.
func (r *VideoRepository) GetAll(filter *dto.VideoFilters) ([]model.Video, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := videoWhere(filter)
	query := `SELECT ` + videoColumns + ` FROM videos` + where + ` ORDER BY scanned_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()

	var videos []model.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, *v)
	}
	return videos, rows.Err()
}

// GetTotalCount returns the number of videos matching the filter (without limit/offset).
func (r *VideoRepository) GetTotalCount(filter *dto.VideoFilters) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := videoWhere(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM videos`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return count, nil
}

// GetStats returns statistics about stored scans.
func (r *VideoRepository) GetStats() (*model.VideoStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &model.VideoStats{
		PerStatus: make(map[string]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM videos`).Scan(&stats.TotalVideos); err != nil {
		return nil, err
	}

	err := r.db.Conn().QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(end_seconds - start_seconds), 0) FROM segments
	`).Scan(&stats.TotalSegments, &stats.TotalBlackTime)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Conn().Query(`SELECT status, COUNT(*) FROM videos GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.PerStatus[status] = count
	}

	return stats, rows.Err()
}

// Delete removes a video by its ID; its segments are removed by the cascade.
func (r *VideoRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM videos WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return nil
}
