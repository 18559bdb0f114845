package sqlite

import (
	"fmt"

	"blackframe/internal/model"
)

// SegmentRepository implements repository.SegmentRepository for SQLite.
type SegmentRepository struct {
	db *DB
}

// NewSegmentRepository creates a new SQLite segment repository.
func NewSegmentRepository(db *DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// InsertBatch adds the segments of one video in a single transaction and
// fills in their IDs.
func (r *SegmentRepository) InsertBatch(videoID int64, segments []model.Segment) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO segments (video_id, start_frame, end_frame, start_seconds, end_seconds, mean_luma, snapshot_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range segments {
		seg := &segments[i]
		seg.VideoID = videoID
		result, err := stmt.Exec(videoID, seg.StartFrame, seg.EndFrame, seg.StartSeconds, seg.EndSeconds, seg.MeanLuma, seg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to insert segment: %w", err)
		}
		if seg.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
	}

	return tx.Commit()
}

// GetByVideoID retrieves all segments of a video ordered by start time.
func (r *SegmentRepository) GetByVideoID(videoID int64) ([]model.Segment, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, video_id, start_frame, end_frame, start_seconds, end_seconds, mean_luma, snapshot_path
		FROM segments WHERE video_id = ? ORDER BY start_frame
	`, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	var segments []model.Segment
	for rows.Next() {
		var s model.Segment
		if err := rows.Scan(&s.ID, &s.VideoID, &s.StartFrame, &s.EndFrame, &s.StartSeconds, &s.EndSeconds, &s.MeanLuma, &s.SnapshotPath); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

// UpdateSnapshot stores the thumbnail path of a segment.
func (r *SegmentRepository) UpdateSnapshot(id int64, path string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`UPDATE segments SET snapshot_path = ? WHERE id = ?`, path, id); err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}
	return nil
}

// DeleteByVideoID removes all segments of a video.
func (r *SegmentRepository) DeleteByVideoID(videoID int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM segments WHERE video_id = ?`, videoID); err != nil {
		return fmt.Errorf("failed to delete segments: %w", err)
	}
	return nil
}
