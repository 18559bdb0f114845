package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"blackframe/internal/config"
	"blackframe/internal/dto"
	"blackframe/internal/logger"
	"blackframe/internal/repository"

	"github.com/disintegration/imaging"
)

// jpegQuality is used for every written snapshot.
const jpegQuality = 85

// BufferService buffers segment snapshots in memory and flushes them to disk
// as JPEG thumbnails.
type BufferService struct {
	snapshotDir   string
	width         int
	limit         int
	flushInterval time.Duration
	snapshots     []dto.BufferedSnapshot
	bufferCount   map[int64]int
	mu            sync.Mutex
	logger        *logger.Logger
	segmentRepo   repository.SegmentRepository
}

// NewBufferService creates a new BufferService. segmentRepo may be nil, in
// which case written snapshots are not recorded in the database.
func NewBufferService(config *config.Config, logger *logger.Logger, segmentRepo repository.SegmentRepository) *BufferService {
	return &BufferService{
		snapshotDir:   config.SnapshotDirectory,
		width:         config.SnapshotWidth,
		limit:         config.SnapshotBufferLimit,
		flushInterval: time.Duration(config.SnapshotFlushInterval) * time.Second,
		snapshots:     make([]dto.BufferedSnapshot, 0),
		bufferCount:   make(map[int64]int),
		logger:        logger,
		segmentRepo:   segmentRepo,
	}
}

// Run flushes buffered snapshots periodically until ctx is cancelled, then
// flushes once more.
func (s *BufferService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Flush()
		case <-ctx.Done():
			s.Flush()
			return
		}
	}
}

// AddSnapshot appends a snapshot to the buffer and returns the file name it
// will be written under. Frames wider than the snapshot width are downscaled
// before they are buffered. ok is false when the per-video limit has been
// reached and the snapshot was dropped.
func (s *BufferService) AddSnapshot(snapshot dto.BufferedSnapshot) (filename string, ok bool) {
	if snapshot.Image == nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := s.bufferCount[snapshot.VideoID]
	if count >= s.limit {
		return "", false
	}

	// Pełna klatka 1080p to ~8 MB, w buforze trzymamy tylko miniaturę
	if s.width > 0 && snapshot.Image.Bounds().Dx() > s.width {
		snapshot.Image = imaging.Resize(snapshot.Image, s.width, 0, imaging.Lanczos)
	}

	if snapshot.Filename == "" {
		snapshot.Filename = SnapshotFilename(snapshot.Video, snapshot.SegmentID, count, snapshot.Timestamp)
	}
	s.snapshots = append(s.snapshots, snapshot)
	s.bufferCount[snapshot.VideoID]++
	s.logger.Debug("Snapshot buffer for video %d: %d/%d", snapshot.VideoID, count+1, s.limit)
	return snapshot.Filename, true
}

// Pending returns the number of buffered snapshots.
func (s *BufferService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// Flush writes buffered snapshots to disk, records their file names on the
// segments and resets the buffer. It returns the written file names.
func (s *BufferService) Flush() []string {
	s.mu.Lock()
	pending := s.snapshots
	s.snapshots = make([]dto.BufferedSnapshot, 0)
	s.bufferCount = make(map[int64]int)
	s.mu.Unlock()

	written := s.write(pending)
	if len(written) == 0 {
		return nil
	}
	names := make([]string, 0, len(written))
	for _, snap := range written {
		names = append(names, snap.Filename)
	}
	s.logger.Info("Flushed %d snapshots to disk", len(names))
	return names
}

// FlushVideo writes the buffered snapshots of one video and frees its slots.
// It returns the written file names keyed by segment ID.
func (s *BufferService) FlushVideo(videoID int64) map[int64]string {
	s.mu.Lock()
	var pending []dto.BufferedSnapshot
	kept := make([]dto.BufferedSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		if snap.VideoID == videoID {
			pending = append(pending, snap)
		} else {
			kept = append(kept, snap)
		}
	}
	s.snapshots = kept
	delete(s.bufferCount, videoID)
	s.mu.Unlock()

	written := make(map[int64]string, len(pending))
	for _, snap := range s.write(pending) {
		written[snap.SegmentID] = snap.Filename
	}
	s.logger.Debug("Flushed %d snapshots of video %d", len(written), videoID)
	return written
}

// write saves snapshots as JPEG files and returns the ones that were written.
func (s *BufferService) write(pending []dto.BufferedSnapshot) []dto.BufferedSnapshot {
	if len(pending) == 0 {
		return nil
	}

	if err := os.MkdirAll(s.snapshotDir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return nil
	}

	written := make([]dto.BufferedSnapshot, 0, len(pending))
	for _, snap := range pending {
		filename := snap.Filename
		fullpath := filepath.Join(s.snapshotDir, filename)

		if err := imaging.Save(snap.Image, fullpath, imaging.JPEGQuality(jpegQuality)); err != nil {
			s.logger.Error("Error saving snapshot %s: %v", filename, err)
			continue
		}

		if s.segmentRepo != nil && snap.SegmentID != 0 {
			if err := s.segmentRepo.UpdateSnapshot(snap.SegmentID, filename); err != nil {
				s.logger.Error("Error saving snapshot path to database %s: %v", filename, err)
			}
		}
		written = append(written, snap)
	}
	return written
}

// Remove deletes snapshot files by name. Missing files are ignored.
func (s *BufferService) Remove(filenames ...string) {
	for _, name := range filenames {
		if name == "" {
			continue
		}
		path := filepath.Join(s.snapshotDir, filepath.Base(name))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Error("Failed to delete snapshot %s: %v", path, err)
		}
	}
}

// SnapshotFilename builds "<video>_<segment>_<HHhMMmSSs>.jpg". The segment
// part is the database ID when known, the buffer position otherwise.
func SnapshotFilename(videoPath string, segmentID int64, position int, seconds float64) string {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	base = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, base)

	segment := segmentID
	if segment == 0 {
		segment = int64(position + 1)
	}

	total := int(seconds)
	return fmt.Sprintf("%s_%d_%02dh%02dm%02ds.jpg", base, segment, total/3600, total%3600/60, total%60)
}
