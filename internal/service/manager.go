package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"blackframe/internal/config"
	"blackframe/internal/dto"
	"blackframe/internal/logger"
	"blackframe/internal/model"
	"blackframe/internal/repository"
	"blackframe/internal/service/report"
	"blackframe/internal/service/scanner"
	"blackframe/internal/service/source"
	"blackframe/internal/service/storage"
	"blackframe/internal/service/websocket"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull      = errors.New("scan queue is full")
	ErrManagerStopped = errors.New("scan manager stopped")
)

// Manager owns the scan queue and runs videos through the scanner, the
// repositories, the snapshot buffer and the progress hub.
type Manager struct {
	scanner       *scanner.Scanner
	videoRepo     repository.VideoRepository
	segmentRepo   repository.SegmentRepository
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	reportDir     string
	logger        *logger.Logger

	scanQueue  chan scanJob
	numWorkers int
	onProgress func(dto.ScanProgress)

	ctx     context.Context
	cancel  context.CancelFunc
	stateMu sync.RWMutex // Chroni stopped i zamknięcie kolejki
	stopped bool
	wg      sync.WaitGroup
}

type scanJob struct {
	runID string
	path  string
	force bool
}

// NewManager starts cfg.ScanConcurrency workers consuming the scan queue.
// bufferService and hubService may be nil.
func NewManager(scanner *scanner.Scanner, videoRepo repository.VideoRepository, segmentRepo repository.SegmentRepository,
	bufferService *storage.BufferService, hubService *websocket.HubService, cfg *config.Config, logger *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	manager := &Manager{
		scanner:       scanner,
		videoRepo:     videoRepo,
		segmentRepo:   segmentRepo,
		bufferService: bufferService,
		hubService:    hubService,
		reportDir:     cfg.ReportDirectory,
		logger:        logger,
		scanQueue:     make(chan scanJob, cfg.ScanQueueSize),
		numWorkers:    cfg.ScanConcurrency,
		ctx:           ctx,
		cancel:        cancel,
	}

	for i := 0; i < manager.numWorkers; i++ {
		manager.wg.Add(1)
		go manager.scanWorker(i)
	}

	manager.logger.Info("🎬 Manager started - %d video(s) at a time, every %d frame(s) analyzed",
		manager.numWorkers, scanner.Options().Interval)
	return manager
}

// SetProgressFunc registers an extra receiver of progress updates. It is
// called from several goroutines at once. Must be set before scanning starts.
func (m *Manager) SetProgressFunc(fn func(dto.ScanProgress)) {
	m.onProgress = fn
}

// Submit resolves req.Path into videos and queues them under a new run ID.
// It never blocks: when the queue fills up, the videos queued so far stay
// queued and ErrQueueFull is returned with their count.
func (m *Manager) Submit(req dto.ScanRequest) (string, int, error) {
	paths, err := source.Resolve(req.Path)
	if err != nil {
		return "", 0, err
	}

	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	if m.stopped {
		return "", 0, ErrManagerStopped
	}

	runID := uuid.NewString()
	queued := 0
	for _, path := range paths {
		select {
		case m.scanQueue <- scanJob{runID: runID, path: path, force: req.Force}:
			queued++
			m.emit(dto.ScanProgress{RunID: runID, Path: path, Stage: dto.StageQueued})
		default:
			m.logger.Warning("⚠️  Scan queue full - %d of %d video(s) queued for run %s", queued, len(paths), runID)
			return runID, queued, ErrQueueFull
		}
	}

	m.logger.Info("📹 Run %s: %d video(s) queued from %s", runID, queued, req.Path)
	return runID, queued, nil
}

// ScanNow scans every video of req.Path and waits for the results, which are
// returned in input order. A failing video does not stop the batch; its
// result carries the error. The returned error is non-nil only when the
// input cannot be resolved or ctx is cancelled.
func (m *Manager) ScanNow(ctx context.Context, req dto.ScanRequest) ([]dto.ScanResult, error) {
	paths, err := source.Resolve(req.Path)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	results := make([]dto.ScanResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.numWorkers)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = m.processVideo(gctx, scanJob{runID: runID, path: path, force: req.Force})
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// scanWorker processes queued videos until the queue is closed.
func (m *Manager) scanWorker(workerID int) {
	defer m.wg.Done()

	m.logger.Debug("🔧 Scan worker %d started", workerID)
	for job := range m.scanQueue {
		if m.ctx.Err() != nil {
			continue
		}
		m.processVideo(m.ctx, job)
	}
	m.logger.Debug("🔧 Scan worker %d stopped", workerID)
}

// processVideo runs one video end to end and records the outcome.
func (m *Manager) processVideo(ctx context.Context, job scanJob) dto.ScanResult {
	result := dto.ScanResult{Path: job.path}

	info, err := os.Stat(job.path)
	if err != nil {
		return m.fail(job, 0, &result, fmt.Errorf("%w %s: %v", scanner.ErrOpenVideo, job.path, err))
	}

	if !job.force {
		if skipped, ok := m.previousScan(job, info); ok {
			return skipped
		}
	}

	m.removeStaleSnapshots(job.path)

	video := &model.Video{
		RunID:    job.runID,
		Path:     job.path,
		Filename: filepath.Base(job.path),
		FileSize: info.Size(),
		ModTime:  info.ModTime(),
		Status:   model.StatusScanning,
	}
	videoID, err := m.videoRepo.Upsert(video)
	if err != nil {
		return m.fail(job, 0, &result, fmt.Errorf("failed to save video: %w", err))
	}
	video.ID = videoID

	m.emit(dto.ScanProgress{RunID: job.runID, Path: job.path, Stage: dto.StageScanning})

	scanned, err := m.scanner.Scan(ctx, job.path, func(p dto.ScanProgress) {
		p.RunID = job.runID
		m.emit(p)
	})
	if err != nil {
		return m.fail(job, videoID, &result, err)
	}
	result = *scanned

	if err := m.segmentRepo.InsertBatch(videoID, result.Segments); err != nil {
		return m.fail(job, videoID, &result, fmt.Errorf("failed to save segments: %w", err))
	}

	m.bufferSnapshots(video, &result)

	if m.reportDir != "" {
		if path, err := report.WriteJSON(m.reportDir, &result); err != nil {
			m.logger.Error("Error writing report for %s: %v", job.path, err)
		} else {
			m.logger.Debug("Report written to %s", path)
		}
	}

	video.FPS = result.FPS
	video.FrameCount = result.FrameCount
	video.Width = result.Width
	video.Height = result.Height
	video.Duration = result.Duration
	video.SampledFrames = result.SampledFrames
	video.BlackFrames = result.BlackFrames
	video.Status = model.StatusDone
	video.ScannedAt = time.Now()
	if err := m.videoRepo.Update(video); err != nil {
		return m.fail(job, videoID, &result, fmt.Errorf("failed to update video: %w", err))
	}

	m.emit(dto.ScanProgress{
		RunID:         job.runID,
		Path:          job.path,
		Stage:         dto.StageDone,
		FramesRead:    result.FramesRead,
		FrameCount:    result.FrameCount,
		SampledFrames: result.SampledFrames,
		BlackFrames:   result.BlackFrames,
		Percent:       100,
	})
	return result
}

// previousScan returns the stored result of an unchanged, already scanned video.
func (m *Manager) previousScan(job scanJob, info os.FileInfo) (dto.ScanResult, bool) {
	existing, err := m.videoRepo.GetByPath(job.path)
	if err != nil {
		m.logger.Error("Error looking up %s: %v", job.path, err)
		return dto.ScanResult{}, false
	}
	if existing == nil || existing.Status != model.StatusDone ||
		existing.FileSize != info.Size() || !existing.ModTime.Equal(info.ModTime()) {
		return dto.ScanResult{}, false
	}

	segments, err := m.segmentRepo.GetByVideoID(existing.ID)
	if err != nil {
		m.logger.Error("Error loading segments of %s: %v", job.path, err)
		return dto.ScanResult{}, false
	}

	m.logger.Info("⏭️  Skipping %s, already scanned", job.path)
	m.emit(dto.ScanProgress{RunID: job.runID, Path: job.path, Stage: dto.StageSkipped, Percent: 100})

	return dto.ScanResult{
		Path:          existing.Path,
		FPS:           existing.FPS,
		FrameCount:    existing.FrameCount,
		FramesRead:    existing.FrameCount,
		Width:         existing.Width,
		Height:        existing.Height,
		Duration:      existing.Duration,
		SampledFrames: existing.SampledFrames,
		BlackFrames:   existing.BlackFrames,
		Segments:      segments,
		Skipped:       true,
	}, true
}

// bufferSnapshots grabs one frame per segment, hands it to the snapshot
// buffer and writes the video's snapshots out. Only names of files that were
// written are filled in on result.
func (m *Manager) bufferSnapshots(video *model.Video, result *dto.ScanResult) {
	if m.bufferService == nil || len(result.Segments) == 0 {
		return
	}

	indices := make([]int, len(result.Segments))
	for i, seg := range result.Segments {
		indices[i] = scanner.SnapshotFrame(seg, m.scanner.Options().Interval, result.FrameCount)
	}

	frames, err := scanner.GrabFrames(video.Path, indices)
	if err != nil {
		m.logger.Error("Error grabbing snapshots of %s: %v", video.Path, err)
		return
	}

	for i := range result.Segments {
		seg := &result.Segments[i]
		img, ok := frames[indices[i]]
		if !ok {
			continue
		}

		timestamp := seg.EndSeconds
		if result.FPS > 0 {
			timestamp = float64(indices[i]) / result.FPS
		}

		if _, ok := m.bufferService.AddSnapshot(dto.BufferedSnapshot{
			VideoID:   video.ID,
			SegmentID: seg.ID,
			Video:     video.Path,
			Timestamp: timestamp,
			Image:     img,
		}); !ok {
			m.logger.Warning("Snapshot buffer full for %s, skipping remaining snapshots", video.Path)
			break
		}
	}

	written := m.bufferService.FlushVideo(video.ID)
	for i := range result.Segments {
		seg := &result.Segments[i]
		seg.SnapshotPath = written[seg.ID]
	}
}

// removeStaleSnapshots deletes the snapshot files of a previous scan of path.
// Rescanning replaces the stored segments, so their files would be orphaned.
func (m *Manager) removeStaleSnapshots(path string) {
	if m.bufferService == nil {
		return
	}
	existing, err := m.videoRepo.GetByPath(path)
	if err != nil || existing == nil {
		return
	}
	segments, err := m.segmentRepo.GetByVideoID(existing.ID)
	if err != nil {
		m.logger.Error("Error loading segments of %s: %v", path, err)
		return
	}

	names := make([]string, 0, len(segments))
	for _, seg := range segments {
		names = append(names, seg.SnapshotPath)
	}
	m.bufferService.Remove(names...)
}

// fail records a failed video and returns its result.
func (m *Manager) fail(job scanJob, videoID int64, result *dto.ScanResult, err error) dto.ScanResult {
	if errors.Is(err, context.Canceled) {
		err = fmt.Errorf("scan interrupted: %w", err)
	}
	m.logger.Error("Scan of %s failed: %v", job.path, err)

	if videoID == 0 {
		m.removeStaleSnapshots(job.path)
		v := &model.Video{
			RunID:    job.runID,
			Path:     job.path,
			Filename: filepath.Base(job.path),
			Status:   model.StatusFailed,
			Error:    err.Error(),
		}
		if _, dbErr := m.videoRepo.Upsert(v); dbErr != nil {
			m.logger.Error("Error saving failed video %s: %v", job.path, dbErr)
		}
	} else if dbErr := m.videoRepo.UpdateStatus(videoID, model.StatusFailed, err.Error()); dbErr != nil {
		m.logger.Error("Error updating status of %s: %v", job.path, dbErr)
	}

	m.emit(dto.ScanProgress{RunID: job.runID, Path: job.path, Stage: dto.StageFailed, Error: err.Error()})

	result.Path = job.path
	result.Error = err.Error()
	return *result
}

func (m *Manager) emit(progress dto.ScanProgress) {
	if m.hubService != nil {
		m.hubService.BroadcastProgress(progress)
	}
	if m.onProgress != nil {
		m.onProgress(progress)
	}
}

// QueueLength returns the number of videos waiting to be scanned.
func (m *Manager) QueueLength() int {
	return len(m.scanQueue)
}

// DeleteVideo removes a video with its segments and snapshot files.
// It reports false when the video does not exist.
func (m *Manager) DeleteVideo(id int64) (bool, error) {
	video, err := m.videoRepo.GetByID(id)
	if err != nil {
		return false, err
	}
	if video == nil {
		return false, nil
	}

	segments, err := m.segmentRepo.GetByVideoID(id)
	if err != nil {
		return false, err
	}
	if err := m.videoRepo.Delete(id); err != nil {
		return false, err
	}

	if m.bufferService != nil {
		names := make([]string, 0, len(segments))
		for _, seg := range segments {
			names = append(names, seg.SnapshotPath)
		}
		m.bufferService.Remove(names...)
	}

	m.logger.Info("Deleted video %d: %s", id, video.Path)
	return true, nil
}

func (m *Manager) GetHubService() *websocket.HubService {
	return m.hubService
}

func (m *Manager) GetVideoRepository() repository.VideoRepository {
	return m.videoRepo
}

func (m *Manager) GetSegmentRepository() repository.SegmentRepository {
	return m.segmentRepo
}

// Stop closes the queue, interrupts running scans and waits for the workers.
// Videos still waiting in the queue are not scanned.
func (m *Manager) Stop() {
	m.stateMu.Lock()
	if m.stopped {
		m.stateMu.Unlock()
		return
	}
	m.stopped = true
	close(m.scanQueue)
	m.stateMu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("🛑 All scan workers stopped")
}
