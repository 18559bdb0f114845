package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blackframe/internal/config"
	"blackframe/internal/dto"
	"blackframe/internal/logger"
	"blackframe/internal/model"
	"blackframe/internal/repository/sqlite"
	"blackframe/internal/service/detector"
	"blackframe/internal/service/report"
	"blackframe/internal/service/scanner"
	"blackframe/internal/service/source"
	"blackframe/internal/service/storage"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// ========================================
// Helpers
// ========================================

// writeVideo writes a 10 fps MJPG/AVI clip into dir where '#' is a black
// frame and any other character a bright one.
func writeVideo(t *testing.T, dir, name, pattern string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	writer, err := gocv.VideoWriterFile(path, "MJPG", 10, 160, 120, true)
	if err != nil {
		t.Skipf("video writer unavailable: %v", err)
	}
	defer writer.Close()
	if !writer.IsOpened() {
		t.Skip("video writer could not be opened")
	}

	black := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer black.Close()
	bright := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(200, 200, 200, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer bright.Close()

	for _, c := range pattern {
		frame := bright
		if c == '#' {
			frame = black
		}
		if err := writer.Write(frame); err != nil {
			t.Fatalf("Failed to write frame: %v", err)
		}
	}
	return path
}

type testEnv struct {
	cfg     *config.Config
	manager *Manager
	videos  *sqlite.VideoRepository
	buffer  *storage.BufferService
}

func newTestEnv(t *testing.T, concurrency, queueSize int) *testEnv {
	t.Helper()
	return newTestEnvWithInterval(t, concurrency, queueSize, 1)
}

func newTestEnvWithInterval(t *testing.T, concurrency, queueSize, interval int) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		SnapshotDirectory:     filepath.Join(root, "snapshots"),
		ReportDirectory:       filepath.Join(root, "reports"),
		SnapshotWidth:         80,
		SnapshotBufferLimit:   10,
		SnapshotFlushInterval: 1,
		ScanQueueSize:         queueSize,
		ScanConcurrency:       concurrency,
	}

	db, err := sqlite.New(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sc, err := scanner.New(scanner.Options{
		Detector: detector.DefaultOptions(),
		Interval: interval,
		Workers:  2,
	}, logger.NewDiscard())
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	log := logger.NewDiscard()
	videos := sqlite.NewVideoRepository(db)
	segments := sqlite.NewSegmentRepository(db)
	buffer := storage.NewBufferService(cfg, log, segments)
	manager := NewManager(sc, videos, segments, buffer, nil, cfg, log)
	t.Cleanup(manager.Stop)

	return &testEnv{cfg: cfg, manager: manager, videos: videos, buffer: buffer}
}

func waitForStatus(t *testing.T, env *testEnv, path, status string) *model.Video {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		v, err := env.videos.GetByPath(path)
		if err != nil {
			t.Fatalf("GetByPath failed: %v", err)
		}
		if v != nil && v.Status == status {
			return v
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Video %s never reached status %s", path, status)
	return nil
}

// ========================================
// ScanNow Tests
// ========================================

func TestManager_ScanNowPersistsResults(t *testing.T) {
	env := newTestEnv(t, 2, 10)
	path := writeVideo(t, t.TempDir(), "clip.avi", "..........#####..........")

	results, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path})
	if err != nil {
		t.Fatalf("ScanNow failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	res := results[0]
	if res.Error != "" {
		t.Fatalf("Unexpected scan error: %s", res.Error)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(res.Segments))
	}
	if res.Segments[0].ID == 0 {
		t.Error("Segment should have a database ID")
	}
	if res.Segments[0].SnapshotPath == "" {
		t.Error("Segment should have a snapshot name")
	}

	video := waitForStatus(t, env, path, model.StatusDone)
	if video.FrameCount != 25 || video.BlackFrames != 5 {
		t.Errorf("Unexpected stored video %+v", video)
	}

	// Migawki są zapisywane od razu, bez czekania na Flush
	if env.buffer.Pending() != 0 {
		t.Errorf("Expected empty snapshot buffer, got %d pending", env.buffer.Pending())
	}
	if _, err := os.Stat(filepath.Join(env.cfg.SnapshotDirectory, res.Segments[0].SnapshotPath)); err != nil {
		t.Errorf("Expected snapshot file: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(env.cfg.ReportDirectory, report.FileName(path)))
	if err != nil {
		t.Fatalf("Expected report file: %v", err)
	}
	var doc report.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	for _, seg := range doc.Segments {
		if seg.Snapshot == "" {
			t.Error("Report segment should name its snapshot")
			continue
		}
		if _, err := os.Stat(filepath.Join(env.cfg.SnapshotDirectory, seg.Snapshot)); err != nil {
			t.Errorf("Report names snapshot %s which was not written: %v", seg.Snapshot, err)
		}
	}
}

func TestManager_SnapshotAfterSampledSegment(t *testing.T) {
	env := newTestEnvWithInterval(t, 1, 10, 5)
	// Czarne klatki 5-14, próbkowane są 0, 5, 10, 15, ...
	path := writeVideo(t, t.TempDir(), "clip.avi", "....."+"##########"+"...............")

	results, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path})
	if err != nil {
		t.Fatalf("ScanNow failed: %v", err)
	}
	res := results[0]
	if len(res.Segments) != 1 {
		t.Fatalf("Expected 1 segment, got %d", len(res.Segments))
	}

	seg := res.Segments[0]
	if seg.EndFrame != 10 || math.Abs(seg.EndSeconds-1.5) > 1e-6 {
		t.Errorf("Expected segment ending at frame 10 / 1.5s, got %d / %v", seg.EndFrame, seg.EndSeconds)
	}
	if !strings.HasSuffix(seg.SnapshotPath, "_00h00m01s.jpg") {
		t.Errorf("Expected snapshot taken at 1.5s, got %q", seg.SnapshotPath)
	}

	img, err := imaging.Open(filepath.Join(env.cfg.SnapshotDirectory, seg.SnapshotPath))
	if err != nil {
		t.Fatalf("Failed to open snapshot: %v", err)
	}
	b := img.Bounds()
	r, _, _, _ := img.At(b.Dx()/2, b.Dy()/2).RGBA()
	if r>>8 < 100 {
		t.Errorf("Snapshot should show the first bright frame, got red %d", r>>8)
	}
}

func TestManager_RescanRemovesOldSnapshots(t *testing.T) {
	env := newTestEnv(t, 1, 10)
	path := writeVideo(t, t.TempDir(), "clip.avi", ".....#####.....")

	first, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path})
	if err != nil {
		t.Fatalf("First ScanNow failed: %v", err)
	}
	second, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path, Force: true})
	if err != nil {
		t.Fatalf("Forced ScanNow failed: %v", err)
	}

	oldName := first[0].Segments[0].SnapshotPath
	newName := second[0].Segments[0].SnapshotPath
	if oldName == newName {
		t.Fatalf("Rescan should produce a new snapshot name, got %q twice", oldName)
	}

	entries, err := os.ReadDir(env.cfg.SnapshotDirectory)
	if err != nil {
		t.Fatalf("Failed to read snapshot directory: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != newName {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only %s on disk, got %v", newName, names)
	}
}

func TestManager_ScanNowSkipsUnchanged(t *testing.T) {
	env := newTestEnv(t, 1, 10)
	path := writeVideo(t, t.TempDir(), "clip.avi", ".....#####.....")

	if _, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path}); err != nil {
		t.Fatalf("First ScanNow failed: %v", err)
	}

	results, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path})
	if err != nil {
		t.Fatalf("Second ScanNow failed: %v", err)
	}
	if !results[0].Skipped {
		t.Error("Unchanged video should be skipped")
	}
	if len(results[0].Segments) != 1 {
		t.Errorf("Skipped result should carry stored segments, got %d", len(results[0].Segments))
	}

	results, err = env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path, Force: true})
	if err != nil {
		t.Fatalf("Forced ScanNow failed: %v", err)
	}
	if results[0].Skipped {
		t.Error("Forced scan should not be skipped")
	}
}

func TestManager_ScanNowBatchContinuesAfterFailure(t *testing.T) {
	env := newTestEnv(t, 2, 10)
	dir := t.TempDir()
	writeVideo(t, dir, "a_good.avi", "....####....")
	if err := os.WriteFile(filepath.Join(dir, "b_broken.avi"), []byte("not a video"), 0644); err != nil {
		t.Fatalf("Failed to write broken file: %v", err)
	}

	var progress []dto.ScanProgress
	progressCh := make(chan dto.ScanProgress, 1024)
	env.manager.SetProgressFunc(func(p dto.ScanProgress) { progressCh <- p })

	results, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: dir})
	if err != nil {
		t.Fatalf("ScanNow failed: %v", err)
	}
	close(progressCh)
	for p := range progressCh {
		progress = append(progress, p)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Error != "" {
		t.Errorf("Good video failed: %s", results[0].Error)
	}
	if results[1].Error == "" {
		t.Error("Broken video should fail")
	}

	broken := waitForStatus(t, env, filepath.Join(dir, "b_broken.avi"), model.StatusFailed)
	if broken.Error == "" {
		t.Error("Failed video should store its error")
	}

	stages := map[string]bool{}
	for _, p := range progress {
		if p.RunID == "" {
			t.Errorf("Progress without run id: %+v", p)
		}
		stages[p.Stage] = true
	}
	for _, stage := range []string{dto.StageScanning, dto.StageDone, dto.StageFailed} {
		if !stages[stage] {
			t.Errorf("Missing %s progress", stage)
		}
	}
}

func TestManager_ScanNowUnsupportedInput(t *testing.T) {
	env := newTestEnv(t, 1, 10)
	path := filepath.Join(t.TempDir(), "notes.pdf")
	os.WriteFile(path, []byte("x"), 0644)

	if _, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path}); !errors.Is(err, source.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestManager_ScanNowCancelled(t *testing.T) {
	env := newTestEnv(t, 1, 10)
	path := writeVideo(t, t.TempDir(), "clip.avi", strings.Repeat(".", 50))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := env.manager.ScanNow(ctx, dto.ScanRequest{Path: path})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(results) != 1 || results[0].Error == "" {
		t.Errorf("Cancelled video should report an error, got %+v", results)
	}
}

// ========================================
// Queue Tests
// ========================================

func TestManager_SubmitProcessesInBackground(t *testing.T) {
	env := newTestEnv(t, 2, 10)
	path := writeVideo(t, t.TempDir(), "clip.avi", "....####....")

	runID, queued, err := env.manager.Submit(dto.ScanRequest{Path: path})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if runID == "" || queued != 1 {
		t.Errorf("Unexpected submit result: run %q, queued %d", runID, queued)
	}

	video := waitForStatus(t, env, path, model.StatusDone)
	if video.RunID != runID {
		t.Errorf("Expected run id %s, got %s", runID, video.RunID)
	}
}

func TestManager_SubmitQueueFull(t *testing.T) {
	env := newTestEnv(t, 0, 1)
	dir := t.TempDir()
	writeVideo(t, dir, "a.avi", "....")
	writeVideo(t, dir, "b.avi", "....")

	_, queued, err := env.manager.Submit(dto.ScanRequest{Path: dir})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if queued != 1 {
		t.Errorf("Expected 1 queued video, got %d", queued)
	}
	if env.manager.QueueLength() != 1 {
		t.Errorf("Expected queue length 1, got %d", env.manager.QueueLength())
	}
}

func TestManager_SubmitAfterStop(t *testing.T) {
	env := newTestEnv(t, 1, 10)
	path := filepath.Join(t.TempDir(), "clip.avi")
	os.WriteFile(path, []byte("x"), 0644)

	env.manager.Stop()
	env.manager.Stop()

	if _, _, err := env.manager.Submit(dto.ScanRequest{Path: path}); !errors.Is(err, ErrManagerStopped) {
		t.Errorf("Expected ErrManagerStopped, got %v", err)
	}
}

func TestManager_DeleteVideo(t *testing.T) {
	env := newTestEnv(t, 1, 10)
	path := writeVideo(t, t.TempDir(), "clip.avi", "....####....")

	results, err := env.manager.ScanNow(context.Background(), dto.ScanRequest{Path: path})
	if err != nil {
		t.Fatalf("ScanNow failed: %v", err)
	}

	snapshot := filepath.Join(env.cfg.SnapshotDirectory, results[0].Segments[0].SnapshotPath)
	if _, err := os.Stat(snapshot); err != nil {
		t.Fatalf("Expected snapshot file before delete: %v", err)
	}

	video := waitForStatus(t, env, path, model.StatusDone)
	deleted, err := env.manager.DeleteVideo(video.ID)
	if err != nil || !deleted {
		t.Fatalf("DeleteVideo = %v, %v", deleted, err)
	}

	if _, err := os.Stat(snapshot); !os.IsNotExist(err) {
		t.Error("Snapshot file should be removed")
	}

	deleted, err = env.manager.DeleteVideo(video.ID)
	if err != nil || deleted {
		t.Errorf("Deleting twice should report not found, got %v, %v", deleted, err)
	}
}
