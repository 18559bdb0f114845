package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"blackframe/internal/config"
	"blackframe/internal/dto"
	"blackframe/internal/logger"
	"blackframe/internal/model"
	"blackframe/internal/repository/sqlite"
	"blackframe/internal/service"
	"blackframe/internal/service/detector"
	"blackframe/internal/service/scanner"
	"blackframe/internal/service/storage"
)

// ========================================
// Helpers
// ========================================

type testEnv struct {
	cfg      *config.Config
	manager  *service.Manager
	videos   *sqlite.VideoRepository
	segments *sqlite.SegmentRepository
	log      *logger.Logger
}

// newTestEnv builds a manager without scan workers, so queued videos stay
// queued and nothing is decoded.
func newTestEnv(t *testing.T, queueSize int) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		Password:              "secret",
		SnapshotDirectory:     filepath.Join(root, "snapshots"),
		LogDirectory:          filepath.Join(root, "logs"),
		SnapshotBufferLimit:   10,
		SnapshotFlushInterval: 1,
		ScanQueueSize:         queueSize,
		ScanConcurrency:       0,
	}

	db, err := sqlite.New(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log, err := logger.NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	sc, err := scanner.New(scanner.Options{Detector: detector.DefaultOptions(), Interval: 1, Workers: 1}, log)
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	videos := sqlite.NewVideoRepository(db)
	segments := sqlite.NewSegmentRepository(db)
	buffer := storage.NewBufferService(cfg, log, segments)
	manager := service.NewManager(sc, videos, segments, buffer, nil, cfg, log)
	t.Cleanup(manager.Stop)

	return &testEnv{cfg: cfg, manager: manager, videos: videos, segments: segments, log: log}
}

func (e *testEnv) addVideo(t *testing.T, path, status string, segments ...model.Segment) int64 {
	t.Helper()
	id, err := e.videos.Upsert(&model.Video{
		RunID:    "run-1",
		Path:     path,
		Filename: filepath.Base(path),
		Status:   status,
		ModTime:  time.Now(),
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if len(segments) > 0 {
		if err := e.segments.InsertBatch(id, segments); err != nil {
			t.Fatalf("InsertBatch failed: %v", err)
		}
	}
	return id
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// ========================================
// Scan Tests
// ========================================

func TestCreateScanHandler(t *testing.T) {
	env := newTestEnv(t, 10)
	dir := t.TempDir()
	touch(t, dir, "a.mp4")
	touch(t, dir, "b.mkv")
	touch(t, dir, "notes.pdf")

	tests := []struct {
		name     string
		method   string
		body     string
		expected int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"empty path", http.MethodPost, `{"path": "  "}`, http.StatusBadRequest},
		{"missing path", http.MethodPost, `{"path": "/nope/missing.mp4"}`, http.StatusBadRequest},
		{"unsupported", http.MethodPost, `{"path": "` + filepath.Join(dir, "notes.pdf") + `"}`, http.StatusBadRequest},
		{"accepted", http.MethodPost, `{"path": "` + dir + `", "force": true}`, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/scans", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			CreateScanHandler(env.manager, env.log)(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("Expected status %d, got %d (%s)", tt.expected, rec.Code, rec.Body.String())
			}
		})
	}

	if env.manager.QueueLength() != 2 {
		t.Errorf("Expected 2 queued videos, got %d", env.manager.QueueLength())
	}
}

func TestCreateScanHandler_QueueFull(t *testing.T) {
	env := newTestEnv(t, 1)
	dir := t.TempDir()
	touch(t, dir, "a.mp4")
	touch(t, dir, "b.mp4")

	body, _ := json.Marshal(dto.ScanRequest{Path: dir})
	rec := httptest.NewRecorder()
	CreateScanHandler(env.manager, env.log)(rec, httptest.NewRequest(http.MethodPost, "/api/scans", bytes.NewReader(body)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", rec.Code)
	}
	var accepted dto.ScanAccepted
	json.NewDecoder(rec.Body).Decode(&accepted)
	if accepted.Queued != 1 || accepted.RunID == "" {
		t.Errorf("Unexpected body %+v", accepted)
	}
}

// ========================================
// Video Tests
// ========================================

func TestVideosHandler_List(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addVideo(t, "/v/a.mp4", model.StatusDone)
	env.addVideo(t, "/v/b.mp4", model.StatusFailed)
	env.addVideo(t, "/v/c.mp4", model.StatusDone)

	rec := httptest.NewRecorder()
	VideosHandler(env.manager, env.log)(rec, httptest.NewRequest(http.MethodGet, "/api/videos?status=done&limit=1&page=2", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var data dto.VideosData
	if err := json.NewDecoder(rec.Body).Decode(&data); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if data.Length != 2 || data.TotalPages != 2 || data.CurrentPage != 2 || len(data.Videos) != 1 {
		t.Errorf("Unexpected page %+v", data)
	}
}

func TestVideosHandler_EmptyListIsArray(t *testing.T) {
	env := newTestEnv(t, 10)

	rec := httptest.NewRecorder()
	VideosHandler(env.manager, env.log)(rec, httptest.NewRequest(http.MethodGet, "/api/videos", nil))

	if !strings.Contains(rec.Body.String(), `"videos":[]`) {
		t.Errorf("Expected empty array, got %s", rec.Body.String())
	}
}

func TestVideosHandler_Delete(t *testing.T) {
	env := newTestEnv(t, 10)
	id := env.addVideo(t, "/v/a.mp4", model.StatusDone, model.Segment{StartFrame: 1, EndFrame: 2, EndSeconds: 1})

	rec := httptest.NewRecorder()
	VideosHandler(env.manager, env.log)(rec, httptest.NewRequest(http.MethodDelete, "/api/videos?id="+itoa(id), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if v, _ := env.videos.GetByID(id); v != nil {
		t.Error("Video should be deleted")
	}

	rec = httptest.NewRecorder()
	VideosHandler(env.manager, env.log)(rec, httptest.NewRequest(http.MethodDelete, "/api/videos?id="+itoa(id), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	VideosHandler(env.manager, env.log)(rec, httptest.NewRequest(http.MethodPut, "/api/videos", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestGetSegmentsHandler(t *testing.T) {
	env := newTestEnv(t, 10)
	id := env.addVideo(t, "/v/a.mp4", model.StatusDone,
		model.Segment{StartFrame: 0, EndFrame: 9, EndSeconds: 1},
		model.Segment{StartFrame: 50, EndFrame: 59, StartSeconds: 5, EndSeconds: 6},
	)

	tests := []struct {
		query    string
		expected int
	}{
		{"", http.StatusBadRequest},
		{"?id=abc", http.StatusBadRequest},
		{"?id=999", http.StatusNotFound},
		{"?id=" + itoa(id), http.StatusOK},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		GetSegmentsHandler(env.manager, env.log)(rec, httptest.NewRequest(http.MethodGet, "/api/videos/segments"+tt.query, nil))
		if rec.Code != tt.expected {
			t.Errorf("%q: expected %d, got %d", tt.query, tt.expected, rec.Code)
			continue
		}
		if rec.Code == http.StatusOK {
			var data dto.SegmentsData
			json.NewDecoder(rec.Body).Decode(&data)
			if data.Video.ID != id || len(data.Segments) != 2 {
				t.Errorf("Unexpected segments payload %+v", data)
			}
		}
	}
}

func TestGetStatsHandler(t *testing.T) {
	env := newTestEnv(t, 10)
	env.addVideo(t, "/v/a.mp4", model.StatusDone, model.Segment{EndSeconds: 1.5})
	env.addVideo(t, "/v/b.mp4", model.StatusFailed)

	rec := httptest.NewRecorder()
	GetStatsHandler(env.manager, env.log)(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	var stats map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if stats["videos"].(float64) != 2 || stats["segments"].(float64) != 1 {
		t.Errorf("Unexpected stats %v", stats)
	}
	if stats["blackTime"].(float64) != 1.5 {
		t.Errorf("Expected 1.5 black seconds, got %v", stats["blackTime"])
	}
}

// ========================================
// Snapshot, Log and Login Tests
// ========================================

func TestViewSnapshotHandler(t *testing.T) {
	env := newTestEnv(t, 10)
	os.MkdirAll(env.cfg.SnapshotDirectory, 0755)
	os.WriteFile(filepath.Join(env.cfg.SnapshotDirectory, "a_1_00h00m01s.jpg"), []byte("jpeg"), 0644)

	tests := []struct {
		file     string
		expected int
	}{
		{"", http.StatusBadRequest},
		{"../test.db", http.StatusBadRequest},
		{"sub/a.jpg", http.StatusBadRequest},
		{"..", http.StatusBadRequest},
		{"missing.jpg", http.StatusNotFound},
		{"a_1_00h00m01s.jpg", http.StatusOK},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/snapshots/view?file="+url.QueryEscape(tt.file), nil)
		ViewSnapshotHandler(env.cfg)(rec, req)
		if rec.Code != tt.expected {
			t.Errorf("%q: expected %d, got %d", tt.file, tt.expected, rec.Code)
		}
	}
}

func TestLogsHandlers(t *testing.T) {
	env := newTestEnv(t, 10)
	env.log.Error("disk on fire")

	rec := httptest.NewRecorder()
	ShowLogsHandler(env.cfg, logger.ErrorFile)(rec, httptest.NewRequest(http.MethodGet, "/logs/error", nil))
	if !strings.Contains(rec.Body.String(), "disk on fire") {
		t.Errorf("Expected log entry, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	ClearLogsHandler(env.log, logger.ErrorFile)(rec, httptest.NewRequest(http.MethodPost, "/logs/error/clear", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}

	data, _ := os.ReadFile(filepath.Join(env.cfg.LogDirectory, logger.ErrorFile))
	if len(data) != 0 {
		t.Errorf("Expected cleared log, got %q", data)
	}

	rec = httptest.NewRecorder()
	ShowLogsHandler(env.cfg, "missing.log")(rec, httptest.NewRequest(http.MethodGet, "/logs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestLoginHandler(t *testing.T) {
	env := newTestEnv(t, 10)

	form := url.Values{"password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	LoginHandler(env.cfg, env.log)(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}

	form = url.Values{"password": {"secret"}}
	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	LoginHandler(env.cfg, env.log)(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value == "" || cookies[0].Value == "secret" {
		t.Errorf("Unexpected cookies %v", cookies)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
