package model

import "time"

// Video scan statuses.
const (
	StatusPending  = "pending"
	StatusScanning = "scanning"
	StatusDone     = "done"
	StatusFailed   = "failed"
)

// Video represents a scanned video record.
type Video struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	Path          string    `json:"path"`
	Filename      string    `json:"filename"`
	FileSize      int64     `json:"filesize"`
	ModTime       time.Time `json:"mod_time"`
	FPS           float64   `json:"fps"`
	FrameCount    int       `json:"frame_count"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Duration      float64   `json:"duration"`
	SampledFrames int       `json:"sampled_frames"`
	BlackFrames   int       `json:"black_frames"`
	Status        string    `json:"status"`
	Error         string    `json:"error,omitempty"`
	ScannedAt     time.Time `json:"scanned_at"`
}

// VideoStats contains statistics about stored scans.
type VideoStats struct {
	TotalVideos    int            `json:"total_videos"`
	TotalSegments  int            `json:"total_segments"`
	TotalBlackTime float64        `json:"total_black_seconds"`
	PerStatus      map[string]int `json:"per_status"`
}
