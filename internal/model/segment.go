package model

// Segment represents a run of consecutive black frames inside a video.
type Segment struct {
	ID           int64   `json:"id"`
	VideoID      int64   `json:"video_id"`
	StartFrame   int     `json:"start_frame"`
	EndFrame     int     `json:"end_frame"`
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
	MeanLuma     float64 `json:"mean_luma"`
	SnapshotPath string  `json:"snapshot_path,omitempty"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.EndSeconds - s.StartSeconds
}
