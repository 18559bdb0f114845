package dto

// Progress stages reported while a video is processed.
const (
	StageQueued   = "queued"
	StageScanning = "scanning"
	StageDone     = "done"
	StageFailed   = "failed"
	StageSkipped  = "skipped"
)

// ScanProgress is broadcast to progress viewers while videos are scanned.
type ScanProgress struct {
	RunID         string  `json:"runId,omitempty"`
	Path          string  `json:"path"`
	Stage         string  `json:"stage"`
	FramesRead    int     `json:"framesRead"`
	FrameCount    int     `json:"frameCount"`
	SampledFrames int     `json:"sampledFrames"`
	BlackFrames   int     `json:"blackFrames"`
	Percent       float64 `json:"percent"`
	Error         string  `json:"error,omitempty"`
}
