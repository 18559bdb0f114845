package dto

import (
	"time"

	"blackframe/internal/model"
)

// ScanResult is the outcome of scanning one video.
type ScanResult struct {
	Path          string          `json:"path"`
	FPS           float64         `json:"fps"`
	FrameCount    int             `json:"frameCount"`
	FramesRead    int             `json:"framesRead"`
	Width         int             `json:"width"`
	Height        int             `json:"height"`
	Duration      float64         `json:"duration"`
	SampledFrames int             `json:"sampledFrames"`
	BlackFrames   int             `json:"blackFrames"`
	Segments      []model.Segment `json:"segments"`
	Elapsed       time.Duration   `json:"elapsed"`
	Skipped       bool            `json:"skipped,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// BlackSeconds sums the duration of all black segments.
func (r *ScanResult) BlackSeconds() float64 {
	var total float64
	for _, s := range r.Segments {
		total += s.Duration()
	}
	return total
}
