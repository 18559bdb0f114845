// Package detector decides whether a single video frame is black.
package detector

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const (
	DefaultPixelThreshold = 32   // Piksel o jasności <= 32 traktujemy jako ciemny
	DefaultBlackRatio     = 0.98 // Klatka jest czarna, gdy >= 98% pikseli jest ciemnych
	DefaultAnalysisWidth  = 320
)

// ErrEmptyFrame is returned when an empty Mat is passed to Analyze.
var ErrEmptyFrame = errors.New("frame is empty")

// Options controls how dark a frame must be to count as black.
type Options struct {
	PixelThreshold int     // 0-255, inclusive
	BlackRatio     float64 // (0, 1]
	AnalysisWidth  int     // frames wider than this are downscaled first; 0 keeps native size
}

// DefaultOptions returns the stock detection settings.
func DefaultOptions() Options {
	return Options{
		PixelThreshold: DefaultPixelThreshold,
		BlackRatio:     DefaultBlackRatio,
		AnalysisWidth:  DefaultAnalysisWidth,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.PixelThreshold < 0 || o.PixelThreshold > 255 {
		return fmt.Errorf("pixel threshold must be within 0-255, got %d", o.PixelThreshold)
	}
	if o.BlackRatio <= 0 || o.BlackRatio > 1 {
		return fmt.Errorf("black ratio must be within (0, 1], got %g", o.BlackRatio)
	}
	if o.AnalysisWidth < 0 {
		return fmt.Errorf("analysis width cannot be negative, got %d", o.AnalysisWidth)
	}
	return nil
}

// FrameStats describes the darkness of one frame.
type FrameStats struct {
	DarkPixels  int
	TotalPixels int
	DarkRatio   float64
	MeanLuma    float64
	Black       bool
}

// Detector analyzes frames for blackness. It keeps scratch Mats between calls,
// so a Detector must not be shared between goroutines.
type Detector struct {
	opts   Options
	scaled gocv.Mat
	gray   gocv.Mat
	mask   gocv.Mat
}

// New creates a Detector with the given options.
func New(opts Options) (*Detector, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Detector{
		opts:   opts,
		scaled: gocv.NewMat(),
		gray:   gocv.NewMat(),
		mask:   gocv.NewMat(),
	}, nil
}

// Options returns the settings the Detector was created with.
func (d *Detector) Options() Options {
	return d.opts
}

// Analyze computes darkness statistics for a BGR, BGRA or grayscale frame.
func (d *Detector) Analyze(frame gocv.Mat) (FrameStats, error) {
	if frame.Empty() {
		return FrameStats{}, ErrEmptyFrame
	}

	src := frame
	if d.opts.AnalysisWidth > 0 && frame.Cols() > d.opts.AnalysisWidth {
		height := frame.Rows() * d.opts.AnalysisWidth / frame.Cols()
		if height < 1 {
			height = 1
		}
		gocv.Resize(frame, &d.scaled, image.Pt(d.opts.AnalysisWidth, height), 0, 0, gocv.InterpolationArea)
		src = d.scaled
	}

	switch src.Channels() {
	case 1:
		src.CopyTo(&d.gray)
	case 3:
		if err := gocv.CvtColor(src, &d.gray, gocv.ColorBGRToGray); err != nil {
			return FrameStats{}, fmt.Errorf("failed to convert frame to grayscale: %w", err)
		}
	case 4:
		if err := gocv.CvtColor(src, &d.gray, gocv.ColorBGRAToGray); err != nil {
			return FrameStats{}, fmt.Errorf("failed to convert frame to grayscale: %w", err)
		}
	default:
		return FrameStats{}, fmt.Errorf("unsupported channel count: %d", src.Channels())
	}

	// BinaryInv: piksele <= progu dostają 255, reszta 0
	gocv.Threshold(d.gray, &d.mask, float32(d.opts.PixelThreshold), 255, gocv.ThresholdBinaryInv)

	total := d.gray.Rows() * d.gray.Cols()
	if total == 0 {
		return FrameStats{}, ErrEmptyFrame
	}
	dark := gocv.CountNonZero(d.mask)
	ratio := float64(dark) / float64(total)

	return FrameStats{
		DarkPixels:  dark,
		TotalPixels: total,
		DarkRatio:   ratio,
		MeanLuma:    d.gray.Mean().Val1,
		Black:       ratio >= d.opts.BlackRatio,
	}, nil
}

// IsBlack reports whether the frame is black.
func (d *Detector) IsBlack(frame gocv.Mat) (bool, error) {
	stats, err := d.Analyze(frame)
	if err != nil {
		return false, err
	}
	return stats.Black, nil
}

// Close releases the scratch Mats.
func (d *Detector) Close() error {
	d.scaled.Close()
	d.gray.Close()
	d.mask.Close()
	return nil
}
