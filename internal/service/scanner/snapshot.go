package scanner

import (
	"fmt"
	"image"

	"blackframe/internal/model"

	"gocv.io/x/gocv"
)

// SnapshotFrame picks the frame that best represents a segment: the first
// sampled frame after the black run, or the last frame of the video when the
// run reaches the end. step is the sampling interval the segment was built
// with; frames between two samples were never analyzed.
func SnapshotFrame(seg model.Segment, step, frameCount int) int {
	if step < 1 {
		step = 1
	}
	next := seg.EndFrame + step
	if frameCount > 0 && next >= frameCount {
		if last := frameCount - 1; last > seg.EndFrame {
			return last
		}
		return seg.EndFrame
	}
	return next
}

// GrabFrames seeks the video at path and returns the requested frames as
// images, keyed by frame index. Frames that cannot be read are left out.
func GrabFrames(path string, indices []int) (map[int]image.Image, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpenVideo, path, err)
	}
	defer capture.Close()

	if !capture.IsOpened() {
		return nil, fmt.Errorf("%w %s", ErrOpenVideo, path)
	}

	frame := gocv.NewMat()
	defer frame.Close()

	images := make(map[int]image.Image, len(indices))
	for _, idx := range indices {
		if _, ok := images[idx]; ok {
			continue
		}
		capture.Set(gocv.VideoCapturePosFrames, float64(idx))
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			continue
		}
		img, err := frame.ToImage()
		if err != nil {
			return images, fmt.Errorf("failed to convert frame %d: %w", idx, err)
		}
		images[idx] = img
	}
	return images, nil
}
