package scanner

import (
	"sort"

	"blackframe/internal/dto"
	"blackframe/internal/model"
)

// segmentBuilder accumulates one run of consecutive black samples.
type segmentBuilder struct {
	first    dto.FrameResult
	last     dto.FrameResult
	lumaSum  float64
	samples  int
	inRun    bool
	segments []model.Segment
}

// BuildSegments groups consecutive black samples into segments.
//
// Samples are consecutive when their frame indices differ by exactly step; a
// missing sample breaks the run. Each sample covers step/fps seconds, so a
// segment ends one coverage after its last black sample, clamped to duration
// when it is known. Segments shorter than minDuration are dropped.
func BuildSegments(results []dto.FrameResult, step int, fps, duration, minDuration float64) []model.Segment {
	if step < 1 {
		step = 1
	}

	sorted := make([]dto.FrameResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	var coverage float64
	if fps > 0 {
		coverage = float64(step) / fps
	}

	b := &segmentBuilder{}
	for _, r := range sorted {
		if b.inRun && (!r.Black || r.Index-b.last.Index != step) {
			b.close(coverage, duration, minDuration)
		}
		if !r.Black {
			continue
		}
		if !b.inRun {
			b.inRun = true
			b.first = r
			b.lumaSum = 0
			b.samples = 0
		}
		b.last = r
		b.lumaSum += r.MeanLuma
		b.samples++
	}
	if b.inRun {
		b.close(coverage, duration, minDuration)
	}

	return b.segments
}

func (b *segmentBuilder) close(coverage, duration, minDuration float64) {
	b.inRun = false

	end := b.last.Timestamp + coverage
	if duration > 0 && end > duration {
		end = duration
	}
	if end < b.first.Timestamp {
		end = b.first.Timestamp
	}

	seg := model.Segment{
		StartFrame:   b.first.Index,
		EndFrame:     b.last.Index,
		StartSeconds: b.first.Timestamp,
		EndSeconds:   end,
		MeanLuma:     b.lumaSum / float64(b.samples),
	}
	if seg.Duration() < minDuration {
		return
	}
	b.segments = append(b.segments, seg)
}

// CountBlack returns the number of black samples.
func CountBlack(results []dto.FrameResult) int {
	n := 0
	for _, r := range results {
		if r.Black {
			n++
		}
	}
	return n
}
