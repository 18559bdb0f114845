// Package scanner reads videos frame by frame and finds runs of black frames.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"blackframe/internal/dto"
	"blackframe/internal/logger"
	"blackframe/internal/service/detector"

	"gocv.io/x/gocv"
)

// progressEvery is how many analyzed samples pass between progress callbacks.
const progressEvery = 25

var (
	ErrOpenVideo = errors.New("cannot open video")
	ErrNoFrames  = errors.New("video has no readable frames")
)

// ProgressFunc receives progress updates while a video is scanned.
type ProgressFunc func(dto.ScanProgress)

// Options configures a Scanner.
type Options struct {
	Detector         detector.Options
	Interval         int     // Analizuj co N-tą klatkę
	Workers          int     // Liczba goroutine analizujących klatki
	MinBlackDuration float64 // Sekundy
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if err := o.Detector.Validate(); err != nil {
		return err
	}
	if o.Interval < 1 {
		return fmt.Errorf("interval must be at least 1, got %d", o.Interval)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	if o.MinBlackDuration < 0 {
		return fmt.Errorf("minimum black duration cannot be negative, got %g", o.MinBlackDuration)
	}
	return nil
}

// Scanner finds black segments in video files. A single Scanner may run
// several scans at once; every scan gets its own reader and workers.
type Scanner struct {
	opts   Options
	logger *logger.Logger
}

// frameTask is one sampled frame handed from the reader to a worker.
// The worker owns the Mat and must close it.
type frameTask struct {
	index     int
	timestamp float64
	frame     gocv.Mat
}

type workerResult struct {
	result dto.FrameResult
	err    error
}

type readSummary struct {
	frames int
	err    error
}

// New creates a Scanner.
func New(opts Options, logger *logger.Logger) (*Scanner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{opts: opts, logger: logger}, nil
}

// Options returns the scanner settings.
func (s *Scanner) Options() Options {
	return s.opts
}

// Scan reads the video at path and returns its black segments.
// progress may be nil.
func (s *Scanner) Scan(ctx context.Context, path string, progress ProgressFunc) (*dto.ScanResult, error) {
	started := time.Now()

	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrOpenVideo, path, err)
	}
	defer capture.Close()

	if !capture.IsOpened() {
		return nil, fmt.Errorf("%w %s", ErrOpenVideo, path)
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	result := &dto.ScanResult{
		Path:       path,
		FPS:        fps,
		FrameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
		Width:      int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}
	if fps > 0 && result.FrameCount > 0 {
		result.Duration = float64(result.FrameCount) / fps
	}

	s.logger.Debug("Opened %s: %dx%d, %.3f fps, %d frames", path, result.Width, result.Height, fps, result.FrameCount)

	// Każdy worker ma własny detektor (scratch Mats nie są współdzielone)
	detectors := make([]*detector.Detector, 0, s.opts.Workers)
	defer func() {
		for _, d := range detectors {
			d.Close()
		}
	}()
	for i := 0; i < s.opts.Workers; i++ {
		d, err := detector.New(s.opts.Detector)
		if err != nil {
			return nil, err
		}
		detectors = append(detectors, d)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan frameTask, s.opts.Workers*2)
	results := make(chan workerResult, s.opts.Workers*2)
	readDone := make(chan readSummary, 1)

	var wg sync.WaitGroup
	for i, d := range detectors {
		wg.Add(1)
		go s.analysisWorker(i, d, tasks, results, &wg)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	go func() {
		frames, err := s.readFrames(ctx, capture, fps, tasks)
		readDone <- readSummary{frames: frames, err: err}
	}()

	frames := make([]dto.FrameResult, 0, 1024)
	failed := 0
	maxIndex := -1
	black := 0
	for res := range results {
		if res.err != nil {
			failed++
			s.logger.Warning("Frame %d of %s could not be analyzed: %v", res.result.Index, path, res.err)
			continue
		}
		frames = append(frames, res.result)
		if res.result.Index > maxIndex {
			maxIndex = res.result.Index
		}
		if res.result.Black {
			black++
		}

		if progress != nil && len(frames)%progressEvery == 0 {
			progress(dto.ScanProgress{
				Path:          path,
				Stage:         dto.StageScanning,
				FramesRead:    maxIndex + 1,
				FrameCount:    result.FrameCount,
				SampledFrames: len(frames),
				BlackFrames:   black,
				Percent:       percent(maxIndex+1, result.FrameCount),
			})
		}
	}

	summary := <-readDone
	if summary.err != nil {
		return nil, summary.err
	}
	if summary.frames == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFrames, path)
	}
	if failed > 0 {
		s.logger.Warning("%d sampled frames of %s were skipped", failed, path)
	}

	// Metadane kontenera bywają niedokładne, więc ufamy faktycznie przeczytanym klatkom
	result.FramesRead = summary.frames
	if result.FrameCount <= 0 || result.FrameCount != summary.frames {
		result.FrameCount = summary.frames
		if fps > 0 {
			result.Duration = float64(summary.frames) / fps
		}
	}
	if result.Duration == 0 && len(frames) > 0 {
		result.Duration = lastTimestamp(frames)
	}

	result.SampledFrames = len(frames)
	result.BlackFrames = black
	result.Segments = BuildSegments(frames, s.opts.Interval, fps, result.Duration, s.opts.MinBlackDuration)
	result.Elapsed = time.Since(started)

	if progress != nil {
		progress(dto.ScanProgress{
			Path:          path,
			Stage:         dto.StageScanning,
			FramesRead:    summary.frames,
			FrameCount:    result.FrameCount,
			SampledFrames: len(frames),
			BlackFrames:   black,
			Percent:       100,
		})
	}

	s.logger.Info("Scanned %s: %d frames, %d black samples, %d segments in %s",
		path, summary.frames, black, len(result.Segments), result.Elapsed.Round(time.Millisecond))

	return result, nil
}

// readFrames reads the capture sequentially and hands every Interval-th frame
// to the workers. It closes tasks when it returns.
func (s *Scanner) readFrames(ctx context.Context, capture *gocv.VideoCapture, fps float64, tasks chan<- frameTask) (int, error) {
	defer close(tasks)

	frame := gocv.NewMat()
	defer frame.Close()

	index := 0
	for {
		select {
		case <-ctx.Done():
			return index, ctx.Err()
		default:
		}

		if ok := capture.Read(&frame); !ok || frame.Empty() {
			return index, nil
		}

		if index%s.opts.Interval == 0 {
			task := frameTask{
				index:     index,
				timestamp: frameTimestamp(index, fps, capture),
				frame:     frame.Clone(),
			}

			select {
			case tasks <- task:
			case <-ctx.Done():
				task.frame.Close()
				return index + 1, ctx.Err()
			}
		}
		index++
	}
}

// analysisWorker analyzes frames until the task channel is closed.
func (s *Scanner) analysisWorker(workerID int, d *detector.Detector, tasks <-chan frameTask, results chan<- workerResult, wg *sync.WaitGroup) {
	defer wg.Done()

	analyzed := 0
	for task := range tasks {
		stats, err := d.Analyze(task.frame)
		task.frame.Close()

		results <- workerResult{
			result: dto.FrameResult{
				Index:     task.index,
				Timestamp: task.timestamp,
				DarkRatio: stats.DarkRatio,
				MeanLuma:  stats.MeanLuma,
				Black:     stats.Black,
			},
			err: err,
		}
		analyzed++
	}

	s.logger.Debug("🔧 Analysis worker %d stopped after %d frames", workerID, analyzed)
}

// frameTimestamp returns the presentation time of a frame in seconds.
func frameTimestamp(index int, fps float64, capture *gocv.VideoCapture) float64 {
	if fps > 0 {
		return float64(index) / fps
	}
	return capture.Get(gocv.VideoCapturePosMsec) / 1000
}

func lastTimestamp(frames []dto.FrameResult) float64 {
	var last float64
	for _, f := range frames {
		if f.Timestamp > last {
			last = f.Timestamp
		}
	}
	return last
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p > 100 {
		return 100
	}
	return p
}
