// Package report renders scan results as JSON files and text tables.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"blackframe/internal/dto"
)

// Suffix is appended to the video base name to form the report file name.
const Suffix = ".blackframes.json"

// Document is the JSON layout of a report file.
type Document struct {
	Video         string        `json:"video"`
	FPS           float64       `json:"fps"`
	FrameCount    int           `json:"frameCount"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	Duration      string        `json:"duration"`
	SampledFrames int           `json:"sampledFrames"`
	BlackFrames   int           `json:"blackFrames"`
	BlackSeconds  float64       `json:"blackSeconds"`
	Segments      []SegmentInfo `json:"segments"`
	GeneratedAt   time.Time     `json:"generatedAt"`
}

// SegmentInfo is one black segment as written to a report.
type SegmentInfo struct {
	StartFrame   int     `json:"startFrame"`
	EndFrame     int     `json:"endFrame"`
	Start        string  `json:"start"`
	End          string  `json:"end"`
	StartSeconds float64 `json:"startSeconds"`
	EndSeconds   float64 `json:"endSeconds"`
	Duration     float64 `json:"duration"`
	Snapshot     string  `json:"snapshot,omitempty"`
}

// FormatTimestamp formats seconds as HH:MM:SS.mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// FileName returns the report file name for a video path.
func FileName(videoPath string) string {
	base := filepath.Base(videoPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + Suffix
}

// NewDocument builds the report layout for a scan result.
func NewDocument(result *dto.ScanResult) Document {
	doc := Document{
		Video:         result.Path,
		FPS:           result.FPS,
		FrameCount:    result.FrameCount,
		Width:         result.Width,
		Height:        result.Height,
		Duration:      FormatTimestamp(result.Duration),
		SampledFrames: result.SampledFrames,
		BlackFrames:   result.BlackFrames,
		BlackSeconds:  result.BlackSeconds(),
		Segments:      make([]SegmentInfo, 0, len(result.Segments)),
		GeneratedAt:   time.Now().UTC(),
	}
	for _, seg := range result.Segments {
		doc.Segments = append(doc.Segments, SegmentInfo{
			StartFrame:   seg.StartFrame,
			EndFrame:     seg.EndFrame,
			Start:        FormatTimestamp(seg.StartSeconds),
			End:          FormatTimestamp(seg.EndSeconds),
			StartSeconds: seg.StartSeconds,
			EndSeconds:   seg.EndSeconds,
			Duration:     seg.Duration(),
			Snapshot:     seg.SnapshotPath,
		})
	}
	return doc
}

// WriteJSON writes the report of result into dir and returns its path.
// The file is written to a temporary name first and renamed into place, so
// readers never see a partial report.
func WriteJSON(dir string, result *dto.ScanResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := json.MarshalIndent(NewDocument(result), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	target := filepath.Join(dir, FileName(result.Path))
	tmp, err := os.CreateTemp(dir, ".report-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp report: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move report into place: %w", err)
	}
	return target, nil
}

// WriteText prints a human-readable summary and segment table of result.
func WriteText(w io.Writer, result *dto.ScanResult) error {
	fmt.Fprintf(w, "%s\n", result.Path)
	switch {
	case result.Error != "":
		fmt.Fprintf(w, "  error: %s\n", result.Error)
		return nil
	case result.Skipped:
		fmt.Fprintf(w, "  skipped (already scanned)\n")
		return nil
	}

	fmt.Fprintf(w, "  %dx%d, %.3f fps, %d frames, duration %s\n",
		result.Width, result.Height, result.FPS, result.FrameCount, FormatTimestamp(result.Duration))
	fmt.Fprintf(w, "  %d/%d sampled frames black, %d segments, %.3fs black\n",
		result.BlackFrames, result.SampledFrames, len(result.Segments), result.BlackSeconds())

	if len(result.Segments) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tSTART\tEND\tDURATION\tFRAMES")
	for i, seg := range result.Segments {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%.3fs\t%d-%d\n",
			i+1, FormatTimestamp(seg.StartSeconds), FormatTimestamp(seg.EndSeconds),
			seg.Duration(), seg.StartFrame, seg.EndFrame)
	}
	return tw.Flush()
}
