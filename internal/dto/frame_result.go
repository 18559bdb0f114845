package dto

// FrameResult holds the analysis of one sampled frame.
type FrameResult struct {
	Index     int
	Timestamp float64 // Sekundy od początku filmu
	DarkRatio float64
	MeanLuma  float64
	Black     bool
}
