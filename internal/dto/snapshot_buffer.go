package dto

import "image"

// BufferedSnapshot holds a grabbed frame before it is flushed to disk.
type BufferedSnapshot struct {
	VideoID   int64
	SegmentID int64
	Video     string
	Timestamp float64
	Filename  string
	Image     image.Image
}
