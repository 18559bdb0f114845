// VideosData is a paginated response payload for the scanned videos list.
package dto

import "blackframe/internal/model"

type VideosData struct {
	Videos      []model.Video `json:"videos"`
	Length      int           `json:"length"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Limit       int           `json:"pageSize"`
}

// SegmentsData lists the black segments of one video.
type SegmentsData struct {
	Video    model.Video     `json:"video"`
	Segments []model.Segment `json:"segments"`
}
