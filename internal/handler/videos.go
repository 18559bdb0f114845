package handler

import (
	"net/http"
	"strconv"

	"blackframe/internal/dto"
	"blackframe/internal/logger"
	"blackframe/internal/model"
	"blackframe/internal/service"
)

// VideosHandler routes /api/videos by method: GET lists, DELETE removes.
func VideosHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	list := GetVideosHandler(manager, logger)
	remove := DeleteVideoHandler(manager, logger)
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			list(w, r)
		case http.MethodDelete:
			remove(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// GetVideosHandler returns a filtered, paginated list of scanned videos.
func GetVideosHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.VideoFilters{
			Status: q.Get("status"),
			RunID:  q.Get("run"),
			Limit:  limit,
			Offset: (page - 1) * limit,
		}

		videoRepo := manager.GetVideoRepository()
		videos, err := videoRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying videos from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := videoRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting videos: %v", err)
			totalCount = len(videos)
		}

		if videos == nil {
			videos = []model.Video{}
		}

		writeJSON(w, http.StatusOK, dto.VideosData{
			Videos:      videos,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}, logger)
	}
}

// GetSegmentsHandler returns one video with its black segments.
func GetSegmentsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		video, err := manager.GetVideoRepository().GetByID(id)
		if err != nil {
			logger.Error("Error loading video %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if video == nil {
			http.Error(w, "Video not found", http.StatusNotFound)
			return
		}

		segments, err := manager.GetSegmentRepository().GetByVideoID(id)
		if err != nil {
			logger.Error("Error loading segments of video %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if segments == nil {
			segments = []model.Segment{}
		}

		writeJSON(w, http.StatusOK, dto.SegmentsData{Video: *video, Segments: segments}, logger)
	}
}

// DeleteVideoHandler removes a video, its segments and snapshot files.
func DeleteVideoHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		deleted, err := manager.DeleteVideo(id)
		if err != nil {
			logger.Error("Failed to delete video %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !deleted {
			http.Error(w, "Video not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "id": id}, logger)
	}
}

// GetStatsHandler returns totals over all stored scans.
func GetStatsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.GetVideoRepository().GetStats()
		if err != nil {
			logger.Error("Error getting stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"videos":      stats.TotalVideos,
			"segments":    stats.TotalSegments,
			"blackTime":   stats.TotalBlackTime,
			"perStatus":   stats.PerStatus,
			"queueLength": manager.QueueLength(),
		}, logger)
	}
}

// parseID reads the "id" query parameter, answering 400 when it is invalid.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Valid id required", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
