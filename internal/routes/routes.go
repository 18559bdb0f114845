package routes

import (
	"net/http"

	"blackframe/internal/config"
	"blackframe/internal/handler"
	"blackframe/internal/logger"
	"blackframe/internal/middleware"
	"blackframe/internal/service"
)

// SetupRoutes registers the API, log and auth endpoints and wraps the mux
// with the authentication middleware.
func SetupRoutes(manager *service.Manager, cfg *config.Config, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("/api/scans", handler.CreateScanHandler(manager, log))
	mux.HandleFunc("/api/videos", handler.VideosHandler(manager, log))
	mux.HandleFunc("/api/videos/segments", handler.GetSegmentsHandler(manager, log))
	mux.HandleFunc("/api/stats", handler.GetStatsHandler(manager, log))
	mux.HandleFunc("/api/snapshots/view", handler.ViewSnapshotHandler(cfg))
	if hub := manager.GetHubService(); hub != nil {
		mux.HandleFunc("/api/progress", handler.ProgressWebsocketHandler(hub, log))
	}

	// Log endpoints
	for name, file := range map[string]string{
		"info":    logger.InfoFile,
		"warning": logger.WarningFile,
		"error":   logger.ErrorFile,
	} {
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(cfg, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(log, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(cfg, log))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler)

	return middleware.AuthMiddleware(cfg.Password)(mux)
}
