package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"blackframe/internal/config"
)

// ViewSnapshotHandler serves a single snapshot specified via the "file" query
// parameter. Only plain file names inside the snapshot directory are served.
func ViewSnapshotHandler(config *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file := r.URL.Query().Get("file")
		if file == "" {
			http.Error(w, "File parameter is required", http.StatusBadRequest)
			return
		}
		if file != filepath.Base(file) || strings.Contains(file, "..") || strings.ContainsAny(file, `/\`) {
			http.Error(w, "Invalid file name", http.StatusBadRequest)
			return
		}

		filePath := filepath.Join(config.SnapshotDirectory, file)
		if _, err := os.Stat(filePath); err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "max-age=3600")
		http.ServeFile(w, r, filePath)
	}
}
