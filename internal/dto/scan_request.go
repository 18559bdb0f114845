package dto

// ScanRequest asks for a file, directory or list file to be scanned.
type ScanRequest struct {
	Path  string `json:"path"`
	Force bool   `json:"force"`
}

// ScanAccepted is returned after a scan request has been queued.
type ScanAccepted struct {
	RunID  string `json:"runId"`
	Queued int    `json:"queued"`
}
