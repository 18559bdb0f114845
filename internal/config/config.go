package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  int
	Password              string
	DatabasePath          string
	SnapshotDirectory     string
	ReportDirectory       string // Pusty = bez raportów JSON
	LogDirectory          string
	PixelThreshold        int     // Jasność (0-255), przy której piksel uznajemy za ciemny
	BlackRatio            float64 // Udział ciemnych pikseli, od którego klatka jest czarna
	MinBlackDuration      float64 // Minimalna długość segmentu w sekundach
	ProcessingInterval    int     // Co którą klatkę analizować (1=każdą, 3=co trzecią)
	ProcessingWorkers     int     // Liczba workerów analizujących klatki jednego filmu
	AnalysisWidth         int     // Szerokość, do której zmniejszamy klatkę przed analizą (0 = bez zmian)
	SnapshotWidth         int
	SnapshotBufferLimit   int
	SnapshotFlushInterval int // Sekundy
	ScanQueueSize         int
	ScanConcurrency       int // Ile filmów skanujemy równocześnie
	Verbose               bool
}

// Load reads an optional .env file and builds the configuration from the environment.
func Load() *Config {
	// Brak pliku .env nie jest błędem
	_ = godotenv.Load()

	return &Config{
		Port:                  getEnvAsInt("PORT", 8080),
		Password:              getEnv("PASSWORD", ""),
		DatabasePath:          getEnv("DB_PATH", filepath.Join("data", "blackframe.db")),
		SnapshotDirectory:     getEnv("SNAPSHOT_DIR", "snapshots"),
		ReportDirectory:       getEnv("REPORT_DIR", ""),
		LogDirectory:          getEnv("LOG_DIR", "logs"),
		PixelThreshold:        getEnvAsInt("PIXEL_THRESHOLD", 32),
		BlackRatio:            getEnvAsFloat("BLACK_RATIO", 0.98),
		MinBlackDuration:      getEnvAsFloat("MIN_BLACK_DURATION", 0.1),
		ProcessingInterval:    getEnvAsInt("PROCESSING_INTERVAL", 1),
		ProcessingWorkers:     getEnvAsInt("PROCESSING_WORKERS", runtime.NumCPU()),
		AnalysisWidth:         getEnvAsInt("ANALYSIS_WIDTH", 320),
		SnapshotWidth:         getEnvAsInt("SNAPSHOT_WIDTH", 320),
		SnapshotBufferLimit:   getEnvAsInt("SNAPSHOT_BUFFER_LIMIT", 20),
		SnapshotFlushInterval: getEnvAsInt("FLUSH_INTERVAL", 30),
		ScanQueueSize:         getEnvAsInt("SCAN_QUEUE_SIZE", 100),
		ScanConcurrency:       getEnvAsInt("SCAN_CONCURRENCY", 2),
		Verbose:               getEnvAsBool("VERBOSE", false),
	}
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port: %d", c.Port)
	case c.PixelThreshold < 0 || c.PixelThreshold > 255:
		return fmt.Errorf("pixel threshold must be within 0-255, got %d", c.PixelThreshold)
	case c.BlackRatio <= 0 || c.BlackRatio > 1:
		return fmt.Errorf("black ratio must be within (0, 1], got %g", c.BlackRatio)
	case c.MinBlackDuration < 0:
		return fmt.Errorf("minimum black duration cannot be negative, got %g", c.MinBlackDuration)
	case c.ProcessingInterval < 1:
		return fmt.Errorf("processing interval must be at least 1, got %d", c.ProcessingInterval)
	case c.ProcessingWorkers < 1:
		return fmt.Errorf("processing workers must be at least 1, got %d", c.ProcessingWorkers)
	case c.AnalysisWidth < 0:
		return fmt.Errorf("analysis width cannot be negative, got %d", c.AnalysisWidth)
	case c.SnapshotWidth < 0:
		return fmt.Errorf("snapshot width cannot be negative, got %d", c.SnapshotWidth)
	case c.SnapshotBufferLimit < 0:
		return fmt.Errorf("snapshot buffer limit cannot be negative, got %d", c.SnapshotBufferLimit)
	case c.SnapshotFlushInterval < 1:
		return fmt.Errorf("flush interval must be at least 1 second, got %d", c.SnapshotFlushInterval)
	case c.ScanQueueSize < 1:
		return fmt.Errorf("scan queue size must be at least 1, got %d", c.ScanQueueSize)
	case c.ScanConcurrency < 1:
		return fmt.Errorf("scan concurrency must be at least 1, got %d", c.ScanConcurrency)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
