// Package source turns a user-supplied path into the list of videos to scan.
package source

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnsupported is returned for paths that are neither videos, directories nor list files.
var ErrUnsupported = errors.New("unsupported input")

// VideoExtensions lists the file extensions treated as videos.
var VideoExtensions = []string{".mp4", ".mkv", ".avi", ".mov", ".webm", ".mpg", ".mpeg", ".m4v", ".ts", ".wmv", ".flv"}

// listExtensions mark text files holding one video path per line.
var listExtensions = []string{".txt", ".list"}

// Resolve expands path into video files: a video is returned as is, a
// directory is walked recursively and a list file is read line by line.
func Resolve(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	var paths []string
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir():
		paths, err = walkDir(path)
	case IsVideo(path):
		paths = []string{path}
	case hasExtension(ext, listExtensions):
		paths, err = readList(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	if err != nil {
		return nil, err
	}

	return dedupe(paths), nil
}

// IsVideo reports whether the file name has a supported video extension.
func IsVideo(path string) bool {
	return hasExtension(strings.ToLower(filepath.Ext(path)), VideoExtensions)
}

// walkDir collects supported videos below root in lexical order.
func walkDir(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && IsVideo(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// readList reads one path per line, skipping blank lines and # comments.
// Relative entries are resolved against the list file's directory.
func readList(listPath string) ([]string, error) {
	file, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open list %s: %w", listPath, err)
	}
	defer file.Close()

	base := filepath.Dir(listPath)
	var paths []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		paths = append(paths, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read list %s: %w", listPath, err)
	}
	return paths, nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		clean := filepath.Clean(p)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}

func hasExtension(ext string, extensions []string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}
