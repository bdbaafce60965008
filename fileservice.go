package labelgraph

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// FileService reads the files a document includes.
type FileService interface {
	ReadLines(path string) ([]string, error)
}

// CachedFileService reads files from disk and keeps their lines for a few
// minutes, so reopening a document does not reread every include.
type CachedFileService struct {
	cache  *cache.Cache
	logger *log.Logger
}

// NewCachedFileService returns a disk-backed FileService. Entries expire
// after five minutes.
func NewCachedFileService(logger *log.Logger) *CachedFileService {
	if logger == nil {
		logger = discardLogger()
	}
	return &CachedFileService{
		cache:  cache.New(5*time.Minute, 10*time.Minute),
		logger: logger,
	}
}

// ReadLines returns the lines of path.
func (s *CachedFileService) ReadLines(path string) ([]string, error) {
	path = filepath.Clean(path)
	if v, ok := s.cache.Get(path); ok {
		return v.([]string), nil
	}
	start := time.Now()
	data, err := os.ReadFile(path)
	SlowWarning(s.logger, start, "reading "+path)
	if err != nil {
		return nil, fmt.Errorf("read include %s: %w", path, err)
	}
	lines := SplitLines(string(data))
	s.cache.Set(path, lines, cache.DefaultExpiration)
	return lines, nil
}

// Invalidate drops the cached lines of path.
func (s *CachedFileService) Invalidate(path string) {
	s.cache.Delete(filepath.Clean(path))
}

// SplitLines splits text on newlines, dropping carriage returns.
func SplitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
