package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/plot-visualizer/backend/internal/logging"
	"github.com/plot-visualizer/backend/internal/parser"
	"go.uber.org/zap"
)

// RecordingCache keeps parsed recordings as persistent DuckDB files keyed by
// file ID, so a recording loaded again from "recent files" is not re-parsed.
type RecordingCache struct {
	dir    string
	logger *zap.Logger

	mu sync.RWMutex
	// fileID -> dbPath of completed parses
	parsed map[string]string
}

// CacheStats summarises the cache contents.
type CacheStats struct {
	ParsedCount int    `json:"parsedCount"`
	TotalSize   int64  `json:"totalSize"`
	Dir         string `json:"dir"`
}

// NewRecordingCache creates the cache directory and indexes existing files.
func NewRecordingCache(dir string, logger *zap.Logger) (*RecordingCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	c := &RecordingCache{
		dir:    dir,
		logger: logger.Named("cache"),
		parsed: make(map[string]string),
	}
	c.scanExisting()
	return c, nil
}

func (c *RecordingCache) scanExisting() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn("failed to scan cache directory", zap.Error(err))
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "file_") || filepath.Ext(name) != ".duckdb" {
			continue
		}
		fileID := strings.TrimSuffix(strings.TrimPrefix(name, "file_"), ".duckdb")
		c.parsed[fileID] = filepath.Join(c.dir, name)
	}
	c.logger.Info("scanned parsed recordings", zap.Int("count", len(c.parsed)))
}

// DBPath returns where the parsed DB of fileID is stored.
func (c *RecordingCache) DBPath(fileID string) string {
	return filepath.Join(c.dir, fmt.Sprintf("file_%s.duckdb", fileID))
}

// IsCached reports whether fileID has a completed parse on disk.
func (c *RecordingCache) IsCached(fileID string) bool {
	c.mu.RLock()
	dbPath, ok := c.parsed[fileID]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	if _, err := os.Stat(dbPath); err != nil {
		c.mu.Lock()
		delete(c.parsed, fileID)
		c.mu.Unlock()
		return false
	}
	return true
}

// Open opens the parsed DB of fileID read-only. It returns nil when the
// file has not been parsed.
func (c *RecordingCache) Open(fileID string, opts parser.StoreOptions) (*parser.DuckStore, error) {
	if !c.IsCached(fileID) {
		return nil, nil
	}
	store, err := parser.OpenDuckStoreReadOnly(c.DBPath(fileID), opts, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open parsed DB: %w", err)
	}
	return store, nil
}

// Create starts a new persistent store for fileID, replacing any previous one.
func (c *RecordingCache) Create(fileID string, opts parser.StoreOptions) (*parser.DuckStore, error) {
	dbPath := c.DBPath(fileID)
	c.mu.Lock()
	delete(c.parsed, fileID)
	c.mu.Unlock()
	os.Remove(dbPath)

	opts.Persistent = true
	store, err := parser.NewDuckStoreAtPath(dbPath, opts, c.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create parsed DB: %w", err)
	}
	return store, nil
}

// MarkComplete records fileID as parsed and ready for reuse.
func (c *RecordingCache) MarkComplete(fileID string) {
	c.mu.Lock()
	c.parsed[fileID] = c.DBPath(fileID)
	c.mu.Unlock()
	c.logger.Debug("recording cached", zap.String("file", logging.ShortID(fileID)))
}

// Delete removes the parsed DB of fileID.
func (c *RecordingCache) Delete(fileID string) error {
	c.mu.Lock()
	delete(c.parsed, fileID)
	c.mu.Unlock()

	if err := os.Remove(c.DBPath(fileID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete parsed DB: %w", err)
	}
	// DuckDB may leave a write-ahead log next to the database.
	os.Remove(c.DBPath(fileID) + ".wal")
	return nil
}

// List returns the cached file IDs.
func (c *RecordingCache) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.parsed))
	for id := range c.parsed {
		ids = append(ids, id)
	}
	return ids
}

// Stats returns the number and total size of cached recordings.
func (c *RecordingCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{Dir: c.dir}
	for fileID, dbPath := range c.parsed {
		info, err := os.Stat(dbPath)
		if err != nil {
			delete(c.parsed, fileID)
			continue
		}
		stats.TotalSize += info.Size()
	}
	stats.ParsedCount = len(c.parsed)
	return stats
}

// CleanupOrphaned removes parsed DBs whose raw recording no longer exists.
func (c *RecordingCache) CleanupOrphaned(rawFileIDs []string) int {
	valid := make(map[string]bool, len(rawFileIDs))
	for _, id := range rawFileIDs {
		valid[id] = true
	}

	c.mu.Lock()
	var orphaned []string
	for fileID := range c.parsed {
		if !valid[fileID] {
			orphaned = append(orphaned, fileID)
		}
	}
	c.mu.Unlock()

	for _, fileID := range orphaned {
		if err := c.Delete(fileID); err != nil {
			c.logger.Warn("failed to remove orphaned recording", zap.String("file", fileID), zap.Error(err))
			continue
		}
		c.logger.Info("removed orphaned parsed recording", zap.String("file", logging.ShortID(fileID)))
	}
	return len(orphaned)
}
