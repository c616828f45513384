// Package layout persists plot layouts as YAML files, one per layout.
package layout

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plot-visualizer/backend/internal/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned for unknown layout IDs.
var ErrNotFound = errors.New("layout not found")

// Store keeps layouts in a directory of <id>.yaml files.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
}

// NewStore creates the layout directory if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating layout directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{dir: dir, logger: logger.Named("layout")}, nil
}

func (s *Store) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return filepath.Join(s.dir, id+".yaml"), nil
}

// Save creates or replaces a layout. A layout without an ID gets a new one.
func (s *Store) Save(l models.PlotLayout) (*models.PlotLayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	l.UpdatedAt = time.Now().UTC()
	if err := s.writeLocked(&l); err != nil {
		return nil, err
	}
	s.logger.Debug("layout saved", zap.String("id", l.ID), zap.String("name", l.Name))
	return &l, nil
}

func (s *Store) writeLocked(l *models.PlotLayout) error {
	path, err := s.path(l.ID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("encoding layout: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing layout: %w", err)
	}
	return os.Rename(tmp, path)
}

// Get loads a layout by ID.
func (s *Store) Get(id string) (*models.PlotLayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id string) (*models.PlotLayout, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading layout: %w", err)
	}
	var l models.PlotLayout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing layout %s: %w", id, err)
	}
	l.ID = id
	return &l, nil
}

// List returns every layout, most recently updated first. Unreadable
// files are skipped.
func (s *Store) List() ([]*models.PlotLayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing layouts: %w", err)
	}
	layouts := make([]*models.PlotLayout, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".yaml" {
			continue
		}
		l, err := s.readLocked(strings.TrimSuffix(name, ".yaml"))
		if err != nil {
			s.logger.Warn("skipping unreadable layout", zap.String("file", name), zap.Error(err))
			continue
		}
		layouts = append(layouts, l)
	}
	sort.Slice(layouts, func(i, j int) bool {
		return layouts[i].UpdatedAt.After(layouts[j].UpdatedAt)
	})
	return layouts, nil
}

// Delete removes a layout.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("deleting layout: %w", err)
	}
	return nil
}

// SaveCurrentYs stores the y range the chart is currently showing as the
// layout's fixed bounds. A nil or non-finite bound clears it.
func (s *Store) SaveCurrentYs(id string, minY, maxY *float64) (*models.PlotLayout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.readLocked(id)
	if err != nil {
		return nil, err
	}
	l.MinYValue = finiteOrNil(minY)
	l.MaxYValue = finiteOrNil(maxY)
	l.UpdatedAt = time.Now().UTC()
	if err := s.writeLocked(l); err != nil {
		return nil, err
	}
	return l, nil
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	f := *v
	return &f
}
