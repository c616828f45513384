// Package upload runs chunked-upload assembly as asynchronous jobs.
package upload

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plot-visualizer/backend/internal/logging"
	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/parser"
	"go.uber.org/zap"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusAssembling Status = "assembling"
	StatusDetecting  Status = "detecting"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Job represents an async upload processing job.
type Job struct {
	ID          string           `json:"id"`
	UploadID    string           `json:"uploadId"`
	FileName    string           `json:"fileName"`
	TotalChunks int              `json:"totalChunks"`
	Status      Status           `json:"status"`
	Progress    float64          `json:"progress"`
	Stage       string           `json:"stage"`
	Format      string           `json:"format,omitempty"` // parser that accepted the recording
	FileInfo    *models.FileInfo `json:"fileInfo,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// Store defines the interface needed from the storage layer.
type Store interface {
	CompleteChunkedUpload(uploadID string, name string, totalChunks int) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	SetStatus(id string, status models.FileStatus) error
}

// Manager handles async upload processing.
type Manager struct {
	jobs     map[string]*Job
	mu       sync.RWMutex
	store    Store
	registry *parser.Registry
	logger   *zap.Logger
}

// NewManager creates a new upload processing manager. Assembled files are
// probed against registry so unsupported recordings fail at upload time.
func NewManager(store Store, registry *parser.Registry, logger *zap.Logger) *Manager {
	if registry == nil {
		registry = parser.NewRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		jobs:     make(map[string]*Job),
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// StartJob begins async processing of an upload.
func (m *Manager) StartJob(uploadID, fileName string, totalChunks int) Job {
	job := &Job{
		ID:          uuid.New().String(),
		UploadID:    uploadID,
		FileName:    fileName,
		TotalChunks: totalChunks,
		Status:      StatusProcessing,
		Stage:       "preparing",
		CreatedAt:   time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	go m.processJob(job)

	return snapshot
}

// GetJob returns a snapshot of a job.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

func (m *Manager) processJob(job *Job) {
	log := m.logger.With(zap.String("job", logging.ShortID(job.ID)), zap.String("file", job.FileName))
	log.Info("processing upload", zap.Int("chunks", job.TotalChunks))

	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 10)
	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}

	m.mu.Lock()
	job.FileInfo = info
	m.mu.Unlock()

	m.updateJobStatus(job, StatusDetecting, "detecting format", 60)
	path, err := m.store.GetFilePath(info.ID)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to locate file: %v", err))
		return
	}
	p, err := m.registry.FindParser(path)
	if err != nil {
		if serr := m.store.SetStatus(info.ID, models.FileStatusError); serr != nil {
			log.Warn("failed to record file status", zap.Error(serr))
		}
		m.markJobError(job, err.Error())
		return
	}

	m.mu.Lock()
	job.Format = p.Name()
	m.mu.Unlock()

	m.markJobComplete(job)
	log.Info("upload complete", zap.String("id", info.ID), zap.Int64("bytes", info.Size), zap.String("format", p.Name()))
}

func (m *Manager) updateJobStatus(job *Job, status Status, stage string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage
	job.Progress = progress
}

func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Stage = "done"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	m.logger.Warn("upload failed", zap.String("job", logging.ShortID(job.ID)), zap.String("error", errMsg))
}

// CleanupOldJobs removes finished jobs older than maxAge and returns how many
// were removed.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}
