// handlers_upload.go - Recording file handlers
package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/plot-visualizer/backend/internal/storage"
	"go.uber.org/zap"
)

// UploadOptions configures an UploadHandler.
type UploadOptions struct {
	// AllowedExtensions restricts upload names; empty allows any.
	AllowedExtensions []string
	RecentLimit       int
}

// UploadHandlerImpl implements the UploadHandler interface
type UploadHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
	cache    ParsedDataCache
	jobs     UploadJobs
	opts     UploadOptions
	logger   *zap.Logger
}

// NewUploadHandler creates a new upload handler instance. sessions and cache
// may be nil, in which case deleting a file only removes the upload.
func NewUploadHandler(store storage.Store, sessions SessionManager, cache ParsedDataCache, jobs UploadJobs, opts UploadOptions, logger *zap.Logger) UploadHandler {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadHandlerImpl{
		store:    store,
		sessions: sessions,
		cache:    cache,
		jobs:     jobs,
		opts:     opts,
		logger:   logger,
	}
}

// HandleUploadFile accepts a recording as multipart/form-data ("file")
func (h *UploadHandlerImpl) HandleUploadFile(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if err := h.checkExtension(file.Filename); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	h.logger.Info("recording uploaded", zap.String("id", info.ID), zap.String("name", info.Name), zap.Int64("bytes", info.Size))
	return c.JSON(http.StatusCreated, info)
}

// HandleUploadChunk accepts a single chunk of a chunked upload. The chunk is
// the "file" part; "uploadId" and "chunkIndex" are form values.
func (h *UploadHandlerImpl) HandleUploadChunk(c echo.Context) error {
	uploadID := c.FormValue("uploadId")
	if uploadID == "" {
		return NewValidationError("uploadId")
	}
	chunkIndex, err := strconv.Atoi(c.FormValue("chunkIndex"))
	if err != nil || chunkIndex < 0 {
		return NewValidationError("chunkIndex")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no chunk data provided", err)
	}
	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open chunk", err)
	}
	defer src.Close()

	if err := h.store.SaveChunk(uploadID, chunkIndex, src); err != nil {
		return NewBadRequestError("failed to save chunk", err)
	}

	return c.NoContent(http.StatusAccepted)
}

// HandleCompleteUpload assembles a chunked upload asynchronously and returns
// the job to poll.
func (h *UploadHandlerImpl) HandleCompleteUpload(c echo.Context) error {
	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.checkExtension(req.Name); err != nil {
		return err
	}

	job := h.jobs.StartJob(req.UploadID, req.Name, req.TotalChunks)
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleUploadJobStatus returns the state of an upload job
func (h *UploadHandlerImpl) HandleUploadJobStatus(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.jobs.GetJob(id)
	if !ok {
		return NewNotFoundError("upload job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleGetRecentFiles returns the most recently uploaded recordings
func (h *UploadHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	files, err := h.store.List(h.opts.RecentLimit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *UploadHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a file, its sessions and its cached parse
func (h *UploadHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	if _, err := h.store.Get(id); err != nil {
		return NewNotFoundError("file", id)
	}

	if h.sessions != nil {
		h.sessions.CloseFileSessions(id)
	}
	if h.cache != nil {
		if err := h.cache.Delete(id); err != nil {
			h.logger.Warn("failed to delete parsed data", zap.String("id", id), zap.Error(err))
		}
	}

	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return NewNotFoundError("file", id)
		}
		return NewInternalError("failed to delete file", err)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the name of a file
func (h *UploadHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

func (h *UploadHandlerImpl) checkExtension(name string) error {
	if len(h.opts.AllowedExtensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range h.opts.AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return NewBadRequestError("unsupported file type: "+ext, nil)
}

// Request types

type completeUploadRequest struct {
	UploadID    string `json:"uploadId" validate:"required"`
	Name        string `json:"name" validate:"required,max=255"`
	TotalChunks int    `json:"totalChunks" validate:"min=1"`
}

type renameFileRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}
