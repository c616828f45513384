// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"io"

	"github.com/labstack/echo/v4"
	"github.com/plot-visualizer/backend/internal/instrument"
	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/parser"
	"github.com/plot-visualizer/backend/internal/render"
	"github.com/plot-visualizer/backend/internal/upload"
)

// UploadHandler handles recording file operations
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadJobStatus(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// RecordingHandler handles recording session operations
type RecordingHandler interface {
	HandleStartRecording(c echo.Context) error
	HandleRecordingStatus(c echo.Context) error
	HandleRecordingProgressStream(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleGetTopics(c echo.Context) error
	HandleGetMessages(c echo.Context) error
}

// PlotHandler handles chart data and image operations
type PlotHandler interface {
	HandlePlotData(c echo.Context) error
	HandlePlotPNG(c echo.Context) error
}

// LayoutHandler handles saved plot layouts
type LayoutHandler interface {
	HandleListLayouts(c echo.Context) error
	HandleCreateLayout(c echo.Context) error
	HandleGetLayout(c echo.Context) error
	HandleUpdateLayout(c echo.Context) error
	HandleDeleteLayout(c echo.Context) error
	HandleSaveCurrentYs(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// DebugHandler exposes pipeline counters
type DebugHandler interface {
	HandleRenderCounts(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(fileID, filePath string) (*models.RecordingSession, error)
	GetSession(id string) (*models.RecordingSession, bool)
	TouchSession(id string) bool
	CloseFileSessions(fileID string)
	Topics(id string) ([]parser.TopicStats, error)
	MessageCount(id string) (int, error)
	StartTime(id string) (models.Time, error)
	MessagesInRange(ctx context.Context, sessionID, topic string, tr models.TimeRange) ([]models.Message, error)
}

// HistoryProvider builds item lookups for plot paths.
type HistoryProvider interface {
	Lookup(ctx context.Context, sessionID string, paths []models.PlotPath) (models.ItemLookup, error)
}

// LayoutStore persists plot layouts.
type LayoutStore interface {
	Save(l models.PlotLayout) (*models.PlotLayout, error)
	Get(id string) (*models.PlotLayout, error)
	List() ([]*models.PlotLayout, error)
	Delete(id string) error
	SaveCurrentYs(id string, minY, maxY *float64) (*models.PlotLayout, error)
}

// ChartRenderer draws chart data as an image.
type ChartRenderer interface {
	Render(w io.Writer, data models.ChartData, opts render.Options) error
}

// ParsedDataCache drops parsed data of deleted files.
type ParsedDataCache interface {
	Delete(fileID string) error
}

// UploadJobs runs chunked-upload assembly.
type UploadJobs interface {
	StartJob(uploadID, fileName string, totalChunks int) upload.Job
	GetJob(id string) (upload.Job, bool)
}

// CounterSource exposes render counts.
type CounterSource interface {
	Counts() instrument.Counts
}
