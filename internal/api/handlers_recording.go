// handlers_recording.go - Recording session handlers
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/parser"
	"github.com/plot-visualizer/backend/internal/session"
	"github.com/plot-visualizer/backend/internal/storage"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// MIMEMsgpack is the content type of MessagePack responses.
const MIMEMsgpack = "application/x-msgpack"

// progressStreamTimeout bounds a single progress stream.
const progressStreamTimeout = 5 * time.Minute

// RecordingHandlerImpl implements the RecordingHandler interface
type RecordingHandlerImpl struct {
	store    storage.Store
	sessions SessionManager
	logger   *zap.Logger
}

// NewRecordingHandler creates a new recording handler instance
func NewRecordingHandler(store storage.Store, sessions SessionManager, logger *zap.Logger) RecordingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingHandlerImpl{
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleStartRecording starts parsing an uploaded file into a session
func (h *RecordingHandlerImpl) HandleStartRecording(c echo.Context) error {
	var req startRecordingRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	path, err := h.store.GetFilePath(req.FileID)
	if err != nil {
		return NewNotFoundError("file", req.FileID)
	}

	sess, err := h.sessions.StartSession(req.FileID, path)
	if err != nil {
		return NewServiceUnavailableError(err.Error())
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleRecordingStatus returns the current status of a session
func (h *RecordingHandlerImpl) HandleRecordingStatus(c echo.Context) error {
	id := c.Param("sessionId")
	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessions.TouchSession(id)
	h.syncFileStatus(sess)

	return c.JSON(http.StatusOK, sess)
}

// HandleRecordingProgressStream streams parse progress via SSE until the
// session completes or fails.
func (h *RecordingHandlerImpl) HandleRecordingProgressStream(c echo.Context) error {
	id := c.Param("sessionId")

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.NewTimer(progressStreamTimeout)
	defer timeout.Stop()

	for {
		sess, ok := h.sessions.GetSession(id)
		if !ok {
			h.sendSSEData(c, map[string]string{"error": "session not found"})
			return nil
		}
		h.sendSSEData(c, sess)
		if sess.Status == models.SessionStatusComplete || sess.Status == models.SessionStatusError {
			h.syncFileStatus(sess)
			return nil
		}

		select {
		case <-c.Request().Context().Done():
			return nil
		case <-timeout.C:
			h.sendSSEData(c, map[string]string{"error": "stream timeout"})
			return nil
		case <-ticker.C:
		}
	}
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *RecordingHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if ok := h.sessions.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetTopics returns the topics of a parsed recording with their
// message counts.
func (h *RecordingHandlerImpl) HandleGetTopics(c echo.Context) error {
	id := c.Param("sessionId")
	topics, err := h.sessions.Topics(id)
	if err != nil {
		return sessionError(id, err)
	}
	count, err := h.sessions.MessageCount(id)
	if err != nil {
		return sessionError(id, err)
	}
	h.sessions.TouchSession(id)

	return c.JSON(http.StatusOK, topicsResponse{
		Topics:       topics,
		MessageCount: count,
	})
}

// HandleGetMessages returns the raw messages of one topic, optionally within
// [start, end] given as "sec.nsec". Responds with MessagePack when the client
// accepts it.
func (h *RecordingHandlerImpl) HandleGetMessages(c echo.Context) error {
	id := c.Param("sessionId")
	topic := c.QueryParam("topic")
	if topic == "" {
		return NewValidationError("topic")
	}

	sess, ok := h.sessions.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	if sess.StartTime == nil || sess.EndTime == nil {
		if sess.Status != models.SessionStatusComplete {
			return sessionError(id, session.ErrSessionNotReady)
		}
		return respond(c, http.StatusOK, messagesResponse{Topic: topic, Messages: []models.Message{}})
	}

	tr := models.TimeRange{Start: *sess.StartTime, End: *sess.EndTime}
	if s := c.QueryParam("start"); s != "" {
		t, err := parser.ParseTime(s)
		if err != nil {
			return NewBadRequestError("invalid start", err)
		}
		tr.Start = t
	}
	if s := c.QueryParam("end"); s != "" {
		t, err := parser.ParseTime(s)
		if err != nil {
			return NewBadRequestError("invalid end", err)
		}
		tr.End = t
	}

	msgs, err := h.sessions.MessagesInRange(c.Request().Context(), id, topic, tr)
	if err != nil {
		return sessionError(id, err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	h.sessions.TouchSession(id)

	return respond(c, http.StatusOK, messagesResponse{Topic: topic, Range: tr, Messages: msgs})
}

// syncFileStatus mirrors a finished session's outcome onto its file.
func (h *RecordingHandlerImpl) syncFileStatus(sess *models.RecordingSession) {
	var status models.FileStatus
	switch sess.Status {
	case models.SessionStatusComplete:
		status = models.FileStatusParsed
	case models.SessionStatusError:
		status = models.FileStatusError
	default:
		return
	}
	if err := h.store.SetStatus(sess.FileID, status); err != nil {
		h.logger.Debug("file status not updated", zap.String("file", sess.FileID), zap.Error(err))
	}
}

func (h *RecordingHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

// wantsMsgpack reports whether the client asked for MessagePack.
func wantsMsgpack(c echo.Context) bool {
	accept := c.Request().Header.Get(echo.HeaderAccept)
	return strings.Contains(accept, MIMEMsgpack) || strings.Contains(accept, "application/msgpack")
}

// respond writes v as MessagePack when the client accepts it, JSON otherwise.
// MessagePack keys follow the json tags so both encodings share field names.
func respond(c echo.Context, status int, v interface{}) error {
	if !wantsMsgpack(c) {
		return c.JSON(status, v)
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(status, MIMEMsgpack, buf.Bytes())
}

// Request/Response types

type startRecordingRequest struct {
	FileID string `json:"fileId" validate:"required"`
}

type topicsResponse struct {
	Topics       []parser.TopicStats `json:"topics"`
	MessageCount int                 `json:"messageCount"`
}

type messagesResponse struct {
	Topic    string           `json:"topic"`
	Range    models.TimeRange `json:"range"`
	Messages []models.Message `json:"messages"`
}
