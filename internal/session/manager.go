package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plot-visualizer/backend/internal/logging"
	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/parser"
	"go.uber.org/zap"
)

// DefaultMaxSessions limits concurrent sessions to prevent memory exhaustion
const DefaultMaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotReady is returned while a session is still parsing or has failed.
	ErrSessionNotReady = errors.New("session not ready")
)

// Options configures a Manager.
type Options struct {
	TempDir     string
	MaxSessions int
	Store       parser.StoreOptions
	// Cache, when set, keeps parsed recordings across sessions.
	Cache  *RecordingCache
	Logger *zap.Logger
}

// Manager handles recording sessions: parsing in the background and
// serving topic queries once complete.
type Manager struct {
	sessions    map[string]*SessionState
	mu          sync.RWMutex
	registry    *parser.Registry
	tempDir     string
	maxSessions int
	storeOpts   parser.StoreOptions
	cache       *RecordingCache
	logger      *zap.Logger
}

// SessionState holds the session metadata and the DuckDB-backed storage.
type SessionState struct {
	Session      *models.RecordingSession
	Store        *parser.DuckStore
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)

	// inUse counts queries holding Store; a removed session closes it when
	// the last one releases.
	inUse   int
	removed bool
}

// NewManager creates a session manager.
func NewManager(opts Options) *Manager {
	if opts.TempDir == "" {
		opts.TempDir = "./data/temp"
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	os.MkdirAll(opts.TempDir, 0755)

	return &Manager{
		sessions:    make(map[string]*SessionState),
		registry:    parser.NewRegistry(),
		tempDir:     opts.TempDir,
		maxSessions: opts.MaxSessions,
		storeOpts:   opts.Store,
		cache:       opts.Cache,
		logger:      opts.Logger.Named("session"),
	}
}

// StartSession begins parsing a recording. A file that already has a live
// session reuses it instead of being parsed again.
func (m *Manager) StartSession(fileID, filePath string) (*models.RecordingSession, error) {
	if existing := m.sessionForFile(fileID); existing != nil {
		return existing, nil
	}

	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()
	session := models.NewRecordingSession(sessionID, fileID)
	session.Status = models.SessionStatusParsing

	m.mu.Lock()
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("too many active sessions (max %d)", m.maxSessions)
	}
	m.sessions[sessionID] = &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
	}
	m.mu.Unlock()

	go m.runParse(sessionID, fileID, filePath)

	copied := *session
	return &copied, nil
}

func (m *Manager) sessionForFile(fileID string) *models.RecordingSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, state := range m.sessions {
		if state.Session.FileID == fileID && state.Session.Status != models.SessionStatusError {
			state.LastAccessed = time.Now()
			copied := *state.Session
			return &copied
		}
	}
	return nil
}

func (m *Manager) runParse(sessionID, fileID, filePath string) {
	log := m.logger.With(zap.String("session", logging.ShortID(sessionID)), zap.String("file", fileID))

	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			log.Error("parse panicked", zap.Any("panic", r))
			m.updateSessionError(sessionID, fmt.Sprintf("parse panicked: %v", r))
		}
	}()

	start := time.Now()

	if m.cache != nil && m.cache.IsCached(fileID) {
		store, err := m.cache.Open(fileID, m.storeOpts)
		if err == nil && store != nil {
			log.Info("reusing parsed recording", zap.Int("messages", store.Len()))
			m.completeSession(sessionID, store, "cache", nil, start)
			return
		}
		log.Warn("cached recording unusable, re-parsing", zap.Error(err))
		m.cache.Delete(fileID)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		log.Error("stat recording failed", zap.Error(err))
		m.updateSessionError(sessionID, fmt.Sprintf("recording not readable: %v", err))
		return
	}
	log.Info("starting parse", zap.String("path", filePath), zap.Int64("bytes", info.Size()))

	p, err := m.registry.FindParser(filePath)
	if err != nil {
		log.Error("no parser", zap.Error(err))
		m.updateSessionError(sessionID, fmt.Sprintf("failed to find parser: %v", err))
		return
	}
	log.Info("using parser", zap.String("parser", p.Name()))

	m.setProgress(sessionID, 10, 0)

	store, err := m.createStore(sessionID, fileID)
	if err != nil {
		log.Error("failed to create store", zap.Error(err))
		m.updateSessionError(sessionID, fmt.Sprintf("failed to create storage: %v", err))
		return
	}

	progressCb := func(messages int, bytesRead, totalBytes int64) {
		progress := 10.0
		if totalBytes > 0 {
			progress = 10.0 + float64(bytesRead)*80.0/float64(totalBytes)
		}
		// Clamp to 89.9% during parsing (90-100% is for finalization)
		if progress > 89.9 {
			progress = 89.9
		}
		m.setProgress(sessionID, progress, messages)

		if messages > 0 && messages%500000 == 0 {
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			log.Debug("parse progress",
				zap.Float64("progress", progress),
				zap.Int("messages", messages),
				zap.Uint64("allocMB", memStats.Alloc/1024/1024))
		}
	}

	parseErrors, err := p.ParseToSink(filePath, store, progressCb)
	if err == nil {
		m.setProgress(sessionID, 90, store.Len())
		err = store.Finalize()
	}
	if err != nil {
		log.Error("parse failed", zap.Error(err))
		m.discardStore(fileID, store)
		m.updateSessionError(sessionID, fmt.Sprintf("parse failed: %v", err))
		return
	}

	if m.cache != nil {
		m.cache.MarkComplete(fileID)
	}
	log.Info("parse complete",
		zap.Int("messages", store.Len()),
		zap.Int("errors", len(parseErrors)),
		zap.Duration("elapsed", time.Since(start)))
	m.completeSession(sessionID, store, p.Name(), parseErrors, start)
}

func (m *Manager) createStore(sessionID, fileID string) (*parser.DuckStore, error) {
	if m.cache != nil {
		return m.cache.Create(fileID, m.storeOpts)
	}
	return parser.NewDuckStore(m.tempDir, sessionID, m.storeOpts, m.logger)
}

func (m *Manager) discardStore(fileID string, store *parser.DuckStore) {
	store.Close()
	if m.cache != nil {
		m.cache.Delete(fileID)
	}
}

func (m *Manager) completeSession(sessionID string, store *parser.DuckStore, parserName string, parseErrors []models.ParseError, start time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		// Session was cleaned up while parsing.
		store.Close()
		return
	}

	state.Store = store
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.MessageCount = store.Len()
	state.Session.TopicCount = len(store.Topics())
	state.Session.ProcessingTimeMs = time.Since(start).Milliseconds()
	state.Session.ParserName = parserName
	if tr := store.TimeRange(); tr != nil {
		startTime, endTime := tr.Start, tr.End
		state.Session.StartTime = &startTime
		state.Session.EndTime = &endTime
	}
	if parseErrors != nil {
		state.Session.Errors = parseErrors
	}
}

func (m *Manager) setProgress(sessionID string, progress float64, messages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Progress = progress
		state.Session.MessageCount = messages
	}
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.Errors = append(state.Session.Errors, models.ParseError{
		Reason: reason,
	})
}

// cleanupOldSessionsIfNeeded removes least recently used finished sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < m.maxSessions {
		return
	}

	var finished []string
	for id, state := range m.sessions {
		if isFinished(state.Session.Status) {
			finished = append(finished, id)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return m.sessions[finished[i]].LastAccessed.Before(m.sessions[finished[j]].LastAccessed)
	})

	toFree := len(m.sessions) - m.maxSessions + 1
	for i := 0; i < toFree && i < len(finished); i++ {
		m.removeLocked(finished[i])
		m.logger.Info("evicted session to free memory", zap.String("session", logging.ShortID(finished[i])))
	}
}

func isFinished(status models.SessionStatus) bool {
	return status == models.SessionStatusComplete || status == models.SessionStatusError
}

func (m *Manager) removeLocked(id string) {
	if state, ok := m.sessions[id]; ok {
		state.removed = true
		if state.Store != nil && state.inUse == 0 {
			state.Store.Close()
		}
		delete(m.sessions, id)
	}
}

// CleanupOldSessions removes finished sessions not accessed within maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
// It returns the number of sessions removed.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	removed := 0
	for id, state := range m.sessions {
		if !isFinished(state.Session.Status) {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) || state.LastAccessed.After(cutoff) {
			continue
		}
		m.logger.Info("cleaned up aged session",
			zap.String("session", logging.ShortID(id)),
			zap.Duration("idle", now.Sub(state.LastAccessed).Round(time.Second)))
		m.removeLocked(id)
		removed++
	}
	return removed
}

// CloseFileSessions closes every session of a file, e.g. before the file is deleted.
func (m *Manager) CloseFileSessions(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, state := range m.sessions {
		if state.Session.FileID == fileID {
			m.removeLocked(id)
		}
	}
}

// Close closes every session store.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.sessions {
		m.removeLocked(id)
	}
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (*models.RecordingSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	copied := *state.Session
	return &copied, true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// readyStore returns the store of a completed session. The store stays open
// until release is called, even if the session is removed meanwhile.
func (m *Manager) readyStore(id string) (store *parser.DuckStore, release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	if state.Session.Status != models.SessionStatusComplete || state.Store == nil {
		return nil, nil, ErrSessionNotReady
	}
	state.inUse++
	var once sync.Once
	return state.Store, func() { once.Do(func() { m.releaseStore(state) }) }, nil
}

func (m *Manager) releaseStore(state *SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.inUse--
	if state.removed && state.inUse == 0 {
		state.Store.Close()
	}
}

// Topics returns per-topic message counts of a completed session.
func (m *Manager) Topics(id string) ([]parser.TopicStats, error) {
	store, release, err := m.readyStore(id)
	if err != nil {
		return nil, err
	}
	defer release()
	return store.Topics(), nil
}

// MessageCount returns the number of stored messages of a completed session.
func (m *Manager) MessageCount(id string) (int, error) {
	store, release, err := m.readyStore(id)
	if err != nil {
		return 0, err
	}
	defer release()
	return store.Len(), nil
}

// StartTime returns the earliest receive time of a completed session.
func (m *Manager) StartTime(id string) (models.Time, error) {
	store, release, err := m.readyStore(id)
	if err != nil {
		return models.Time{}, err
	}
	defer release()
	if tr := store.TimeRange(); tr != nil {
		return tr.Start, nil
	}
	return models.Time{}, nil
}

// Messages returns every message on topic in receive order.
func (m *Manager) Messages(ctx context.Context, sessionID, topic string) ([]models.Message, error) {
	store, release, err := m.readyStore(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	msgs, err := store.Messages(ctx, topic)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			m.logger.Debug("message query cancelled", zap.String("session", logging.ShortID(sessionID)))
		}
		return nil, err
	}
	return msgs, nil
}

// MessagesInRange returns the messages on topic received within tr.
func (m *Manager) MessagesInRange(ctx context.Context, sessionID, topic string, tr models.TimeRange) ([]models.Message, error) {
	store, release, err := m.readyStore(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()
	return store.MessagesInRange(ctx, topic, tr)
}
