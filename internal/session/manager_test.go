package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/plot-visualizer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recording = `{"topic":"/odom","receiveTime":{"sec":100,"nsec":0},"message":{"x":1}}
{"topic":"/odom","receiveTime":{"sec":101,"nsec":0},"message":{"x":2}}
{"topic":"/imu","receiveTime":{"sec":102,"nsec":0},"message":{"z":9.8}}
`

func writeRecording(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func waitForStatus(t *testing.T, m *Manager, id string) *models.RecordingSession {
	t.Helper()
	var sess *models.RecordingSession
	require.Eventually(t, func() bool {
		s, ok := m.GetSession(id)
		if !ok {
			return false
		}
		sess = s
		return s.Status == models.SessionStatusComplete || s.Status == models.SessionStatusError
	}, 10*time.Second, 20*time.Millisecond)
	return sess
}

func TestManager_ParseAndQuery(t *testing.T) {
	m := NewManager(Options{TempDir: t.TempDir()})
	defer m.Close()

	sess, err := m.StartSession("file-1", writeRecording(t, recording))
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusParsing, sess.Status)

	done := waitForStatus(t, m, sess.ID)
	require.Equal(t, models.SessionStatusComplete, done.Status, "errors: %v", done.Errors)
	assert.Equal(t, 3, done.MessageCount)
	assert.Equal(t, 2, done.TopicCount)
	assert.Equal(t, "jsonl", done.ParserName)
	require.NotNil(t, done.StartTime)
	assert.Equal(t, int64(100), done.StartTime.Sec)
	assert.Equal(t, int64(102), done.EndTime.Sec)

	topics, err := m.Topics(sess.ID)
	require.NoError(t, err)
	require.Len(t, topics, 2)
	assert.Equal(t, "/imu", topics[0].Topic)

	msgs, err := m.Messages(context.Background(), sess.ID, "/odom")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(101), msgs[1].ReceiveTime.Sec)

	start, err := m.StartTime(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Time{Sec: 100}, start)

	windowed, err := m.MessagesInRange(context.Background(), sess.ID, "/odom",
		models.TimeRange{Start: models.Time{Sec: 100, Nsec: 500}, End: models.Time{Sec: 200}})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, int64(101), windowed[0].ReceiveTime.Sec)
}

func TestManager_Errors(t *testing.T) {
	m := NewManager(Options{TempDir: t.TempDir()})
	defer m.Close()

	_, err := m.Messages(context.Background(), "missing", "/odom")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sess, err := m.StartSession("bad", writeRecording(t, "not a recording\n"))
	require.NoError(t, err)
	done := waitForStatus(t, m, sess.ID)
	assert.Equal(t, models.SessionStatusError, done.Status)
	assert.NotEmpty(t, done.Errors)

	_, err = m.Topics(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotReady)
}

func TestManager_ReusesSessionForFile(t *testing.T) {
	m := NewManager(Options{TempDir: t.TempDir()})
	defer m.Close()
	path := writeRecording(t, recording)

	first, err := m.StartSession("file-1", path)
	require.NoError(t, err)
	second, err := m.StartSession("file-1", path)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestManager_RecordingCache(t *testing.T) {
	cache, err := NewRecordingCache(t.TempDir(), nil)
	require.NoError(t, err)
	path := writeRecording(t, recording)

	m := NewManager(Options{TempDir: t.TempDir(), Cache: cache})
	sess, err := m.StartSession("file-1", path)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusComplete, waitForStatus(t, m, sess.ID).Status)
	assert.True(t, cache.IsCached("file-1"))

	// Closing the session keeps the parsed file for the next one.
	m.CloseFileSessions("file-1")
	_, ok := m.GetSession(sess.ID)
	assert.False(t, ok)

	require.NoError(t, os.Remove(path))
	again, err := m.StartSession("file-1", path)
	require.NoError(t, err)
	done := waitForStatus(t, m, again.ID)
	require.Equal(t, models.SessionStatusComplete, done.Status, "errors: %v", done.Errors)
	assert.Equal(t, "cache", done.ParserName)
	assert.Equal(t, 3, done.MessageCount)
	m.Close()

	stats := cache.Stats()
	assert.Equal(t, 1, stats.ParsedCount)
	assert.Positive(t, stats.TotalSize)

	assert.Equal(t, 1, cache.CleanupOrphaned(nil))
	assert.False(t, cache.IsCached("file-1"))
}

func TestManager_CleanupOldSessions(t *testing.T) {
	m := NewManager(Options{TempDir: t.TempDir()})
	defer m.Close()

	sess, err := m.StartSession("file-1", writeRecording(t, recording))
	require.NoError(t, err)
	waitForStatus(t, m, sess.ID)

	assert.Equal(t, 0, m.CleanupOldSessions(time.Minute), "recently accessed session must survive")

	m.mu.Lock()
	m.sessions[sess.ID].LastAccessed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	assert.Equal(t, 1, m.CleanupOldSessions(time.Minute))
	assert.False(t, m.TouchSession(sess.ID))
}

func TestManager_EvictsAtCapacity(t *testing.T) {
	m := NewManager(Options{TempDir: t.TempDir(), MaxSessions: 1})
	defer m.Close()

	first, err := m.StartSession("file-1", writeRecording(t, recording))
	require.NoError(t, err)
	waitForStatus(t, m, first.ID)

	second, err := m.StartSession("file-2", writeRecording(t, recording))
	require.NoError(t, err)
	waitForStatus(t, m, second.ID)

	_, ok := m.GetSession(first.ID)
	assert.False(t, ok, "finished session should be evicted to make room")
}

func TestManager_RemovedSessionStoreOutlivesQueries(t *testing.T) {
	m := NewManager(Options{TempDir: t.TempDir()})
	defer m.Close()

	sess, err := m.StartSession("file-1", writeRecording(t, recording))
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusComplete, waitForStatus(t, m, sess.ID).Status)

	store, release, err := m.readyStore(sess.ID)
	require.NoError(t, err)

	m.CloseFileSessions("file-1")
	_, ok := m.GetSession(sess.ID)
	assert.False(t, ok)
	_, _, err = m.readyStore(sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// The in-flight query still reads an open store.
	msgs, err := store.Messages(context.Background(), "/odom")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	release()
	release()
	_, err = store.Messages(context.Background(), "/odom")
	assert.Error(t, err, "store is closed after the last release")
}
