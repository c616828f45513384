package api

import (
	"context"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/plot-visualizer/backend/internal/history"
	"github.com/plot-visualizer/backend/internal/models"
	"github.com/plot-visualizer/backend/internal/parser"
	"github.com/plot-visualizer/backend/internal/session"
	"github.com/plot-visualizer/backend/internal/testutil"
	"github.com/plot-visualizer/backend/internal/timeutil"
)

// fakeSessions is an in-memory SessionManager that also serves as the
// history provider's message source.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]*models.RecordingSession
	messages []models.Message
	touched  map[string]int
	closed   []string
	startErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions: make(map[string]*models.RecordingSession),
		touched:  make(map[string]int),
	}
}

// addComplete registers a parsed session holding msgs.
func (f *fakeSessions) addComplete(id, fileID string, msgs []models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := models.NewRecordingSession(id, fileID)
	sess.Status = models.SessionStatusComplete
	sess.Progress = 100
	sess.MessageCount = len(msgs)
	if len(msgs) > 0 {
		start, end := msgs[0].ReceiveTime, msgs[len(msgs)-1].ReceiveTime
		sess.StartTime, sess.EndTime = &start, &end
	}
	f.sessions[id] = sess
	f.messages = append(f.messages, msgs...)
}

func (f *fakeSessions) addWithStatus(id, fileID string, status models.SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := models.NewRecordingSession(id, fileID)
	sess.Status = status
	f.sessions[id] = sess
}

func (f *fakeSessions) StartSession(fileID, filePath string) (*models.RecordingSession, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := models.NewRecordingSession("sess-"+fileID, fileID)
	f.sessions[sess.ID] = sess
	copied := *sess
	return &copied, nil
}

func (f *fakeSessions) GetSession(id string) (*models.RecordingSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, false
	}
	copied := *sess
	return &copied, true
}

func (f *fakeSessions) TouchSession(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return false
	}
	f.touched[id]++
	return true
}

func (f *fakeSessions) CloseFileSessions(fileID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, fileID)
}

func (f *fakeSessions) ready(id string) error {
	sess, ok := f.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	if sess.Status != models.SessionStatusComplete {
		return session.ErrSessionNotReady
	}
	return nil
}

func (f *fakeSessions) Topics(id string) ([]parser.TopicStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(id); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, m := range f.messages {
		counts[m.Topic]++
	}
	stats := make([]parser.TopicStats, 0, len(counts))
	for topic, n := range counts {
		stats = append(stats, parser.TopicStats{Topic: topic, MessageCount: n})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Topic < stats[j].Topic })
	return stats, nil
}

func (f *fakeSessions) MessageCount(id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(id); err != nil {
		return 0, err
	}
	return len(f.messages), nil
}

func (f *fakeSessions) StartTime(id string) (models.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(id); err != nil {
		return models.Time{}, err
	}
	if f.sessions[id].StartTime == nil {
		return models.Time{}, nil
	}
	return *f.sessions[id].StartTime, nil
}

func (f *fakeSessions) Messages(_ context.Context, id, topic string) ([]models.Message, error) {
	return f.filter(id, topic, nil)
}

func (f *fakeSessions) MessagesInRange(_ context.Context, id, topic string, tr models.TimeRange) ([]models.Message, error) {
	return f.filter(id, topic, &tr)
}

func (f *fakeSessions) filter(id, topic string, tr *models.TimeRange) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ready(id); err != nil {
		return nil, err
	}
	var out []models.Message
	for _, m := range f.messages {
		if m.Topic != topic {
			continue
		}
		if tr != nil && (timeutil.Compare(m.ReceiveTime, tr.Start) < 0 || timeutil.Compare(m.ReceiveTime, tr.End) > 0) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeSessions) touchCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.touched[id]
}

var _ SessionManager = (*fakeSessions)(nil)
var _ history.MessageSource = (*fakeSessions)(nil)

// odomSession returns a fake manager with session "s1" holding five /odom
// messages starting at t=100s.
func odomSession() *fakeSessions {
	sessions := newFakeSessions()
	sessions.addComplete("s1", "f1", testutil.OdomMessages("/odom", 5, models.Time{Sec: 100}))
	return sessions
}

// newTestEcho returns an echo instance wired with the request validator and
// error handler the server uses.
func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = NewErrorHandler(nil, true)
	return e
}

// newContext builds a handler context. params alternates names and values.
func newContext(e *echo.Echo, method, target string, body io.Reader, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	if len(names) > 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	return c, rec
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

// requireAPIError asserts err is an *APIError with the given status and code.
func requireAPIError(t *testing.T, err error, status int, code string) *APIError {
	t.Helper()
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T (%v)", err, err)
	}
	if apiErr.Status != status || apiErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s (%s)", status, code, apiErr.Status, apiErr.Code, apiErr.Message)
	}
	return apiErr
}
