package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/plot-visualizer/backend/internal/instrument"
	"github.com/plot-visualizer/backend/internal/logging"
	"github.com/plot-visualizer/backend/internal/models"
	"go.uber.org/zap"
)

// WebSocket message types for the live plot protocol
const (
	// Client -> Server messages
	MsgTypePlotSubscribe   = "plot:subscribe"
	MsgTypePlotUnsubscribe = "plot:unsubscribe"
	MsgTypePing            = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeAck       = "ack"
	MsgTypePlotData  = "plot:data"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope of every live feed message
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorResponse is the payload of an error message
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// LiveOptions configures a LiveHandler.
type LiveOptions struct {
	PollInterval time.Duration
	// MaxMessageSize limits inbound client messages, in bytes.
	MaxMessageSize int64
}

// LiveHandler pushes chart data over WebSocket whenever the session's data
// or the subscribed request changes.
type LiveHandler struct {
	charts   *chartBuilder
	sink     instrument.Sink
	upgrader websocket.Upgrader
	validate *validator.Validate
	opts     LiveOptions
	logger   *zap.Logger
}

// NewLiveHandler creates a live feed handler
func NewLiveHandler(sessions SessionManager, history HistoryProvider, layouts LayoutStore, sink instrument.Sink, opts LiveOptions, logger *zap.Logger) *LiveHandler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}
	if sink == nil {
		sink = instrument.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveHandler{
		charts: newChartBuilder(sessions, history, layouts, sink),
		sink:   sink,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		validate: validator.New(),
		opts:     opts,
		logger:   logger.Named("live"),
	}
}

// liveSubscription is the request currently streamed on a connection.
// lastVersion is the data version of the last push; empty until the first.
type liveSubscription struct {
	id          string
	req         plotRequest
	lastVersion string
}

// HandleLive upgrades the connection and runs the live plot protocol
func (lh *LiveHandler) HandleLive(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if _, ok := lh.charts.sessions.GetSession(sessionID); !ok {
		return NewNotFoundError("session", sessionID)
	}

	ws, err := lh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()
	ws.SetReadLimit(lh.opts.MaxMessageSize)

	log := lh.logger.With(zap.String("session", logging.ShortID(sessionID)))
	log.Debug("client connected")

	incoming := make(chan WSMessage)
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	go func() {
		defer cancel()
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("connection closed", zap.Error(err))
				}
				return
			}
			select {
			case incoming <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	lh.send(ws, WSMessage{Type: MsgTypeConnected})

	ticker := time.NewTicker(lh.opts.PollInterval)
	defer ticker.Stop()

	var sub *liveSubscription
	for {
		select {
		case <-ctx.Done():
			log.Debug("client disconnected")
			return nil

		case msg := <-incoming:
			switch msg.Type {
			case MsgTypePing:
				lh.send(ws, WSMessage{Type: MsgTypePong, ID: msg.ID})
			case MsgTypePlotSubscribe:
				next, ok := lh.subscribe(ws, msg)
				if ok {
					sub = next
					if !lh.push(ctx, ws, sessionID, sub) {
						sub = nil
					}
				}
			case MsgTypePlotUnsubscribe:
				sub = nil
				lh.send(ws, WSMessage{Type: MsgTypeAck, ID: msg.ID})
			default:
				lh.sendError(ws, msg.ID, "unknown message type: "+msg.Type, "INVALID_TYPE")
			}

		case <-ticker.C:
			if sub != nil && !lh.push(ctx, ws, sessionID, sub) {
				sub = nil
			}
		}
	}
}

func (lh *LiveHandler) subscribe(ws *websocket.Conn, msg WSMessage) (*liveSubscription, bool) {
	var req plotRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		lh.sendError(ws, msg.ID, "invalid subscribe payload: "+err.Error(), "INVALID_PAYLOAD")
		return nil, false
	}
	if err := lh.validate.Struct(&req); err != nil {
		lh.sendError(ws, msg.ID, validationError(err).Message, "VALIDATION_ERROR")
		return nil, false
	}
	lh.send(ws, WSMessage{Type: MsgTypeAck, ID: msg.ID})
	return &liveSubscription{id: msg.ID, req: req}, true
}

// push sends chart data when the data version changed since the last push:
// the session finished parsing, its message count changed or the subscribed
// layout was saved. A session still parsing is retried on the next tick. It
// returns false when the subscription should end.
func (lh *LiveHandler) push(ctx context.Context, ws *websocket.Conn, sessionID string, sub *liveSubscription) bool {
	sess, ok := lh.charts.sessions.GetSession(sessionID)
	if !ok {
		lh.sendError(ws, sub.id, "session not found: "+sessionID, "SESSION_NOT_FOUND")
		return false
	}
	switch sess.Status {
	case models.SessionStatusError:
		lh.sendError(ws, sub.id, "session failed to parse", "SESSION_ERROR")
		return false
	case models.SessionStatusComplete:
	default:
		return true
	}

	count, err := lh.charts.sessions.MessageCount(sessionID)
	if err != nil {
		return true
	}
	version := fmt.Sprintf("%d/%s", count, lh.layoutVersion(sub.req.LayoutID))
	if version == sub.lastVersion {
		return true
	}
	sub.lastVersion = version

	resp, err := lh.charts.build(ctx, sessionID, sub.req)
	if err != nil {
		code := "PLOT_ERROR"
		if apiErr, ok := err.(*APIError); ok {
			code = apiErr.Code
		}
		lh.sendError(ws, sub.id, err.Error(), code)
		return true
	}
	lh.sink.Inc(instrument.EventUseMessagesRender)
	lh.send(ws, WSMessage{Type: MsgTypePlotData, ID: sub.id, Payload: mustJSON(resp)})
	return true
}

// layoutVersion identifies the saved state of a layout. A missing layout has
// a stable version so its error is reported once.
func (lh *LiveHandler) layoutVersion(id string) string {
	if id == "" || lh.charts.layouts == nil {
		return ""
	}
	l, err := lh.charts.layouts.Get(id)
	if err != nil {
		return "missing"
	}
	return fmt.Sprintf("%d/%s/%s/%d", l.UpdatedAt.UnixNano(),
		formatBound(l.MinYValue), formatBound(l.MaxYValue), len(l.Paths))
}

func formatBound(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func (lh *LiveHandler) send(ws *websocket.Conn, msg WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	if err := ws.WriteJSON(msg); err != nil {
		lh.logger.Debug("failed to send message", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (lh *LiveHandler) sendError(ws *websocket.Conn, id, message, code string) {
	lh.send(ws, WSMessage{
		Type:    MsgTypeError,
		ID:      id,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
