package server

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/xhad/ragcore/internal/models"
	"github.com/xhad/ragcore/pkg/answer"
	"github.com/xhad/ragcore/pkg/stream"
)

// Message is one WebSocket message. Clients send "query" (Content holds the
// question, SessionID is generated when empty) and "cancel"; the server answers with "content", "sources",
// "error" and "done", each tagged with the session id of the query.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	Sources   []models.Source `json:"sources,omitempty"`
	Error     string          `json:"error,omitempty"`
}

const (
	msgQuery   = "query"
	msgCancel  = "cancel"
	msgContent = "content"
	msgSources = "sources"
	msgError   = "error"
	msgDone    = "done"
)

// wsConn serializes writes and tracks the single running stream of one
// connection.
type wsConn struct {
	conn *websocket.Conn
	log  logrus.FieldLogger

	writeMu sync.Mutex

	mu     sync.Mutex
	active *wsStream
	wg     sync.WaitGroup
}

// wsStream is one running answer stream. Cleanup compares by pointer, so a
// later stream reusing the same session id is never touched by an earlier one.
type wsStream struct {
	id     string
	cancel context.CancelFunc
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ws := &wsConn{
		conn: conn,
		log:  s.log.WithField("organization_id", c.GetString(ctxOrgID)),
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer func() {
		cancel()
		ws.wg.Wait()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.log.WithError(err).Debug("websocket read failed")
			}
			return
		}

		switch msg.Type {
		case msgQuery:
			req := answer.Request{
				Query:          msg.Content,
				UserID:         c.GetString(ctxUserID),
				OrganizationID: c.GetString(ctxOrgID),
			}
			s.startWSStream(ctx, ws, msg.SessionID, req)
		case msgCancel:
			ws.stop(msg.SessionID)
		default:
			ws.send(Message{Type: msgError, SessionID: msg.SessionID, Error: "unknown message type " + msg.Type})
		}
	}
}

func (s *Server) startWSStream(ctx context.Context, ws *wsConn, sessionID string, req answer.Request) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ws.mu.Lock()
	if ws.active != nil {
		ws.mu.Unlock()
		ws.send(Message{Type: msgError, SessionID: sessionID, Error: models.ErrStreamActive.Error()})
		return
	}
	streamCtx, cancel := context.WithCancel(ctx)
	st := &wsStream{id: sessionID, cancel: cancel}
	ws.active = st
	ws.wg.Add(1)
	ws.mu.Unlock()

	go func() {
		defer ws.wg.Done()
		defer ws.finish(st)

		for ev := range s.deps.Answerer.Stream(streamCtx, req) {
			if streamCtx.Err() != nil {
				continue
			}
			ws.send(toMessage(sessionID, ev))
		}
	}()
}

// stop cancels the running stream if it matches sessionID, or any running
// stream when sessionID is empty.
func (ws *wsConn) stop(sessionID string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.active == nil || (sessionID != "" && sessionID != ws.active.id) {
		return
	}
	ws.active.cancel()
	ws.active = nil
}

func (ws *wsConn) finish(st *wsStream) {
	st.cancel()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	if ws.active == st {
		ws.active = nil
	}
}

func (ws *wsConn) send(msg Message) {
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if err := ws.conn.WriteJSON(msg); err != nil {
		ws.log.WithError(err).Debug("websocket write failed")
	}
}

func toMessage(sessionID string, ev stream.Event) Message {
	msg := Message{SessionID: sessionID}
	switch ev.Kind {
	case stream.KindDelta:
		msg.Type = msgContent
		msg.Content = ev.Content
	case stream.KindSources:
		msg.Type = msgSources
		msg.Sources = ev.Sources
	case stream.KindError:
		msg.Type = msgError
		msg.Error = ev.Error
	case stream.KindDone:
		msg.Type = msgDone
	}
	return msg
}
