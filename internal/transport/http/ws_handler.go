package http

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// LeaderboardFeed streams leaderboard snapshots of a quiz.
type LeaderboardFeed interface {
	Subscribe(ctx context.Context, quizID int64) (<-chan domain.Leaderboard, func(), error)
}

// WSHandler pushes live leaderboard updates over websockets.
type WSHandler struct {
	feed     LeaderboardFeed
	log      app.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(feed LeaderboardFeed, log app.Logger) *WSHandler {
	return &WSHandler{
		feed: feed,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS subscribes the caller to a quiz leaderboard. The current snapshot is sent first,
// then every rebuild. Clients may send {"type":"ping"} and get a pong back.
func (h *WSHandler) ServeWS(c echo.Context) error {
	quizID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	// subscribe before upgrading so an unknown quiz is still a plain 404
	updates, cancel, err := h.feed.Subscribe(c.Request().Context(), quizID)
	if err != nil {
		return err
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "quiz", quizID, "err", err)
		return nil
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
					return
				}
				if err := h.write(conn, msg); err != nil {
					h.log.Warn("ws write error", "quiz", quizID, "err", err)
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var inbound inboundMessage
		reply := outboundMessage{Type: "pong"}
		if err := sonic.Unmarshal(data, &inbound); err != nil {
			reply = outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid message"}}
		} else if inbound.Type != "ping" {
			reply = outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	return nil
}

func (h *WSHandler) write(conn *websocket.Conn, msg outboundMessage) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
