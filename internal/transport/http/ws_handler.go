package http

import (
	"encoding/json"
	"net/http"
	"time"

	"food-quiz-service/internal/app"
	"food-quiz-service/internal/domain"
	"food-quiz-service/internal/platform/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// WSHandler streams live leaderboard snapshots for one quiz.
type WSHandler struct {
	service  *app.QuizService
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log *logger.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log.With("handler", "WSHandler"),
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and pushes a "leaderboard" message whenever a
// submission changes the quiz's ranking. Clients may send {"type":"refresh"}
// to receive the current snapshot.
func (h *WSHandler) ServeWS(c *gin.Context) {
	quizID, ok := pathID(c, "quizId")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Resolve the quiz before upgrading so unknown quizzes get a plain HTTP error.
	updates, cancel, err := h.service.SubscribeLeaderboard(ctx, quizID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "quiz_id", quizID, "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer: gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					h.log.Debug("ws write error", "quiz_id", quizID, "error", err)
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
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
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
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			h.enqueue(send, closeSignals, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid message"}})
			continue
		}
		switch inbound.Type {
		case "refresh":
			lb, err := h.service.Leaderboard(ctx, quizID)
			if err != nil {
				h.enqueue(send, closeSignals, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: publicMessage(err)}})
				continue
			}
			h.enqueue(send, closeSignals, outboundMessage[any]{Type: "leaderboard", Payload: lb})
		default:
			h.enqueue(send, closeSignals, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer unless the writer has already gone away.
func (h *WSHandler) enqueue(send chan<- outboundMessage[any], done <-chan struct{}, msg outboundMessage[any]) {
	select {
	case send <- msg:
	case <-done:
	default:
		h.log.Debug("ws send buffer full, dropping message", "type", msg.Type)
	}
}

func publicMessage(err error) string {
	if domain.KindOf(err) == domain.KindServer {
		return "Internal server error"
	}
	return err.Error()
}
