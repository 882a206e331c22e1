package http

import (
	"context"
	"encoding/json"
	"net/http"

	"DocTalk/internal/modules/kb/application/service"
	"DocTalk/pkg/util"
	"DocTalk/pkg/ws"
	"DocTalk/pkg/zlog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 客户端入站消息类型
const (
	msgAskQuestion  = "ask-question"
	msgClearHistory = "clear-history"
)

// 服务端出站事件类型
const (
	evSession          = "session"
	evResponseChunk    = "llm-response-chunk"
	evResponseComplete = "llm-response-complete"
	evError            = "llm-error"
	evHistoryCleared   = "history-cleared"
)

type wsInbound struct {
	Type     string `json:"type"`
	Question string `json:"question,omitempty"`
}

type wsOutbound struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Error     string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WsHandler 流式问答的 WebSocket 入口。
// 每条连接绑定一个独立会话，连接断开后历史不再可达（除非配置了 Redis）。
type WsHandler struct {
	querySvc service.QueryService
}

func NewWsHandler(querySvc service.QueryService) *WsHandler {
	return &WsHandler{querySvc: querySvc}
}

func (h *WsHandler) Connect(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zlog.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(conn)
	go client.WritePump()

	// 连接即会话：断开后同一客户端重连会得到新的会话
	sessionID := util.GenerateShortUUID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer client.Close()

	// 写端断开时取消 ctx，让进行中的生成立即停止拉流
	go func() {
		<-client.Done()
		cancel()
	}()

	h.send(client, wsOutbound{Type: evSession, SessionID: sessionID})
	zlog.Info("websocket session opened", zap.String("session_id", sessionID))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			zlog.Info("websocket session closed", zap.String("session_id", sessionID))
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.send(client, wsOutbound{Type: evError, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case msgAskQuestion:
			h.handleAsk(ctx, client, sessionID, msg.Question)
		case msgClearHistory:
			h.handleClear(ctx, client, sessionID)
		default:
			h.send(client, wsOutbound{Type: evError, Error: "unknown message type: " + msg.Type})
		}
	}
}

// handleAsk 串行处理一次提问，分片实时下发
func (h *WsHandler) handleAsk(ctx context.Context, client *ws.Client, sessionID, question string) {
	events, err := h.querySvc.AskStream(ctx, question, sessionID)
	if err != nil {
		zlog.Error("ask stream failed", zap.String("session_id", sessionID), zap.Error(err))
		h.send(client, wsOutbound{Type: evError, Error: err.Error()})
		return
	}

	for ev := range events {
		delivered := true
		switch ev.Event {
		case service.EventChunk:
			delivered = h.send(client, wsOutbound{Type: evResponseChunk, Chunk: ev.Chunk})
		case service.EventComplete:
			delivered = h.send(client, wsOutbound{Type: evResponseComplete, Answer: ev.Answer})
		case service.EventError:
			delivered = h.send(client, wsOutbound{Type: evError, Error: ev.ErrMsg})
		}
		if !delivered {
			// 连接已断开，Done 触发的取消会让生成端收尾，这里只排空余下事件
			for range events {
			}
			return
		}
	}
}

func (h *WsHandler) handleClear(ctx context.Context, client *ws.Client, sessionID string) {
	if _, err := h.querySvc.ClearHistory(ctx, sessionID); err != nil {
		zlog.Error("clear history failed", zap.String("session_id", sessionID), zap.Error(err))
		h.send(client, wsOutbound{Type: evError, Error: "clear history failed"})
		return
	}
	h.send(client, wsOutbound{Type: evHistoryCleared})
}

func (h *WsHandler) send(client *ws.Client, out wsOutbound) bool {
	payload, err := json.Marshal(out)
	if err != nil {
		return false
	}
	if !client.Send(payload) {
		zlog.Warn("websocket closed before event delivered", zap.String("event", out.Type))
		return false
	}
	return true
}
