package http

import (
	"errors"

	"DocTalk/internal/modules/kb/application/dto/request"
	"DocTalk/internal/modules/kb/application/dto/respond"
	"DocTalk/internal/modules/kb/application/service"
	"DocTalk/pkg/back"
	"DocTalk/pkg/xerr"
	"DocTalk/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AskHandler 非流式问答与会话历史管理
type AskHandler struct {
	querySvc service.QueryService
}

func NewAskHandler(querySvc service.QueryService) *AskHandler {
	return &AskHandler{querySvc: querySvc}
}

// Ask 一次性返回完整回答
//
// 路由: POST /api/ask
func (h *AskHandler) Ask(c *gin.Context) {
	var req request.AskRequest
	if err := c.BindJSON(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	answer, err := h.querySvc.Ask(c.Request.Context(), req.Question, req.SessionID)
	if err != nil {
		zlog.Error("ask failed", zap.String("session_id", req.SessionID), zap.Error(err))
		var embErr *xerr.EmbeddingError
		var genErr *xerr.GenerationError
		switch {
		case errors.As(err, &embErr), errors.As(err, &genErr):
			back.Error(c, xerr.InternalServerError, "failed to generate answer")
		default:
			back.Error(c, xerr.BadRequest, err.Error())
		}
		return
	}
	back.Success(c, respond.AskRespond{Answer: answer})
}

// ClearHistory 清空一个会话的历史
//
// 路由: POST /api/clear-history
func (h *AskHandler) ClearHistory(c *gin.Context) {
	var req request.ClearHistoryRequest
	if err := c.BindJSON(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	cleared, err := h.querySvc.ClearHistory(c.Request.Context(), req.SessionID)
	if err != nil {
		zlog.Error("clear history failed", zap.String("session_id", req.SessionID), zap.Error(err))
		back.Error(c, xerr.InternalServerError, "clear history failed")
		return
	}
	back.Success(c, respond.ClearHistoryRespond{Cleared: cleared})
}
