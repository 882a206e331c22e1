package request

// AskRequest 文档问答请求
type AskRequest struct {
	Question  string `json:"question" binding:"required"` // 用户问题（必填）
	SessionID string `json:"sessionId"`                   // 会话 ID，空串表示一次性提问
}

// ClearHistoryRequest 清空会话历史请求
type ClearHistoryRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
}
