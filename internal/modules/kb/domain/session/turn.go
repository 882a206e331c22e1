package session

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn 会话历史中的一条发言。
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
