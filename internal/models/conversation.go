package models

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single role-tagged message in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered history of one (user, student) chat. It may be
// prefixed by a single system turn derived from the student profile; that
// turn, once present, survives every trim.
type Conversation []Turn

// HasSystem reports whether the conversation starts with a system turn.
func (c Conversation) HasSystem() bool {
	return len(c) > 0 && c[0].Role == RoleSystem
}

// Append returns the conversation with an extra turn.
func (c Conversation) Append(role Role, content string) Conversation {
	return append(c, Turn{Role: role, Content: content})
}

// Trim bounds the history to at most 1+2*maxPairs turns: the system turn (if
// any) plus the most recent maxPairs user/assistant pairs. Called after the
// assistant reply is appended, so the stored turn count is always within the
// bound.
func (c Conversation) Trim(maxPairs int) Conversation {
	limit := 1 + 2*maxPairs
	if len(c) <= limit {
		return c
	}
	tail := c[len(c)-2*maxPairs:]
	if c.HasSystem() {
		out := make(Conversation, 0, 1+len(tail))
		out = append(out, c[0])
		return append(out, tail...)
	}
	out := make(Conversation, len(tail))
	copy(out, tail)
	return out
}
