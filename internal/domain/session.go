package domain

import (
	"encoding/json"
	"time"
)

// Session represents a conversation session.
type Session struct {
	ID             string          `json:"id"`
	DisplayName    string          `json:"displayName,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// SessionSummary is a session annotated with its derived message count.
type SessionSummary struct {
	Session
	MessageCount int `json:"messageCount"`
}

// Message represents a single message in a session.
type Message struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	Seq        int64     `json:"seq"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokensUsed"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DisplayMessage is a message as shown to the end user.
type DisplayMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ContextMessage is one entry of the context window sent to the completion gateway.
type ContextMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MessageCounts aggregates the message log of a session.
type MessageCounts struct {
	Total     int
	User      int
	Assistant int
	Tokens    int
}

// Stats describes a session for the stats endpoint.
type Stats struct {
	TotalMessages     int        `json:"totalMessages"`
	UserMessages      int        `json:"userMessages"`
	AssistantMessages int        `json:"assistantMessages"`
	TotalTokens       int        `json:"totalTokens"`
	CreatedAt         *time.Time `json:"createdAt"`
	LastActivityAt    *time.Time `json:"lastActivityAt"`
}

// Completion is the reply produced by the completion gateway.
type Completion struct {
	Reply      string
	TokensUsed int
	Model      string
}

// TurnResult is the outcome of a successful chat turn.
type TurnResult struct {
	SessionID  string   `json:"sessionId"`
	Reply      string   `json:"response"`
	TokensUsed int      `json:"tokensUsed"`
	User       *Message `json:"-"`
	Assistant  *Message `json:"-"`
}
