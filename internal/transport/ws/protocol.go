package ws

import "github.com/Miguel0728/ChatBot-AI-V2/internal/domain"

// Message types from client to server
const (
	TypeHello   = "hello"
	TypeChat    = "chat"
	TypeClear   = "clear"
	TypeHistory = "history"
)

// Message types from server to client
const (
	TypeHelloAck = "hello_ack"
	TypeReply    = "reply"
	TypeCleared  = "cleared"
	TypeError    = "error"
)

// Error codes
const (
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeSessionRequired = "session_required"
	ErrorCodeValidation      = "validation"
	ErrorCodeNotFound        = "not_found"
	ErrorCodeRetired         = "retired"
	ErrorCodeInternal        = "internal"
)

// BaseMessage contains common fields for all messages.
type BaseMessage struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// HelloMessage binds the connection to a session. An empty session id
// starts a new one.
type HelloMessage struct {
	BaseMessage
}

// ChatMessage carries one user message.
type ChatMessage struct {
	BaseMessage
	Content string `json:"content"`
}

// ReplyMessage is the assistant reply, sent to every connection of the session.
type ReplyMessage struct {
	BaseMessage
	Content    string `json:"content"`
	TokensUsed int    `json:"tokens_used"`
}

// HistoryMessage carries the display history of the session.
type HistoryMessage struct {
	BaseMessage
	History []domain.DisplayMessage `json:"history"`
}

// ErrorMessage reports a failed request.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorCode(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindValidation:
		return ErrorCodeValidation
	case domain.KindNotFound:
		return ErrorCodeNotFound
	case domain.KindRetired:
		return ErrorCodeRetired
	default:
		return ErrorCodeInternal
	}
}
