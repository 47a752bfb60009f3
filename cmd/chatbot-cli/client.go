package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Miguel0728/ChatBot-AI-V2/internal/transport/ws"
)

// Client is a websocket chat client bound to one session.
type Client struct {
	conn      *websocket.Conn
	sessionID string
	seq       int
}

// Dial connects to the chat server.
func Dial(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// SessionID returns the session bound by Hello.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Hello binds the connection to sessionID, or to a new session when empty.
func (c *Client) Hello(sessionID string) error {
	msg := ws.HelloMessage{BaseMessage: c.base(ws.TypeHello)}
	msg.SessionID = sessionID
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	base, _, err := c.read()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}
	if base.Type != ws.TypeHelloAck {
		return fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}
	c.sessionID = base.SessionID
	return nil
}

// Chat sends a message and waits for its reply.
func (c *Client) Chat(content string) (*ws.ReplyMessage, error) {
	msg := ws.ChatMessage{BaseMessage: c.base(ws.TypeChat), Content: content}
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("write chat: %w", err)
	}

	for {
		base, data, err := c.read()
		if err != nil {
			return nil, err
		}
		// Replies to other clients of the same session are skipped.
		if base.Type != ws.TypeReply || base.RequestID != msg.RequestID {
			continue
		}
		var reply ws.ReplyMessage
		if err := json.Unmarshal(data, &reply); err != nil {
			return nil, fmt.Errorf("unmarshal reply: %w", err)
		}
		return &reply, nil
	}
}

// Clear deletes the conversation of the session.
func (c *Client) Clear() error {
	msg := c.base(ws.TypeClear)
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write clear: %w", err)
	}
	return c.await(ws.TypeCleared, msg.RequestID, nil)
}

// History fetches the display history of the session.
func (c *Client) History() (*ws.HistoryMessage, error) {
	msg := c.base(ws.TypeHistory)
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("write history: %w", err)
	}
	var history ws.HistoryMessage
	if err := c.await(ws.TypeHistory, msg.RequestID, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

func (c *Client) await(msgType, requestID string, v interface{}) error {
	for {
		base, data, err := c.read()
		if err != nil {
			return err
		}
		if base.Type != msgType || base.RequestID != requestID {
			continue
		}
		if v == nil {
			return nil
		}
		return json.Unmarshal(data, v)
	}
}

// read returns the next message. Error messages are returned as errors.
func (c *Client) read() (ws.BaseMessage, []byte, error) {
	var base ws.BaseMessage
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return base, nil, fmt.Errorf("read: %w", err)
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return base, nil, fmt.Errorf("unmarshal: %w", err)
	}
	if base.Type == ws.TypeError {
		var errMsg ws.ErrorMessage
		json.Unmarshal(data, &errMsg)
		return base, nil, &ServerError{Code: errMsg.Code, Message: errMsg.Message}
	}
	return base, data, nil
}

func (c *Client) base(msgType string) ws.BaseMessage {
	c.seq++
	return ws.BaseMessage{
		Type:      msgType,
		Ts:        time.Now().UnixMilli(),
		RequestID: fmt.Sprintf("req_%d", c.seq),
	}
}

// ServerError is an error reported by the server.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
