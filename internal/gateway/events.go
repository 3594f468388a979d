package gateway

import (
	"net/http"
	"time"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the inbound envelope. Exactly one of the embedded
// pointers is expected to be set.
type ClientEvent struct {
	BaseEvent
	Join    *JoinRoom    `json:"join,omitempty"`
	Leave   *LeaveRoom   `json:"leave,omitempty"`
	Message *SendMessage `json:"message,omitempty"`
	Typing  *Typing      `json:"typing,omitempty"`
}

type JoinRoom struct {
	RoomId string `json:"room_id"`
}

type LeaveRoom struct {
	RoomId string `json:"room_id"`
}

type SendMessage struct {
	ReceiverId string `json:"receiver_id"`
	Content    any    `json:"content"`
}

type Typing struct {
	ReceiverId any `json:"receiver_id"`
	IsTyping   any `json:"is_typing"`
}

// ServerEvent is the outbound envelope.
type ServerEvent struct {
	BaseEvent
	Response *Response       `json:"response,omitempty"`
	Message  *DirectMessage  `json:"message,omitempty"`
	Typing   *TypingEvent    `json:"typing,omitempty"`
	Presence *PresenceChange `json:"online_status,omitempty"`
	// SkipClient is excluded from broadcasts, typically the sender.
	SkipClient *Client `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type DirectMessage struct {
	SenderId  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type TypingEvent struct {
	UserId   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type PresenceChange struct {
	UserId string `json:"user_id"`
	Online bool   `json:"online"`
}

func NoErrOK(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func ErrInvalidRoom(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid room id",
		},
	}
}

func ErrRoomAccessDenied(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusForbidden,
			Error:        "room access denied",
		},
	}
}

func ErrRateLimited(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusTooManyRequests,
			Error:        "rate limit exceeded",
		},
	}
}

func ErrInvalidRecipient(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid recipient",
		},
	}
}

func ErrEmptyContent(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "message content is empty",
		},
	}
}

func ErrInvalidEvent(id int) *ServerEvent {
	evt := &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid event format",
		},
	}

	if id > 0 {
		evt.Id = id
	}
	return evt
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
