package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	// maxEventSize bounds an inbound frame. Content over 2000
	// characters is still valid input (it gets truncated), and 2000
	// runes can JSON-encode to up to 12000 bytes with \u escapes, so
	// leave headroom above that plus the envelope.
	maxEventSize = 16384
)

// Client is one authenticated connection. The user id is bound once at
// construction, after the session token verified; a Client never exists
// without an identity.
type Client struct {
	id        string
	userId    string
	conn      *websocket.Conn
	gw        *Gateway
	log       *log.Logger
	send      chan *ServerEvent
	rooms     map[string]struct{}
	roomsLock sync.RWMutex
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewClient(userId string, conn *websocket.Conn, gw *Gateway, l *log.Logger) *Client {
	return &Client{
		id:     shortid.MustGenerate(),
		userId: userId,
		conn:   conn,
		gw:     gw,
		log:    l,
		send:   make(chan *ServerEvent, 256),
		rooms:  make(map[string]struct{}),
		stop:   make(chan struct{}),
	}
}

func (c *Client) UserId() string { return c.userId }

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(evt)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var evt ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(ErrInvalidEvent(-1))
			continue
		}

		c.dispatch(&evt)
	}
}

// dispatch routes one inbound event. Events from a single connection
// arrive here in order; a bad event reports back to this sender only
// and never closes the connection.
func (c *Client) dispatch(evt *ClientEvent) {
	evt.Timestamp = Now()

	switch {
	case evt.Join != nil:
		c.handleJoin(evt)
	case evt.Leave != nil:
		c.handleLeave(evt)
	case evt.Message != nil:
		c.handleMessage(evt)
	case evt.Typing != nil:
		c.handleTyping(evt)
	default:
		c.queueEvent(ErrInvalidEvent(evt.Id))
	}
}

func (c *Client) handleJoin(evt *ClientEvent) {
	roomId := evt.Join.RoomId
	if !ValidRoomID(roomId) {
		c.queueEvent(ErrInvalidRoom(evt.Id))
		return
	}

	if !CanAccessRoom(c.userId, roomId) {
		c.log.Printf("user %q denied access to room %q", c.userId, roomId)
		c.queueEvent(ErrRoomAccessDenied(evt.Id))
		return
	}

	c.gw.Subscribe(c, roomId)
	c.queueEvent(NoErrOK(evt.Id, nil))
}

func (c *Client) handleLeave(evt *ClientEvent) {
	roomId := evt.Leave.RoomId
	if !ValidRoomID(roomId) {
		c.queueEvent(ErrInvalidRoom(evt.Id))
		return
	}

	c.gw.Unsubscribe(c, roomId)
	c.queueEvent(NoErrOK(evt.Id, nil))
}

func (c *Client) handleMessage(evt *ClientEvent) {
	if c.gw.limiter.Limited(c.userId) {
		c.gw.stats.Incr(StatRateLimitedEvents)
		c.queueEvent(ErrRateLimited(evt.Id))
		return
	}

	receiverId := evt.Message.ReceiverId
	if receiverId == "" {
		c.queueEvent(ErrInvalidRecipient(evt.Id))
		return
	}

	content := Sanitize(evt.Message.Content)
	if content == "" {
		c.queueEvent(ErrEmptyContent(evt.Id))
		return
	}

	c.gw.Publish(receiverId, &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: evt.Timestamp,
		},
		Message: &DirectMessage{
			SenderId:  c.userId,
			Content:   content,
			CreatedAt: evt.Timestamp,
		},
	})

	c.gw.stats.Incr(StatMessagesDelivered)
	c.queueEvent(NoErrAccepted(evt.Id))
}

// handleTyping forwards a typing indicator. Typing events are
// high-frequency and best effort, so malformed payloads are dropped
// without an error response.
func (c *Client) handleTyping(evt *ClientEvent) {
	receiverId, ok := evt.Typing.ReceiverId.(string)
	isTyping, typeOk := evt.Typing.IsTyping.(bool)
	if !ok || !typeOk || receiverId == "" {
		c.log.Printf("dropping malformed typing event from %q", c.userId)
		return
	}

	c.gw.Publish(receiverId, &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: evt.Timestamp,
		},
		Typing: &TypingEvent{
			UserId:   c.userId,
			IsTyping: isTyping,
		},
	})
}

// queueEvent hands an event to the write pump without blocking. A slow
// receiver loses events rather than stalling the sender.
func (c *Client) queueEvent(evt *ServerEvent) bool {
	select {
	case c.send <- evt:
	default:
		c.log.Printf("send buffer full for connection %q, dropping event", c.id)
		return false
	}

	return true
}

func (c *Client) writeFrame(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.gw.UnregisterClient(c)
	c.stopClient()
}

func (c *Client) addRoom(roomId string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[roomId] = struct{}{}
}

func (c *Client) delRoom(roomId string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, roomId)
}

func (c *Client) clearRooms() {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms = make(map[string]struct{})
}

func (c *Client) roomList() []string {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for roomId := range c.rooms {
		rooms = append(rooms, roomId)
	}

	return rooms
}
