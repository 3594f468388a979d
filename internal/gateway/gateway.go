package gateway

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/filmfeed/gateway/internal/stats"
)

const (
	StatActiveConnections = "ActiveConnections"
	StatOnlineUsers       = "OnlineUsers"
	StatMessagesDelivered = "MessagesDelivered"
	StatRateLimitedEvents = "RateLimitedEvents"
)

// Gateway owns all shared state of the real-time subsystem: the
// presence table, room membership and the per-user rate windows. A
// single instance is constructed at startup and torn down at shutdown;
// nothing is package-level, so tests can run isolated gateways.
type Gateway struct {
	log     *log.Logger
	stats   stats.StatsProvider
	limiter *RateLimiter

	mu      sync.Mutex
	clients map[*Client]struct{}
	// userMap tracks every connection per user id. A user is online
	// while it has at least one entry here.
	userMap map[string]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

type Options struct {
	RateLimitWindow time.Duration
	RateLimitMax    int
}

func NewGateway(logger *log.Logger, su stats.StatsProvider, opts Options) (*Gateway, error) {
	gw := &Gateway{
		log:     logger,
		stats:   su,
		limiter: NewRateLimiter(opts.RateLimitWindow, opts.RateLimitMax),
		clients: make(map[*Client]struct{}),
		userMap: make(map[string]map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}

	for _, name := range []string{
		StatActiveConnections,
		StatOnlineUsers,
		StatMessagesDelivered,
		StatRateLimitedEvents,
	} {
		gw.stats.RegisterMetric(name)
	}

	return gw, nil
}

// RegisterClient adds an authenticated connection to the presence
// table, subscribes it to its own private room and notifies every
// other connection when this brings the user online. Idempotent.
func (gw *Gateway) RegisterClient(c *Client) {
	gw.mu.Lock()
	if _, ok := gw.clients[c]; ok {
		gw.mu.Unlock()
		return
	}

	gw.clients[c] = struct{}{}
	if gw.userMap[c.userId] == nil {
		gw.userMap[c.userId] = make(map[*Client]struct{})
	}
	gw.userMap[c.userId][c] = struct{}{}
	firstConn := len(gw.userMap[c.userId]) == 1

	gw.subscribeLocked(c, c.userId)
	others := gw.snapshotLocked(c)
	gw.mu.Unlock()

	c.addRoom(c.userId)

	gw.log.Printf("registered connection %q for user %q", c.id, c.userId)
	gw.stats.Incr(StatActiveConnections)

	if firstConn {
		gw.stats.Incr(StatOnlineUsers)
		notifyPresence(others, c.userId, true)
	}
}

// UnregisterClient removes one connection. When it was the user's last
// connection the user's rate window is discarded and an offline
// presence change is broadcast.
func (gw *Gateway) UnregisterClient(c *Client) {
	gw.mu.Lock()
	if _, ok := gw.clients[c]; !ok {
		gw.mu.Unlock()
		return
	}

	delete(gw.clients, c)
	for _, roomId := range c.roomList() {
		gw.unsubscribeLocked(c, roomId)
	}

	if userClients, ok := gw.userMap[c.userId]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(gw.userMap, c.userId)
		}
	}
	lastConn := gw.userMap[c.userId] == nil

	var others []*Client
	if lastConn {
		others = gw.snapshotLocked(c)
	}
	gw.mu.Unlock()

	c.clearRooms()

	gw.log.Printf("removed connection %q for user %q", c.id, c.userId)
	gw.stats.Decr(StatActiveConnections)

	if lastConn {
		gw.limiter.Discard(c.userId)
		gw.stats.Decr(StatOnlineUsers)
		notifyPresence(others, c.userId, false)
	}
}

// OnlineUsers returns the deduplicated, sorted set of user ids with at
// least one active connection.
func (gw *Gateway) OnlineUsers() []string {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	users := make([]string, 0, len(gw.userMap))
	for userId := range gw.userMap {
		users = append(users, userId)
	}
	sort.Strings(users)

	return users
}

func (gw *Gateway) IsOnline(userId string) bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	return gw.userMap[userId] != nil
}

// Subscribe adds the connection to a room. Authorization is the
// caller's responsibility; the dispatcher runs the room id and access
// checks before calling this.
func (gw *Gateway) Subscribe(c *Client, roomId string) {
	gw.mu.Lock()
	gw.subscribeLocked(c, roomId)
	gw.mu.Unlock()

	c.addRoom(roomId)
}

// Unsubscribe removes the connection from a room. Leaving a room the
// connection never joined is a no-op.
func (gw *Gateway) Unsubscribe(c *Client, roomId string) {
	gw.mu.Lock()
	gw.unsubscribeLocked(c, roomId)
	gw.mu.Unlock()

	c.delRoom(roomId)
}

func (gw *Gateway) subscribeLocked(c *Client, roomId string) {
	if gw.rooms[roomId] == nil {
		gw.rooms[roomId] = make(map[*Client]struct{})
	}
	gw.rooms[roomId][c] = struct{}{}
}

func (gw *Gateway) unsubscribeLocked(c *Client, roomId string) {
	if members, ok := gw.rooms[roomId]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(gw.rooms, roomId)
		}
	}
}

// Publish delivers an event to every connection subscribed to the
// room, except evt.SkipClient. Delivery is best effort: a room with no
// subscribers drops the event, and a connection with a full send
// buffer is skipped rather than awaited.
func (gw *Gateway) Publish(roomId string, evt *ServerEvent) {
	gw.mu.Lock()
	members := make([]*Client, 0, len(gw.rooms[roomId]))
	for c := range gw.rooms[roomId] {
		members = append(members, c)
	}
	gw.mu.Unlock()

	for _, c := range members {
		if c == evt.SkipClient {
			continue
		}
		c.queueEvent(evt)
	}
}

// snapshotLocked copies the current connection set so broadcasts never
// iterate a map being mutated by concurrent registrations.
func (gw *Gateway) snapshotLocked(skip *Client) []*Client {
	others := make([]*Client, 0, len(gw.clients))
	for c := range gw.clients {
		if c == skip {
			continue
		}
		others = append(others, c)
	}

	return others
}

func notifyPresence(clients []*Client, userId string, online bool) {
	evt := &ServerEvent{
		BaseEvent: BaseEvent{
			Timestamp: Now(),
		},
		Presence: &PresenceChange{
			UserId: userId,
			Online: online,
		},
	}

	for _, c := range clients {
		c.queueEvent(evt)
	}
}

// Shutdown stops every connected client. The read and write pumps exit
// once their stop channels close, which unregisters each connection.
func (gw *Gateway) Shutdown(ctx context.Context) error {
	gw.mu.Lock()
	clients := make([]*Client, 0, len(gw.clients))
	for c := range gw.clients {
		clients = append(clients, c)
	}
	gw.mu.Unlock()

	gw.log.Printf("shutting down %d connections", len(clients))
	for _, c := range clients {
		c.stopClient()
	}

	return ctx.Err()
}
