package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/filmfeed/gateway/internal/auth"
	"github.com/filmfeed/gateway/internal/config"
	"github.com/filmfeed/gateway/internal/gateway"
	"github.com/filmfeed/gateway/internal/stats"
	"github.com/filmfeed/gateway/internal/testutil"
)

func newTestApp(t *testing.T) (*Server, *gateway.Gateway) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)
	su.On("Incr", mock.Anything).Return(nil).Maybe()
	su.On("Decr", mock.Anything).Return(nil).Maybe()

	logger := testutil.TestLogger(t)
	gw, err := gateway.NewGateway(logger, su, gateway.Options{})
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}

	cfg := &config.Config{
		ServerAddr: "localhost:0",
		SigningKey: testutil.TestSigningKey,
	}

	mux := http.NewServeMux()
	s := NewServer(mux, logger, gw, auth.NewAuthenticator(cfg.SigningKey), cfg)
	return s, gw
}

func sessionToken(t *testing.T, s *Server, userId string) string {
	token, err := s.authn.NewSessionToken(userId, time.Hour)
	if err != nil {
		t.Fatalf("failed to issue session token: %v", err)
	}
	return token
}

func TestListOnlineUsers(t *testing.T) {
	s, gw := newTestApp(t)

	a := gateway.NewClient("userA", nil, gw, testutil.TestLogger(t))
	b1 := gateway.NewClient("userB", nil, gw, testutil.TestLogger(t))
	b2 := gateway.NewClient("userB", nil, gw, testutil.TestLogger(t))
	gw.RegisterClient(a)
	gw.RegisterClient(b1)
	gw.RegisterClient(b2)

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: sessionToken(t, s, "userA")})
	rec := httptest.NewRecorder()

	s.mux.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "expected request to succeed")

	var resp OnlineUsersResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), "expected a JSON body")
	assert.Equal(t, []string{"userA", "userB"}, resp.Users, "expected the deduplicated online set")
}

func TestUserOnline(t *testing.T) {
	s, gw := newTestApp(t)

	a := gateway.NewClient("userA", nil, gw, testutil.TestLogger(t))
	gw.RegisterClient(a)

	token := sessionToken(t, s, "userA")

	tcases := []struct {
		name   string
		userId string
		online bool
	}{
		{
			name:   "online user",
			userId: "userA",
			online: true,
		},
		{
			name:   "offline user",
			userId: "userB",
			online: false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/presence/"+tc.userId, nil)
			req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
			rec := httptest.NewRecorder()

			s.mux.Handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code, "expected request to succeed")

			var resp UserOnlineResponse
			assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp), "expected a JSON body")
			assert.Equal(t, tc.userId, resp.UserId, "expected the queried user id")
			assert.Equal(t, tc.online, resp.Online, "expected online status to match")
		})
	}
}

func TestPresenceRequiresAuth(t *testing.T) {
	s, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/presence", nil)
	rec := httptest.NewRecorder()

	s.mux.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "expected unauthenticated request to be refused")
}

func TestServeWs(t *testing.T) {
	s, gw := newTestApp(t)

	ts := httptest.NewServer(s.mux.Handler)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token="

	t.Run("rejects unauthenticated upgrade", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL+"bad-token", nil)
		assert.Error(t, err, "expected dial to fail")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "expected 401 before any upgrade")
		assert.False(t, gw.IsOnline("userA"), "expected no presence entry for a refused connection")
	})

	t.Run("message round trip", func(t *testing.T) {
		connA, _, err := websocket.DefaultDialer.Dial(wsURL+sessionToken(t, s, "userA"), nil)
		assert.NoError(t, err, "expected userA to connect")
		defer connA.Close()

		connB, _, err := websocket.DefaultDialer.Dial(wsURL+sessionToken(t, s, "userB"), nil)
		assert.NoError(t, err, "expected userB to connect")
		defer connB.Close()

		// userA is notified that userB came online.
		connA.SetReadDeadline(time.Now().Add(5 * time.Second))
		var presence gateway.ServerEvent
		assert.NoError(t, connA.ReadJSON(&presence), "expected a presence event")
		assert.NotNil(t, presence.Presence, "expected an online status event")
		assert.Equal(t, "userB", presence.Presence.UserId, "expected presence event for userB")
		assert.True(t, presence.Presence.Online, "expected userB to be online")

		err = connB.WriteJSON(map[string]any{
			"id":      1,
			"message": map[string]any{"receiver_id": "userA", "content": "loved that film"},
		})
		assert.NoError(t, err, "expected send to succeed")

		var msg gateway.ServerEvent
		assert.NoError(t, connA.ReadJSON(&msg), "expected a message event")
		assert.NotNil(t, msg.Message, "expected a direct message")
		assert.Equal(t, "userB", msg.Message.SenderId, "expected sender id to be bound from the token")
		assert.Equal(t, "loved that film", msg.Message.Content, "expected the message content")

		// userB receives the delivery ack.
		connB.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ack gateway.ServerEvent
		assert.NoError(t, connB.ReadJSON(&ack), "expected an acknowledgement")
		assert.NotNil(t, ack.Response, "expected a response event")
		assert.Equal(t, http.StatusAccepted, ack.Response.ResponseCode, "expected the message to be accepted")
	})

	t.Run("oversized content is truncated, not fatal", func(t *testing.T) {
		connA, _, err := websocket.DefaultDialer.Dial(wsURL+sessionToken(t, s, "userC"), nil)
		assert.NoError(t, err, "expected userC to connect")
		defer connA.Close()

		connB, _, err := websocket.DefaultDialer.Dial(wsURL+sessionToken(t, s, "userD"), nil)
		assert.NoError(t, err, "expected userD to connect")
		defer connB.Close()

		connA.SetReadDeadline(time.Now().Add(5 * time.Second))

		// Presence events from this and earlier connections may be in
		// flight, so skip to the next direct message.
		nextMessage := func() *gateway.DirectMessage {
			t.Helper()
			for {
				var evt gateway.ServerEvent
				if !assert.NoError(t, connA.ReadJSON(&evt), "expected an event") {
					return nil
				}
				if evt.Message != nil {
					return evt.Message
				}
			}
		}

		err = connB.WriteJSON(map[string]any{
			"message": map[string]any{"receiver_id": "userC", "content": strings.Repeat("a", 5000)},
		})
		assert.NoError(t, err, "expected the oversized send to succeed")

		msg := nextMessage()
		if assert.NotNil(t, msg, "expected the message to be delivered") {
			assert.Len(t, msg.Content, 2000, "expected the content to be truncated")
		}

		// The sender's connection survives and keeps working.
		err = connB.WriteJSON(map[string]any{
			"message": map[string]any{"receiver_id": "userC", "content": "still here"},
		})
		assert.NoError(t, err, "expected a follow-up send to succeed")

		msg = nextMessage()
		if assert.NotNil(t, msg, "expected the follow-up message to be delivered") {
			assert.Equal(t, "still here", msg.Content, "expected the follow-up content")
		}
		assert.True(t, gw.IsOnline("userD"), "expected the sender to remain online")
	})
}
