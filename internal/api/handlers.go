package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/filmfeed/gateway/internal/gateway"
)

type OnlineUsersResponse struct {
	Users []string `json:"users"`
}

type UserOnlineResponse struct {
	UserId string `json:"user_id"`
	Online bool   `json:"online"`
}

func (s *Server) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// listOnlineUsers returns the deduplicated set of user ids with at
// least one open connection, for annotating friend lists with live
// status.
func (s *Server) listOnlineUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, http.StatusOK, OnlineUsersResponse{
		Users: s.gw.OnlineUsers(),
	})
}

func (s *Server) userOnline(w http.ResponseWriter, r *http.Request) {
	userId := r.PathValue("userId")
	if userId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, UserOnlineResponse{
		UserId: userId,
		Online: s.gw.IsOnline(userId),
	})
}

// serveWs upgrades the connection and registers it with the gateway.
// The auth middleware already bound the user id, so no connection ever
// reaches the gateway unauthenticated.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := gateway.NewClient(userId, conn, s.gw, s.log)

	s.gw.RegisterClient(client)
	go client.Write()
	go client.Read()
}
