package server

import (
	"context"
	"encoding/json"
	"net/http"
	"partysync/internal/wshub"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.Logger.Warn("websocket accept", "err", err)
		return
	}
	defer conn.CloseNow()

	client := &wshub.Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 64),
	}
	s.Hub.Register(client)
	defer s.Hub.Unregister(client.ID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go client.WritePump(ctx)

	s.Hub.SendTo(client.ID, wshub.ServerMessage{Type: wshub.CmdStatus, Status: s.Coord.Status()})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg wshub.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Hub.SendTo(client.ID, wshub.ServerMessage{Type: "error", Error: "malformed message"})
			continue
		}
		if !s.apply(msg.Type) {
			s.Hub.SendTo(client.ID, wshub.ServerMessage{Type: "error", Error: "unknown command " + msg.Type})
			continue
		}
		s.Hub.SendTo(client.ID, wshub.ServerMessage{Type: wshub.CmdStatus, Status: s.Coord.Status()})
	}
}
