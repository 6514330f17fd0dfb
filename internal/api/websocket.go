package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dividend-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket streams price ticks, decisions and alerts to the client until
// it disconnects.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	ticks, unsubTicks := s.Bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()
	decisions, unsubDec := s.Bus.Subscribe(events.EventDecision, 50)
	defer unsubDec()
	alerts, unsubAlerts := s.Bus.Subscribe(events.EventAlertEmitted, 50)
	defer unsubAlerts()

	for {
		var (
			topic events.Event
			msg   any
			ok    bool
		)
		select {
		case msg, ok = <-ticks:
			topic = events.EventPriceTick
		case msg, ok = <-decisions:
			topic = events.EventDecision
		case msg, ok = <-alerts:
			topic = events.EventAlertEmitted
		}
		if !ok {
			return
		}
		if err := conn.WriteJSON(gin.H{"topic": topic, "data": msg}); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
