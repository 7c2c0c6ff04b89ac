package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/shoptrip/internal/adapters/nats"
	"github.com/samirrijal/shoptrip/internal/pkg/metrics"
)

// wsMessage is sent by the client.
type wsMessage struct {
	Action string `json:"action"` // "snapshot"
}

type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// WebSocketHandler streams one session's trip events. The client receives a
// snapshot on connect, every event published for the session afterwards, and
// a fresh snapshot whenever it sends {"action":"snapshot"}.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		sessionID := c.Params("session")
		log := slog.Default().With("session", sessionID, "remote", c.RemoteAddr().String())

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		planner, err := deps.Sessions.Resume(context.Background(), sessionID)
		if err != nil {
			_ = writeJSON(wsEnvelope{Type: "error", Data: err.Error()})
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		log.Info("ws client connected")

		if err := writeJSON(wsEnvelope{Type: "snapshot", Data: tripView(planner)}); err != nil {
			return
		}

		if deps.NATS != nil {
			sub, err := deps.NATS.Subscribe(natsadapter.TripSubject(sessionID), func(msg *nats.Msg) {
				_ = writeJSON(wsEnvelope{Type: "event", Data: json.RawMessage(msg.Data)})
			})
			if err != nil {
				log.Error("ws subscribe failed", "error", err)
				return
			}
			defer func() { _ = sub.Unsubscribe() }()
		}

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(wsEnvelope{Type: "error", Data: "invalid JSON"})
				continue
			}

			switch m.Action {
			case "snapshot":
				// The session may have been evicted and restored since connect.
				if p, err := deps.Sessions.Resume(context.Background(), sessionID); err == nil {
					planner = p
				}
				_ = writeJSON(wsEnvelope{Type: "snapshot", Data: tripView(planner)})
			default:
				_ = writeJSON(wsEnvelope{Type: "error", Data: "unknown action: " + m.Action})
			}
		}

		log.Info("ws client disconnected")
	}
}
