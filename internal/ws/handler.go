package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/killerdox/buildsync/internal/broker"
	"github.com/killerdox/buildsync/pkg/types"
)

// Handler upgrades to a websocket and bridges it onto the broker, so
// websocket clients and SSE subscribers observe the same envelopes. This
// is the low-latency development transport; the SSE/broadcast pair is the
// deployed one.
func Handler(b *broker.Broker, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		ch := b.SubscribeChan(clientID)
		defer b.UnsubscribeID(clientID)

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for env := range ch {
				payload, err := json.Marshal(env)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var env types.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				log.Warn("bad websocket frame", zap.String("client", clientID), zap.Error(err))
				continue
			}
			if env.Type == "" || env.OriginID == "" {
				log.Warn("websocket frame missing type or origin", zap.String("client", clientID))
				continue
			}
			if env.UpdatedAt == 0 {
				env.UpdatedAt = time.Now().UnixMilli()
			}

			b.PublishEnvelope(env)
		}
	}
}
