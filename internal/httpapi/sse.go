package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/killerdox/buildsync/internal/broker"
	"github.com/killerdox/buildsync/pkg/types"
)

// Events handles GET /api/realtime/events: a one-way server-sent event
// stream. Clients publish through the broadcast POST endpoint, never over
// this channel. Heartbeat frames keep intermediaries from timing the
// connection out; subscribers treat them as no-ops.
func Events(b *broker.Broker, log *zap.Logger, heartbeat time.Duration) http.HandlerFunc {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		id := uuid.NewString()
		ch := b.SubscribeChan(id)
		defer b.UnsubscribeID(id)

		if err := writeFrame(w, types.Envelope{
			Type:      types.EventEstablished,
			UpdatedAt: time.Now().UnixMilli(),
		}); err != nil {
			return
		}
		flusher.Flush()

		log.Debug("sse client connected", zap.String("id", id))
		defer log.Debug("sse client disconnected", zap.String("id", id))

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return

			case <-ticker.C:
				hb := types.Envelope{Type: types.EventHeartbeat, UpdatedAt: time.Now().UnixMilli()}
				if err := writeFrame(w, hb); err != nil {
					return
				}
				flusher.Flush()

			case env, open := <-ch:
				if !open {
					// Dropped as a slow subscriber or broker shut down.
					return
				}
				if err := writeFrame(w, env); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeFrame(w io.Writer, env types.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}
