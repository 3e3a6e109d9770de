package types

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Event types carried on the wire. build:update and build:reset are the
// only ones the build store reacts to; the rest are relayed untouched so
// future clients can layer presence/asset signals on the same channel.
const (
	EventBuildUpdate  = "build:update"
	EventBuildReset   = "build:reset"
	EventAssetUpdate  = "asset:update"
	EventUserPresence = "user:presence"

	// Transport-internal frames. Never forwarded to subscribers.
	EventHeartbeat   = "heartbeat"
	EventEstablished = "connection:established"
)

// Envelope is the wire frame shared by every transport: the broadcast POST
// body, SSE data frames, and websocket messages.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	OriginID  string          `json:"originId,omitempty"`
	UpdatedAt int64           `json:"updatedAt,omitempty"`
}

// DedupKey identifies a logical event for the broadcast dedup cache.
// Two envelopes with the same origin, type and timestamp are the same event.
func (e Envelope) DedupKey() string {
	var b strings.Builder
	b.WriteString(e.OriginID)
	b.WriteByte('|')
	b.WriteString(e.Type)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.UpdatedAt, 10))
	return b.String()
}

// Internal reports whether the frame is transport plumbing that receivers
// must swallow rather than hand to subscribers.
func (e Envelope) Internal() bool {
	return e.Type == EventHeartbeat || e.Type == EventEstablished
}

// BroadcastResult is the response body of the broadcast POST endpoint.
// Cached means the envelope was a repeat within the dedup window and was
// acknowledged without re-broadcasting.
type BroadcastResult struct {
	Success bool `json:"success"`
	Cached  bool `json:"cached,omitempty"`
}

// SetStateResult is the response body of the shared-state POST endpoint.
type SetStateResult struct {
	Success   bool  `json:"success"`
	UpdatedAt int64 `json:"updatedAt"`
}
