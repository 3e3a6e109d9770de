package realtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/killerdox/buildsync/pkg/types"
)

// DefaultReconnectBackoff matches the interval the frontend has always
// used between reconnect attempts.
const DefaultReconnectBackoff = 3 * time.Second

type ssePhase int

const (
	sseDisconnected ssePhase = iota
	sseConnecting
	sseConnected
	sseClosed
)

// SSETransport is the push-variant client: a long-lived GET stream for
// inbound envelopes and a POST endpoint for publishing. The connection is
// self-healing; failures schedule a silent reconnect on a fixed backoff,
// with at most one outstanding reconnect timer.
type SSETransport struct {
	eventsURL    string
	broadcastURL string
	client       *http.Client
	backoff      time.Duration
	log          *zap.Logger

	d    dispatcher
	flag connFlag

	mu     sync.Mutex
	phase  ssePhase
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

type SSEOptions struct {
	Backoff time.Duration
	Client  *http.Client
}

func NewSSE(baseURL string, log *zap.Logger, opts SSEOptions) *SSETransport {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultReconnectBackoff
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	base := strings.TrimRight(baseURL, "/")
	return &SSETransport{
		eventsURL:    base + "/api/realtime/events",
		broadcastURL: base + "/api/realtime/broadcast",
		client:       opts.Client,
		backoff:      opts.Backoff,
		log:          log,
		d:            dispatcher{log: log},
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Connect starts the event stream. Safe to call more than once.
func (t *SSETransport) Connect() {
	t.mu.Lock()
	if t.phase != sseDisconnected {
		t.mu.Unlock()
		return
	}
	t.phase = sseConnecting
	t.mu.Unlock()
	go t.stream()
}

func (t *SSETransport) stream() {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.eventsURL, nil)
	if err != nil {
		t.streamFailed(err)
		return
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.streamFailed(err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.streamFailed(fmt.Errorf("events stream: status %d", resp.StatusCode))
		return
	}

	t.mu.Lock()
	if t.phase == sseClosed {
		t.mu.Unlock()
		return
	}
	t.phase = sseConnected
	t.mu.Unlock()
	t.flag.set(true)
	t.log.Debug("event stream connected")

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(data) == 0 {
			continue
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Warn("bad event frame", zap.Error(err))
			continue
		}
		if env.Internal() {
			continue
		}
		t.d.emit(env)
	}
	t.streamFailed(scanner.Err())
}

// streamFailed transitions to disconnected and schedules one reconnect.
func (t *SSETransport) streamFailed(err error) {
	t.mu.Lock()
	if t.phase == sseClosed {
		t.mu.Unlock()
		return
	}
	t.phase = sseDisconnected
	if t.timer == nil {
		t.timer = time.AfterFunc(t.backoff, t.retry)
	}
	t.mu.Unlock()

	t.flag.set(false)
	if err != nil {
		t.log.Debug("event stream lost, reconnecting", zap.Error(err))
	}
}

func (t *SSETransport) retry() {
	t.mu.Lock()
	t.timer = nil
	if t.phase != sseDisconnected {
		t.mu.Unlock()
		return
	}
	t.phase = sseConnecting
	t.mu.Unlock()
	go t.stream()
}

// Publish POSTs the envelope to the broadcast endpoint. Failures are
// logged and swallowed; the local UI is never blocked by the network.
func (t *SSETransport) Publish(ctx context.Context, env types.Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		t.log.Warn("marshal envelope", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.broadcastURL, bytes.NewReader(body))
	if err != nil {
		t.log.Warn("build broadcast request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn("broadcast failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.log.Warn("broadcast rejected", zap.Int("status", resp.StatusCode))
	}
}

func (t *SSETransport) Subscribe(h Handler) func() { return t.d.subscribe(h) }

func (t *SSETransport) Connected() bool { return t.flag.get() }

func (t *SSETransport) OnConnectionChange(f func(bool)) func() { return t.flag.watch(f) }

// Close stops the stream and the reconnect timer. Idempotent.
func (t *SSETransport) Close() {
	t.mu.Lock()
	t.phase = sseClosed
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()
	t.cancel()
	t.flag.set(false)
}
