package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/killerdox/buildsync/internal/build"
	"github.com/killerdox/buildsync/pkg/types"
)

// DefaultPollInterval is how often the polling transport re-fetches the
// shared state.
const DefaultPollInterval = 2 * time.Second

// PollTransport is the shared-snapshot variant: every client overwrites
// one server-side build via POST and periodically re-fetches it. A fetched
// state only reaches subscribers when it is strictly newer than anything
// seen before and comes from a different origin.
type PollTransport struct {
	stateURL string
	client   *http.Client
	interval time.Duration
	origin   string
	log      *zap.Logger

	d    dispatcher
	flag connFlag

	mu      sync.Mutex
	lastAt  int64
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

type PollOptions struct {
	Interval time.Duration
	Client   *http.Client
}

func NewPoll(baseURL, origin string, log *zap.Logger, opts PollOptions) *PollTransport {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PollTransport{
		stateURL: strings.TrimRight(baseURL, "/") + "/api/realtime/state",
		client:   opts.Client,
		interval: opts.Interval,
		origin:   origin,
		log:      log,
		d:        dispatcher{log: log},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect starts the poll loop. Safe to call more than once.
func (t *PollTransport) Connect() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()
	go t.loop()
}

func (t *PollTransport) loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.pollOnce()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce()
		}
	}
}

func (t *PollTransport) pollOnce() {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.stateURL, nil)
	if err != nil {
		t.pollFailed(err)
		return
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.pollFailed(err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.pollFailed(fmt.Errorf("state fetch: status %d", resp.StatusCode))
		return
	}

	var b build.Build
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		t.pollFailed(err)
		return
	}
	t.flag.set(true)

	t.mu.Lock()
	fresh := b.UpdatedAt > t.lastAt
	if fresh {
		t.lastAt = b.UpdatedAt
	}
	t.mu.Unlock()

	if !fresh || b.OriginID == "" || b.OriginID == t.origin {
		return
	}

	payload, err := json.Marshal(b)
	if err != nil {
		t.log.Warn("marshal fetched state", zap.Error(err))
		return
	}
	t.d.emit(types.Envelope{
		Type:      types.EventBuildUpdate,
		Payload:   payload,
		OriginID:  b.OriginID,
		UpdatedAt: b.UpdatedAt,
	})
}

// pollFailed flips the status flag; the next tick is the retry, no extra
// timer is scheduled.
func (t *PollTransport) pollFailed(err error) {
	t.flag.set(false)
	t.log.Debug("poll failed", zap.Error(err))
}

// Publish overwrites the shared state wholesale. A reset envelope posts the
// empty build. Failures are logged and swallowed.
func (t *PollTransport) Publish(ctx context.Context, env types.Envelope) {
	var body []byte
	switch env.Type {
	case types.EventBuildUpdate:
		body = env.Payload
	case types.EventBuildReset:
		empty := build.Empty()
		empty.OriginID = env.OriginID
		var err error
		if body, err = json.Marshal(empty); err != nil {
			t.log.Warn("marshal reset", zap.Error(err))
			return
		}
	default:
		// The shared cell only holds builds; other event types have no
		// representation in this variant.
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.stateURL, bytes.NewReader(body))
	if err != nil {
		t.log.Warn("build state request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn("state publish failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	var result types.SetStateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.UpdatedAt > 0 {
		// Remember our own server-stamped write so the next poll does not
		// look older than it is.
		t.mu.Lock()
		if result.UpdatedAt > t.lastAt {
			t.lastAt = result.UpdatedAt
		}
		t.mu.Unlock()
	}
}

func (t *PollTransport) Subscribe(h Handler) func() { return t.d.subscribe(h) }

func (t *PollTransport) Connected() bool { return t.flag.get() }

func (t *PollTransport) OnConnectionChange(f func(bool)) func() { return t.flag.watch(f) }

func (t *PollTransport) Close() {
	t.cancel()
	t.flag.set(false)
}
