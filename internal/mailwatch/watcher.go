// Package mailwatch surfaces platform emails from the member's inbox as
// in-app notifications. It is an ordinary producer on the notification
// queue; nothing downstream treats its messages specially.
package mailwatch

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mverhagen/memberhub/internal/model"
	"github.com/mverhagen/memberhub/internal/notify"
)

// fetchTimeout is the maximum time allowed for a single inbox check.
const fetchTimeout = 30 * time.Second

// Watcher polls the inbox on an interval and enqueues a notification for
// each new platform email.
type Watcher struct {
	client   *IMAPClient
	queue    *notify.Queue
	cfg      model.MailConfig
	log      *zap.Logger
	lastSeen time.Time
	seen     map[string]struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a watcher. The password comes from the credential store,
// not the config file.
func New(cfg model.MailConfig, password string, queue *notify.Queue, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		client:   NewIMAPClient(cfg.Host, cfg.Port, cfg.Username, password, cfg.TLS),
		queue:    queue,
		cfg:      cfg,
		log:      log,
		lastSeen: time.Now().Add(-24 * time.Hour),
		seen:     make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling goroutine. Calling Start twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}
	w.running = true
	go w.loop()
}

// Stop halts the polling goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)
	w.running = false
}

func (w *Watcher) loop() {
	interval := time.Duration(w.cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.check()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check fetches new messages and enqueues notifications for platform
// mail not seen before.
func (w *Watcher) check() {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	envelopes, err := w.client.FetchSince(ctx, w.lastSeen, 50)
	if err != nil {
		w.log.Warn("inbox check failed", zap.Error(err))
		return
	}

	for _, env := range envelopes {
		if !w.fromPlatform(env) {
			continue
		}
		if _, ok := w.seen[env.MessageID]; ok {
			continue
		}
		w.seen[env.MessageID] = struct{}{}

		if env.Date.After(w.lastSeen) {
			w.lastSeen = env.Date
		}

		w.queue.Enqueue(notify.Message{
			Title:     env.Subject,
			Body:      env.Preview,
			Severity:  notify.SeverityInfo,
			Tags:      []string{"email", env.FromAddr},
			AutoClose: 6 * time.Second,
		})
	}
}

// fromPlatform applies the sender-domain filter, when configured.
func (w *Watcher) fromPlatform(env Envelope) bool {
	if w.cfg.FromDomain == "" {
		return true
	}
	return strings.HasSuffix(
		strings.ToLower(env.FromAddr),
		"@"+strings.ToLower(w.cfg.FromDomain),
	)
}
