package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"devhub/internal/audit"
	"devhub/internal/config"
	"devhub/internal/dbctx"
	"devhub/internal/domain"
	"devhub/internal/logger"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

type webhookDispatcher struct {
	events   audit.Writer
	webhooks []config.WebhookConfig
	client   *http.Client
	log      *logger.Logger
	mu       sync.Mutex
	cursors  map[int]int64
}

// StartWebhooks forwards new audit events to the active webhooks until ctx is done.
// It returns false when no webhook is active.
func StartWebhooks(ctx context.Context, events audit.Writer, hooks []config.WebhookConfig, log *logger.Logger) bool {
	d := newWebhookDispatcher(events, hooks, log)
	if len(d.webhooks) == 0 {
		return false
	}
	go d.run(ctx)
	return true
}

func newWebhookDispatcher(events audit.Writer, hooks []config.WebhookConfig, log *logger.Logger) *webhookDispatcher {
	if log == nil {
		log = logger.Nop()
	}
	var active []config.WebhookConfig
	for _, hook := range hooks {
		if hook.Active() {
			active = append(active, hook)
		}
	}
	return &webhookDispatcher{
		events:   events,
		webhooks: active,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		log:      log.With("component", "webhooks"),
		cursors:  make(map[int]int64),
	}
}

func (d *webhookDispatcher) run(ctx context.Context) {
	ticker := time.NewTicker(defaultWebhookInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *webhookDispatcher) dispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *webhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	dbc := dbctx.New(ctx)
	cursor := d.cursorFor(dbc, idx)
	events, err := d.events.After(dbc, cursor, defaultWebhookBatch)
	if err != nil {
		d.log.Warn("fetch events failed", "error", err)
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range events {
		if !filter.match(evt.Module, evt.Action) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, hook, evt); err != nil {
			d.log.Warn("deliver failed", "url", hook.URL, "event_id", evt.ID, "error", err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

// cursorFor starts a webhook at the newest event so history is not replayed.
func (d *webhookDispatcher) cursorFor(dbc dbctx.Context, idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.events.LatestID(dbc)
	if err != nil {
		d.log.Warn("init cursor failed", "error", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *webhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookEvent struct {
	ID       int64          `json:"id"`
	Event    string         `json:"event"`
	Module   string         `json:"module"`
	Action   string         `json:"action"`
	EntityID string         `json:"entityId,omitempty"`
	ActorID  string         `json:"actorId"`
	TS       time.Time      `json:"ts"`
	Payload  map[string]any `json:"payload"`
}

func eventName(module, action string) string {
	return module + ":" + action
}

func (d *webhookDispatcher) postEvent(ctx context.Context, hook config.WebhookConfig, evt domain.AuditEvent) error {
	payload := map[string]any(evt.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	body := webhookEvent{
		ID:       evt.ID,
		Event:    eventName(evt.Module, evt.Action),
		Module:   evt.Module,
		Action:   evt.Action,
		EntityID: evt.EntityID,
		ActorID:  evt.ActorID,
		TS:       evt.TS,
		Payload:  payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	timeout := defaultWebhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	client := d.client
	if timeout != d.client.Timeout {
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Devhub-Event", body.Event)
	req.Header.Set("X-Devhub-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Devhub-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		if key == "*" {
			return eventFilter{all: true}
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(module, action string) bool {
	if f.all {
		return true
	}
	if _, ok := f.set[eventName(module, action)]; ok {
		return true
	}
	_, ok := f.set[eventName(module, "*")]
	return ok
}
