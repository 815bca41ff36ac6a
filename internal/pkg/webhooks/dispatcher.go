package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/chainlens/chainlens/app/models"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	HeaderSignature = "X-ChainLens-Signature"
	HeaderEvent     = "X-ChainLens-Event"

	webhookUserAgent = "ChainLens-Webhook/1.0"

	// DefaultConcurrency bounds the number of in-flight delivery attempts.
	DefaultConcurrency = 8

	maxResponseBody = 1024
)

// Dispatcher fans business events out to matching subscriptions. Publishing
// is fire-and-forget: delivery runs on background workers, failures are
// retried with exponential backoff up to the subscription's retry limit, and
// every attempt is recorded in the delivery log.
type Dispatcher struct {
	repo      Repository
	client    *http.Client
	retryBase time.Duration
	sem       chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// NewDispatcher creates a dispatcher with a bounded worker pool.
func NewDispatcher(repo Repository, concurrency int) *Dispatcher {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	return &Dispatcher{
		repo:      repo,
		client:    &http.Client{},
		retryBase: time.Second,
		sem:       make(chan struct{}, concurrency),
		stopCh:    make(chan struct{}),
	}
}

// Start makes the dispatcher accept deliveries.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.stopCh = make(chan struct{})
	d.running = true
	log.Infof("[Webhooks] Dispatcher started (concurrency=%d)", cap(d.sem))
}

// Stop waits for in-flight deliveries to finish. Backoff timers that have
// not fired yet are dropped; each delivery record was already written
// atomically, so the log stays consistent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopCh)
	d.mu.Unlock()

	log.Info("[Webhooks] Dispatcher stopping...")
	d.wg.Wait()
	log.Info("[Webhooks] Dispatcher stopped")
}

// Publish resolves the active subscriptions covering eventType (optionally
// scoped to one user; scopeUserID == 0 means all users) and schedules one
// independent delivery per subscription. It returns once everything is
// scheduled and never surfaces downstream delivery problems.
func (d *Dispatcher) Publish(eventType string, payload interface{}, scopeUserID uint) {
	subs, err := d.repo.ActiveSubscriptions(eventType, scopeUserID)
	if err != nil {
		log.Errorf("[Webhooks] Failed to resolve subscriptions for %s: %v", eventType, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(Event{Event: eventType, Timestamp: time.Now().UTC(), Data: payload})
	if err != nil {
		log.Errorf("[Webhooks] Failed to encode payload for %s: %v", eventType, err)
		return
	}

	for i := range subs {
		d.dispatchAsync(subs[i], eventType, body, 1)
	}
}

// dispatchAsync hands one delivery attempt to the worker pool. Attempts
// scheduled after Stop are dropped.
func (d *Dispatcher) dispatchAsync(sub models.WebhookSubscription, eventType string, body []byte, attempt int) {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		select {
		case d.sem <- struct{}{}:
		case <-d.stopCh:
			return
		}
		defer func() { <-d.sem }()

		d.deliver(sub, eventType, body, attempt)
	}()
}

// deliver performs one attempt and schedules the retry on failure. The
// backoff doubles per attempt; once the retry limit is exhausted the event is
// abandoned for this subscription and only the delivery log remembers it.
func (d *Dispatcher) deliver(sub models.WebhookSubscription, eventType string, body []byte, attempt int) {
	if d.deliverOnce(sub, eventType, body, attempt) {
		return
	}

	if attempt <= sub.RetryLimit {
		delay := d.retryBase << attempt
		log.Infof("[Webhooks] Retrying %s for subscription %s in %s (attempt %d/%d)",
			eventType, sub.ID, delay, attempt+1, sub.RetryLimit+1)
		time.AfterFunc(delay, func() {
			d.dispatchAsync(sub, eventType, body, attempt+1)
		})
		return
	}

	log.Warnf("[Webhooks] Abandoning %s for subscription %s after %d attempts", eventType, sub.ID, attempt)
}

// deliverOnce performs exactly one signed POST bounded by the subscription
// timeout and records the outcome. Returns true on a 2xx response.
func (d *Dispatcher) deliverOnce(sub models.WebhookSubscription, eventType string, body []byte, attempt int) bool {
	rec := &models.WebhookDelivery{
		ID:            uuid.New().String(),
		WebhookID:     sub.ID,
		EventType:     eventType,
		PayloadJSON:   string(body),
		AttemptNumber: attempt,
	}

	success := false
	now := time.Now()

	secret, err := d.repo.SigningSecret(sub.ID)
	if err != nil {
		rec.ErrorMessage = fmt.Sprintf("secret lookup failed: %v", err)
	} else {
		success = d.post(sub, eventType, body, secret, rec)
	}

	if success {
		rec.Success = true
		rec.DeliveredAt = &now
	}

	if err := d.repo.RecordDelivery(rec); err != nil {
		log.Errorf("[Webhooks] Failed to record delivery for subscription %s: %v", sub.ID, err)
	}
	if err := d.repo.RecordOutcome(sub.ID, success, now); err != nil {
		log.Errorf("[Webhooks] Failed to record outcome for subscription %s: %v", sub.ID, err)
	}

	return success
}

func (d *Dispatcher) post(sub models.WebhookSubscription, eventType string, body []byte, secret string, rec *models.WebhookDelivery) bool {
	ctx, cancel := context.WithTimeout(context.Background(), sub.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		rec.ErrorMessage = err.Error()
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, SignBytes(secret, body))
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		rec.ErrorMessage = err.Error()
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	status := resp.StatusCode
	rec.HTTPStatus = &status
	rec.ResponseBody = string(respBody)

	if status < 200 || status >= 300 {
		rec.ErrorMessage = fmt.Sprintf("unexpected status %d", status)
		return false
	}
	return true
}
