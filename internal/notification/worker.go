package notification

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"

	"dianbiao-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender sends notifications with the webpush library.
type WebPushSender struct{}

func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Store is what the workers need to find and prune subscribers.
type Store interface {
	SubscriptionsForDevice(ctx context.Context, deviceID int64) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	GetDevice(ctx context.Context, id int64) (model.Device, error)
}

// Alert reports a meter that has not sent a reading for Hours hours.
type Alert struct {
	DeviceID int64
	Hours    float64
}

// WorkerPool sends stale-meter alerts to the subscribers of a device.
type WorkerPool struct {
	size    int
	jobs    chan Alert
	store   Store
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s Store, webpushOptions *webpush.Options) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Alert, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Debug().Int("worker", id).Msg("notification worker started")
	for {
		select {
		case alert := <-wp.jobs:
			wp.notifySubscribers(ctx, alert)
		case <-ctx.Done():
			log.Debug().Int("worker", id).Msg("notification worker shutting down")
			return
		}
	}
}

// Dispatch queues an alert. It gives up when ctx is done before the queue has room.
func (wp *WorkerPool) Dispatch(ctx context.Context, alert Alert) bool {
	select {
	case wp.jobs <- alert:
		return true
	case <-ctx.Done():
		log.Warn().Int64("device", alert.DeviceID).Msg("dropping stale meter alert")
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Alert {
	return wp.jobs
}

func (wp *WorkerPool) notifySubscribers(ctx context.Context, alert Alert) {
	subscriptions, err := wp.store.SubscriptionsForDevice(ctx, alert.DeviceID)
	if err != nil {
		log.Error().Err(err).Int64("device", alert.DeviceID).Msg("failed to fetch subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	label := fmt.Sprintf("%d", alert.DeviceID)
	if device, err := wp.store.GetDevice(ctx, alert.DeviceID); err != nil {
		log.Warn().Err(err).Int64("device", alert.DeviceID).Msg("failed to load device for alert")
	} else {
		label = deviceLabel(device)
	}

	message := fmt.Sprintf("电表 %s 已 %.1f 小时未上报读数", label, alert.Hours)
	log.Info().Int64("device", alert.DeviceID).Int("subscribers", len(subscriptions)).Msg("sending stale meter alerts")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, []byte(message))
	}
}

// deviceLabel is the meter number followed by its location, e.g. "M-001（A区 1F 101）".
func deviceLabel(d model.Device) string {
	var parts []string
	for _, name := range []string{d.AreaName(), d.FloorName(), d.RoomName()} {
		if name != "" {
			parts = append(parts, name)
		}
	}
	if len(parts) == 0 {
		return d.Code
	}
	return fmt.Sprintf("%s（%s）", d.Code, strings.Join(parts, " "))
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to send notification")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Info().Str("endpoint", sub.Endpoint).Msg("subscription expired, deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.Error().Err(err).Str("endpoint", sub.Endpoint).Msg("failed to delete expired subscription")
		}
	}
}
