package notification

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dianbiao-backend/internal/model"
)

type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

type fakeStore struct {
	mu      sync.Mutex
	subs    map[int64][]model.PushSubscription
	devices map[int64]model.Device
	deleted chan string
}

func (f *fakeStore) SubscriptionsForDevice(ctx context.Context, deviceID int64) ([]model.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[deviceID], nil
}

func (f *fakeStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	f.deleted <- endpoint
	return nil
}

func (f *fakeStore) GetDevice(ctx context.Context, id int64) (model.Device, error) {
	d, ok := f.devices[id]
	if !ok {
		return model.Device{}, errors.New("device not found")
	}
	return d, nil
}

func response(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
}

func TestWorkerPool_Dispatch(t *testing.T) {
	wp := NewWorkerPool(1, nil, &webpush.Options{})
	require.True(t, wp.Dispatch(context.Background(), Alert{DeviceID: 123, Hours: 30}))

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, int64(123), job.DeviceID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_DispatchGivesUpWhenCancelled(t *testing.T) {
	wp := NewWorkerPool(1, nil, &webpush.Options{})
	for len(wp.jobs) < cap(wp.jobs) {
		wp.jobs <- Alert{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, wp.Dispatch(ctx, Alert{DeviceID: 1}))
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	store := &fakeStore{
		subs: map[int64][]model.PushSubscription{
			101: {{Endpoint: "https://example.com/push", P256DH: "p", Auth: "a"}},
			102: {{Endpoint: "https://example.com/expired", P256DH: "p", Auth: "a"}},
			103: {{Endpoint: "https://example.com/fallback", P256DH: "p", Auth: "a"}},
		},
		devices: map[int64]model.Device{
			101: {ID: 101, Code: "M-101", Area: &model.Area{Name: "A区"}, Floor: &model.Floor{Name: "1F"}, Room: &model.Room{Name: "101"}},
			102: {ID: 102, Code: "M-102"},
		},
		deleted: make(chan string, 1),
	}
	wp := NewWorkerPool(1, store, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends alert with device location", func(t *testing.T) {
		got := make(chan string, 1)
		wp.sender = &mockSender{SendFunc: func(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
			assert.Equal(t, "https://example.com/push", sub.Endpoint)
			got <- string(payload)
			return response(http.StatusCreated), nil
		}}

		wp.Dispatch(ctx, Alert{DeviceID: 101, Hours: 25.5})
		select {
		case msg := <-got:
			assert.Equal(t, "电表 M-101（A区 1F 101） 已 25.5 小时未上报读数", msg)
		case <-time.After(time.Second):
			t.Fatal("alert was not sent")
		}
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		wp.sender = &mockSender{SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
			return response(http.StatusGone), nil
		}}

		wp.Dispatch(ctx, Alert{DeviceID: 102, Hours: 48})
		select {
		case endpoint := <-store.deleted:
			assert.Equal(t, "https://example.com/expired", endpoint)
		case <-time.After(time.Second):
			t.Fatal("expired subscription was not deleted")
		}
	})

	t.Run("falls back to device id when lookup fails", func(t *testing.T) {
		got := make(chan string, 1)
		wp.sender = &mockSender{SendFunc: func(payload []byte, _ *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
			got <- string(payload)
			return response(http.StatusCreated), nil
		}}

		wp.Dispatch(ctx, Alert{DeviceID: 103, Hours: 24})
		select {
		case msg := <-got:
			assert.Equal(t, "电表 103 已 24.0 小时未上报读数", msg)
		case <-time.After(time.Second):
			t.Fatal("alert was not sent")
		}
	})
}
