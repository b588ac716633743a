package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dianbiao-backend/config"
	"dianbiao-backend/internal/backup"
	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/notification"
	"dianbiao-backend/internal/store"
)

type memStore struct {
	mu       sync.Mutex
	devices  []model.Device
	readings []model.Reading
	audit    []model.AuditLog
	listErr  error
}

func (m *memStore) ListDevices(ctx context.Context, _ store.DeviceFilter) ([]model.Device, error) {
	return m.devices, m.listErr
}

func (m *memStore) LatestReading(ctx context.Context, deviceID int64, _ *time.Time) (model.Reading, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest model.Reading
	found := false
	for _, r := range m.readings {
		if r.DeviceID == deviceID && (!found || r.ReadAt.After(latest.ReadAt)) {
			latest, found = r, true
		}
	}
	return latest, found, nil
}

func (m *memStore) CreateReading(ctx context.Context, r *model.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, *r)
	return nil
}

func (m *memStore) CreateAuditLog(ctx context.Context, e *model.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *e)
	return nil
}

func (m *memStore) Dump(ctx context.Context) (*store.Dump, error) {
	return &store.Dump{TakenAt: time.Now(), Devices: m.devices, Readings: m.readings}, nil
}

type memUploader struct {
	keys []string
}

func (u *memUploader) Upload(ctx context.Context, key string, body []byte) error {
	u.keys = append(u.keys, key)
	return nil
}

type memAlerter struct {
	alerts []notification.Alert
}

func (a *memAlerter) Dispatch(ctx context.Context, alert notification.Alert) bool {
	a.alerts = append(a.alerts, alert)
	return true
}

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newScheduler(s *memStore, u *memUploader, a *memAlerter) *Scheduler {
	var uploader backup.Uploader
	if u != nil {
		uploader = u
	}
	var alerter Alerter
	if a != nil {
		alerter = a
	}
	sched := New(config.JobsConfig{MaxIncrement: 10, StaleAfter: 24 * time.Hour}, s, uploader, alerter, time.UTC)
	sched.now = func() time.Time { return now }
	sched.rand = func() float64 { return 0.4567 }
	return sched
}

func TestAutoReading(t *testing.T) {
	s := &memStore{
		devices:  []model.Device{{ID: 1, Code: "M-1"}, {ID: 2, Code: "M-2"}},
		readings: []model.Reading{{DeviceID: 1, Value: 100, ReadAt: now.Add(-time.Hour)}},
	}
	require.NoError(t, newScheduler(s, nil, nil).AutoReading(context.Background()))

	require.Len(t, s.readings, 3)
	assert.Equal(t, 104.57, s.readings[1].Value)
	assert.Equal(t, 4.57, s.readings[2].Value)
	assert.Equal(t, now, s.readings[2].ReadAt)

	require.Len(t, s.audit, 1)
	assert.Equal(t, ActionAutoReading, s.audit[0].Action)
	assert.Equal(t, 2, s.audit[0].Details["device_count"])
}

func TestAutoReading_FailureIsAudited(t *testing.T) {
	s := &memStore{listErr: errors.New("connection refused")}
	err := newScheduler(s, nil, nil).AutoReading(context.Background())
	require.Error(t, err)

	require.Len(t, s.audit, 1)
	assert.Equal(t, ActionAutoReadingFailed, s.audit[0].Action)
	assert.Equal(t, "connection refused", s.audit[0].Details["error"])
}

func TestStatusCheck(t *testing.T) {
	s := &memStore{
		devices: []model.Device{
			{ID: 1, Code: "FRESH"},
			{ID: 2, Code: "STALE", Area: &model.Area{Name: "A"}},
			{ID: 3, Code: "NEVER"},
		},
		readings: []model.Reading{
			{DeviceID: 1, Value: 1, ReadAt: now.Add(-2 * time.Hour)},
			{DeviceID: 2, Value: 1, ReadAt: now.Add(-30*time.Hour - 20*time.Minute)},
		},
	}
	alerter := &memAlerter{}
	stale, err := newScheduler(s, nil, alerter).StatusCheck(context.Background())
	require.NoError(t, err)

	require.Len(t, stale, 1)
	assert.Equal(t, "STALE", stale[0].Device.Code)
	assert.Equal(t, 30.3, stale[0].Hours)

	require.Len(t, s.audit, 1)
	entry := s.audit[0]
	assert.Equal(t, ActionDeviceStale, entry.Action)
	require.NotNil(t, entry.DeviceID)
	assert.Equal(t, int64(2), *entry.DeviceID)
	assert.Equal(t, "A", entry.Details["area"])

	assert.Equal(t, []notification.Alert{{DeviceID: 2, Hours: 30.3}}, alerter.alerts)
}

func TestBackup(t *testing.T) {
	s := &memStore{devices: []model.Device{{ID: 1, Code: "M-1"}}}
	uploader := &memUploader{}
	require.NoError(t, newScheduler(s, uploader, nil).Backup(context.Background()))

	require.Len(t, uploader.keys, 1)
	require.Len(t, s.audit, 1)
	assert.Equal(t, ActionBackup, s.audit[0].Action)
	assert.Equal(t, uploader.keys[0], s.audit[0].Details["key"])

	assert.Error(t, newScheduler(s, nil, nil).Backup(context.Background()))
}

func TestStart_RejectsBadSpec(t *testing.T) {
	sched := New(config.JobsConfig{Enabled: true, AutoReadingSpec: "every day"}, &memStore{}, nil, nil, time.UTC)
	assert.Error(t, sched.Start(context.Background()))

	sched = New(config.JobsConfig{Enabled: true, StatusCheckSpec: "0 * * * *"}, &memStore{}, nil, nil, time.UTC)
	require.NoError(t, sched.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sched.Stop(ctx)
}
