package jobs

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"dianbiao-backend/config"
	"dianbiao-backend/internal/backup"
	"dianbiao-backend/internal/model"
	"dianbiao-backend/internal/notification"
	"dianbiao-backend/internal/store"
)

// Audit actions written by the jobs.
const (
	ActionAutoReading       = "自动抄表任务执行"
	ActionAutoReadingFailed = "自动抄表任务失败"
	ActionBackup            = "数据备份任务执行"
	ActionBackupFailed      = "数据备份任务失败"
	ActionDeviceStale       = "设备状态异常"
	ActionStatusCheckFailed = "设备状态检查任务失败"
)

// Store is the part of the store used by the jobs.
type Store interface {
	ListDevices(ctx context.Context, filter store.DeviceFilter) ([]model.Device, error)
	LatestReading(ctx context.Context, deviceID int64, before *time.Time) (model.Reading, bool, error)
	CreateReading(ctx context.Context, reading *model.Reading) error
	CreateAuditLog(ctx context.Context, entry *model.AuditLog) error
	Dump(ctx context.Context) (*store.Dump, error)
}

// Alerter delivers stale-meter alerts.
type Alerter interface {
	Dispatch(ctx context.Context, alert notification.Alert) bool
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cfg      config.JobsConfig
	store    Store
	uploader backup.Uploader
	alerter  Alerter
	cron     *cron.Cron

	now  func() time.Time
	rand func() float64
}

// New creates a scheduler. uploader and alerter may be nil, which disables
// backups and push alerts respectively.
func New(cfg config.JobsConfig, s Store, uploader backup.Uploader, alerter Alerter, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 24 * time.Hour
	}
	if cfg.MaxIncrement <= 0 {
		cfg.MaxIncrement = 10
	}
	logger := cronLogger{}
	return &Scheduler{
		cfg:      cfg,
		store:    s,
		uploader: uploader,
		alerter:  alerter,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		now:  time.Now,
		rand: rand.Float64,
	}
}

// Start registers the jobs and starts the cron loop. Jobs run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		log.Info().Msg("scheduled jobs are disabled")
		return nil
	}

	entries := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"auto_reading", s.cfg.AutoReadingSpec, s.AutoReading},
		{"status_check", s.cfg.StatusCheckSpec, func(ctx context.Context) error {
			_, err := s.StatusCheck(ctx)
			return err
		}},
		{"backup", s.cfg.BackupSpec, s.Backup},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		name, run := e.name, e.run
		if _, err := s.cron.AddFunc(e.spec, func() {
			if err := run(ctx); err != nil {
				log.Error().Err(err).Str("job", name).Msg("scheduled job failed")
			}
		}); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", e.spec, name, err)
		}
		log.Info().Str("job", name).Str("spec", e.spec).Msg("scheduled job registered")
	}

	s.cron.Start()
	return nil
}

// Stop stops scheduling and waits for running jobs or ctx, whichever ends first.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) audit(ctx context.Context, action string, deviceID *int64, details datatypes.JSONMap) {
	details["timestamp"] = s.now().UTC().Format(time.RFC3339)
	entry := model.AuditLog{Action: action, Username: "system", DeviceID: deviceID, Details: details}
	if err := s.store.CreateAuditLog(ctx, &entry); err != nil {
		log.Error().Err(err).Str("action", action).Msg("failed to record job audit log")
	}
}

// AutoReading appends a simulated reading to every device: the latest value
// plus a random increment below MaxIncrement, rounded to two decimals.
func (s *Scheduler) AutoReading(ctx context.Context) error {
	err := s.autoReading(ctx)
	if err != nil {
		s.audit(ctx, ActionAutoReadingFailed, nil, datatypes.JSONMap{"error": err.Error()})
	}
	return err
}

func (s *Scheduler) autoReading(ctx context.Context) error {
	devices, err := s.store.ListDevices(ctx, store.DeviceFilter{})
	if err != nil {
		return err
	}
	now := s.now()
	for _, d := range devices {
		latest, found, err := s.store.LatestReading(ctx, d.ID, nil)
		if err != nil {
			return err
		}
		base := 0.0
		if found {
			base = latest.Value
		}
		value := math.Round((base+s.rand()*s.cfg.MaxIncrement)*100) / 100
		reading := model.Reading{DeviceID: d.ID, Value: value, ReadAt: now}
		if err := s.store.CreateReading(ctx, &reading); err != nil {
			return fmt.Errorf("failed to store reading for device %s: %w", d.Code, err)
		}
	}

	log.Info().Int("devices", len(devices)).Msg("auto meter reading finished")
	s.audit(ctx, ActionAutoReading, nil, datatypes.JSONMap{"device_count": len(devices)})
	return nil
}

// Stale describes a device whose latest reading is too old.
type Stale struct {
	Device     model.Device
	LastUpdate time.Time
	Hours      float64
}

// StatusCheck finds devices whose latest reading is older than StaleAfter.
// Devices that never reported are not considered stale.
func (s *Scheduler) StatusCheck(ctx context.Context) ([]Stale, error) {
	stale, err := s.statusCheck(ctx)
	if err != nil {
		s.audit(ctx, ActionStatusCheckFailed, nil, datatypes.JSONMap{"error": err.Error()})
	}
	return stale, err
}

func (s *Scheduler) statusCheck(ctx context.Context) ([]Stale, error) {
	devices, err := s.store.ListDevices(ctx, store.DeviceFilter{})
	if err != nil {
		return nil, err
	}
	now := s.now()
	var stale []Stale
	for _, d := range devices {
		latest, found, err := s.store.LatestReading(ctx, d.ID, nil)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		age := now.Sub(latest.ReadAt)
		if age <= s.cfg.StaleAfter {
			continue
		}

		hours := math.Round(age.Hours()*10) / 10
		stale = append(stale, Stale{Device: d, LastUpdate: latest.ReadAt, Hours: hours})
		log.Warn().Str("device", d.Code).Float64("hours", hours).Msg("meter has not reported")

		id := d.ID
		s.audit(ctx, ActionDeviceStale, &id, datatypes.JSONMap{
			"device_id":               d.Code,
			"area":                    d.AreaName(),
			"floor":                   d.FloorName(),
			"room":                    d.RoomName(),
			"last_update":             latest.ReadAt.UTC().Format(time.RFC3339),
			"hours_since_last_update": hours,
		})
		if s.alerter != nil {
			s.alerter.Dispatch(ctx, notification.Alert{DeviceID: d.ID, Hours: hours})
		}
	}
	return stale, nil
}

// Backup uploads a JSON snapshot of the metering data.
func (s *Scheduler) Backup(ctx context.Context) error {
	if s.uploader == nil {
		return fmt.Errorf("no backup target configured")
	}
	res, err := backup.Snapshot(ctx, s.store, s.uploader)
	if err != nil {
		s.audit(ctx, ActionBackupFailed, nil, datatypes.JSONMap{"error": err.Error()})
		return err
	}
	s.audit(ctx, ActionBackup, nil, datatypes.JSONMap{
		"key":      res.Key,
		"bytes":    res.Size,
		"devices":  res.Devices,
		"readings": res.Readings,
	})
	return nil
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
