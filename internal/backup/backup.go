package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"dianbiao-backend/config"
	"dianbiao-backend/internal/store"
)

// Uploader stores one backup object under key.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte) error
}

// Dumper exports the data to back up.
type Dumper interface {
	Dump(ctx context.Context) (*store.Dump, error)
}

// Result describes a written snapshot.
type Result struct {
	Key      string `json:"key"`
	Size     int    `json:"size"`
	Devices  int    `json:"devices"`
	Readings int    `json:"readings"`
}

// New returns the uploader selected by cfg.Target.
func New(ctx context.Context, cfg config.BackupConfig) (Uploader, error) {
	switch cfg.Target {
	case "", "dir":
		return NewDirUploader(cfg.Dir), nil
	case "s3":
		return NewS3Uploader(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown backup target %q", cfg.Target)
	}
}

// Key names a snapshot taken at t. The random suffix keeps concurrent runs apart.
func Key(t time.Time) string {
	return fmt.Sprintf("dianbiao-%s-%s.json", t.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

// Snapshot dumps the store as JSON and uploads it.
func Snapshot(ctx context.Context, d Dumper, u Uploader) (Result, error) {
	dump, err := d.Dump(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to export data: %w", err)
	}
	body, err := json.Marshal(dump)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode backup: %w", err)
	}

	key := Key(dump.TakenAt)
	if err := u.Upload(ctx, key, body); err != nil {
		return Result{}, fmt.Errorf("failed to upload backup %s: %w", key, err)
	}
	log.Info().Str("key", key).Int("bytes", len(body)).Msg("backup written")
	return Result{Key: key, Size: len(body), Devices: len(dump.Devices), Readings: len(dump.Readings)}, nil
}
